package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/audit"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// methods maps each JSON-RPC method name to its handler. The eth and net
// namespaces follow the ethereum wire conventions so existing wallets can
// point at the node unchanged. The kaldrix namespace exposes the economic
// layer and the validation tooling.
func (h Handlers) methods() map[string]methodFunc {
	return map[string]methodFunc{
		"net_listening":                    h.netListening,
		"net_peerCount":                    h.netPeerCount,
		"net_version":                      h.netVersion,
		"eth_syncing":                      h.ethSyncing,
		"eth_blockNumber":                  h.ethBlockNumber,
		"eth_chainId":                      h.ethChainID,
		"eth_gasPrice":                     h.ethGasPrice,
		"eth_accounts":                     h.ethAccounts,
		"eth_getBalance":                   h.ethGetBalance,
		"eth_getTransactionCount":          h.ethGetTransactionCount,
		"eth_estimateGas":                  h.ethEstimateGas,
		"kaldrix_getConsensusParams":       h.getConsensusParams,
		"kaldrix_getSupply":                h.getSupply,
		"kaldrix_runLoadTest":              h.runLoadTest,
		"kaldrix_runSecurityTest":          h.runSecurityTest,
		"kaldrix_generateValidationReport": h.generateValidationReport,
	}
}

func (h Handlers) netListening(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return true, nil
}

func (h Handlers) netPeerCount(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return hexutil.Uint64(h.State.RetrieveKnownPeerCount()), nil
}

func (h Handlers) netVersion(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return fmt.Sprintf("%d", h.State.RetrieveGenesis().ChainID), nil
}

// ethSyncing reports false. The node applies peer blocks as they arrive,
// so from a wallet's point of view it is always at head.
func (h Handlers) ethSyncing(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return false, nil
}

func (h Handlers) ethBlockNumber(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return hexutil.Uint64(h.State.RetrieveLatestBlock().Header.Number), nil
}

func (h Handlers) ethChainID(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return hexutil.Uint64(h.State.RetrieveGenesis().ChainID), nil
}

func (h Handlers) ethGasPrice(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return hexutil.Uint64(h.State.SuggestGasPrice()), nil
}

func (h Handlers) ethAccounts(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	return h.Keystore.Accounts(), nil
}

// ethGetBalance returns the spendable balance. Accounts the ledger has
// never seen report zero, the answer wallets expect for a fresh key.
func (h Handlers) ethGetBalance(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	accountID, _, rpcErr := accountParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, err := h.State.QueryAccount(accountID)
	if err != nil {
		return hexutil.Uint64(0), nil
	}

	return hexutil.Uint64(account.Balance), nil
}

// ethGetTransactionCount returns the account nonce. With the pending tag
// the mempool is consulted so wallets sign with the next usable nonce.
func (h Handlers) ethGetTransactionCount(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	accountID, tag, rpcErr := accountParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if tag == "pending" {
		return hexutil.Uint64(h.State.QueryNextNonce(accountID)), nil
	}

	account, err := h.State.QueryAccount(accountID)
	if err != nil {
		return hexutil.Uint64(0), nil
	}

	return hexutil.Uint64(account.Nonce), nil
}

// ethEstimateGas returns the gas units for the call object's kind. Gas on
// this chain is a flat schedule per kind, so no simulation is needed.
func (h Handlers) ethEstimateGas(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var call struct {
		Kind database.Kind `json:"kind"`
	}
	if err := decodePositional(params, &call); err != nil {
		return nil, invalidParams(err)
	}

	if call.Kind == "" {
		call.Kind = database.KindTransfer
	}
	if !call.Kind.IsKind() {
		return nil, invalidParams(fmt.Errorf("kind %q is not supported", call.Kind))
	}

	return hexutil.Uint64(call.Kind.GasUnits()), nil
}

// consensusParams is the kaldrix_getConsensusParams result. GasTarget and
// the nested params come from the live engines since governance can move
// them after genesis.
type consensusParams struct {
	ChainID          uint16                `json:"chain_id"`
	Name             string                `json:"name"`
	SealIntervalSecs uint64                `json:"seal_interval_secs"`
	TransPerBlock    uint16                `json:"trans_per_block"`
	BaseFee          uint64                `json:"base_fee"`
	MinBaseFee       uint64                `json:"min_base_fee"`
	GasTarget        uint64                `json:"gas_target"`
	GasLimit         uint64                `json:"gas_limit"`
	SealerReward     uint64                `json:"sealer_reward"`
	Sealer           string                `json:"sealer"`
	Staking          genesis.StakingParams `json:"staking"`
	Bridge           genesis.BridgeParams  `json:"bridge"`
	Gov              genesis.GovParams     `json:"gov"`
}

func (h Handlers) getConsensusParams(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	gen := h.State.RetrieveGenesis()

	cp := consensusParams{
		ChainID:          gen.ChainID,
		Name:             gen.Name,
		SealIntervalSecs: gen.SealIntervalSecs,
		TransPerBlock:    gen.TransPerBlock,
		BaseFee:          h.State.BaseFee(),
		MinBaseFee:       gen.MinBaseFee,
		GasTarget:        h.State.GasTarget(),
		GasLimit:         gen.GasLimit,
		SealerReward:     gen.SealerReward,
		Sealer:           gen.Sealer,
		Staking:          gen.Staking,
		Bridge:           gen.Bridge,
		Gov:              gen.Gov,
	}
	cp.Staking.RewardRateBPS = h.State.RewardRateBPS()
	cp.Bridge.FlatFee = h.State.BridgeFlatFee()
	cp.Gov.QuorumBPS = h.State.QuorumBPS()

	return cp, nil
}

// supplyResult is the kaldrix_getSupply result. Circulating is the spendable
// remainder: total minus bonded stake, unclaimed rewards and bridge holdings.
type supplyResult struct {
	Genesis         uint64 `json:"genesis"`
	Minted          uint64 `json:"minted"`
	BurnedFees      uint64 `json:"burned_fees"`
	BurnedPenalties uint64 `json:"burned_penalties"`
	Total           uint64 `json:"total"`
	Bonded          uint64 `json:"bonded"`
	Claimable       uint64 `json:"claimable"`
	BridgeVault     uint64 `json:"bridge_vault"`
	BridgeLiquidity uint64 `json:"bridge_liquidity"`
	Circulating     uint64 `json:"circulating"`
}

func (h Handlers) getSupply(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	supply := h.State.RetrieveSupply()

	result := supplyResult{
		Genesis:         supply.Genesis,
		Minted:          supply.Minted,
		BurnedFees:      supply.BurnedFees,
		BurnedPenalties: supply.BurnedPenalties,
		Total:           supply.Total(),
		Bonded:          h.State.TotalBonded(),
		Claimable:       h.State.TotalClaimable(),
		BridgeVault:     h.State.BridgeVault(),
		BridgeLiquidity: h.State.TotalLiquidity(),
	}

	locked := result.Bonded + result.Claimable + result.BridgeVault + result.BridgeLiquidity
	if result.Total > locked {
		result.Circulating = result.Total - locked
	}

	return result, nil
}

// runLoadTest floods a sandbox copy of the chain with transfers and
// reports throughput. The live chain is never touched. The config param
// is optional and zero values fall back to the audit defaults.
func (h Handlers) runLoadTest(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var cfg audit.LoadConfig

	if len(params) != 0 {
		var raw []json.RawMessage
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, invalidParams(fmt.Errorf("params must be an array: %w", err))
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw[0], &cfg); err != nil {
				return nil, invalidParams(fmt.Errorf("load config param: %w", err))
			}
		}
	}

	result, err := h.Audit.RunLoadTest(ctx, cfg)
	if err != nil {
		return nil, execError(err)
	}

	return result, nil
}

// runSecurityTest replays the adversarial scenarios against a sandbox
// copy of the chain and reports which defenses held.
func (h Handlers) runSecurityTest(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	result, err := h.Audit.RunSecurityTest(ctx)
	if err != nil {
		return nil, execError(err)
	}

	return result, nil
}

func (h Handlers) generateValidationReport(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	report, err := h.Audit.GenerateValidationReport(ctx)
	if err != nil {
		return nil, execError(err)
	}

	return report, nil
}

// accountParam decodes the leading address param plus the optional block
// tag that follows it.
func accountParam(params json.RawMessage) (database.AccountID, string, *rpcError) {
	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return "", "", invalidParams(fmt.Errorf("params must be an array: %w", err))
	}
	if len(raw) == 0 {
		return "", "", invalidParams(errors.New("address param is required"))
	}

	var address string
	if err := json.Unmarshal(raw[0], &address); err != nil {
		return "", "", invalidParams(fmt.Errorf("address param: %w", err))
	}

	accountID, err := database.ToAccountID(address)
	if err != nil {
		return "", "", invalidParams(err)
	}

	tag := "latest"
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &tag); err != nil {
			return "", "", invalidParams(fmt.Errorf("block tag param: %w", err))
		}
	}

	return accountID, tag, nil
}
