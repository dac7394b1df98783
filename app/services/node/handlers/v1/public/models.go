package public

import (
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/bridge"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/gov"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
)

type tx struct {
	FromAccount database.AccountID `json:"from"`
	FromName    string             `json:"from_name"`
	To          database.AccountID `json:"to"`
	ToName      string             `json:"to_name"`
	Nonce       uint64             `json:"nonce"`
	Value       uint64             `json:"value"`
	Tip         uint64             `json:"tip"`
	Kind        database.Kind      `json:"kind"`
	Data        []byte             `json:"data,omitempty"`
	TimeStamp   uint64             `json:"timestamp"`
	GasPrice    uint64             `json:"gas_price"`
	GasUnits    uint64             `json:"gas_units"`
	Sig         string             `json:"sig"`
}

type info struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Balance uint64             `json:"balance"`
	Bonded  uint64             `json:"bonded"`
	Nonce   uint64             `json:"nonce"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

type block struct {
	Hash          string             `json:"hash"`
	PrevBlockHash string             `json:"prev_block_hash"`
	Beneficiary   database.AccountID `json:"beneficiary"`
	Number        uint64             `json:"number"`
	BaseFee       uint64             `json:"base_fee"`
	GasUsed       uint64             `json:"gas_used"`
	GasLimit      uint64             `json:"gas_limit"`
	TransRoot     string             `json:"trans_root"`
	TimeStamp     uint64             `json:"timestamp"`
	Transactions  []tx               `json:"transactions"`
}

type supplyInfo struct {
	Genesis         uint64 `json:"genesis"`
	Minted          uint64 `json:"minted"`
	BurnedFees      uint64 `json:"burned_fees"`
	BurnedPenalties uint64 `json:"burned_penalties"`
	Total           uint64 `json:"total"`
	Bonded          uint64 `json:"bonded"`
	Claimable       uint64 `json:"claimable"`
	BridgeVault     uint64 `json:"bridge_vault"`
	BridgeLiquidity uint64 `json:"bridge_liquidity"`
}

type feeInfo struct {
	BaseFee           uint64 `json:"base_fee"`
	SuggestedGasPrice uint64 `json:"suggested_gas_price"`
	GasTarget         uint64 `json:"gas_target"`
	GasLimit          uint64 `json:"gas_limit"`
	LatestGasUsed     uint64 `json:"latest_gas_used"`
}

type stakingInfo struct {
	TotalBonded    uint64             `json:"total_bonded"`
	TotalClaimable uint64             `json:"total_claimable"`
	RewardRateBPS  uint64             `json:"reward_rate_bps"`
	Positions      []staking.Position `json:"positions"`
}

type poolInfo struct {
	TotalLiquidity uint64        `json:"total_liquidity"`
	Vault          uint64        `json:"vault"`
	FlatFee        uint64        `json:"flat_fee"`
	Pools          []bridge.Pool `json:"pools"`
}

type proposalInfo struct {
	QuorumBPS uint64         `json:"quorum_bps"`
	Proposals []gov.Proposal `json:"proposals"`
}

// identity pairs the name the node knows a key by with the account that
// key controls.
type identity struct {
	Account   database.AccountID `json:"account"`
	Name      string             `json:"name"`
	PublicKey string             `json:"public_key"`
}
