// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ancourn/kaldr1-sub002/business/core/archive"
	v1 "github.com/ancourn/kaldr1-sub002/business/web/v1"
	"github.com/ancourn/kaldr1-sub002/foundation/events"
	"github.com/ancourn/kaldr1-sub002/foundation/keystore"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
	"github.com/ancourn/kaldr1-sub002/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log      *zap.SugaredLogger
	State    *state.State
	Keystore *keystore.KeyStore
	WS       websocket.Upgrader
	Evts     *events.Bus
	Archive  *archive.Core
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, wd := <-ch:
			if !wd {
				return nil
			}

			msg, err := json.Marshal(ev)
			if err != nil {
				return err
			}

			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds new wallet transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add wallet tran", "traceid", v.TraceID, "from:nonce", signedTx, "to", signedTx.ToID, "kind", signedTx.Kind, "value", signedTx.Value, "tip", signedTx.Tip)
	if err := h.State.UpsertWalletTransaction(signedTx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := web.Param(r, "account")

	mempool := h.State.RetrieveMempool()

	trans := []tx{}
	for _, tran := range mempool {
		account, _ := tran.FromAccount()

		if acct != "" && (acct != string(account)) && (acct != string(tran.ToID)) {
			continue
		}

		trans = append(trans, tx{
			FromAccount: account,
			FromName:    h.Keystore.Lookup(account),
			To:          tran.ToID,
			ToName:      h.Keystore.Lookup(tran.ToID),
			Nonce:       tran.Nonce,
			Value:       tran.Value,
			Tip:         tran.Tip,
			Kind:        tran.Kind,
			Data:        tran.Data,
			TimeStamp:   tran.TimeStamp,
			GasPrice:    tran.GasPrice,
			GasUnits:    tran.GasUnits,
			Sig:         tran.SignatureString(),
		})
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the balances, bonded stake, and nonce for the requested
// accounts.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	var accounts map[database.AccountID]database.Account
	switch account {
	case "":
		accounts = h.State.RetrieveAccounts()

	default:
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}

		act, err := h.State.QueryAccount(accountID)
		if err != nil {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		accounts = map[database.AccountID]database.Account{accountID: act}
	}

	acts := make([]info, 0, len(accounts))
	for accountID, act := range accounts {
		acts = append(acts, info{
			Account: accountID,
			Name:    h.Keystore.Lookup(accountID),
			Balance: act.Balance,
			Bonded:  act.Bonded,
			Nonce:   act.Nonce,
		})
	}

	ai := actInfo{
		LatestBlock: h.State.RetrieveLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// BlocksByAccount returns the blocks that carry transactions touching the
// specified account.
func (h Handlers) BlocksByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	dbBlocks, err := h.State.QueryBlocksByAccount(accountID)
	if err != nil {
		return err
	}
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for j, blk := range dbBlocks {
		values := blk.Trans.Values()

		trans := make([]tx, len(values))
		for i, tran := range values {
			account, _ := tran.FromAccount()
			trans[i] = tx{
				FromAccount: account,
				FromName:    h.Keystore.Lookup(account),
				To:          tran.ToID,
				ToName:      h.Keystore.Lookup(tran.ToID),
				Nonce:       tran.Nonce,
				Value:       tran.Value,
				Tip:         tran.Tip,
				Kind:        tran.Kind,
				Data:        tran.Data,
				TimeStamp:   tran.TimeStamp,
				GasPrice:    tran.GasPrice,
				GasUnits:    tran.GasUnits,
				Sig:         tran.SignatureString(),
			}
		}

		blocks[j] = block{
			Hash:          blk.Hash(),
			PrevBlockHash: blk.Header.PrevBlockHash,
			Beneficiary:   blk.Header.BeneficiaryID,
			Number:        blk.Header.Number,
			BaseFee:       blk.Header.BaseFee,
			GasUsed:       blk.Header.GasUsed,
			GasLimit:      blk.Header.GasLimit,
			TransRoot:     blk.Header.TransRoot,
			TimeStamp:     blk.Header.TimeStamp,
			Transactions:  trans,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Supply returns the money supply bookkeeping along with the module
// balances derived from it.
func (h Handlers) Supply(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	supply := h.State.RetrieveSupply()

	si := supplyInfo{
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

	return web.Respond(ctx, w, si, http.StatusOK)
}

// Fees returns the current fee market readings.
func (h Handlers) Fees(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.RetrieveLatestBlock()

	fi := feeInfo{
		BaseFee:           h.State.BaseFee(),
		SuggestedGasPrice: h.State.SuggestGasPrice(),
		GasTarget:         h.State.GasTarget(),
		GasLimit:          h.State.RetrieveGenesis().GasLimit,
		LatestGasUsed:     latest.Header.GasUsed,
	}

	return web.Respond(ctx, w, fi, http.StatusOK)
}

// StakingPositions returns the staking book, or a single position when an
// account is specified.
func (h Handlers) StakingPositions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	si := stakingInfo{
		TotalBonded:    h.State.TotalBonded(),
		TotalClaimable: h.State.TotalClaimable(),
		RewardRateBPS:  h.State.RewardRateBPS(),
	}

	account := web.Param(r, "account")
	switch account {
	case "":
		si.Positions = h.State.StakingPositions()

	default:
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}

		pos, err := h.State.StakingPosition(accountID)
		if err != nil {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		si.Positions = append(si.Positions, pos)
	}

	return web.Respond(ctx, w, si, http.StatusOK)
}

// BridgeTransfers returns the bridge transfer book, or a single transfer
// when an id is specified.
func (h Handlers) BridgeTransfers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")
	if id == "" {
		return web.Respond(ctx, w, h.State.BridgeTransfers(), http.StatusOK)
	}

	transfer, err := h.State.BridgeTransfer(id)
	if err != nil {
		return v1.NewRequestError(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, transfer, http.StatusOK)
}

// BridgePools returns the liquidity pools along with the bridge vault.
func (h Handlers) BridgePools(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pi := poolInfo{
		TotalLiquidity: h.State.TotalLiquidity(),
		Vault:          h.State.BridgeVault(),
		FlatFee:        h.State.BridgeFlatFee(),
		Pools:          h.State.BridgePools(),
	}

	return web.Respond(ctx, w, pi, http.StatusOK)
}

// Proposals returns the governance book, or a single proposal when an id
// is specified.
func (h Handlers) Proposals(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pi := proposalInfo{
		QuorumBPS: h.State.QuorumBPS(),
	}

	id := web.Param(r, "id")
	switch id {
	case "":
		pi.Proposals = h.State.Proposals()

	default:
		propID, err := web.ParamUint(r, "id")
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}

		prop, err := h.State.Proposal(propID)
		if err != nil {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		pi.Proposals = append(pi.Proposals, prop)
	}

	return web.Respond(ctx, w, pi, http.StatusOK)
}

// ArchiveBlocks returns archived block summaries from the sql read model.
func (h Handlers) ArchiveBlocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := web.ParamUint(r, "from")
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	to, err := web.ParamUint(r, "to")
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if from > to {
		return v1.NewRequestError(fmt.Errorf("from %d is greater than to %d", from, to), http.StatusBadRequest)
	}

	blocks, err := h.Archive.Blocks(ctx, from, to)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// ArchiveTransactions returns the archived transactions touching the
// specified account, newest first.
func (h Handlers) ArchiveTransactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	const limit = 100

	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	trans, err := h.Archive.TransactionsByAccount(ctx, string(accountID), limit)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// ArchiveMetrics returns the metric snapshots taken over the last hour.
func (h Handlers) ArchiveMetrics(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	snaps, err := h.Archive.Snapshots(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, snaps, http.StatusOK)
}

// ArchiveNodes returns the nodes the archive has observed.
func (h Handlers) ArchiveNodes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	nodes, err := h.Archive.Nodes(ctx)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, nodes, http.StatusOK)
}

// ArchiveIdentities returns the identity keys recorded by the archive
// merged with the keys currently loaded in the keystore.
func (h Handlers) ArchiveIdentities(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	keys, err := h.Archive.IdentityKeys(ctx)
	if err != nil {
		return err
	}

	identities := make([]identity, len(keys))
	for i, key := range keys {
		identities[i] = identity{
			Account:   database.AccountID(key.AccountID),
			Name:      key.Name,
			PublicKey: key.PublicKey,
		}
	}

	return web.Respond(ctx, w, identities, http.StatusOK)
}
