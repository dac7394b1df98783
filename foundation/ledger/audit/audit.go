// Package audit runs load and adversarial scenarios against sandboxed
// copies of the chain so operators can validate the economic properties
// of the node without touching the live state.
package audit

import (
	"context"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
)

// Audit provides the load test, security test and validation report
// operations exposed over the RPC surface.
type Audit struct {
	state     *state.State
	evHandler state.EventHandler
}

// New constructs the audit support around the live node state. The live
// state is only ever read; every scenario runs on its own sandbox.
func New(st *state.State, evHandler state.EventHandler) *Audit {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Audit{
		state:     st,
		evHandler: ev,
	}
}

// =============================================================================

// ValidationReport aggregates the chain's live economic standing with a
// fresh load test and security test run.
type ValidationReport struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	ChainID          uint16          `json:"chain_id"`
	ChainName        string          `json:"chain_name"`
	BlockHeight      uint64          `json:"block_height"`
	BaseFee          uint64          `json:"base_fee"`
	Supply           database.Supply `json:"supply"`
	SupplyTotal      uint64          `json:"supply_total"`
	TotalBonded      uint64          `json:"total_bonded"`
	TotalClaimable   uint64          `json:"total_claimable"`
	BridgeVault      uint64          `json:"bridge_vault"`
	TotalLiquidity   uint64          `json:"total_liquidity"`
	KnownPeers       int             `json:"known_peers"`
	SupplyConsistent bool            `json:"supply_consistent"`
	Load             LoadResult      `json:"load"`
	Security         SecurityResult  `json:"security"`
	Passed           bool            `json:"passed"`
}

// GenerateValidationReport runs the load test and the security scenarios
// and combines them with the live chain's accounting. The report passes
// only if every scenario holds and every unit of supply is accounted for.
func (a *Audit) GenerateValidationReport(ctx context.Context) (ValidationReport, error) {
	a.evHandler("audit: GenerateValidationReport: started")
	defer a.evHandler("audit: GenerateValidationReport: completed")

	load, err := a.RunLoadTest(ctx, LoadConfig{})
	if err != nil {
		return ValidationReport{}, err
	}

	security, err := a.RunSecurityTest(ctx)
	if err != nil {
		return ValidationReport{}, err
	}

	gen := a.state.RetrieveGenesis()
	supply := a.state.RetrieveSupply()

	report := ValidationReport{
		GeneratedAt:      time.Now().UTC(),
		ChainID:          gen.ChainID,
		ChainName:        gen.Name,
		BlockHeight:      a.state.RetrieveLatestBlock().Header.Number,
		BaseFee:          a.state.BaseFee(),
		Supply:           supply,
		SupplyTotal:      supply.Total(),
		TotalBonded:      a.state.TotalBonded(),
		TotalClaimable:   a.state.TotalClaimable(),
		BridgeVault:      a.state.BridgeVault(),
		TotalLiquidity:   a.state.TotalLiquidity(),
		KnownPeers:       a.state.RetrieveKnownPeerCount(),
		SupplyConsistent: supplyConsistent(a.state),
		Load:             load,
		Security:         security,
	}

	report.Passed = report.SupplyConsistent && security.Passed && load.TxsApplied > 0

	return report, nil
}

// supplyConsistent verifies that every unit in existence is held by an
// account, bonded, claimable, locked in the bridge vault or pooled.
func supplyConsistent(st *state.State) bool {
	var held uint64
	for _, account := range st.RetrieveAccounts() {
		held += account.Balance + account.Bonded
	}
	held += st.TotalClaimable()
	held += st.BridgeVault()
	held += st.TotalLiquidity()

	return held == st.RetrieveSupply().Total()
}
