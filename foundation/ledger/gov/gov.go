// Package gov implements on-chain governance over a whitelisted set of
// economic parameters. Stakers with an active position propose a change,
// bonded accounts vote with their bonded weight, and once the voting
// window closes the proposal passes only if participation reaches quorum
// and the for votes outweigh the against votes.
package gov

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
)

// Status tells where a proposal is in its lifecycle.
type Status string

// Set of proposal statuses.
const (
	StatusVoting   Status = "voting"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Bounds for governance adjusting its own quorum. A quorum outside this
// range would make the system either trivially or impossibly governable.
const (
	minQuorumBPS = 500
	maxQuorumBPS = 5000
)

// Set of errors the engine returns that callers branch on.
var (
	ErrNotEligible     = errors.New("account has no active staking position")
	ErrUnknownProposal = errors.New("proposal does not exist")
	ErrUnknownParam    = errors.New("parameter is not governable")
)

// Applier commits an accepted parameter change to the engine owning it.
type Applier func(value uint64) error

// ProposeData carries the kind specific parameters of a propose transaction.
type ProposeData struct {
	Param       string `json:"param" validate:"required"`
	Value       uint64 `json:"value"`
	Description string `json:"description"`
}

// VoteData carries the kind specific parameters of a vote transaction.
type VoteData struct {
	ProposalID uint64 `json:"proposal_id" validate:"required"`
	Support    bool   `json:"support"`
}

// Proposal represents one parameter change moving through governance.
type Proposal struct {
	ID           uint64             `json:"id"`
	Proposer     database.AccountID `json:"proposer"`
	Param        string             `json:"param"`
	Value        uint64             `json:"value"`
	Description  string             `json:"description,omitempty"`
	Status       Status             `json:"status"`
	StartHeight  uint64             `json:"start_height"`
	EndHeight    uint64             `json:"end_height"`
	VotesFor     uint64             `json:"votes_for"`
	VotesAgainst uint64             `json:"votes_against"`
	Reason       string             `json:"reason,omitempty"`

	voters map[database.AccountID]bool
}

// =============================================================================

// Gov is the governance engine. Vote weight is the voter's bonded balance
// at the moment the vote lands, and quorum is measured against the total
// bonded supply at tally time.
type Gov struct {
	mu sync.RWMutex

	db        *database.Database
	params    genesis.GovParams
	eligible  func(database.AccountID) bool
	appliers  map[string]Applier
	proposals map[uint64]*Proposal
	nextID    uint64
}

// New constructs the governance engine. The eligible func gates who may
// propose and the appliers commit accepted changes to their owning
// engines. The engine registers its own quorum parameter.
func New(db *database.Database, gen genesis.Genesis, eligible func(database.AccountID) bool, appliers map[string]Applier) *Gov {
	g := Gov{
		db:        db,
		params:    gen.Gov,
		eligible:  eligible,
		appliers:  make(map[string]Applier),
		proposals: make(map[uint64]*Proposal),
		nextID:    1,
	}

	for param, applier := range appliers {
		g.appliers[param] = applier
	}
	g.appliers[genesis.ParamQuorumBPS] = g.setQuorum

	return &g
}

// QuorumBPS returns the participation threshold in basis points.
func (g *Gov) QuorumBPS() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.params.QuorumBPS
}

// setQuorum is the applier for governance changing its own quorum.
func (g *Gov) setQuorum(value uint64) error {
	if value < minQuorumBPS || value > maxQuorumBPS {
		return fmt.Errorf("quorum %d outside [%d, %d] basis points", value, minQuorumBPS, maxQuorumBPS)
	}
	g.params.QuorumBPS = value
	return nil
}

// =============================================================================

// Propose opens a new proposal. Only accounts with an active staking
// position may propose, the parameter must be whitelisted, and the number
// of simultaneously open proposals is capped.
func (g *Gov) Propose(proposerID database.AccountID, data ProposeData, height uint64) (Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.eligible(proposerID) {
		return Proposal{}, ErrNotEligible
	}

	if _, exists := g.appliers[data.Param]; !exists {
		return Proposal{}, ErrUnknownParam
	}

	var open int
	for _, proposal := range g.proposals {
		if proposal.Status == StatusVoting {
			open++
		}
	}
	if open >= int(g.params.MaxActiveProposals) {
		return Proposal{}, fmt.Errorf("already %d open proposals, max %d", open, g.params.MaxActiveProposals)
	}

	proposal := Proposal{
		ID:          g.nextID,
		Proposer:    proposerID,
		Param:       data.Param,
		Value:       data.Value,
		Description: data.Description,
		Status:      StatusVoting,
		StartHeight: height,
		EndHeight:   height + g.params.VotingPeriodBlocks,
		voters:      make(map[database.AccountID]bool),
	}

	g.proposals[proposal.ID] = &proposal
	g.nextID++

	return proposal, nil
}

// Vote casts the voter's bonded balance for or against a proposal. Each
// account votes once per proposal and only while the window is open.
func (g *Gov) Vote(voterID database.AccountID, data VoteData, height uint64) (Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	proposal, exists := g.proposals[data.ProposalID]
	if !exists {
		return Proposal{}, ErrUnknownProposal
	}

	if proposal.Status != StatusVoting || height > proposal.EndHeight {
		return Proposal{}, fmt.Errorf("proposal %d is not open for voting", proposal.ID)
	}

	if proposal.voters[voterID] {
		return Proposal{}, fmt.Errorf("account %s already voted on proposal %d", voterID, proposal.ID)
	}

	account, err := g.db.Query(voterID)
	if err != nil || account.Bonded == 0 {
		return Proposal{}, errors.New("voting requires a bonded balance")
	}

	proposal.voters[voterID] = true
	if data.Support {
		proposal.VotesFor += account.Bonded
	} else {
		proposal.VotesAgainst += account.Bonded
	}

	return *proposal, nil
}

// TallyDue closes every proposal whose voting window ended before the
// specified height. A proposal passes when participation reaches quorum
// of the total bonded supply and for outweighs against; accepted changes
// are applied immediately. Called once per sealed block.
func (g *Gov) TallyDue(height uint64) []Proposal {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []uint64
	for id, proposal := range g.proposals {
		if proposal.Status == StatusVoting && proposal.EndHeight < height {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	totalBonded := g.totalBonded()

	var tallied []Proposal
	for _, id := range ids {
		proposal := g.proposals[id]
		g.tally(proposal, totalBonded)
		tallied = append(tallied, *proposal)
	}

	return tallied
}

// tally decides one proposal. Quorum compares the voted weight against
// the total bonded supply in basis points.
func (g *Gov) tally(proposal *Proposal, totalBonded uint64) {
	voted := proposal.VotesFor + proposal.VotesAgainst

	if totalBonded == 0 || voted*10_000 < g.params.QuorumBPS*totalBonded {
		proposal.Status = StatusRejected
		proposal.Reason = "quorum not reached"
		return
	}

	if proposal.VotesFor <= proposal.VotesAgainst {
		proposal.Status = StatusRejected
		proposal.Reason = "majority against"
		return
	}

	if err := g.appliers[proposal.Param](proposal.Value); err != nil {
		proposal.Status = StatusRejected
		proposal.Reason = err.Error()
		return
	}

	proposal.Status = StatusAccepted
}

// totalBonded sums the bonded balance across all accounts.
func (g *Gov) totalBonded() uint64 {
	var total uint64
	for _, account := range g.db.CopyAccounts() {
		total += account.Bonded
	}

	return total
}

// =============================================================================

// Proposal returns a copy of the proposal with the specified id.
func (g *Gov) Proposal(id uint64) (Proposal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	proposal, exists := g.proposals[id]
	if !exists {
		return Proposal{}, ErrUnknownProposal
	}

	return *proposal, nil
}

// Proposals returns a copy of every proposal sorted by id.
func (g *Gov) Proposals() []Proposal {
	g.mu.RLock()
	defer g.mu.RUnlock()

	proposals := make([]Proposal, 0, len(g.proposals))
	for _, proposal := range g.proposals {
		proposals = append(proposals, *proposal)
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ID < proposals[j].ID })

	return proposals
}
