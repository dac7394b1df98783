package gov_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/gov"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pavelAcct = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	billAcct  = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	edAcct    = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"
	idleAcct  = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"
)

// newGov constructs a governance engine over three bonded accounts with
// weights 450, 450 and 100 and a 10% quorum, so the smallest voter alone
// lands exactly on the quorum line.
func newGov(appliers map[string]gov.Applier) (*gov.Gov, *database.Database, error) {
	gen := genesis.Genesis{
		ChainID: 1,
		Balances: map[string]uint64{
			pavelAcct: 1_000,
			billAcct:  1_000,
			edAcct:    1_000,
			idleAcct:  1_000,
		},
		Gov: genesis.GovParams{
			QuorumBPS:          1000,
			VotingPeriodBlocks: 100,
			MaxActiveProposals: 2,
		},
	}

	db, err := database.New(gen, nil, func(v string, args ...any) {})
	if err != nil {
		return nil, nil, err
	}

	for acct, bond := range map[database.AccountID]uint64{pavelAcct: 450, billAcct: 450, edAcct: 100} {
		if err := db.Bond(acct, bond); err != nil {
			return nil, nil, err
		}
	}

	eligible := func(accountID database.AccountID) bool {
		return accountID == pavelAcct
	}

	return gov.New(db, gen, eligible, appliers), db, nil
}

func Test_ProposeVoteTally(t *testing.T) {
	t.Log("Given the need to move a parameter change through governance.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen proposing a new gas target.", testID)
		{
			var applied uint64
			appliers := map[string]gov.Applier{
				genesis.ParamGasTarget: func(value uint64) error {
					applied = value
					return nil
				},
			}

			eng, _, err := newGov(appliers)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the engine: %v", failed, testID, err)
			}

			data := gov.ProposeData{Param: genesis.ParamGasTarget, Value: 5_000, Description: "raise the target"}

			if _, err := eng.Propose(billAcct, data, 10); !errors.Is(err, gov.ErrNotEligible) {
				t.Fatalf("\t%s\tTest %d:\tShould reject proposers without an active position, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject proposers without an active position.", success, testID)

			if _, err := eng.Propose(pavelAcct, gov.ProposeData{Param: "bogus", Value: 1}, 10); !errors.Is(err, gov.ErrUnknownParam) {
				t.Fatalf("\t%s\tTest %d:\tShould reject parameters off the whitelist, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject parameters off the whitelist.", success, testID)

			proposal, err := eng.Propose(pavelAcct, data, 10)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to propose: %v", failed, testID, err)
			}
			if proposal.ID != 1 || proposal.Status != gov.StatusVoting || proposal.EndHeight != 110 {
				t.Fatalf("\t%s\tTest %d:\tShould open the voting window, got id %d status %s end %d.", failed, testID, proposal.ID, proposal.Status, proposal.EndHeight)
			}
			t.Logf("\t%s\tTest %d:\tShould open the voting window.", success, testID)

			vote := gov.VoteData{ProposalID: 1, Support: true}

			proposal, err = eng.Vote(billAcct, vote, 50)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to vote: %v", failed, testID, err)
			}
			if proposal.VotesFor != 450 {
				t.Fatalf("\t%s\tTest %d:\tShould weigh the vote by the bonded balance, got %d.", failed, testID, proposal.VotesFor)
			}
			t.Logf("\t%s\tTest %d:\tShould weigh the vote by the bonded balance.", success, testID)

			if _, err := eng.Vote(billAcct, vote, 51); err == nil || !strings.Contains(err.Error(), "already voted") {
				t.Fatalf("\t%s\tTest %d:\tShould reject a second vote from the same account, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a second vote from the same account.", success, testID)

			if _, err := eng.Vote(idleAcct, vote, 52); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject votes without a bonded balance.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject votes without a bonded balance.", success, testID)

			if _, err := eng.Vote(edAcct, gov.VoteData{ProposalID: 1, Support: false}, 110); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept votes through the end height: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept votes through the end height.", success, testID)

			if tallied := eng.TallyDue(110); len(tallied) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not tally an open window, got %d.", failed, testID, len(tallied))
			}
			t.Logf("\t%s\tTest %d:\tShould not tally an open window.", success, testID)

			tallied := eng.TallyDue(111)
			if len(tallied) != 1 || tallied[0].Status != gov.StatusAccepted {
				t.Fatalf("\t%s\tTest %d:\tShould accept the proposal, got %+v.", failed, testID, tallied)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the proposal.", success, testID)

			if applied != 5_000 {
				t.Fatalf("\t%s\tTest %d:\tShould apply the accepted value, got %d.", failed, testID, applied)
			}
			t.Logf("\t%s\tTest %d:\tShould apply the accepted value.", success, testID)

			if _, err := eng.Vote(pavelAcct, vote, 112); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject votes on a closed proposal.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject votes on a closed proposal.", success, testID)
		}
	}
}

func Test_QuorumAndMajority(t *testing.T) {
	type vote struct {
		voter   database.AccountID
		support bool
	}

	type table struct {
		name   string
		votes  []vote
		status gov.Status
		reason string
	}

	tt := []table{
		{"no participation", nil, gov.StatusRejected, "quorum not reached"},
		{"exactly at quorum", []vote{{edAcct, true}}, gov.StatusAccepted, ""},
		{"majority against", []vote{{edAcct, true}, {billAcct, false}}, gov.StatusRejected, "majority against"},
		{"tie rejects", []vote{{pavelAcct, true}, {billAcct, false}}, gov.StatusRejected, "majority against"},
	}

	t.Log("Given the need to tally proposals against quorum and majority.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen tallying with %d votes cast.", testID, len(tst.votes))
			{
				f := func(t *testing.T) {
					appliers := map[string]gov.Applier{
						genesis.ParamGasTarget: func(value uint64) error { return nil },
					}

					eng, _, err := newGov(appliers)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct the engine: %v", failed, testID, err)
					}

					if _, err := eng.Propose(pavelAcct, gov.ProposeData{Param: genesis.ParamGasTarget, Value: 2_000}, 1); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to propose: %v", failed, testID, err)
					}

					for _, v := range tst.votes {
						if _, err := eng.Vote(v.voter, gov.VoteData{ProposalID: 1, Support: v.support}, 2); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to vote: %v", failed, testID, err)
						}
					}

					tallied := eng.TallyDue(102)
					if len(tallied) != 1 {
						t.Fatalf("\t%s\tTest %d:\tShould tally the proposal, got %d.", failed, testID, len(tallied))
					}

					if tallied[0].Status != tst.status {
						t.Logf("\t%s\tTest %d:\tgot: %s %q", failed, testID, tallied[0].Status, tallied[0].Reason)
						t.Logf("\t%s\tTest %d:\texp: %s %q", failed, testID, tst.status, tst.reason)
						t.Fatalf("\t%s\tTest %d:\tShould get the right tally outcome.", failed, testID)
					}
					if tallied[0].Reason != tst.reason {
						t.Fatalf("\t%s\tTest %d:\tShould get the right reason, got %q exp %q.", failed, testID, tallied[0].Reason, tst.reason)
					}
					t.Logf("\t%s\tTest %d:\tShould get the right tally outcome.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_SelfAmendQuorum(t *testing.T) {
	t.Log("Given the need for governance to adjust its own quorum safely.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen proposing quorum changes in and out of bounds.", testID)
		{
			eng, _, err := newGov(nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the engine: %v", failed, testID, err)
			}

			propose := func(value uint64, height uint64) gov.Proposal {
				proposal, err := eng.Propose(pavelAcct, gov.ProposeData{Param: genesis.ParamQuorumBPS, Value: value}, height)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to propose: %v", failed, testID, err)
				}
				if _, err := eng.Vote(billAcct, gov.VoteData{ProposalID: proposal.ID, Support: true}, height); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to vote: %v", failed, testID, err)
				}
				return proposal
			}

			propose(2_000, 1)
			tallied := eng.TallyDue(102)
			if len(tallied) != 1 || tallied[0].Status != gov.StatusAccepted {
				t.Fatalf("\t%s\tTest %d:\tShould accept an in-bounds quorum, got %+v.", failed, testID, tallied)
			}
			if got := eng.QuorumBPS(); got != 2_000 {
				t.Fatalf("\t%s\tTest %d:\tShould raise the quorum to 2000, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould accept an in-bounds quorum.", success, testID)

			propose(100, 103)
			tallied = eng.TallyDue(204)
			if len(tallied) != 1 || tallied[0].Status != gov.StatusRejected || !strings.Contains(tallied[0].Reason, "outside") {
				t.Fatalf("\t%s\tTest %d:\tShould reject a quorum below the floor, got %+v.", failed, testID, tallied)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a quorum below the floor.", success, testID)

			propose(9_000, 205)
			tallied = eng.TallyDue(306)
			if len(tallied) != 1 || tallied[0].Status != gov.StatusRejected {
				t.Fatalf("\t%s\tTest %d:\tShould reject a quorum above the ceiling, got %+v.", failed, testID, tallied)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a quorum above the ceiling.", success, testID)

			if got := eng.QuorumBPS(); got != 2_000 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the last accepted quorum, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the last accepted quorum.", success, testID)
		}
	}
}

func Test_ProposalCap(t *testing.T) {
	t.Log("Given the need to cap the number of open proposals.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen proposing past the cap of 2.", testID)
		{
			appliers := map[string]gov.Applier{
				genesis.ParamGasTarget: func(value uint64) error { return nil },
			}

			eng, _, err := newGov(appliers)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the engine: %v", failed, testID, err)
			}

			data := gov.ProposeData{Param: genesis.ParamGasTarget, Value: 2_000}

			if _, err := eng.Propose(pavelAcct, data, 1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to propose: %v", failed, testID, err)
			}
			if _, err := eng.Propose(pavelAcct, data, 2); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to propose: %v", failed, testID, err)
			}

			if _, err := eng.Propose(pavelAcct, data, 3); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a third open proposal.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a third open proposal.", success, testID)

			// Closing the windows frees the slots.
			eng.TallyDue(200)

			if _, err := eng.Propose(pavelAcct, data, 200); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould allow proposing after a tally: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould allow proposing after a tally.", success, testID)
		}
	}
}
