package staking_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pavelAcct = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	billAcct  = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

// bonded is a fixed reference time for exercising the penalty clock.
var bonded = time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC)

// newEngine constructs a staking engine with one year of rewards spread
// over exactly 1000 blocks so the accrual numbers stay readable.
func newEngine(balances map[string]uint64) (*staking.Staking, *database.Database, error) {
	gen := genesis.Genesis{
		ChainID:          1,
		SealIntervalSecs: 31_536,
		Balances:         balances,
		Staking: genesis.StakingParams{
			RewardRateBPS:       500,
			ActivationBlocks:    2,
			UnbondingPeriodDays: 30,
			EarlyPenaltyMaxBPS:  1000,
			EarlyPenaltyMinBPS:  500,
			MinStake:            1000,
		},
	}

	db, err := database.New(gen, nil, func(v string, args ...any) {})
	if err != nil {
		return nil, nil, err
	}

	return staking.New(db, gen), db, nil
}

func Test_StakeLifecycle(t *testing.T) {
	t.Log("Given the need to bond, activate, accrue and claim rewards.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen staking 1000000 at 500 bps without compounding.", testID)
		{
			eng, db, err := newEngine(map[string]uint64{pavelAcct: 2_000_000})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
			}

			if err := eng.Stake(pavelAcct, 1_000_000, false, 1, bonded); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to stake: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to stake.", success, testID)

			account, _ := db.Query(pavelAcct)
			if account.Balance != 1_000_000 || account.Bonded != 1_000_000 {
				t.Fatalf("\t%s\tTest %d:\tShould move the stake out of the balance, got bal %d bonded %d.", failed, testID, account.Balance, account.Bonded)
			}
			t.Logf("\t%s\tTest %d:\tShould move the stake out of the balance.", success, testID)

			// Height 2 is still inside the activation delay.
			eng.AccrueBlock(2)

			pos, err := eng.Position(pavelAcct)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query the position: %v", failed, testID, err)
			}
			if pos.Status != staking.StatusBonded || pos.Claimable != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not accrue before activation, got status %s claimable %d.", failed, testID, pos.Status, pos.Claimable)
			}
			t.Logf("\t%s\tTest %d:\tShould not accrue before activation.", success, testID)

			// Height 3 activates the position and accrues its first block.
			eng.AccrueBlock(3)
			eng.AccrueBlock(4)

			pos, _ = eng.Position(pavelAcct)
			if pos.Status != staking.StatusActive {
				t.Fatalf("\t%s\tTest %d:\tShould activate after the delay, got status %s.", failed, testID, pos.Status)
			}
			if pos.Claimable != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould accrue 50 per block, got claimable %d.", failed, testID, pos.Claimable)
			}
			t.Logf("\t%s\tTest %d:\tShould accrue 50 per block once active.", success, testID)

			if got := eng.TotalClaimable(); got != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould track total claimable, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould track total claimable.", success, testID)

			supply := db.Supply()
			if supply.Minted != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould mint accrued rewards, got minted %d.", failed, testID, supply.Minted)
			}
			t.Logf("\t%s\tTest %d:\tShould mint accrued rewards.", success, testID)

			amount, err := eng.Claim(pavelAcct)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to claim: %v", failed, testID, err)
			}
			if amount != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould claim 100, got %d.", failed, testID, amount)
			}
			t.Logf("\t%s\tTest %d:\tShould claim the accrued rewards.", success, testID)

			account, _ = db.Query(pavelAcct)
			if account.Balance != 1_000_100 {
				t.Fatalf("\t%s\tTest %d:\tShould credit the claim to the balance, got %d.", failed, testID, account.Balance)
			}
			t.Logf("\t%s\tTest %d:\tShould credit the claim to the balance.", success, testID)

			amount, err = eng.Claim(pavelAcct)
			if err != nil || amount != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould claim zero the second time, got %d err %v.", failed, testID, amount, err)
			}
			t.Logf("\t%s\tTest %d:\tShould claim zero the second time.", success, testID)
		}
	}
}

func Test_AccrualCarry(t *testing.T) {
	t.Log("Given the need to never lose reward units to integer division.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the per block reward is a fraction of a unit.", testID)
		{
			eng, _, err := newEngine(map[string]uint64{pavelAcct: 2_000})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
			}

			// A principal of 1000 earns 50 units per year, one unit
			// every 20 blocks.
			if err := eng.Stake(pavelAcct, 1_000, false, 1, bonded); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to stake: %v", failed, testID, err)
			}

			for height := uint64(3); height <= 21; height++ {
				eng.AccrueBlock(height)
			}

			pos, _ := eng.Position(pavelAcct)
			if pos.Claimable != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould still be carrying after 19 blocks, got claimable %d.", failed, testID, pos.Claimable)
			}
			t.Logf("\t%s\tTest %d:\tShould still be carrying after 19 blocks.", success, testID)

			eng.AccrueBlock(22)

			pos, _ = eng.Position(pavelAcct)
			if pos.Claimable != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould pay the first unit on the 20th block, got claimable %d.", failed, testID, pos.Claimable)
			}
			t.Logf("\t%s\tTest %d:\tShould pay the first unit on the 20th block.", success, testID)
		}
	}
}

func Test_AutoCompound(t *testing.T) {
	t.Log("Given the need to compound rewards into the principal.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen staking 1000000 with compounding on.", testID)
		{
			eng, db, err := newEngine(map[string]uint64{pavelAcct: 2_000_000})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
			}

			if err := eng.Stake(pavelAcct, 1_000_000, true, 1, bonded); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to stake: %v", failed, testID, err)
			}

			eng.AccrueBlock(3)

			pos, _ := eng.Position(pavelAcct)
			if pos.Principal != 1_000_050 || pos.Claimable != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould fold the reward into the principal, got principal %d claimable %d.", failed, testID, pos.Principal, pos.Claimable)
			}
			t.Logf("\t%s\tTest %d:\tShould fold the reward into the principal.", success, testID)

			account, _ := db.Query(pavelAcct)
			if account.Bonded != 1_000_050 {
				t.Fatalf("\t%s\tTest %d:\tShould grow the bonded funds, got %d.", failed, testID, account.Bonded)
			}
			t.Logf("\t%s\tTest %d:\tShould grow the bonded funds.", success, testID)

			if got := eng.TotalBonded(); got != 1_000_050 {
				t.Fatalf("\t%s\tTest %d:\tShould track total bonded, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould track total bonded.", success, testID)

			supply := db.Supply()
			if supply.Minted != 50 {
				t.Fatalf("\t%s\tTest %d:\tShould mint the compounded reward, got minted %d.", failed, testID, supply.Minted)
			}
			t.Logf("\t%s\tTest %d:\tShould mint the compounded reward.", success, testID)

			// The grown principal earns on itself from the next block.
			eng.AccrueBlock(4)

			pos, _ = eng.Position(pavelAcct)
			if pos.Principal != 1_000_100 {
				t.Fatalf("\t%s\tTest %d:\tShould accrue on the grown principal, got %d.", failed, testID, pos.Principal)
			}
			t.Logf("\t%s\tTest %d:\tShould accrue on the grown principal.", success, testID)
		}
	}
}

func Test_EarlyExitPenalty(t *testing.T) {
	type table struct {
		name    string
		age     time.Duration
		amount  uint64
		penalty uint64
	}

	tt := []table{
		{"immediate exit", 0, 100_000, 10_000},
		{"half the period", 15 * 24 * time.Hour, 100_000, 7_500},
		{"full period", 30 * 24 * time.Hour, 100_000, 0},
	}

	t.Log("Given the need to charge exit penalties that decay with age.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen unstaking %d after %v.", testID, tst.amount, tst.age)
			{
				f := func(t *testing.T) {
					eng, db, err := newEngine(map[string]uint64{pavelAcct: 2_000_000})
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
					}

					if err := eng.Stake(pavelAcct, 1_000_000, false, 1, bonded); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to stake: %v", failed, testID, err)
					}

					penalty, err := eng.Unstake(pavelAcct, tst.amount, bonded.Add(tst.age))
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to unstake: %v", failed, testID, err)
					}

					if penalty != tst.penalty {
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, penalty)
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, tst.penalty)
						t.Fatalf("\t%s\tTest %d:\tShould charge the right penalty.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould charge the right penalty.", success, testID)

					account, _ := db.Query(pavelAcct)
					expBalance := 1_000_000 + tst.amount - tst.penalty
					if account.Balance != expBalance {
						t.Fatalf("\t%s\tTest %d:\tShould return the stake net of the penalty, got %d exp %d.", failed, testID, account.Balance, expBalance)
					}
					t.Logf("\t%s\tTest %d:\tShould return the stake net of the penalty.", success, testID)

					supply := db.Supply()
					if supply.BurnedPenalties != tst.penalty {
						t.Fatalf("\t%s\tTest %d:\tShould burn the penalty, got %d.", failed, testID, supply.BurnedPenalties)
					}
					if supply.Total() != 2_000_000-tst.penalty {
						t.Fatalf("\t%s\tTest %d:\tShould shrink the total supply by the penalty, got %d.", failed, testID, supply.Total())
					}
					t.Logf("\t%s\tTest %d:\tShould burn the penalty out of the supply.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_UnstakeCloses(t *testing.T) {
	t.Log("Given the need to close a fully exited position.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen unstaking the whole principal.", testID)
		{
			eng, _, err := newEngine(map[string]uint64{pavelAcct: 2_000_000})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
			}

			if err := eng.Stake(pavelAcct, 1_000_000, false, 1, bonded); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to stake: %v", failed, testID, err)
			}

			if _, err := eng.Unstake(pavelAcct, 1_000_000, bonded.Add(31*24*time.Hour)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to unstake: %v", failed, testID, err)
			}

			pos, _ := eng.Position(pavelAcct)
			if pos.Status != staking.StatusClosed || pos.Principal != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould close the position, got status %s principal %d.", failed, testID, pos.Status, pos.Principal)
			}
			t.Logf("\t%s\tTest %d:\tShould close the position.", success, testID)

			if _, err := eng.Unstake(pavelAcct, 1, bonded); !errors.Is(err, staking.ErrNoPosition) {
				t.Fatalf("\t%s\tTest %d:\tShould reject unstaking a closed position, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject unstaking a closed position.", success, testID)

			if got := eng.TotalBonded(); got != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould leave nothing bonded, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould leave nothing bonded.", success, testID)
		}
	}
}

func Test_TopUpRestartsClocks(t *testing.T) {
	t.Log("Given the need to restart the clocks when a position is topped up.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen staking onto an active position.", testID)
		{
			eng, _, err := newEngine(map[string]uint64{pavelAcct: 2_000_000})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
			}

			if err := eng.Stake(pavelAcct, 1_000, false, 1, bonded); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to stake: %v", failed, testID, err)
			}
			eng.AccrueBlock(3)

			pos, _ := eng.Position(pavelAcct)
			if pos.Status != staking.StatusActive {
				t.Fatalf("\t%s\tTest %d:\tShould activate the position, got %s.", failed, testID, pos.Status)
			}

			later := bonded.Add(20 * 24 * time.Hour)
			if err := eng.Stake(pavelAcct, 1_000, false, 10, later); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to top up: %v", failed, testID, err)
			}

			pos, _ = eng.Position(pavelAcct)
			if pos.Status != staking.StatusBonded || pos.Principal != 2_000 || pos.BondHeight != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould restart the activation delay, got status %s principal %d height %d.", failed, testID, pos.Status, pos.Principal, pos.BondHeight)
			}
			t.Logf("\t%s\tTest %d:\tShould restart the activation delay.", success, testID)

			// The penalty clock restarted too, so an exit right after the
			// top up pays the maximum rate.
			penalty, err := eng.Unstake(pavelAcct, 1_000, later)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to unstake: %v", failed, testID, err)
			}
			if penalty != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould charge the maximum penalty again, got %d.", failed, testID, penalty)
			}
			t.Logf("\t%s\tTest %d:\tShould charge the maximum penalty again.", success, testID)
		}
	}
}

func Test_StakeRejections(t *testing.T) {
	t.Log("Given the need to reject invalid staking operations.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen operations break the staking rules.", testID)
		{
			eng, _, err := newEngine(map[string]uint64{pavelAcct: 2_000_000, billAcct: 500})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
			}

			if err := eng.Stake(pavelAcct, 999, false, 1, bonded); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a stake below the minimum.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a stake below the minimum.", success, testID)

			if err := eng.Stake(billAcct, 1_000, false, 1, bonded); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a stake over the balance.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a stake over the balance.", success, testID)

			if _, err := eng.Unstake(billAcct, 100, bonded); !errors.Is(err, staking.ErrNoPosition) {
				t.Fatalf("\t%s\tTest %d:\tShould reject unstaking with no position, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject unstaking with no position.", success, testID)

			if _, err := eng.Claim(billAcct); !errors.Is(err, staking.ErrNoPosition) {
				t.Fatalf("\t%s\tTest %d:\tShould reject claiming with no position, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject claiming with no position.", success, testID)

			if err := eng.Stake(pavelAcct, 1_000_000, false, 1, bonded); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to stake: %v", failed, testID, err)
			}

			if _, err := eng.Unstake(pavelAcct, 0, bonded); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject unstaking zero.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject unstaking zero.", success, testID)

			if _, err := eng.Unstake(pavelAcct, 1_000_001, bonded); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject unstaking over the principal.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject unstaking over the principal.", success, testID)
		}
	}
}
