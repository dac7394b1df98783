package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/bridge"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/feemarket"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/gov"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
)

// Scenario reports how one adversarial scenario played out.
type Scenario struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// SecurityResult reports the outcome of every adversarial scenario.
type SecurityResult struct {
	Passed    bool       `json:"passed"`
	Scenarios []Scenario `json:"scenarios"`
}

// RunSecurityTest plays four adversarial scenarios against sandboxed
// chains: fee spam, flash staking, governance at the quorum edge, and
// liquidity pool manipulation.
func (a *Audit) RunSecurityTest(ctx context.Context) (SecurityResult, error) {
	a.evHandler("audit: RunSecurityTest: started")
	defer a.evHandler("audit: RunSecurityTest: completed")

	scenarios := []func(context.Context, genesis.Genesis) (Scenario, error){
		a.feeSpamScenario,
		a.flashStakeScenario,
		a.governanceQuorumScenario,
		a.liquidityManipulationScenario,
	}

	gen := a.state.RetrieveGenesis()

	result := SecurityResult{Passed: true}
	for _, run := range scenarios {
		scenario, err := run(ctx, gen)
		if err != nil {
			return SecurityResult{}, err
		}
		if !scenario.Passed {
			result.Passed = false
		}
		result.Scenarios = append(result.Scenarios, scenario)

		a.evHandler("audit: RunSecurityTest: scenario[%s] passed[%v]", scenario.Name, scenario.Passed)
	}

	return result, nil
}

// =============================================================================

// feeSpamScenario floods every block far past the gas target and verifies
// the base fee climbs but never rises 50% or more within one adjustment
// window.
func (a *Audit) feeSpamScenario(ctx context.Context, liveGen genesis.Genesis) (Scenario, error) {
	transferGas := database.KindTransfer.GasUnits()

	sb, err := newSandbox(liveGen, 4, func(gen *genesis.Genesis) {
		gen.TransPerBlock = 50
		gen.GasTarget = 10 * transferGas
		gen.GasLimit = 50 * transferGas
	})
	if err != nil {
		return Scenario{}, err
	}
	defer sb.close()

	const spamPerBlock = 30
	const blocks = 2*feemarket.WindowBlocks + 10

	startFee := sb.st.BaseFee()
	anchor := startFee
	var maxRiseBPS uint64
	capHeld := true

	for b := 0; b < blocks; b++ {
		for i := 0; i < spamPerBlock; i++ {
			sender := sb.senders[i%len(sb.senders)]
			to := sb.accountOf(sb.senders[(i+1)%len(sb.senders)])
			if err := sb.submit(sender, to, 1, 2, database.KindTransfer, nil); err != nil {
				return Scenario{}, err
			}
		}

		block, err := sb.sealOne(ctx)
		if err != nil {
			return Scenario{}, err
		}

		if fee := block.Header.BaseFee; fee > anchor {
			riseBPS := (fee - anchor) * 10_000 / anchor
			if riseBPS > maxRiseBPS {
				maxRiseBPS = riseBPS
			}
			if riseBPS >= 5_000 {
				capHeld = false
			}
		}

		// A new window anchors at the base fee the next block will use.
		if block.Header.Number%feemarket.WindowBlocks == 0 {
			anchor = sb.st.BaseFee()
		}
	}

	endFee := sb.st.BaseFee()
	passed := capHeld && endFee > startFee

	details := fmt.Sprintf("base fee %d -> %d over %d spammed blocks, max intra-window rise %d.%02d%%, cap 50%%",
		startFee, endFee, blocks, maxRiseBPS/100, maxRiseBPS%100)

	return Scenario{Name: "fee-spam", Passed: passed, Details: details}, nil
}

// flashStakeScenario bonds a position and exits as fast as the chain
// allows, verifying the early exit penalty makes the round trip a loss.
func (a *Audit) flashStakeScenario(ctx context.Context, liveGen genesis.Genesis) (Scenario, error) {
	sb, err := newSandbox(liveGen, 3, func(gen *genesis.Genesis) {
		gen.Staking.ActivationBlocks = 1
		gen.Staking.MinStake = 1_000
	})
	if err != nil {
		return Scenario{}, err
	}
	defer sb.close()

	attacker := sb.senders[2]
	const principal = 1_000_000

	startBalance := sb.balanceOf(attacker)

	stakeData, err := json.Marshal(staking.StakeData{AutoCompound: false})
	if err != nil {
		return Scenario{}, err
	}
	if err := sb.submit(attacker, database.StakingAccount, principal, 1, database.KindStake, stakeData); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}

	// Let the position activate, then exit immediately.
	if err := sb.advanceBlocks(ctx, 2); err != nil {
		return Scenario{}, err
	}

	if err := sb.submit(attacker, database.StakingAccount, principal, 1, database.KindUnstake, nil); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}

	endBalance := sb.balanceOf(attacker)
	burned := sb.st.RetrieveSupply().BurnedPenalties

	// At near zero age the penalty decay hasn't started, so the full
	// maximum rate must have been burned.
	expectedPenalty := uint64(principal) * liveGen.Staking.EarlyPenaltyMaxBPS / 10_000

	var claimable uint64
	if position, err := sb.st.StakingPosition(sb.accountOf(attacker)); err == nil {
		claimable = position.Claimable
	}

	passed := burned == expectedPenalty && endBalance+claimable < startBalance

	details := fmt.Sprintf("staked %d, exited after 3 blocks, penalty burned %d (expected %d), attacker net %d",
		principal, burned, expectedPenalty, int64(endBalance+claimable)-int64(startBalance))

	return Scenario{Name: "flash-stake", Passed: passed, Details: details}, nil
}

// governanceQuorumScenario runs two proposals either side of the 10%
// participation threshold: 9.9% must be rejected for quorum, 10.2% must
// be accepted and applied.
func (a *Audit) governanceQuorumScenario(ctx context.Context, liveGen genesis.Genesis) (Scenario, error) {
	sb, err := newSandbox(liveGen, 4, func(gen *genesis.Genesis) {
		gen.Staking.ActivationBlocks = 1
		gen.Staking.MinStake = 10
		gen.Gov.QuorumBPS = 1_000
		gen.Gov.VotingPeriodBlocks = 4
		gen.Gov.MaxActiveProposals = 4
	})
	if err != nil {
		return Scenario{}, err
	}
	defer sb.close()

	alice := sb.senders[2]
	bob := sb.senders[3]

	stakeData, err := json.Marshal(staking.StakeData{AutoCompound: false})
	if err != nil {
		return Scenario{}, err
	}

	// Alice holds 990 of 10000 bonded: 9.9% participation when she votes
	// alone. Bob is the silent majority.
	if err := sb.submit(alice, database.StakingAccount, 990, 1, database.KindStake, stakeData); err != nil {
		return Scenario{}, err
	}
	if err := sb.submit(bob, database.StakingAccount, 9_010, 1, database.KindStake, stakeData); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}
	if err := sb.advanceBlocks(ctx, 2); err != nil {
		return Scenario{}, err
	}

	oldTarget := sb.st.GasTarget()
	newTarget := oldTarget + 1
	if newTarget > sb.gen.GasLimit {
		newTarget = oldTarget - 1
	}

	runProposal := func() (gov.Proposal, error) {
		proposeData, err := json.Marshal(gov.ProposeData{Param: genesis.ParamGasTarget, Value: newTarget})
		if err != nil {
			return gov.Proposal{}, err
		}
		if err := sb.submit(alice, database.GovAccount, 0, 1, database.KindPropose, proposeData); err != nil {
			return gov.Proposal{}, err
		}
		if _, err := sb.sealOne(ctx); err != nil {
			return gov.Proposal{}, err
		}

		proposals := sb.st.Proposals()
		if len(proposals) == 0 {
			return gov.Proposal{}, fmt.Errorf("proposal was not opened")
		}
		id := proposals[len(proposals)-1].ID

		voteData, err := json.Marshal(gov.VoteData{ProposalID: id, Support: true})
		if err != nil {
			return gov.Proposal{}, err
		}
		if err := sb.submit(alice, database.GovAccount, 0, 1, database.KindVote, voteData); err != nil {
			return gov.Proposal{}, err
		}
		if _, err := sb.sealOne(ctx); err != nil {
			return gov.Proposal{}, err
		}

		// Move past the voting window so the tally runs.
		if err := sb.advanceBlocks(ctx, sb.gen.Gov.VotingPeriodBlocks+1); err != nil {
			return gov.Proposal{}, err
		}

		return sb.st.Proposal(id)
	}

	first, err := runProposal()
	if err != nil {
		return Scenario{}, err
	}
	firstRejected := first.Status == gov.StatusRejected && sb.st.GasTarget() == oldTarget

	// Top up alice past the threshold: 1020 of 10030 bonded is 10.2%
	// participation. The top up resets activation, so wait it out again.
	if err := sb.submit(alice, database.StakingAccount, 30, 1, database.KindStake, stakeData); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}
	if err := sb.advanceBlocks(ctx, 2); err != nil {
		return Scenario{}, err
	}

	second, err := runProposal()
	if err != nil {
		return Scenario{}, err
	}
	secondAccepted := second.Status == gov.StatusAccepted && sb.st.GasTarget() == newTarget

	passed := firstRejected && secondAccepted

	details := fmt.Sprintf("9.9%% participation %s (%s), 10.2%% participation %s, gas target %d -> %d",
		first.Status, first.Reason, second.Status, oldTarget, sb.st.GasTarget())

	return Scenario{Name: "governance-quorum", Passed: passed, Details: details}, nil
}

// liquidityManipulationScenario has an attacker join a pool, route fee
// traffic, and try to exit inside the liquidity age window. The exit must
// be blocked, and once aged the payout must be exactly pro-rata.
func (a *Audit) liquidityManipulationScenario(ctx context.Context, liveGen genesis.Genesis) (Scenario, error) {
	const chain = "remote-1"

	sb, err := newSandbox(liveGen, 4, func(gen *genesis.Genesis) {
		gen.TransPerBlock = 50
		gen.GasTarget = 1_500_000
		gen.GasLimit = 3_000_000
		gen.Bridge.Chains = []string{chain}
		gen.Bridge.FlatFee = 500
		gen.Bridge.MinLiquidityAge = 5
		gen.Bridge.TransferTTLSecs = 86_400
	})
	if err != nil {
		return Scenario{}, err
	}
	defer sb.close()

	honest := sb.senders[2]
	attacker := sb.senders[3]
	attackerID := sb.accountOf(attacker)

	addData, err := json.Marshal(bridge.PoolAddData{Chain: chain})
	if err != nil {
		return Scenario{}, err
	}

	// The honest provider seeds the pool, the attacker joins with 9x.
	if err := sb.submit(honest, database.BridgeAccount, 10_000, 1, database.KindPoolAdd, addData); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}
	if err := sb.submit(attacker, database.BridgeAccount, 90_000, 1, database.KindPoolAdd, addData); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}

	// Route fee traffic both providers share in.
	lockData, err := json.Marshal(bridge.LockData{Chain: chain, RemoteAddr: "0x8ce5dd3158a8d0f6a4be0097ea1616be04c5e874"})
	if err != nil {
		return Scenario{}, err
	}
	for i := 0; i < 10; i++ {
		if err := sb.submit(sb.senders[0], database.BridgeAccount, 1_000, 1, database.KindBridgeOut, lockData); err != nil {
			return Scenario{}, err
		}
	}
	if _, err := sb.drainMempool(ctx); err != nil {
		return Scenario{}, err
	}

	pool, err := sb.st.BridgePool(chain)
	if err != nil {
		return Scenario{}, err
	}
	balanceWithFees := pool.Balance

	// Exit inside the age window. The transaction lands but the engine
	// must refuse it.
	removeData, err := json.Marshal(bridge.PoolRemoveData{Chain: chain, Shares: 90_000})
	if err != nil {
		return Scenario{}, err
	}
	if err := sb.submit(attacker, database.BridgeAccount, 0, 1, database.KindPoolRemove, removeData); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}

	position, err := sb.st.BridgePoolPosition(attackerID, chain)
	if err != nil {
		return Scenario{}, err
	}
	pool, err = sb.st.BridgePool(chain)
	if err != nil {
		return Scenario{}, err
	}
	blockedEarly := position.Shares == 90_000 && pool.Balance == balanceWithFees

	// Age out and exit for the fair pro-rata share.
	if err := sb.advanceBlocks(ctx, sb.gen.Bridge.MinLiquidityAge+1); err != nil {
		return Scenario{}, err
	}
	if err := sb.submit(attacker, database.BridgeAccount, 0, 1, database.KindPoolRemove, removeData); err != nil {
		return Scenario{}, err
	}
	if _, err := sb.sealOne(ctx); err != nil {
		return Scenario{}, err
	}

	poolFinal, err := sb.st.BridgePool(chain)
	if err != nil {
		return Scenario{}, err
	}

	fairPayout := uint64(90_000) * balanceWithFees / 100_000
	extracted := balanceWithFees - poolFinal.Balance

	passed := blockedEarly && extracted == fairPayout && poolFinal.TotalShares == 10_000

	details := fmt.Sprintf("early exit blocked by %d block liquidity age, aged exit extracted %d of %d (fair pro-rata %d)",
		sb.gen.Bridge.MinLiquidityAge, extracted, balanceWithFees, fairPayout)

	return Scenario{Name: "liquidity-manipulation", Passed: passed, Details: details}, nil
}
