// Package genesis maintains access to the genesis file and the economic
// parameters it declares.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Set of genesis parameters that governance proposals are allowed to adjust.
const (
	ParamGasTarget     = "fee.gas_target"
	ParamRewardRateBPS = "staking.reward_rate_bps"
	ParamBridgeFlatFee = "bridge.flat_fee"
	ParamQuorumBPS     = "gov.quorum_bps"
)

// StakingParams declares how bonding, reward accrual and early exits work.
type StakingParams struct {
	RewardRateBPS       uint64 `json:"reward_rate_bps"`        // Annual reward rate in basis points applied to active stake.
	ActivationBlocks    uint64 `json:"activation_blocks"`      // Blocks a position must wait before it starts accruing.
	UnbondingPeriodDays uint64 `json:"unbonding_period_days"`  // Days before an exit is penalty free.
	EarlyPenaltyMaxBPS  uint64 `json:"early_penalty_max_bps"`  // Penalty at age zero, in basis points.
	EarlyPenaltyMinBPS  uint64 `json:"early_penalty_min_bps"`  // Penalty at the end of the unbonding period.
	MinStake            uint64 `json:"min_stake"`              // Smallest amount that can be bonded.
}

// BridgeParams declares how cross-chain transfers settle.
type BridgeParams struct {
	FlatFee         uint64   `json:"flat_fee"`          // Fee per transfer, paid to the remote chain's liquidity pool.
	Confirmations   uint16   `json:"confirmations"`     // Relayer attestations required to settle a transfer.
	TransferTTLSecs uint64   `json:"transfer_ttl_secs"` // Seconds before a pending transfer becomes refundable.
	MinLiquidityAge uint64   `json:"min_liquidity_age"` // Blocks liquidity must age before it can be removed.
	Chains          []string `json:"chains"`            // Remote chains the bridge settles against.
	Relayers        []string `json:"relayers"`          // Accounts allowed to attest transfers.
}

// GovParams declares how parameter proposals are voted and tallied.
type GovParams struct {
	QuorumBPS          uint64 `json:"quorum_bps"`           // Participating stake required, in basis points of total bonded.
	VotingPeriodBlocks uint64 `json:"voting_period_blocks"` // Blocks a proposal stays open for voting.
	MaxActiveProposals uint16 `json:"max_active_proposals"` // Open proposals allowed at any one time.
}

// Genesis represents the genesis file.
type Genesis struct {
	Date             time.Time         `json:"date"`
	ChainID          uint16            `json:"chain_id"`           // Unique id for this running instance.
	Name             string            `json:"name"`               // Human readable chain name.
	TransPerBlock    uint16            `json:"trans_per_block"`    // Maximum number of transactions in a block.
	BaseFee          uint64            `json:"base_fee"`           // Starting base fee per unit of gas.
	MinBaseFee       uint64            `json:"min_base_fee"`       // Floor the base fee can never drop below.
	GasTarget        uint64            `json:"gas_target"`         // Gas usage per block the fee market steers toward.
	GasLimit         uint64            `json:"gas_limit"`          // Maximum gas a block may consume.
	SealIntervalSecs uint64            `json:"seal_interval_secs"` // Seconds between sealing attempts.
	SealerReward     uint64            `json:"sealer_reward"`      // Reward for sealing a block.
	Sealer           string            `json:"sealer"`             // Account authorized to seal blocks.
	Balances         map[string]uint64 `json:"balances"`
	Staking          StakingParams     `json:"staking"`
	Bridge           BridgeParams      `json:"bridge"`
	Gov              GovParams         `json:"gov"`
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file to the specified path, creating any
// directories it needs.
func (gen Genesis) Save(path string) error {
	if err := gen.validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(gen, "", "    ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// UnbondingPeriod returns the penalty-free exit age as a duration.
func (gen Genesis) UnbondingPeriod() time.Duration {
	return time.Duration(gen.Staking.UnbondingPeriodDays) * 24 * time.Hour
}

// SealInterval returns the time between sealing attempts as a duration.
func (gen Genesis) SealInterval() time.Duration {
	return time.Duration(gen.SealIntervalSecs) * time.Second
}

// TransferTTL returns the bridge settlement deadline as a duration.
func (gen Genesis) TransferTTL() time.Duration {
	return time.Duration(gen.Bridge.TransferTTLSecs) * time.Second
}

// validate checks the parameter set describes an economy that can run.
func (gen Genesis) validate() error {
	if gen.ChainID == 0 {
		return fmt.Errorf("chain id must be set")
	}

	if gen.GasTarget == 0 || gen.GasLimit < gen.GasTarget {
		return fmt.Errorf("gas target %d and limit %d are inconsistent", gen.GasTarget, gen.GasLimit)
	}

	if gen.BaseFee < gen.MinBaseFee {
		return fmt.Errorf("base fee %d below the minimum %d", gen.BaseFee, gen.MinBaseFee)
	}

	if gen.Staking.EarlyPenaltyMinBPS > gen.Staking.EarlyPenaltyMaxBPS {
		return fmt.Errorf("early penalty range [%d,%d] is inverted", gen.Staking.EarlyPenaltyMinBPS, gen.Staking.EarlyPenaltyMaxBPS)
	}

	if gen.Gov.QuorumBPS == 0 || gen.Gov.QuorumBPS > 10000 {
		return fmt.Errorf("quorum %d basis points out of range", gen.Gov.QuorumBPS)
	}

	return nil
}
