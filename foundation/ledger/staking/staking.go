// Package staking implements the staking lifecycle state machine: bonding,
// activation, per-block reward accrual with optional compounding, claims,
// and early exit penalties that decay with position age.
package staking

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
)

// Status represents where a position is in its lifecycle.
type Status string

// Set of position statuses. A position earns nothing until it activates,
// which is what makes flash staking unprofitable.
const (
	StatusBonded Status = "bonded" // Waiting for the activation delay to pass.
	StatusActive Status = "active" // Accruing rewards every block.
	StatusClosed Status = "closed" // Fully exited, may still hold claimable rewards.
)

// ErrNoPosition is returned when an account has never staked.
var ErrNoPosition = errors.New("account has no staking position")

// StakeData carries the kind specific parameters of a stake transaction.
type StakeData struct {
	AutoCompound bool `json:"auto_compound"`
}

// Position represents one account's stake. An account has at most one
// position; staking again tops it up and restarts both the activation
// delay and the penalty clock.
type Position struct {
	AccountID    database.AccountID `json:"account"`
	Principal    uint64             `json:"principal"`
	Claimable    uint64             `json:"claimable"`
	AutoCompound bool               `json:"auto_compound"`
	Status       Status             `json:"status"`
	BondedAt     time.Time          `json:"bonded_at"`
	BondHeight   uint64             `json:"bond_height"`

	// carry holds the accrual remainder so integer division never loses
	// reward units over time.
	carry uint64
}

// Staking is the engine that owns every staking position. Funds move
// through the database so the supply bookkeeping stays exact.
type Staking struct {
	mu sync.RWMutex

	db            *database.Database
	params        genesis.StakingParams
	unbondingPer  time.Duration
	blocksPerYear uint64

	positions      map[database.AccountID]*Position
	totalBonded    uint64
	totalClaimable uint64
}

// New constructs the staking engine from the genesis parameters.
func New(db *database.Database, gen genesis.Genesis) *Staking {
	sealSecs := gen.SealIntervalSecs
	if sealSecs == 0 {
		sealSecs = 1
	}

	const secondsPerYear = 365 * 24 * 60 * 60

	return &Staking{
		db:            db,
		params:        gen.Staking,
		unbondingPer:  gen.UnbondingPeriod(),
		blocksPerYear: secondsPerYear / sealSecs,
		positions:     make(map[database.AccountID]*Position),
	}
}

// RewardRateBPS returns the current annual reward rate in basis points.
func (s *Staking) RewardRateBPS() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.params.RewardRateBPS
}

// SetRewardRateBPS adjusts the annual reward rate. Only governance
// applies this.
func (s *Staking) SetRewardRateBPS(bps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params.RewardRateBPS = bps
}

// Stake bonds the specified amount from the account's balance. Every stake
// must meet the minimum so dust positions can't be used to grief accrual.
func (s *Staking) Stake(accountID database.AccountID, amount uint64, autoCompound bool, blockHeight uint64, now time.Time) error {
	if amount < s.params.MinStake {
		return fmt.Errorf("stake %d below the minimum %d", amount, s.params.MinStake)
	}

	if err := s.db.Bond(accountID, amount); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.positions[accountID]
	if !exists {
		pos = &Position{AccountID: accountID}
		s.positions[accountID] = pos
	}

	pos.Principal += amount
	pos.AutoCompound = autoCompound
	pos.Status = StatusBonded
	pos.BondedAt = now
	pos.BondHeight = blockHeight
	s.totalBonded += amount

	return nil
}

// Unstake exits the specified amount from the account's position. Exits
// are immediate; positions younger than the unbonding period pay a penalty
// that decays linearly from the maximum to the minimum rate over that
// period and is burned. Returns the penalty that was charged.
func (s *Staking) Unstake(accountID database.AccountID, amount uint64, now time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.positions[accountID]
	if !exists || pos.Status == StatusClosed {
		return 0, ErrNoPosition
	}

	if amount == 0 || amount > pos.Principal {
		return 0, fmt.Errorf("unstake %d out of range, principal %d", amount, pos.Principal)
	}

	penalty := s.penaltyFor(amount, now.Sub(pos.BondedAt))

	if penalty > 0 {
		if err := s.db.SlashBonded(accountID, penalty); err != nil {
			return 0, err
		}
	}
	if err := s.db.Unbond(accountID, amount-penalty); err != nil {
		return 0, err
	}

	pos.Principal -= amount
	s.totalBonded -= amount

	if pos.Principal == 0 {
		pos.Status = StatusClosed
	}

	return penalty, nil
}

// Claim moves the account's accumulated rewards into its spendable
// balance and returns the amount paid out.
func (s *Staking) Claim(accountID database.AccountID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.positions[accountID]
	if !exists {
		return 0, ErrNoPosition
	}

	amount := pos.Claimable
	if amount == 0 {
		return 0, nil
	}

	pos.Claimable = 0
	s.totalClaimable -= amount

	// The rewards were minted when they accrued, so this is only a move.
	s.db.Credit(accountID, amount)

	return amount, nil
}

// AccrueBlock activates positions whose delay has passed and accrues one
// block's worth of rewards to every active position. Called once per
// sealed block.
func (s *Staking) AccrueBlock(blockHeight uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pos := range s.positions {
		if pos.Status == StatusBonded && blockHeight >= pos.BondHeight+s.params.ActivationBlocks {
			pos.Status = StatusActive
		}

		if pos.Status != StatusActive {
			continue
		}

		reward := s.accrue(pos)
		if reward == 0 {
			continue
		}

		if pos.AutoCompound {
			pos.Principal += reward
			s.totalBonded += reward
			s.db.MintBonded(pos.AccountID, reward)
			continue
		}

		pos.Claimable += reward
		s.totalClaimable += reward
		s.db.RecordMint(reward)
	}
}

// accrue computes one block of rewards for a position, carrying the
// integer remainder forward. Callers must hold the lock.
func (s *Staking) accrue(pos *Position) uint64 {
	numer := new(big.Int).SetUint64(pos.Principal)
	numer.Mul(numer, new(big.Int).SetUint64(s.params.RewardRateBPS))
	numer.Add(numer, new(big.Int).SetUint64(pos.carry))

	denom := new(big.Int).SetUint64(10_000 * s.blocksPerYear)

	reward, carry := new(big.Int).QuoRem(numer, denom, new(big.Int))
	pos.carry = carry.Uint64()

	return reward.Uint64()
}

// penaltyFor computes the early exit penalty for the specified amount at
// the specified position age. Callers must hold the lock.
func (s *Staking) penaltyFor(amount uint64, age time.Duration) uint64 {
	if age >= s.unbondingPer {
		return 0
	}
	if age < 0 {
		age = 0
	}

	// Linear decay from the maximum rate at age zero to the minimum rate
	// at the end of the unbonding period.
	span := s.params.EarlyPenaltyMaxBPS - s.params.EarlyPenaltyMinBPS
	decay := uint64(0)
	if s.unbondingPer > 0 {
		decay = span * uint64(age) / uint64(s.unbondingPer)
	}
	bps := s.params.EarlyPenaltyMaxBPS - decay

	return amount * bps / 10_000
}

// =============================================================================

// Position returns a copy of the account's staking position.
func (s *Staking) Position(accountID database.AccountID) (Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.positions[accountID]
	if !exists {
		return Position{}, ErrNoPosition
	}

	return *pos, nil
}

// Positions returns a copy of every position sorted by account id.
func (s *Staking) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]Position, 0, len(s.positions))
	for _, pos := range s.positions {
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].AccountID < positions[j].AccountID })

	return positions
}

// TotalBonded returns the total stake currently bonded.
func (s *Staking) TotalBonded() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.totalBonded
}

// TotalClaimable returns the rewards accrued but not yet claimed.
func (s *Staking) TotalClaimable() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.totalClaimable
}
