// Package feemarket implements the congestion responsive base fee
// controller. The base fee moves toward the gas target like EIP-1559 and
// is clamped inside each adjustment window so a burst of full blocks can
// never spike the fee.
package feemarket

import (
	"sort"
	"sync"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
)

// WindowBlocks is the length of one adjustment window. The clamp anchor
// resets at every window boundary.
const WindowBlocks = 30

// adjustDenominator bounds how far the base fee can move per block, an
// eighth of the parent fee at most.
const adjustDenominator = 8

// tipSampleSize bounds how many recent tips feed the gas price suggestion.
const tipSampleSize = 256

// Market maintains the base fee state for the chain. All mutations happen
// through Advance as blocks are accepted, so the market can always be
// rebuilt by replaying the chain.
type Market struct {
	mu sync.RWMutex

	baseFee    uint64 // Fee the next block must carry.
	minBaseFee uint64
	gasTarget  uint64
	anchor     uint64   // Base fee in effect when the current window opened.
	tips       []uint64 // Recent tips, newest last, capped at tipSampleSize.
}

// New constructs a market from the genesis parameters.
func New(gen genesis.Genesis) *Market {
	return &Market{
		baseFee:    gen.BaseFee,
		minBaseFee: gen.MinBaseFee,
		gasTarget:  gen.GasTarget,
		anchor:     gen.BaseFee,
	}
}

// BaseFee returns the fee the next block must carry. Validation compares
// a candidate block's header fee against this value.
func (m *Market) BaseFee() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.baseFee
}

// GasTarget returns the gas usage the controller steers toward.
func (m *Market) GasTarget() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.gasTarget
}

// SetGasTarget adjusts the gas target. Only governance applies this.
func (m *Market) SetGasTarget(gasTarget uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gasTarget = gasTarget
}

// Advance moves the market forward after the block with the specified
// number was accepted. The fee moves proportionally to how far the block's
// gas usage landed from the target, and is clamped to strictly less than
// 150% of the window anchor. The anchor resets at each window boundary.
func (m *Market) Advance(blockNumber uint64, gasUsed uint64, tips []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := nextBaseFee(m.baseFee, m.minBaseFee, m.gasTarget, gasUsed)

	if blockNumber%WindowBlocks == 0 {
		m.anchor = next
	} else {
		limit := m.anchor + m.anchor/2 - 1
		if limit < m.anchor {
			limit = m.anchor
		}
		if next > limit {
			next = limit
		}
	}

	m.baseFee = next

	m.tips = append(m.tips, tips...)
	if len(m.tips) > tipSampleSize {
		m.tips = m.tips[len(m.tips)-tipSampleSize:]
	}
}

// SuggestGasPrice returns the price a new transaction should offer per
// unit of gas: the current base fee plus the median of recently paid tips.
func (m *Market) SuggestGasPrice() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.baseFee + m.suggestTip()
}

// SuggestTip returns the priority fee a new transaction should offer.
func (m *Market) SuggestTip() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.suggestTip()
}

// suggestTip computes the median of the recent tips with a floor of one.
// Callers must hold the lock.
func (m *Market) suggestTip() uint64 {
	if len(m.tips) == 0 {
		return 1
	}

	sorted := make([]uint64, len(m.tips))
	copy(sorted, m.tips)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	tip := sorted[len(sorted)/2]
	if tip == 0 {
		tip = 1
	}

	return tip
}

// =============================================================================

// nextBaseFee computes the unclamped fee for the next block given how much
// gas the parent block used.
func nextBaseFee(parentBaseFee uint64, minBaseFee uint64, gasTarget uint64, gasUsed uint64) uint64 {
	switch {
	case gasUsed > gasTarget:
		delta := parentBaseFee * (gasUsed - gasTarget) / gasTarget / adjustDenominator
		if delta == 0 {
			delta = 1
		}
		return parentBaseFee + delta

	case gasUsed < gasTarget:
		delta := parentBaseFee * (gasTarget - gasUsed) / gasTarget / adjustDenominator
		next := parentBaseFee - delta
		if next < minBaseFee {
			next = minBaseFee
		}
		return next

	default:
		return parentBaseFee
	}
}
