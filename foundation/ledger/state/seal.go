package state

import (
	"context"
	"errors"

	"github.com/ancourn/kaldr1-sub002/foundation/events"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// SealNewBlock attempts to create a new block out of the best transactions
// in the mempool and make it the next block in the chain.
func (s *State) SealNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: SealNewBlock: SEALING: check mempool count")

	if !s.IsSealer() {
		return database.Block{}, errors.New("node is not the authorized sealer")
	}

	// Pick the best transactions respecting per account nonce order, then
	// keep the prefix that fits inside the block gas limit.
	trans := s.mempool.PickBest(int(s.genesis.TransPerBlock))
	trans = trimToGasLimit(trans, s.genesis.GasLimit)
	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: SealNewBlock: SEALING: seal block with %d transactions", len(trans))

	block, err := database.SealBlock(s.sealerKey, s.db.LatestBlock(), s.fees.BaseFee(), s.genesis.GasLimit, trans)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: SealNewBlock: SEALING: update local state")

	if err := s.updateLocalState(block); err != nil {
		return database.Block{}, err
	}

	s.publish(events.KindBlock, "block %d sealed with %d transactions, base fee %d", block.Header.Number, len(trans), block.Header.BaseFee)
	if s.metrics != nil {
		s.metrics.RecordBlockSealed(block.Header.Number, block.Header.BaseFee, block.Header.GasUsed)
	}

	return block, nil
}

// ProcessPeerBlock takes a block received from a peer, validates it and
// if that passes, applies the block to the local state.
func (s *State) ProcessPeerBlock(block database.Block) error {
	s.evHandler("state: ProcessPeerBlock: started: block[%s]", block.Hash())
	defer s.evHandler("state: ProcessPeerBlock: completed")

	// If a sealing operation is running it needs to stop immediately. The
	// G executing runSealingOperation will not return from the function
	// until done is called. That allows this function to complete its
	// state changes before a new sealing operation takes place.
	if s.Worker != nil {
		done := s.Worker.SignalCancelSealing()
		defer func() {
			s.evHandler("state: ProcessPeerBlock: signal runSealingOperation to terminate")
			done()
		}()
	}

	if err := block.ValidateBlock(s.db.LatestBlock(), s.fees.BaseFee(), s.authorizedSealer, s.evHandler); err != nil {
		return err
	}

	if err := s.updateLocalState(block); err != nil {
		return err
	}

	s.publish(events.KindBlock, "block %d accepted from peer", block.Header.Number)

	return nil
}

// =============================================================================

// trimToGasLimit cuts the transaction list at the first transaction that
// would push the block past the gas limit. Cutting the suffix keeps each
// account's nonce sequence contiguous.
func trimToGasLimit(trans []database.BlockTx, gasLimit uint64) []database.BlockTx {
	var used uint64
	for i, tx := range trans {
		if used+tx.GasUnits > gasLimit {
			return trans[:i]
		}
		used += tx.GasUnits
	}

	return trans
}
