package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
)

// sealingOperations handles sealing new blocks, both on the genesis seal
// interval and on demand when transactions arrive.
func (w *Worker) sealingOperations() {
	w.evHandler("worker: sealingOperations: G started")
	defer w.evHandler("worker: sealingOperations: G completed")

	for {
		select {
		case <-w.sealTicker.C:
			if !w.isShutdown() {
				w.runSealingOperation()
			}
		case <-w.startSealing:
			if !w.isShutdown() {
				w.runSealingOperation()
			}
		case <-w.shut:
			w.evHandler("worker: sealingOperations: received shut signal")
			return
		}
	}
}

// runSealingOperation takes the best transactions from the mempool and
// seals a new block for the chain.
func (w *Worker) runSealingOperation() {
	w.evHandler("worker: runSealingOperation: SEALING: started")
	defer w.evHandler("worker: runSealingOperation: SEALING: completed")

	// Only the node holding the genesis sealer key seals blocks. Every
	// other node receives blocks from the network.
	if !w.state.IsSealer() {
		return
	}

	// Validate we are allowed to seal and we are not in a resync.
	if !w.state.IsSealingAllowed() {
		w.evHandler("worker: runSealingOperation: SEALING: turned off")
		return
	}

	// Make sure there are transactions in the mempool.
	length := w.state.QueryMempoolLength()
	if length == 0 {
		w.evHandler("worker: runSealingOperation: SEALING: no transactions to seal: Txs[%d]", length)
		return
	}

	// After running a sealing operation, check if a new operation should
	// be signaled again.
	defer func() {
		length := w.state.QueryMempoolLength()
		if length > 0 {
			w.evHandler("worker: runSealingOperation: SEALING: signal new sealing operation: Txs[%d]", length)
			w.SignalStartSealing()
		}
	}()

	// If sealing is signalled to be cancelled by ProcessPeerBlock, this G
	// can't terminate until it is told it can.
	var wait chan struct{}
	defer func() {
		if wait != nil {
			w.evHandler("worker: runSealingOperation: SEALING: termination signal: waiting")
			<-wait
			w.evHandler("worker: runSealingOperation: SEALING: termination signal: received")
		}
	}()

	// Drain the cancel sealing channel before starting.
	select {
	case <-w.cancelSealing:
		w.evHandler("worker: runSealingOperation: SEALING: drained cancel channel")
	default:
	}

	// Create a context so sealing can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the sealing operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case wait = <-w.cancelSealing:
			w.evHandler("worker: runSealingOperation: SEALING: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	// This G is performing the sealing.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.state.SealNewBlock(ctx)
		duration := time.Since(t)

		w.evHandler("worker: runSealingOperation: SEALING: sealing duration[%v]", duration)

		if err != nil {
			switch {
			case errors.Is(err, state.ErrNoTransactions):
				w.evHandler("worker: runSealingOperation: SEALING: WARNING: no transactions in mempool")
			case ctx.Err() != nil:
				w.evHandler("worker: runSealingOperation: SEALING: CANCEL: complete")
			default:
				w.evHandler("worker: runSealingOperation: SEALING: ERROR: %s", err)
			}
			return
		}

		// The block is sealed. Send the new block to the network.
		// Log the error, but that's it.
		if err := w.state.NetSendBlockToPeers(block); err != nil {
			w.evHandler("worker: runSealingOperation: SEALING: send block to peers: WARNING %s", err)
		}
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
