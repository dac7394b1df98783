// Package worker implements block sealing, peer updates, and transaction
// sharing for the node.
package worker

import (
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
)

// peerUpdateInterval represents the interval of finding new peer nodes
// and updating the chain with missing blocks.
const peerUpdateInterval = time.Minute

// maxTxShareRequests represents the max number of pending tx network share
// requests that can be outstanding before share requests are dropped. To keep
// this simple, a buffered channel of this arbitrary number is being used. If
// the channel does become full, requests for new transactions to be shared
// will not be accepted.
const maxTxShareRequests = 100

// =============================================================================

// Worker manages the sealing, peer update and transaction sharing workflows
// for the node.
type Worker struct {
	state         *state.State
	wg            sync.WaitGroup
	peerTicker    time.Ticker
	sealTicker    time.Ticker
	shut          chan struct{}
	startSealing  chan bool
	cancelSealing chan chan struct{}
	txSharing     chan database.BlockTx
	evHandler     state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) {
	w := Worker{
		state:         st,
		peerTicker:    *time.NewTicker(peerUpdateInterval),
		sealTicker:    *time.NewTicker(st.RetrieveGenesis().SealInterval()),
		shut:          make(chan struct{}),
		startSealing:  make(chan bool, 1),
		cancelSealing: make(chan chan struct{}, 1),
		txSharing:     make(chan database.BlockTx, maxTxShareRequests),
		evHandler:     evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.sealingOperations,
		w.shareTxOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.peerTicker.Stop()
	w.sealTicker.Stop()

	w.evHandler("worker: shutdown: signal cancel sealing")
	done := w.SignalCancelSealing()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartSealing starts a sealing operation. If there is already a
// signal pending in the channel, just return since a sealing operation
// will start.
func (w *Worker) SignalStartSealing() {
	if !w.state.IsSealingAllowed() {
		w.evHandler("worker: SignalStartSealing: sealing is turned off")
		return
	}

	select {
	case w.startSealing <- true:
	default:
	}
	w.evHandler("worker: SignalStartSealing: sealing signaled")
}

// SignalCancelSealing signals the G executing the runSealingOperation
// function to stop immediately. That G will not complete until done is
// called, which allows the caller to complete any state changes first.
func (w *Worker) SignalCancelSealing() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelSealing <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelSealing: SEALING: CANCEL: signaled")

	return func() { close(wait) }
}

// SignalShareTx signals a share transaction operation. If maxTxShareRequests
// signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(blockTx database.BlockTx) {
	select {
	case w.txSharing <- blockTx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
