package worker

import (
	"errors"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
)

// Sync updates the peer list, mempool and blocks from the known peers.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: requestPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this node's list.
		w.addNewPeers(peerStatus.KnownPeers)

		// Retrieve the mempool from the peer.
		pool, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: requestPeerMempool: %s: ERROR: %s", pr.Host, err)
		}
		for _, tx := range pool {
			w.evHandler("worker: sync: requestPeerMempool: %s: add tx: %s", pr.Host, tx.SignatureString()[:16])
			w.state.UpsertMempool(tx)
		}

		// If this peer has blocks we don't have, we need to add them.
		if peerStatus.LatestBlockNumber > w.state.RetrieveLatestBlock().Header.Number {
			w.evHandler("worker: sync: requestPeerBlocks: %s: latestBlockNumber[%d]", pr.Host, peerStatus.LatestBlockNumber)

			if err := w.state.NetRequestPeerBlocks(pr); err != nil {
				w.evHandler("worker: sync: requestPeerBlocks: %s: ERROR %s", pr.Host, err)

				// A forked chain can only be corrected by resetting to
				// genesis and downloading the longest chain again.
				if errors.Is(err, database.ErrChainForked) {
					w.state.Reorganize()
					return
				}
			}
		}
	}
}
