package worker

import (
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
)

// peerOperations handles finding new peers.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.peerTicker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the peer list.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer. Peers that don't respond are
		// dropped from the known peer list.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: runPeersOperation: requestPeerStatus: %s: ERROR: %s", pr.Host, err)
			w.state.RemoveKnownPeer(pr)
			continue
		}

		// Add new peers to this node's list.
		w.addNewPeers(peerStatus.KnownPeers)
	}

	// Share this node with the latest set of peers so they know this node
	// is available to chat.
	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetRequestAddPeer(pr); err != nil {
			w.evHandler("worker: runPeersOperation: addPeer: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// addNewPeers takes the list of known peers and makes sure they are
// included in this node's list of known peers.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	w.evHandler("worker: addNewPeers: started")
	defer w.evHandler("worker: addNewPeers: completed")

	for _, pr := range knownPeers {

		// Don't add this running node to the known peer list.
		if pr.Match(w.state.RetrieveHost()) {
			continue
		}

		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: addNewPeers: adding peer node %s", pr.Host)
		}
	}
}
