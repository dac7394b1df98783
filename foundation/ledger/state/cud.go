package state

import (
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
)

// AddKnownPeer provides the ability to add a new peer to the known peer
// list, reporting whether it was unknown.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer provides the ability to remove a peer from the known
// peer list.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}

// UpsertMempool adds a new transaction to the mempool without any
// validation. Used when syncing transactions from a peer's mempool.
func (s *State) UpsertMempool(tx database.BlockTx) error {
	_, err := s.mempool.Upsert(tx)
	return err
}
