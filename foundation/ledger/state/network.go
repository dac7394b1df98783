package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
)

const baseURL = "http://%s/v1/node"

// NetSendBlockToPeers takes a freshly sealed block and sends it to all
// known peers.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

		var status struct {
			Status string `json:"status"`
		}

		if err := send(http.MethodPost, url, database.NewBlockData(block), &status); err != nil {
			return fmt.Errorf("%s: %s", pr.Host, err)
		}

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr.Host)
	}

	return nil
}

// NetSendTxToPeers shares a new transaction with the known peers.
func (s *State) NetSendTxToPeers(tx database.BlockTx) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
		if err := send(http.MethodPost, url, tx, nil); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: %s", err)
		}
	}
}

// NetRequestPeerStatus asks the specified peer for its sync status and
// peer list.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := send(http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer[%s]: latest block[%d]: peers[%d]", pr.Host, ps.LatestBlockNumber, len(ps.KnownPeers))

	return ps, nil
}

// NetRequestPeerMempool asks the peer for the transactions in its mempool.
func (s *State) NetRequestPeerMempool(pr peer.Peer) ([]database.BlockTx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var pool []database.BlockTx
	if err := send(http.MethodGet, url, nil, &pool); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerMempool: len[%d]", len(pool))

	return pool, nil
}

// NetRequestPeerBlocks queries the specified peer for blocks this node
// does not have and applies them in order.
func (s *State) NetRequestPeerBlocks(pr peer.Peer) error {
	s.evHandler("state: NetRequestPeerBlocks: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerBlocks: completed: %s", pr.Host)

	from := s.RetrieveLatestBlock().Header.Number + 1
	url := fmt.Sprintf("%s/block/list/%d/latest", fmt.Sprintf(baseURL, pr.Host), from)

	var blocksData []database.BlockData
	if err := send(http.MethodGet, url, nil, &blocksData); err != nil {
		return err
	}

	s.evHandler("state: NetRequestPeerBlocks: found blocks[%d]", len(blocksData))

	for _, blockData := range blocksData {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return err
		}

		if err := s.ProcessPeerBlock(block); err != nil {
			return err
		}
	}

	return nil
}

// NetRequestAddPeer tells the specified peer this node exists so it can
// be added to their known peer list.
func (s *State) NetRequestAddPeer(pr peer.Peer) error {
	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))

	return send(http.MethodPost, url, peer.New(s.host), nil)
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func send(method string, url string, dataSend any, dataRecv any) error {
	var req *http.Request

	switch {
	case dataSend != nil:
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err != nil {
			return err
		}

	default:
		var err error
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
	}

	var client http.Client
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
