// Package state is the core API for the node and implements all the
// business rules and processing.
package state

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ancourn/kaldr1-sub002/foundation/events"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/bridge"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/feemarket"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/gov"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/mempool"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
	"github.com/ancourn/kaldr1-sub002/foundation/metrics"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for sealing, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartSealing()
	SignalCancelSealing() (done func())
	SignalShareTx(blockTx database.BlockTx)
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	SealerKey      *ecdsa.PrivateKey
	Host           string
	Genesis        genesis.Genesis
	Storage        database.Serializer
	SelectStrategy string
	KnownPeers     *peer.PeerSet
	Events         *events.Bus
	Metrics        *metrics.Metrics
	EvHandler      EventHandler
}

// State manages the account database, the economic engines and the chain
// of sealed blocks.
type State struct {
	mu           sync.Mutex
	resyncWG     sync.WaitGroup
	allowSealing bool

	sealerKey        *ecdsa.PrivateKey
	sealerID         database.AccountID
	authorizedSealer database.AccountID
	host             string
	evHandler        EventHandler

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database

	fees    *feemarket.Market
	staking *staking.Staking
	bridge  *bridge.Bridge
	gov     *gov.Gov

	events  *events.Bus
	metrics *metrics.Metrics

	Worker Worker
}

// New constructs a new node state. Any blocks already in storage are
// replayed through the full transaction dispatch so the account database
// and every engine return to where the chain left off.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Access the storage for the ledger.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// Construct a mempool with the specified sort strategy.
	mpool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	// The genesis names the single account allowed to seal blocks. This
	// node only seals if it holds that account's key.
	var authorizedSealer database.AccountID
	if cfg.Genesis.Sealer != "" {
		authorizedSealer, err = database.ToAccountID(cfg.Genesis.Sealer)
		if err != nil {
			return nil, fmt.Errorf("genesis sealer: %w", err)
		}
	}

	// Create the State to provide support for managing the node.
	state := State{
		allowSealing:     true,
		sealerKey:        cfg.SealerKey,
		sealerID:         database.PublicKeyToAccountID(cfg.SealerKey.PublicKey),
		authorizedSealer: authorizedSealer,
		host:             cfg.Host,
		evHandler:        ev,

		knownPeers: cfg.KnownPeers,
		genesis:    cfg.Genesis,
		mempool:    mpool,
		db:         db,

		events:  cfg.Events,
		metrics: cfg.Metrics,
	}

	if err := state.buildEngines(); err != nil {
		return nil, err
	}

	// Replay the chain from storage. Every block is validated against the
	// seal and the expected base fee before its effects are re-applied.
	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}

		if err := block.ValidateBlock(db.LatestBlock(), state.fees.BaseFee(), authorizedSealer, ev); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", block.Header.Number, err)
		}

		if err := state.applyBlock(block); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", block.Header.Number, err)
		}
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// buildEngines constructs the economic engines on top of the account
// database. Called at startup and again when a reorganization resets
// the chain.
func (s *State) buildEngines() error {
	s.fees = feemarket.New(s.genesis)
	s.staking = staking.New(s.db, s.genesis)

	brg, err := bridge.New(s.db, s.genesis)
	if err != nil {
		return err
	}
	s.bridge = brg

	s.gov = gov.New(s.db, s.genesis, s.isActiveStaker, s.appliers())

	return nil
}

// isActiveStaker gates who may open governance proposals.
func (s *State) isActiveStaker(accountID database.AccountID) bool {
	position, err := s.staking.Position(accountID)
	return err == nil && position.Status == staking.StatusActive
}

// appliers wires the governable parameters to the engines owning them.
// Each applier bounds the value so governance can't brick the chain.
func (s *State) appliers() map[string]gov.Applier {
	return map[string]gov.Applier{
		genesis.ParamGasTarget: func(value uint64) error {
			if value == 0 || value > s.genesis.GasLimit {
				return fmt.Errorf("gas target %d outside (0, %d]", value, s.genesis.GasLimit)
			}
			s.fees.SetGasTarget(value)
			return nil
		},
		genesis.ParamRewardRateBPS: func(value uint64) error {
			if value > 10_000 {
				return fmt.Errorf("reward rate %d exceeds 10000 basis points", value)
			}
			s.staking.SetRewardRateBPS(value)
			return nil
		},
		genesis.ParamBridgeFlatFee: func(value uint64) error {
			s.bridge.SetFlatFee(value)
			return nil
		},
	}
}

// publish delivers a typed event to any subscribers such as connected
// websocket clients.
func (s *State) publish(kind string, format string, args ...any) {
	if s.events != nil {
		s.events.Publish(kind, format, args...)
	}
}

// =============================================================================

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database is properly closed.
	defer s.db.Close()

	// Stop all chain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	// Wait for any resync to finish.
	s.resyncWG.Wait()

	return nil
}

// IsSealingAllowed reports whether new blocks may be sealed right now.
// Sealing is suspended while a resync is running.
func (s *State) IsSealingAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.allowSealing
}

// IsSealer reports whether this node holds the key of the genesis
// authorized sealer.
func (s *State) IsSealer() bool {
	return s.sealerID == s.authorizedSealer
}
