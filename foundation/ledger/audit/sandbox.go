package audit

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database/memory"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/mempool/selector"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Funding for the generated sandbox identities. Large enough that gas
// fees never starve a scenario.
const (
	senderFunding  = 1_000_000_000_000
	relayerFunding = 1_000_000_000
)

// sandbox is an isolated chain on in-memory storage with its own sealer,
// relayers and funded sender identities. Scenarios submit transactions
// and seal blocks synchronously.
type sandbox struct {
	st       *state.State
	gen      genesis.Genesis
	sealer   *ecdsa.PrivateKey
	senders  []*ecdsa.PrivateKey
	relayers []*ecdsa.PrivateKey
}

// newSandbox builds an isolated chain whose genesis derives from the live
// one. The mutate hook lets a scenario shrink windows and thresholds so
// it can run in a handful of blocks.
func newSandbox(liveGen genesis.Genesis, senderCount int, mutate func(gen *genesis.Genesis)) (*sandbox, error) {
	sealer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	gen := liveGen
	gen.Balances = make(map[string]uint64)
	gen.Bridge.Chains = append([]string{}, liveGen.Bridge.Chains...)
	gen.Sealer = string(database.PublicKeyToAccountID(sealer.PublicKey))

	senders := make([]*ecdsa.PrivateKey, senderCount)
	for i := range senders {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		senders[i] = key
		gen.Balances[string(database.PublicKeyToAccountID(key.PublicKey))] = senderFunding
	}

	relayerCount := int(gen.Bridge.Confirmations)
	if relayerCount == 0 {
		relayerCount = 1
	}
	relayers := make([]*ecdsa.PrivateKey, relayerCount)
	gen.Bridge.Relayers = make([]string, relayerCount)
	for i := range relayers {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		relayers[i] = key
		accountID := string(database.PublicKeyToAccountID(key.PublicKey))
		gen.Bridge.Relayers[i] = accountID
		gen.Balances[accountID] = relayerFunding
	}

	if mutate != nil {
		mutate(&gen)
	}

	storage, err := memory.New()
	if err != nil {
		return nil, err
	}

	st, err := state.New(state.Config{
		SealerKey:      sealer,
		Host:           "sandbox",
		Genesis:        gen,
		Storage:        storage,
		SelectStrategy: selector.StrategyPriority,
		KnownPeers:     peer.NewPeerSet(),
	})
	if err != nil {
		return nil, err
	}

	return &sandbox{
		st:       st,
		gen:      gen,
		sealer:   sealer,
		senders:  senders,
		relayers: relayers,
	}, nil
}

// close releases the sandbox resources.
func (sb *sandbox) close() {
	sb.st.Shutdown()
}

// accountOf returns the account id behind a sandbox key.
func (sb *sandbox) accountOf(key *ecdsa.PrivateKey) database.AccountID {
	return database.PublicKeyToAccountID(key.PublicKey)
}

// balanceOf returns the current spendable balance of a sandbox key.
func (sb *sandbox) balanceOf(key *ecdsa.PrivateKey) uint64 {
	account, err := sb.st.QueryAccount(sb.accountOf(key))
	if err != nil {
		return 0
	}
	return account.Balance
}

// submit signs and accepts a transaction into the sandbox mempool using
// the next nonce for the key's account.
func (sb *sandbox) submit(key *ecdsa.PrivateKey, toID database.AccountID, value uint64, tip uint64, kind database.Kind, data []byte) error {
	fromID := sb.accountOf(key)

	tx, err := database.NewTx(sb.gen.ChainID, sb.st.QueryNextNonce(fromID), toID, value, tip, kind, data)
	if err != nil {
		return err
	}

	signedTx, err := tx.Sign(key)
	if err != nil {
		return err
	}

	return sb.st.UpsertWalletTransaction(signedTx)
}

// sealOne seals the next block out of whatever the mempool holds.
func (sb *sandbox) sealOne(ctx context.Context) (database.Block, error) {
	return sb.st.SealNewBlock(ctx)
}

// drainMempool seals blocks until the mempool is empty, returning the
// sealed blocks in order.
func (sb *sandbox) drainMempool(ctx context.Context) ([]database.Block, error) {
	var blocks []database.Block
	for sb.st.QueryMempoolLength() > 0 {
		block, err := sb.sealOne(ctx)
		if err != nil {
			return blocks, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// advanceBlocks moves the chain forward the specified number of blocks.
// Blocks always carry at least one transaction, so each step seals a
// minimal transfer between the first two senders.
func (sb *sandbox) advanceBlocks(ctx context.Context, count uint64) error {
	if len(sb.senders) < 2 {
		return fmt.Errorf("advancing blocks needs two senders, have %d", len(sb.senders))
	}

	for i := uint64(0); i < count; i++ {
		if err := sb.submit(sb.senders[0], sb.accountOf(sb.senders[1]), 1, 1, database.KindTransfer, nil); err != nil {
			return err
		}
		if _, err := sb.sealOne(ctx); err != nil {
			return err
		}
	}

	return nil
}

// height returns the sandbox chain's latest block number.
func (sb *sandbox) height() uint64 {
	return sb.st.RetrieveLatestBlock().Header.Number
}
