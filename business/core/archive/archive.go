// Package archive maintains a SQL read model of the chain for queries the
// in-memory ledger can't serve cheaply: historical throughput, per-account
// transaction history, node liveness, and periodic economic snapshots.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/signature"
	"go.uber.org/zap"
)

// Roles a node row can carry.
const (
	RoleSelf = "self"
	RolePeer = "peer"
)

// Node represents a node this archive has seen, ourselves included.
type Node struct {
	Host        string    `json:"host"`
	Role        string    `json:"role"`
	LatestBlock uint64    `json:"latest_block"`
	LastSeen    time.Time `json:"last_seen"`
}

// Block represents the archived header of a sealed block.
type Block struct {
	Number      uint64    `json:"number"`
	Hash        string    `json:"hash"`
	PrevHash    string    `json:"prev_hash"`
	Beneficiary string    `json:"beneficiary"`
	BaseFee     uint64    `json:"base_fee"`
	GasUsed     uint64    `json:"gas_used"`
	GasLimit    uint64    `json:"gas_limit"`
	TransRoot   string    `json:"trans_root"`
	TxCount     int       `json:"tx_count"`
	SealedAt    time.Time `json:"sealed_at"`
}

// Transaction represents an archived transaction inside a sealed block.
type Transaction struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"block_number"`
	Nonce       uint64    `json:"nonce"`
	FromAccount string    `json:"from"`
	ToAccount   string    `json:"to"`
	Value       uint64    `json:"value"`
	Tip         uint64    `json:"tip"`
	GasPrice    uint64    `json:"gas_price"`
	GasUnits    uint64    `json:"gas_units"`
	Kind        string    `json:"kind"`
	SealedAt    time.Time `json:"sealed_at"`
}

// MetricSnapshot represents one periodic sample of the economic state.
type MetricSnapshot struct {
	TakenAt      time.Time `json:"taken_at"`
	BlockHeight  uint64    `json:"block_height"`
	BaseFee      uint64    `json:"base_fee"`
	SupplyTotal  uint64    `json:"supply_total"`
	TotalBonded  uint64    `json:"total_bonded"`
	BridgeVault  uint64    `json:"bridge_vault"`
	MempoolDepth int       `json:"mempool_depth"`
	TPS          float64   `json:"tps"`
}

// IdentityKey represents the public identity of a keystore account.
type IdentityKey struct {
	Name      string    `json:"name"`
	AccountID string    `json:"account_id"`
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================

// Storer declares the behavior the archive needs to persist and query rows.
type Storer interface {
	AddBlock(ctx context.Context, block Block, txs []Transaction) error
	UpsertNode(ctx context.Context, node Node) error
	UpsertIdentityKey(ctx context.Context, key IdentityKey) error
	AddMetricSnapshot(ctx context.Context, snap MetricSnapshot) error

	QueryLatestBlockNumber(ctx context.Context) (uint64, error)
	QueryBlocks(ctx context.Context, from uint64, to uint64) ([]Block, error)
	QueryBlocksSince(ctx context.Context, since time.Time) ([]Block, error)
	QueryTransactionsByAccount(ctx context.Context, account string, limit int) ([]Transaction, error)
	QueryMetricSnapshots(ctx context.Context, since time.Time) ([]MetricSnapshot, error)
	QueryNodes(ctx context.Context) ([]Node, error)
	QueryIdentityKeys(ctx context.Context) ([]IdentityKey, error)
}

// Core manages the set of APIs for archive access.
type Core struct {
	log    *zap.SugaredLogger
	storer Storer
}

// NewCore constructs a core for archive api access.
func NewCore(log *zap.SugaredLogger, storer Storer) *Core {
	return &Core{
		log:    log,
		storer: storer,
	}
}

// RecordBlock archives a sealed block and every transaction it carries.
// Blocks already archived are left untouched so replays are harmless.
func (c *Core) RecordBlock(ctx context.Context, block database.Block) error {
	values := block.Trans.Values()
	sealedAt := time.UnixMilli(int64(block.Header.TimeStamp)).UTC()

	txs := make([]Transaction, 0, len(values))
	for _, tx := range values {
		from, err := tx.FromAccount()
		if err != nil {
			return fmt.Errorf("derive from account: %w", err)
		}

		txs = append(txs, Transaction{
			Hash:        signature.Hash(tx),
			BlockNumber: block.Header.Number,
			Nonce:       tx.Nonce,
			FromAccount: string(from),
			ToAccount:   string(tx.ToID),
			Value:       tx.Value,
			Tip:         tx.Tip,
			GasPrice:    tx.GasPrice,
			GasUnits:    tx.GasUnits,
			Kind:        string(tx.Kind),
			SealedAt:    sealedAt,
		})
	}

	blk := Block{
		Number:      block.Header.Number,
		Hash:        block.Hash(),
		PrevHash:    block.Header.PrevBlockHash,
		Beneficiary: string(block.Header.BeneficiaryID),
		BaseFee:     block.Header.BaseFee,
		GasUsed:     block.Header.GasUsed,
		GasLimit:    block.Header.GasLimit,
		TransRoot:   block.Header.TransRoot,
		TxCount:     len(values),
		SealedAt:    sealedAt,
	}

	return c.storer.AddBlock(ctx, blk, txs)
}

// RecordNode upserts a node row keyed by host.
func (c *Core) RecordNode(ctx context.Context, node Node) error {
	if node.LastSeen.IsZero() {
		node.LastSeen = time.Now().UTC()
	}

	return c.storer.UpsertNode(ctx, node)
}

// RecordIdentityKey upserts the public identity of a keystore account.
func (c *Core) RecordIdentityKey(ctx context.Context, key IdentityKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	return c.storer.UpsertIdentityKey(ctx, key)
}

// Snapshot records one sample of the economic state.
func (c *Core) Snapshot(ctx context.Context, snap MetricSnapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}

	return c.storer.AddMetricSnapshot(ctx, snap)
}

// =============================================================================

// LatestArchivedBlock returns the highest block number the archive holds,
// zero when the archive is empty.
func (c *Core) LatestArchivedBlock(ctx context.Context) (uint64, error) {
	return c.storer.QueryLatestBlockNumber(ctx)
}

// Blocks returns the archived blocks in the inclusive number range.
func (c *Core) Blocks(ctx context.Context, from uint64, to uint64) ([]Block, error) {
	return c.storer.QueryBlocks(ctx, from, to)
}

// TransactionsByAccount returns the most recent archived transactions that
// touch the specified account, as sender or receiver.
func (c *Core) TransactionsByAccount(ctx context.Context, account string, limit int) ([]Transaction, error) {
	return c.storer.QueryTransactionsByAccount(ctx, account, limit)
}

// Snapshots returns the metric samples taken at or after the specified time.
func (c *Core) Snapshots(ctx context.Context, since time.Time) ([]MetricSnapshot, error) {
	return c.storer.QueryMetricSnapshots(ctx, since)
}

// Nodes returns every node row the archive holds.
func (c *Core) Nodes(ctx context.Context) ([]Node, error) {
	return c.storer.QueryNodes(ctx)
}

// IdentityKeys returns the archived keystore identities.
func (c *Core) IdentityKeys(ctx context.Context) ([]IdentityKey, error) {
	return c.storer.QueryIdentityKeys(ctx)
}

// TPS computes the archive's view of throughput over the specified window,
// transactions sealed divided by the span of their block timestamps.
func (c *Core) TPS(ctx context.Context, window time.Duration) (float64, error) {
	since := time.Now().UTC().Add(-window)

	blocks, err := c.storer.QueryBlocksSince(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		return 0, nil
	}

	var txs int
	for _, blk := range blocks {
		txs += blk.TxCount
	}

	elapsed := blocks[len(blocks)-1].SealedAt.Sub(blocks[0].SealedAt).Seconds()
	if elapsed <= 0 {
		elapsed = window.Seconds()
	}

	return float64(txs) / elapsed, nil
}
