// Package archivedb implements the archive storer on sqlite through bun.
package archivedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ancourn/kaldr1-sub002/business/core/archive"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go sqlite driver.
)

// Store is the sqlite implementation of the archive storer.
type Store struct {
	db *bun.DB
}

// Open opens or creates the archive database at the specified path and
// makes sure the schema exists.
func Open(path string) (*Store, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The pure Go driver serializes writes. A single connection keeps the
	// poller and the query paths from tripping over SQLITE_BUSY.
	sqldb.SetMaxOpenConns(1)

	// WAL lets readers proceed while the poller writes.
	if _, err := sqldb.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := sqldb.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := Store{
		db: bun.NewDB(sqldb, sqlitedialect.New()),
	}

	if err := store.migrate(context.Background()); err != nil {
		return nil, err
	}

	return &store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates any table that doesn't exist yet.
func (s *Store) migrate(ctx context.Context) error {
	models := []any{
		(*dbNode)(nil),
		(*dbBlock)(nil),
		(*dbTransaction)(nil),
		(*dbMetric)(nil),
		(*dbIdentityKey)(nil),
	}

	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}

// =============================================================================

// AddBlock stores a sealed block and its transactions atomically. Rows that
// already exist are left untouched so replaying the chain is harmless.
func (s *Store) AddBlock(ctx context.Context, block archive.Block, txs []archive.Transaction) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		blkRow := dbBlock{
			Number:      block.Number,
			Hash:        block.Hash,
			PrevHash:    block.PrevHash,
			Beneficiary: block.Beneficiary,
			BaseFee:     block.BaseFee,
			GasUsed:     block.GasUsed,
			GasLimit:    block.GasLimit,
			TransRoot:   block.TransRoot,
			TxCount:     block.TxCount,
			SealedAt:    block.SealedAt,
			CreatedAt:   time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(&blkRow).On("CONFLICT (number) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert block %d: %w", block.Number, err)
		}

		if len(txs) == 0 {
			return nil
		}

		txRows := make([]dbTransaction, len(txs))
		for i, t := range txs {
			txRows[i] = dbTransaction{
				Hash:        t.Hash,
				BlockNumber: t.BlockNumber,
				Nonce:       t.Nonce,
				FromAccount: t.FromAccount,
				ToAccount:   t.ToAccount,
				Value:       t.Value,
				Tip:         t.Tip,
				GasPrice:    t.GasPrice,
				GasUnits:    t.GasUnits,
				Kind:        t.Kind,
				SealedAt:    t.SealedAt,
			}
		}
		if _, err := tx.NewInsert().Model(&txRows).On("CONFLICT (hash) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert transactions for block %d: %w", block.Number, err)
		}

		return nil
	})
}

// UpsertNode inserts or refreshes a node row keyed by host.
func (s *Store) UpsertNode(ctx context.Context, node archive.Node) error {
	row := dbNode{
		Host:        node.Host,
		Role:        node.Role,
		LatestBlock: node.LatestBlock,
		LastSeen:    node.LastSeen,
		UpdatedAt:   time.Now().UTC(),
	}

	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (host) DO UPDATE").
		Set("role = EXCLUDED.role").
		Set("latest_block = EXCLUDED.latest_block").
		Set("last_seen = EXCLUDED.last_seen").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// UpsertIdentityKey inserts or refreshes an identity row keyed by name.
func (s *Store) UpsertIdentityKey(ctx context.Context, key archive.IdentityKey) error {
	row := dbIdentityKey{
		Name:      key.Name,
		AccountID: key.AccountID,
		PublicKey: key.PublicKey,
		CreatedAt: key.CreatedAt,
	}

	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (name) DO UPDATE").
		Set("account_id = EXCLUDED.account_id").
		Set("public_key = EXCLUDED.public_key").
		Exec(ctx)

	return err
}

// AddMetricSnapshot appends one economic sample.
func (s *Store) AddMetricSnapshot(ctx context.Context, snap archive.MetricSnapshot) error {
	row := dbMetric{
		TakenAt:      snap.TakenAt,
		BlockHeight:  snap.BlockHeight,
		BaseFee:      snap.BaseFee,
		SupplyTotal:  snap.SupplyTotal,
		TotalBonded:  snap.TotalBonded,
		BridgeVault:  snap.BridgeVault,
		MempoolDepth: snap.MempoolDepth,
		TPS:          snap.TPS,
	}

	_, err := s.db.NewInsert().Model(&row).Exec(ctx)

	return err
}

// =============================================================================

// QueryLatestBlockNumber returns the highest archived block number, zero
// when the archive is empty.
func (s *Store) QueryLatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64

	err := s.db.NewSelect().
		Model((*dbBlock)(nil)).
		ColumnExpr("COALESCE(MAX(number), 0)").
		Scan(ctx, &number)

	return number, err
}

// QueryBlocks returns the archived blocks in the inclusive number range.
func (s *Store) QueryBlocks(ctx context.Context, from uint64, to uint64) ([]archive.Block, error) {
	var rows []dbBlock

	err := s.db.NewSelect().
		Model(&rows).
		Where("number BETWEEN ? AND ?", from, to).
		Order("number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return toCoreBlocks(rows), nil
}

// QueryBlocksSince returns the archived blocks sealed at or after the
// specified time.
func (s *Store) QueryBlocksSince(ctx context.Context, since time.Time) ([]archive.Block, error) {
	var rows []dbBlock

	err := s.db.NewSelect().
		Model(&rows).
		Where("sealed_at >= ?", since).
		Order("number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return toCoreBlocks(rows), nil
}

// QueryTransactionsByAccount returns the most recent archived transactions
// that touch the specified account, as sender or receiver.
func (s *Store) QueryTransactionsByAccount(ctx context.Context, account string, limit int) ([]archive.Transaction, error) {
	var rows []dbTransaction

	err := s.db.NewSelect().
		Model(&rows).
		Where("from_account = ? OR to_account = ?", account, account).
		Order("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	txs := make([]archive.Transaction, len(rows))
	for i, row := range rows {
		txs[i] = archive.Transaction{
			Hash:        row.Hash,
			BlockNumber: row.BlockNumber,
			Nonce:       row.Nonce,
			FromAccount: row.FromAccount,
			ToAccount:   row.ToAccount,
			Value:       row.Value,
			Tip:         row.Tip,
			GasPrice:    row.GasPrice,
			GasUnits:    row.GasUnits,
			Kind:        row.Kind,
			SealedAt:    row.SealedAt,
		}
	}

	return txs, nil
}

// QueryMetricSnapshots returns the samples taken at or after the specified
// time.
func (s *Store) QueryMetricSnapshots(ctx context.Context, since time.Time) ([]archive.MetricSnapshot, error) {
	var rows []dbMetric

	err := s.db.NewSelect().
		Model(&rows).
		Where("taken_at >= ?", since).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	snaps := make([]archive.MetricSnapshot, len(rows))
	for i, row := range rows {
		snaps[i] = archive.MetricSnapshot{
			TakenAt:      row.TakenAt,
			BlockHeight:  row.BlockHeight,
			BaseFee:      row.BaseFee,
			SupplyTotal:  row.SupplyTotal,
			TotalBonded:  row.TotalBonded,
			BridgeVault:  row.BridgeVault,
			MempoolDepth: row.MempoolDepth,
			TPS:          row.TPS,
		}
	}

	return snaps, nil
}

// QueryNodes returns every node row.
func (s *Store) QueryNodes(ctx context.Context) ([]archive.Node, error) {
	var rows []dbNode

	err := s.db.NewSelect().
		Model(&rows).
		Order("host ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]archive.Node, len(rows))
	for i, row := range rows {
		nodes[i] = archive.Node{
			Host:        row.Host,
			Role:        row.Role,
			LatestBlock: row.LatestBlock,
			LastSeen:    row.LastSeen,
		}
	}

	return nodes, nil
}

// QueryIdentityKeys returns the archived keystore identities.
func (s *Store) QueryIdentityKeys(ctx context.Context) ([]archive.IdentityKey, error) {
	var rows []dbIdentityKey

	err := s.db.NewSelect().
		Model(&rows).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]archive.IdentityKey, len(rows))
	for i, row := range rows {
		keys[i] = archive.IdentityKey{
			Name:      row.Name,
			AccountID: row.AccountID,
			PublicKey: row.PublicKey,
			CreatedAt: row.CreatedAt,
		}
	}

	return keys, nil
}

// toCoreBlocks converts bun rows to archive blocks.
func toCoreBlocks(rows []dbBlock) []archive.Block {
	blocks := make([]archive.Block, len(rows))
	for i, row := range rows {
		blocks[i] = archive.Block{
			Number:      row.Number,
			Hash:        row.Hash,
			PrevHash:    row.PrevHash,
			Beneficiary: row.Beneficiary,
			BaseFee:     row.BaseFee,
			GasUsed:     row.GasUsed,
			GasLimit:    row.GasLimit,
			TransRoot:   row.TransRoot,
			TxCount:     row.TxCount,
			SealedAt:    row.SealedAt,
		}
	}

	return blocks
}
