package archive_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ancourn/kaldr1-sub002/business/core/archive"
	"github.com/ancourn/kaldr1-sub002/business/core/archive/stores/archivedb"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	signPavel = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	signBill  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"

	pavelAcct = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	billAcct  = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	edAcct    = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"
)

// openCore builds an archive core over a fresh sqlite store.
func openCore(t *testing.T) *archive.Core {
	t.Helper()

	store, err := archivedb.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err, "Failed to open archive database")
	t.Cleanup(func() { store.Close() })

	return archive.NewCore(zap.NewNop().Sugar(), store)
}

// blockTx signs a transfer from bill and prices it like the mempool would.
func blockTx(t *testing.T, nonce uint64, tip uint64) database.BlockTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(signBill)
	require.NoError(t, err, "Failed to parse the signing key")

	tx := database.Tx{ChainID: 1, Nonce: nonce, ToID: edAcct, Value: 100 * nonce, Tip: tip, Kind: database.KindTransfer}
	signedTx, err := tx.Sign(pk)
	require.NoError(t, err, "Failed to sign the transaction")

	return database.NewBlockTx(signedTx, 15)
}

// sealChain seals two blocks the way the node does, one transfer in the
// first and two in the second.
func sealChain(t *testing.T) []database.Block {
	t.Helper()

	sealerKey, err := crypto.HexToECDSA(signPavel)
	require.NoError(t, err, "Failed to parse the sealer key")

	block1, err := database.SealBlock(sealerKey, database.Block{}, 15, 126_000, []database.BlockTx{blockTx(t, 1, 10)})
	require.NoError(t, err, "Failed to seal block 1")

	block2, err := database.SealBlock(sealerKey, block1, 15, 126_000, []database.BlockTx{blockTx(t, 2, 5), blockTx(t, 3, 0)})
	require.NoError(t, err, "Failed to seal block 2")

	return []database.Block{block1, block2}
}

// =============================================================================

func TestArchiveCore(t *testing.T) {
	core := openCore(t)
	blocks := sealChain(t)
	ctx := context.Background()

	t.Run("Record Blocks", func(t *testing.T) { testRecordBlocks(t, core, blocks, ctx) })
	t.Run("Account History", func(t *testing.T) { testAccountHistory(t, core, ctx) })
	t.Run("Throughput", func(t *testing.T) { testThroughput(t, core, ctx) })
	t.Run("Record Defaults", func(t *testing.T) { testRecordDefaults(t, core, ctx) })
}

func testRecordBlocks(t *testing.T, core *archive.Core, blocks []database.Block, ctx context.Context) {
	for _, block := range blocks {
		err := core.RecordBlock(ctx, block)
		require.NoError(t, err, "Failed to record block %d", block.Header.Number)
	}
	t.Logf("✓ Recorded %d sealed blocks", len(blocks))

	// Replaying the chain into the archive must be harmless.
	err := core.RecordBlock(ctx, blocks[0])
	require.NoError(t, err, "Replaying a recorded block should be harmless")

	latest, err := core.LatestArchivedBlock(ctx)
	require.NoError(t, err, "Failed to query the latest archived block")
	assert.Equal(t, uint64(2), latest, "Latest archived block mismatch")

	archived, err := core.Blocks(ctx, 1, 2)
	require.NoError(t, err, "Failed to query the archived range")
	require.Len(t, archived, 2, "Archive should hold both blocks")

	assert.Equal(t, blocks[0].Hash(), archived[0].Hash, "Block hash mismatch")
	assert.Equal(t, blocks[0].Header.TransRoot, archived[0].TransRoot, "Merkle root mismatch")
	assert.Equal(t, pavelAcct, archived[0].Beneficiary, "Beneficiary mismatch")
	assert.Equal(t, 1, archived[0].TxCount, "Block 1 tx count mismatch")
	assert.Equal(t, 2, archived[1].TxCount, "Block 2 tx count mismatch")
	assert.Equal(t, blocks[0].Hash(), archived[1].PrevHash, "Chain linkage mismatch")
	t.Logf("✓ Archived headers match the sealed chain")
}

func testAccountHistory(t *testing.T, core *archive.Core, ctx context.Context) {
	history, err := core.TransactionsByAccount(ctx, billAcct, 10)
	require.NoError(t, err, "Failed to query bill's history")
	require.Len(t, history, 3, "Bill signed 3 transactions")
	assert.Equal(t, uint64(3), history[0].Nonce, "History should be most recent first")
	assert.Equal(t, billAcct, history[0].FromAccount, "Sender mismatch")
	assert.Equal(t, uint64(15), history[0].GasPrice, "Gas price should be base fee plus tip")
	assert.Equal(t, uint64(25), history[2].GasPrice, "Gas price should be base fee plus tip")
	t.Logf("✓ Sender history queried: %d transactions", len(history))

	history, err = core.TransactionsByAccount(ctx, edAcct, 10)
	require.NoError(t, err, "Failed to query ed's history")
	require.Len(t, history, 3, "Ed received all 3 transactions")
	t.Logf("✓ Receiver history queried: %d transactions", len(history))

	history, err = core.TransactionsByAccount(ctx, billAcct, 2)
	require.NoError(t, err, "Failed to query the limited history")
	require.Len(t, history, 2, "Limit should cap the history")
}

func testThroughput(t *testing.T, core *archive.Core, ctx context.Context) {
	tps, err := core.TPS(ctx, time.Minute)
	require.NoError(t, err, "Failed to compute TPS")
	assert.Greater(t, tps, 0.0, "Freshly sealed blocks should yield a positive TPS")
	t.Logf("✓ Throughput over the last minute: %.2f tps", tps)

	// A window with no blocks reports zero, not an error.
	tps, err = core.TPS(ctx, time.Nanosecond)
	require.NoError(t, err, "An empty window should not error")
	assert.Equal(t, 0.0, tps, "An empty window should report zero TPS")
}

func testRecordDefaults(t *testing.T, core *archive.Core, ctx context.Context) {
	err := core.RecordNode(ctx, archive.Node{Host: "localhost:9080", Role: archive.RoleSelf, LatestBlock: 2})
	require.NoError(t, err, "Failed to record the node")

	nodes, err := core.Nodes(ctx)
	require.NoError(t, err, "Failed to query nodes")
	require.Len(t, nodes, 1, "Archive should hold the node row")
	assert.False(t, nodes[0].LastSeen.IsZero(), "RecordNode should default the last seen time")

	err = core.RecordIdentityKey(ctx, archive.IdentityKey{Name: "sealer", AccountID: pavelAcct, PublicKey: "0x04aabbcc"})
	require.NoError(t, err, "Failed to record the identity key")

	keys, err := core.IdentityKeys(ctx)
	require.NoError(t, err, "Failed to query identity keys")
	require.Len(t, keys, 1, "Archive should hold the identity row")
	assert.False(t, keys[0].CreatedAt.IsZero(), "RecordIdentityKey should default the creation time")

	err = core.Snapshot(ctx, archive.MetricSnapshot{BlockHeight: 2, BaseFee: 15, SupplyTotal: 3_000_000})
	require.NoError(t, err, "Failed to record the snapshot")

	snaps, err := core.Snapshots(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err, "Failed to query snapshots")
	require.Len(t, snaps, 1, "Archive should hold the snapshot")
	assert.False(t, snaps[0].TakenAt.IsZero(), "Snapshot should default the sample time")
	t.Logf("✓ Zero value timestamps defaulted on record")
}
