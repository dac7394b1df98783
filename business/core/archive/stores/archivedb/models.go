package archivedb

import (
	"time"

	"github.com/uptrace/bun"
)

// dbNode is the bun model for the nodes table.
type dbNode struct {
	bun.BaseModel `bun:"table:nodes"`

	ID          int64     `bun:",pk,autoincrement"`
	Host        string    `bun:",notnull,unique"`
	Role        string    `bun:",notnull"`
	LatestBlock uint64    `bun:",notnull"`
	LastSeen    time.Time `bun:",notnull"`
	UpdatedAt   time.Time `bun:",notnull,default:current_timestamp"`
}

// dbBlock is the bun model for the blocks table. The block number is the
// natural primary key.
type dbBlock struct {
	bun.BaseModel `bun:"table:blocks"`

	Number      uint64    `bun:",pk"`
	Hash        string    `bun:",notnull,unique"`
	PrevHash    string    `bun:",notnull"`
	Beneficiary string    `bun:",notnull"`
	BaseFee     uint64    `bun:",notnull"`
	GasUsed     uint64    `bun:",notnull"`
	GasLimit    uint64    `bun:",notnull"`
	TransRoot   string    `bun:",notnull"`
	TxCount     int       `bun:",notnull"`
	SealedAt    time.Time `bun:",notnull"`
	CreatedAt   time.Time `bun:",notnull,default:current_timestamp"`
}

// dbTransaction is the bun model for the transactions table.
type dbTransaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID          int64     `bun:",pk,autoincrement"`
	Hash        string    `bun:",notnull,unique"`
	BlockNumber uint64    `bun:",notnull"`
	Nonce       uint64    `bun:",notnull"`
	FromAccount string    `bun:",notnull"`
	ToAccount   string    `bun:",notnull"`
	Value       uint64    `bun:",notnull"`
	Tip         uint64    `bun:",notnull"`
	GasPrice    uint64    `bun:",notnull"`
	GasUnits    uint64    `bun:",notnull"`
	Kind        string    `bun:",notnull"`
	SealedAt    time.Time `bun:",notnull"`

	Block *dbBlock `bun:"rel:belongs-to,join:block_number=number"`
}

// dbMetric is the bun model for the metrics table.
type dbMetric struct {
	bun.BaseModel `bun:"table:metrics"`

	ID           int64     `bun:",pk,autoincrement"`
	TakenAt      time.Time `bun:",notnull"`
	BlockHeight  uint64    `bun:",notnull"`
	BaseFee      uint64    `bun:",notnull"`
	SupplyTotal  uint64    `bun:",notnull"`
	TotalBonded  uint64    `bun:",notnull"`
	BridgeVault  uint64    `bun:",notnull"`
	MempoolDepth int       `bun:",notnull"`
	TPS          float64   `bun:",notnull"`
}

// dbIdentityKey is the bun model for the identity_keys table.
type dbIdentityKey struct {
	bun.BaseModel `bun:"table:identity_keys"`

	ID        int64     `bun:",pk,autoincrement"`
	Name      string    `bun:",notnull,unique"`
	AccountID string    `bun:",notnull"`
	PublicKey string    `bun:",notnull"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp"`
}
