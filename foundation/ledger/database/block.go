package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/merkle"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/signature"
)

// ErrChainForked is returned from ValidateBlock if another node's chain
// is two or more blocks ahead of ours.
var ErrChainForked = errors.New("blockchain forked, start resync")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	PrevBlockHash string    `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     uint64    `json:"timestamp"`       // Time the block was sealed, in unix milliseconds.
	BeneficiaryID AccountID `json:"beneficiary"`     // The sealer account receiving the reward and tips.
	Number        uint64    `json:"number"`          // Block number in the chain.
	BaseFee       uint64    `json:"base_fee"`        // Base fee per unit of gas every transaction in this block burned.
	GasUsed       uint64    `json:"gas_used"`        // Total units of gas consumed by the transactions in this block.
	GasLimit      uint64    `json:"gas_limit"`       // Maximum units of gas this block was allowed to consume.
	TransRoot     string    `json:"trans_root"`      // Merkle tree root hash for the transactions in this block.
}

// Seal holds the sealer's signature over the block header. Only the
// authorized sealer declared in genesis can produce an accepted seal.
type Seal struct {
	V *big.Int `json:"v"`
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Seal   Seal
	Trans  *merkle.Tree[BlockTx]
}

// SealBlock constructs the next block from the specified transactions and
// signs the header with the sealer's private key.
func SealBlock(sealerKey *ecdsa.PrivateKey, prevBlock Block, baseFee uint64, gasLimit uint64, trans []BlockTx) (Block, error) {

	// When sealing the first block, the previous block's hash will be zero.
	prevBlockHash := signature.ZeroHash
	if prevBlock.Header.Number > 0 {
		prevBlockHash = prevBlock.Hash()
	}

	// Construct a merkle tree from the transactions for this block. The
	// root of this tree will be part of the block being sealed.
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	// Total up the gas the selected transactions consume.
	var gasUsed uint64
	for _, tx := range trans {
		gasUsed += tx.GasUnits
	}
	if gasUsed > gasLimit {
		return Block{}, fmt.Errorf("transactions exceed the gas limit, used %d, limit %d", gasUsed, gasLimit)
	}

	// Blocks can be sealed inside the same millisecond. The timestamp
	// still has to move forward for each block.
	timeStamp := uint64(time.Now().UTC().UnixMilli())
	if timeStamp <= prevBlock.Header.TimeStamp {
		timeStamp = prevBlock.Header.TimeStamp + 1
	}

	nb := Block{
		Header: BlockHeader{
			PrevBlockHash: prevBlockHash,
			TimeStamp:     timeStamp,
			BeneficiaryID: PublicKeyToAccountID(sealerKey.PublicKey),
			Number:        prevBlock.Header.Number + 1,
			BaseFee:       baseFee,
			GasUsed:       gasUsed,
			GasLimit:      gasLimit,
			TransRoot:     tree.RootHex(),
		},
		Trans: tree,
	}

	// Sign the header so any node can verify who sealed this block.
	v, r, s, err := signature.Sign(nb.Header, sealerKey)
	if err != nil {
		return Block{}, err
	}
	nb.Seal = Seal{V: v, R: r, S: s}

	return nb, nil
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	// CORE NOTE: Hashing the block header and not the whole block so the
	// chain can be cryptographically checked by only needing block headers
	// and not full blocks with the transaction data. This supports the
	// ability to have pruned nodes in the future.

	return signature.Hash(b.Header)
}

// SealerAccount extracts the account that sealed the block from the seal
// signature over the header.
func (b Block) SealerAccount() (AccountID, error) {
	address, err := signature.FromAddress(b.Header, b.Seal.V, b.Seal.R, b.Seal.S)
	return AccountID(address), err
}

// ValidateBlock takes a block and validates it to be included into the chain.
func (b Block) ValidateBlock(previousBlock Block, expectedBaseFee uint64, sealerID AccountID, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: chain is not forked", b.Header.Number)

	// The node who sent this block has a chain that is two or more blocks
	// ahead of ours. This means there has been a fork and we are on the
	// wrong side.
	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number >= (nextNumber + 2) {
		return ErrChainForked
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash())
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Header.Number)

		if b.Header.TimeStamp <= previousBlock.Header.TimeStamp {
			return fmt.Errorf("block timestamp is not after parent block, parent %d, block %d", previousBlock.Header.TimeStamp, b.Header.TimeStamp)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: base fee follows the fee market", b.Header.Number)

	if b.Header.BaseFee != expectedBaseFee {
		return fmt.Errorf("base fee does not follow the fee market, got %d, exp %d", b.Header.BaseFee, expectedBaseFee)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: gas accounting matches the transactions", b.Header.Number)

	var gasUsed uint64
	for _, tx := range b.Trans.Values() {
		gasUsed += tx.GasUnits
	}
	if b.Header.GasUsed != gasUsed {
		return fmt.Errorf("gas used does not match transactions, got %d, exp %d", b.Header.GasUsed, gasUsed)
	}
	if b.Header.GasUsed > b.Header.GasLimit {
		return fmt.Errorf("gas used %d exceeds the gas limit %d", b.Header.GasUsed, b.Header.GasLimit)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	if b.Header.TransRoot != b.Trans.RootHex() {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", b.Trans.RootHex(), b.Header.TransRoot)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block was signed by the authorized sealer", b.Header.Number)

	sealer, err := b.SealerAccount()
	if err != nil {
		return fmt.Errorf("invalid seal signature, %w", err)
	}
	if sealer != b.Header.BeneficiaryID {
		return fmt.Errorf("seal does not match the beneficiary, got %s, exp %s", sealer, b.Header.BeneficiaryID)
	}
	if sealer != sealerID {
		return fmt.Errorf("block was not sealed by the authorized sealer, got %s, exp %s", sealer, sealerID)
	}

	return nil
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Seal   Seal        `json:"seal"`
	Trans  []BlockTx   `json:"trans"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Seal:   block.Seal,
		Trans:  block.Trans.Values(),
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: blockData.Header,
		Seal:   blockData.Seal,
		Trans:  tree,
	}

	return nb, nil
}
