package database

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/signature"
)

// Kind selects the economic operation a transaction performs.
type Kind string

// Set of transaction kinds the ledger can apply.
const (
	KindTransfer     Kind = "transfer"
	KindStake        Kind = "stake"
	KindUnstake      Kind = "unstake"
	KindClaim        Kind = "claim"
	KindBridgeOut    Kind = "bridge-out"
	KindBridgeIn     Kind = "bridge-in"
	KindBridgeAttest Kind = "bridge-attest"
	KindPoolAdd      Kind = "pool-add"
	KindPoolRemove   Kind = "pool-remove"
	KindPropose      Kind = "propose"
	KindVote         Kind = "vote"
)

// gasSchedule declares the units of gas each kind of transaction consumes.
var gasSchedule = map[Kind]uint64{
	KindTransfer:     21_000,
	KindStake:        42_000,
	KindUnstake:      42_000,
	KindClaim:        30_000,
	KindBridgeOut:    60_000,
	KindBridgeIn:     60_000,
	KindBridgeAttest: 30_000,
	KindPoolAdd:      45_000,
	KindPoolRemove:   45_000,
	KindPropose:      50_000,
	KindVote:         25_000,
}

// moduleAccounts routes each economic kind to the module account that
// must be named as the transaction's to account.
var moduleAccounts = map[Kind]AccountID{
	KindStake:        StakingAccount,
	KindUnstake:      StakingAccount,
	KindClaim:        StakingAccount,
	KindBridgeOut:    BridgeAccount,
	KindBridgeIn:     BridgeAccount,
	KindBridgeAttest: BridgeAccount,
	KindPoolAdd:      BridgeAccount,
	KindPoolRemove:   BridgeAccount,
	KindPropose:      GovAccount,
	KindVote:         GovAccount,
}

// IsKind verifies the kind is one the ledger knows how to apply.
func (k Kind) IsKind() bool {
	_, exists := gasSchedule[k]
	return exists
}

// GasUnits returns the units of gas a transaction of this kind consumes.
func (k Kind) GasUnits() uint64 {
	return gasSchedule[k]
}

// DebitsValue reports whether the transaction value is spent from the
// sender's balance when the transaction is applied.
func (k Kind) DebitsValue() bool {
	switch k {
	case KindTransfer, KindStake, KindBridgeOut, KindPoolAdd:
		return true
	}
	return false
}

// ModuleAccount returns the module account transactions of this kind must
// be sent to. The second return is false for plain transfers.
func ModuleAccount(kind Kind) (AccountID, bool) {
	accountID, exists := moduleAccounts[kind]
	return accountID, exists
}

// =============================================================================

// Tx is the transactional information between two parties.
type Tx struct {
	ChainID uint16    `json:"chain_id"` // The chain id declared in the genesis file.
	Nonce   uint64    `json:"nonce"`    // Unique id for the transaction supplied by the user.
	ToID    AccountID `json:"to"`       // Account receiving the transaction, or the module account for economic kinds.
	Value   uint64    `json:"value"`    // Monetary value moved or operated on by this transaction.
	Tip     uint64    `json:"tip"`      // Priority fee per unit of gas, offered on top of the base fee.
	Kind    Kind      `json:"kind"`     // Economic operation this transaction performs.
	Data    []byte    `json:"data"`     // Kind specific parameters, JSON encoded.
}

// NewTx constructs a new transaction.
func NewTx(chainID uint16, nonce uint64, toID AccountID, value uint64, tip uint64, kind Kind, data []byte) (Tx, error) {
	if !toID.IsAccountID() {
		return Tx{}, fmt.Errorf("to account is not properly formatted")
	}

	if !kind.IsKind() {
		return Tx{}, fmt.Errorf("kind %q is not supported", kind)
	}

	if moduleID, required := ModuleAccount(kind); required && toID != moduleID {
		return Tx{}, fmt.Errorf("kind %q must be sent to the module account %s", kind, moduleID)
	}

	tx := Tx{
		ChainID: chainID,
		Nonce:   nonce,
		ToID:    toID,
		Value:   value,
		Tip:     tip,
		Kind:    kind,
		Data:    data,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {

	// Validate the to account address is a valid address.
	if !tx.ToID.IsAccountID() {
		return SignedTx{}, fmt.Errorf("to account is not properly formatted")
	}

	// Sign the transaction with the private key to produce a signature.
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction by adding the signature
	// in the [R|S|V] format.
	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the ledger.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 41 or 42 with the kaldrix id.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper signature that conforms to
// our standards, names a kind the ledger can apply, and is sent to the right
// account for that kind.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("invalid chain id, got %d, exp %d", tx.ChainID, chainID)
	}

	if !tx.ToID.IsAccountID() {
		return errors.New("invalid account for to account")
	}

	if !tx.Kind.IsKind() {
		return fmt.Errorf("kind %q is not supported", tx.Kind)
	}

	if moduleID, required := ModuleAccount(tx.Kind); required && tx.ToID != moduleID {
		return fmt.Errorf("kind %q must be sent to the module account %s", tx.Kind, moduleID)
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return err
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction.
func (tx SignedTx) FromAccount() (AccountID, error) {
	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	return AccountID(address), err
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	from, err := tx.FromAccount()
	if err != nil {
		from = "unknown"
	}

	return fmt.Sprintf("%s:%d", from, tx.Nonce)
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block. This
// includes a timestamp and the gas settled at inclusion time.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // The time the transaction was received, in unix milliseconds.
	GasPrice  uint64 `json:"gas_price"` // Base fee plus tip, the price paid per unit of gas.
	GasUnits  uint64 `json:"gas_units"` // The number of units of gas used for this transaction.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx, baseFee uint64) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().UnixMilli()),
		GasPrice:  baseFee + signedTx.Tip,
		GasUnits:  signedTx.Kind.GasUnits(),
	}
}

// Hash implements the merkle Hashable interface for providing a hash
// of a block transaction.
func (tx BlockTx) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two block transactions. If the nonce and signatures are the
// same, the two transactions are the same.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	txSig := signature.ToSignatureBytes(tx.V, tx.R, tx.S)
	otherTxSig := signature.ToSignatureBytes(otherTx.V, otherTx.R, otherTx.S)

	return tx.Nonce == otherTx.Nonce && bytes.Equal(txSig, otherTxSig)
}
