// Package bridge implements cross-chain settlement. Outbound transfers
// lock funds in the vault until relayers attest the remote mint, inbound
// transfers release vault funds once relayers attest the remote burn, and
// per-chain liquidity pools collect the transfer fees using share based
// accounting.
package bridge

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/google/uuid"
)

// Direction tells which way a transfer moves value.
type Direction string

// Status tells how far a transfer has settled. A transfer reaches exactly
// one of Settled or Refunded and never leaves it.
type Status string

// Set of transfer directions and statuses.
const (
	DirectionOut Direction = "out" // Lock here, mint on the remote chain.
	DirectionIn  Direction = "in"  // Burn on the remote chain, release here.

	StatusPending  Status = "pending"
	StatusSettled  Status = "settled"
	StatusRefunded Status = "refunded"
)

// Set of errors the engine returns that callers branch on.
var (
	ErrNotRelayer      = errors.New("account is not an authorized relayer")
	ErrUnknownTransfer = errors.New("transfer does not exist")
	ErrUnknownChain    = errors.New("chain is not configured for bridging")
)

// LockData carries the kind specific parameters of a bridge-out transaction.
type LockData struct {
	Chain      string `json:"chain" validate:"required"`
	RemoteAddr string `json:"remote_addr" validate:"required"`
}

// AttestData carries the kind specific parameters of a bridge-attest
// transaction confirming an outbound transfer was minted remotely.
type AttestData struct {
	TransferID string `json:"transfer_id" validate:"required"`
}

// ReleaseData carries the kind specific parameters of a bridge-in
// transaction attesting a remote burn.
type ReleaseData struct {
	Chain      string             `json:"chain" validate:"required"`
	BurnTxHash string             `json:"burn_tx_hash" validate:"required"`
	To         database.AccountID `json:"to" validate:"required"`
	Amount     uint64             `json:"amount" validate:"required"`
}

// PoolAddData carries the kind specific parameters of a pool-add
// transaction.
type PoolAddData struct {
	Chain string `json:"chain" validate:"required"`
}

// PoolRemoveData carries the kind specific parameters of a pool-remove
// transaction.
type PoolRemoveData struct {
	Chain  string `json:"chain" validate:"required"`
	Shares uint64 `json:"shares" validate:"required"`
}

// Transfer represents one cross-chain settlement in either direction.
type Transfer struct {
	ID          string               `json:"id"`
	Direction   Direction            `json:"direction"`
	Status      Status               `json:"status"`
	AccountID   database.AccountID   `json:"account"`       // Sender for out, recipient for in.
	RemoteChain string               `json:"remote_chain"`
	RemoteAddr  string               `json:"remote_addr,omitempty"`
	Amount      uint64               `json:"amount"`
	Fee         uint64               `json:"fee"`
	BurnTxHash  string               `json:"burn_tx_hash,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Deadline    time.Time            `json:"deadline,omitempty"`
	Attested    []database.AccountID `json:"attested"`
}

// attested reports whether the relayer already signed off this transfer.
func (t *Transfer) attestedBy(relayer database.AccountID) bool {
	for _, id := range t.Attested {
		if id == relayer {
			return true
		}
	}
	return false
}

// Pool holds the liquidity for one remote chain. Providers own shares of
// the balance, which grows as transfer fees accumulate.
type Pool struct {
	Chain       string `json:"chain"`
	Balance     uint64 `json:"balance"`
	TotalShares uint64 `json:"total_shares"`

	providers map[database.AccountID]*provider
}

// provider tracks one liquidity provider inside a pool.
type provider struct {
	shares        uint64
	lastAddHeight uint64
}

// ProviderPosition is the view of one provider's stake in a pool.
type ProviderPosition struct {
	AccountID     database.AccountID `json:"account"`
	Chain         string             `json:"chain"`
	Shares        uint64             `json:"shares"`
	LastAddHeight uint64             `json:"last_add_height"`
}

// =============================================================================

// Bridge is the settlement engine. The vault balance and pool balances are
// engine owned buckets; every unit entering or leaving them moves through
// the database so conservation holds.
type Bridge struct {
	mu sync.RWMutex

	db       *database.Database
	params   genesis.BridgeParams
	ttl      time.Duration
	relayers map[database.AccountID]bool

	vault      uint64
	pendingOut uint64 // Part of the vault earmarked for pending outbound locks.
	transfers  map[string]*Transfer
	byBurn     map[string]string // burn tx hash -> transfer id, replay protection
	pools      map[string]*Pool
}

// New constructs the bridge engine from the genesis parameters.
func New(db *database.Database, gen genesis.Genesis) (*Bridge, error) {
	b := Bridge{
		db:        db,
		params:    gen.Bridge,
		ttl:       gen.TransferTTL(),
		relayers:  make(map[database.AccountID]bool),
		transfers: make(map[string]*Transfer),
		byBurn:    make(map[string]string),
		pools:     make(map[string]*Pool),
	}

	for _, relayer := range gen.Bridge.Relayers {
		accountID, err := database.ToAccountID(relayer)
		if err != nil {
			return nil, fmt.Errorf("relayer %q: %w", relayer, err)
		}
		b.relayers[accountID] = true
	}

	for _, chain := range gen.Bridge.Chains {
		b.pools[chain] = &Pool{
			Chain:     chain,
			providers: make(map[database.AccountID]*provider),
		}
	}

	return &b, nil
}

// FlatFee returns the fee charged per outbound transfer.
func (b *Bridge) FlatFee() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.params.FlatFee
}

// SetFlatFee adjusts the per-transfer fee. Only governance applies this.
func (b *Bridge) SetFlatFee(fee uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.params.FlatFee = fee
}

// IsRelayer reports whether the account may attest transfers.
func (b *Bridge) IsRelayer(accountID database.AccountID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.relayers[accountID]
}

// =============================================================================

// Lock starts an outbound transfer: the amount moves into the vault, the
// flat fee goes to the remote chain's liquidity pool, and the transfer
// waits for relayer attestations. The transfer id is derived from the
// transaction hash so every replay produces the same id.
func (b *Bridge) Lock(fromID database.AccountID, data LockData, amount uint64, txHash string, now time.Time) (Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, exists := b.pools[data.Chain]
	if !exists {
		return Transfer{}, ErrUnknownChain
	}

	if amount == 0 {
		return Transfer{}, errors.New("transfer amount must be positive")
	}

	total := amount + b.params.FlatFee
	if total < amount {
		return Transfer{}, errors.New("transfer amount overflows with the flat fee")
	}

	if err := b.db.Debit(fromID, total); err != nil {
		return Transfer{}, err
	}

	b.vault += amount
	b.pendingOut += amount
	pool.Balance += b.params.FlatFee

	transfer := Transfer{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(txHash)).String(),
		Direction:   DirectionOut,
		Status:      StatusPending,
		AccountID:   fromID,
		RemoteChain: data.Chain,
		RemoteAddr:  data.RemoteAddr,
		Amount:      amount,
		Fee:         b.params.FlatFee,
		CreatedAt:   now,
		Deadline:    now.Add(b.ttl),
	}

	b.transfers[transfer.ID] = &transfer

	return transfer, nil
}

// Attest records a relayer's confirmation that an outbound transfer was
// minted on the remote chain. Once enough relayers agree the transfer
// settles and the locked funds stay in the vault backing the remote mint.
func (b *Bridge) Attest(relayerID database.AccountID, data AttestData) (Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.relayers[relayerID] {
		return Transfer{}, ErrNotRelayer
	}

	transfer, exists := b.transfers[data.TransferID]
	if !exists {
		return Transfer{}, ErrUnknownTransfer
	}

	if transfer.Direction != DirectionOut {
		return Transfer{}, fmt.Errorf("transfer %s is not outbound", transfer.ID)
	}
	if transfer.Status != StatusPending {
		return Transfer{}, fmt.Errorf("transfer %s already %s", transfer.ID, transfer.Status)
	}

	if !transfer.attestedBy(relayerID) {
		transfer.Attested = append(transfer.Attested, relayerID)
	}

	if len(transfer.Attested) >= int(b.params.Confirmations) {
		transfer.Status = StatusSettled
		b.pendingOut -= transfer.Amount
	}

	return *transfer, nil
}

// Release records a relayer's attestation of a burn on the remote chain.
// The first attestation creates the inbound transfer keyed by the burn
// hash so the same burn can never release twice. Once enough relayers
// agree, the funds leave the vault for the recipient.
func (b *Bridge) Release(relayerID database.AccountID, data ReleaseData, now time.Time) (Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.relayers[relayerID] {
		return Transfer{}, ErrNotRelayer
	}

	if _, exists := b.pools[data.Chain]; !exists {
		return Transfer{}, ErrUnknownChain
	}

	if !data.To.IsAccountID() {
		return Transfer{}, errors.New("invalid recipient account")
	}

	transferID, seen := b.byBurn[data.BurnTxHash]
	var transfer *Transfer

	switch {
	case seen:
		transfer = b.transfers[transferID]
		if transfer.Status != StatusPending {
			return Transfer{}, fmt.Errorf("burn %s already %s", data.BurnTxHash, transfer.Status)
		}
		if transfer.Amount != data.Amount || transfer.AccountID != data.To {
			return Transfer{}, fmt.Errorf("attestation disagrees with transfer %s", transfer.ID)
		}

	default:
		transfer = &Transfer{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(data.Chain+":"+data.BurnTxHash)).String(),
			Direction:   DirectionIn,
			Status:      StatusPending,
			AccountID:   data.To,
			RemoteChain: data.Chain,
			Amount:      data.Amount,
			BurnTxHash:  data.BurnTxHash,
			CreatedAt:   now,
		}
		b.transfers[transfer.ID] = transfer
		b.byBurn[data.BurnTxHash] = transfer.ID
	}

	if !transfer.attestedBy(relayerID) {
		transfer.Attested = append(transfer.Attested, relayerID)
	}

	if len(transfer.Attested) < int(b.params.Confirmations) {
		return *transfer, nil
	}

	// Enough relayers agree. Funds behind still pending outbound locks
	// are owed back to their senders, so only the settled remainder of
	// the vault can release. A bad attestation quorum still cannot mint.
	if available := b.vault - b.pendingOut; available < transfer.Amount {
		return Transfer{}, fmt.Errorf("vault holds %d releasable, cannot release %d", available, transfer.Amount)
	}

	b.vault -= transfer.Amount
	b.db.Credit(transfer.AccountID, transfer.Amount)
	transfer.Status = StatusSettled

	return *transfer, nil
}

// RefundExpired returns every pending outbound transfer past its deadline
// to its sender. The flat fee stays with the pool. Called once per sealed
// block with the block's timestamp.
func (b *Bridge) RefundExpired(now time.Time) []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []string
	for id, transfer := range b.transfers {
		if transfer.Direction == DirectionOut && transfer.Status == StatusPending && now.After(transfer.Deadline) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var refunded []Transfer
	for _, id := range ids {
		transfer := b.transfers[id]

		// The earmark keeps the vault covering every pending refund.
		// Never let the counter wrap regardless.
		if b.vault < transfer.Amount {
			continue
		}

		b.vault -= transfer.Amount
		b.pendingOut -= transfer.Amount
		b.db.Credit(transfer.AccountID, transfer.Amount)
		transfer.Status = StatusRefunded
		refunded = append(refunded, *transfer)
	}

	return refunded
}

// =============================================================================

// AddLiquidity deposits funds into a chain's pool and mints shares for
// the provider pro-rata of the pool balance before the deposit.
func (b *Bridge) AddLiquidity(providerID database.AccountID, data PoolAddData, amount uint64, height uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, exists := b.pools[data.Chain]
	if !exists {
		return ErrUnknownChain
	}

	if amount == 0 {
		return errors.New("liquidity amount must be positive")
	}

	if err := b.db.Debit(providerID, amount); err != nil {
		return err
	}

	shares := amount
	if pool.TotalShares > 0 && pool.Balance > 0 {
		shares = amount * pool.TotalShares / pool.Balance
	}

	p, exists := pool.providers[providerID]
	if !exists {
		p = &provider{}
		pool.providers[providerID] = p
	}

	p.shares += shares
	p.lastAddHeight = height
	pool.TotalShares += shares
	pool.Balance += amount

	return nil
}

// RemoveLiquidity burns the provider's shares and pays out their pro-rata
// part of the grown pool. Liquidity younger than the minimum age cannot
// leave, which blocks add/fee/remove round trips inside one window.
func (b *Bridge) RemoveLiquidity(providerID database.AccountID, data PoolRemoveData, height uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, exists := b.pools[data.Chain]
	if !exists {
		return 0, ErrUnknownChain
	}

	p, exists := pool.providers[providerID]
	if !exists || p.shares == 0 {
		return 0, errors.New("account provides no liquidity to this pool")
	}

	if data.Shares == 0 || data.Shares > p.shares {
		return 0, fmt.Errorf("shares %d out of range, holding %d", data.Shares, p.shares)
	}

	if height < p.lastAddHeight+b.params.MinLiquidityAge {
		return 0, fmt.Errorf("liquidity added at height %d cannot be removed before height %d", p.lastAddHeight, p.lastAddHeight+b.params.MinLiquidityAge)
	}

	payout := data.Shares * pool.Balance / pool.TotalShares

	p.shares -= data.Shares
	pool.TotalShares -= data.Shares
	pool.Balance -= payout
	b.db.Credit(providerID, payout)

	return payout, nil
}

// =============================================================================

// Vault returns the units currently locked backing outbound transfers.
func (b *Bridge) Vault() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.vault
}

// Transfer returns a copy of the transfer with the specified id.
func (b *Bridge) Transfer(id string) (Transfer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	transfer, exists := b.transfers[id]
	if !exists {
		return Transfer{}, ErrUnknownTransfer
	}

	return *transfer, nil
}

// Transfers returns a copy of every transfer sorted by id.
func (b *Bridge) Transfers() []Transfer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	transfers := make([]Transfer, 0, len(b.transfers))
	for _, transfer := range b.transfers {
		transfers = append(transfers, *transfer)
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].ID < transfers[j].ID })

	return transfers
}

// Pool returns the balance and share state of a chain's pool.
func (b *Bridge) Pool(chain string) (Pool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pool, exists := b.pools[chain]
	if !exists {
		return Pool{}, ErrUnknownChain
	}

	return Pool{Chain: pool.Chain, Balance: pool.Balance, TotalShares: pool.TotalShares}, nil
}

// Pools returns every pool sorted by chain name.
func (b *Bridge) Pools() []Pool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pools := make([]Pool, 0, len(b.pools))
	for _, pool := range b.pools {
		pools = append(pools, Pool{Chain: pool.Chain, Balance: pool.Balance, TotalShares: pool.TotalShares})
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Chain < pools[j].Chain })

	return pools
}

// Position returns the provider's stake in a chain's pool.
func (b *Bridge) Position(providerID database.AccountID, chain string) (ProviderPosition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pool, exists := b.pools[chain]
	if !exists {
		return ProviderPosition{}, ErrUnknownChain
	}

	p, exists := pool.providers[providerID]
	if !exists {
		return ProviderPosition{}, errors.New("account provides no liquidity to this pool")
	}

	return ProviderPosition{
		AccountID:     providerID,
		Chain:         chain,
		Shares:        p.shares,
		LastAddHeight: p.lastAddHeight,
	}, nil
}

// TotalLiquidity returns the combined balance of every pool.
func (b *Bridge) TotalLiquidity() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total uint64
	for _, pool := range b.pools {
		total += pool.Balance
	}

	return total
}
