// Package database handles all the lower level support for maintaining the
// ledger on disk and maintaining an in-memory database of account balances,
// bonded stake and the money supply.
package database

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
)

// Serializer interface represents the behavior required to be implemented by
// any package providing support for storing and reading the ledger.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator provides block iteration in database form.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Supply tracks where every unit of the currency came from and went. The
// circulating total is genesis plus minted minus everything burned.
type Supply struct {
	Genesis         uint64 `json:"genesis"`          // Units created by the genesis balances.
	Minted          uint64 `json:"minted"`           // Units minted for staking rewards and sealer rewards.
	BurnedFees      uint64 `json:"burned_fees"`      // Units destroyed by base fee burning.
	BurnedPenalties uint64 `json:"burned_penalties"` // Units destroyed by early unstake penalties.
}

// Total returns the number of units currently in existence.
func (s Supply) Total() uint64 {
	return s.Genesis + s.Minted - s.BurnedFees - s.BurnedPenalties
}

// =============================================================================

// Database manages data related to accounts who have transacted on the
// ledger, plus the supply bookkeeping the economic engines feed.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	accounts    map[AccountID]Account
	supply      Supply

	serializer Serializer
}

// New constructs a new database and applies account balance information
// from the genesis file. Blocks already in storage are not replayed here;
// the state layer owns replay since economic effects live outside this
// package.
func New(genesis genesis.Genesis, serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:    genesis,
		accounts:   make(map[AccountID]Account),
		serializer: serializer,
	}

	for accountStr, balance := range genesis.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return nil, err
		}

		db.accounts[accountID] = newAccount(accountID, balance)
		db.supply.Genesis += balance

		evHandler("database: New: genesis account %s with balance %d", accountID, balance)
	}

	return &db, nil
}

// Close closes the open blocks database.
func (db *Database) Close() {
	db.serializer.Close()
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.serializer.Reset(); err != nil {
		return err
	}

	db.latestBlock = Block{}
	db.accounts = make(map[AccountID]Account)
	db.supply = Supply{}

	for accountStr, balance := range db.genesis.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return err
		}

		db.accounts[accountID] = newAccount(accountID, balance)
		db.supply.Genesis += balance
	}

	return nil
}

// Remove deletes an account from the database.
func (db *Database) Remove(accountID AccountID) {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, accountID)
}

// Query retrieves an account from the database.
func (db *Database) Query(accountID AccountID) (Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[accountID]
	if !exists {
		return Account{}, fmt.Errorf("account %s does not exist", accountID)
	}

	return account, nil
}

// CopyAccounts makes a copy of the current accounts in the database.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[AccountID]Account)
	for accountID, account := range db.accounts {
		accounts[accountID] = account
	}

	return accounts
}

// AllAccounts returns the current set of accounts sorted by account id so
// callers iterate in a deterministic order.
func (db *Database) AllAccounts() []Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make([]Account, 0, len(db.accounts))
	for _, account := range db.accounts {
		accounts = append(accounts, account)
	}
	sort.Sort(byAccount(accounts))

	return accounts
}

// Supply returns a copy of the current supply bookkeeping.
func (db *Database) Supply() Supply {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.supply
}

// =============================================================================
// Primitives the economic engines use to move funds. Every movement that
// creates or destroys units goes through the supply bookkeeping.

// Credit adds the specified amount to the account's spendable balance.
func (db *Database) Credit(accountID AccountID, amount uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(accountID)
	account.Balance += amount
	db.accounts[accountID] = account
}

// Debit removes the specified amount from the account's spendable balance.
func (db *Database) Debit(accountID AccountID, amount uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(accountID)
	if account.Balance < amount {
		return fmt.Errorf("insufficient funds, bal %d, needed %d", account.Balance, amount)
	}

	account.Balance -= amount
	db.accounts[accountID] = account

	return nil
}

// Bond moves the specified amount from the account's spendable balance
// into its bonded stake.
func (db *Database) Bond(accountID AccountID, amount uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(accountID)
	if account.Balance < amount {
		return fmt.Errorf("insufficient funds to bond, bal %d, needed %d", account.Balance, amount)
	}

	account.Balance -= amount
	account.Bonded += amount
	db.accounts[accountID] = account

	return nil
}

// Unbond moves the specified amount from the account's bonded stake back
// into its spendable balance.
func (db *Database) Unbond(accountID AccountID, amount uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(accountID)
	if account.Bonded < amount {
		return fmt.Errorf("insufficient bonded stake, bonded %d, needed %d", account.Bonded, amount)
	}

	account.Bonded -= amount
	account.Balance += amount
	db.accounts[accountID] = account

	return nil
}

// SlashBonded destroys the specified amount of the account's bonded stake.
// The burned units leave the supply.
func (db *Database) SlashBonded(accountID AccountID, amount uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(accountID)
	if account.Bonded < amount {
		return fmt.Errorf("insufficient bonded stake to slash, bonded %d, needed %d", account.Bonded, amount)
	}

	account.Bonded -= amount
	db.accounts[accountID] = account
	db.supply.BurnedPenalties += amount

	return nil
}

// MintBonded mints new units directly into the account's bonded stake.
// Used when accrued rewards compound into the principal.
func (db *Database) MintBonded(accountID AccountID, amount uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(accountID)
	account.Bonded += amount
	db.accounts[accountID] = account
	db.supply.Minted += amount
}

// RecordMint records units minted into existence that are held outside
// the account balances, such as claimable staking rewards.
func (db *Database) RecordMint(amount uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.supply.Minted += amount
}

// =============================================================================

// ApplySealerReward mints the sealer reward to the block's beneficiary.
func (db *Database) ApplySealerReward(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(block.Header.BeneficiaryID)
	account.Balance += db.genesis.SealerReward
	db.accounts[block.Header.BeneficiaryID] = account
	db.supply.Minted += db.genesis.SealerReward
}

// ApplyTransaction performs the fee, nonce and balance mechanics every
// transaction shares. The base fee portion of the gas fee is burned, the
// tip portion goes to the sealer. For plain transfers the value moves here;
// economic kinds move value through the engine that owns them.
func (db *Database) ApplyTransaction(block Block, tx BlockTx) error {

	// Capture the from address from the signature of the transaction.
	fromID, err := tx.FromAccount()
	if err != nil {
		return fmt.Errorf("invalid signature, %s", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	{
		from := db.account(fromID)

		// The account needs to pay the gas fee regardless. Take the
		// remaining balance if the account doesn't hold enough for the
		// full fee. This is the only way to stop bad actors.
		fee := tx.GasPrice * tx.GasUnits
		if fee > from.Balance {
			fee = from.Balance
		}
		from.Balance -= fee
		db.accounts[fromID] = from

		// Burn the base fee portion, give the sealer the tip portion.
		// The beneficiary is read fresh in case the sealer paid its
		// own fee just above.
		burn := block.Header.BaseFee * tx.GasUnits
		if burn > fee {
			burn = fee
		}
		db.supply.BurnedFees += burn

		bnfc := db.account(block.Header.BeneficiaryID)
		bnfc.Balance += fee - burn
		db.accounts[block.Header.BeneficiaryID] = bnfc

		from = db.account(fromID)

		// Perform basic accounting checks.
		{
			if tx.ChainID != db.genesis.ChainID {
				return fmt.Errorf("transaction invalid, wrong chain id, got %d, exp %d", tx.ChainID, db.genesis.ChainID)
			}

			if tx.Kind == KindTransfer && fromID == tx.ToID {
				return fmt.Errorf("transaction invalid, sending money to yourself, from %s, to %s", fromID, tx.ToID)
			}

			if tx.Nonce <= from.Nonce {
				return fmt.Errorf("transaction invalid, nonce too small, current %d, provided %d", from.Nonce, tx.Nonce)
			}

			if tx.Kind == KindTransfer && from.Balance < tx.Value {
				return fmt.Errorf("transaction invalid, insufficient funds, bal %d, needed %d", from.Balance, tx.Value)
			}
		}

		// For a plain transfer, update the balances between the two parties.
		if tx.Kind == KindTransfer {
			to := db.account(tx.ToID)
			from.Balance -= tx.Value
			to.Balance += tx.Value
			db.accounts[tx.ToID] = to
		}

		// Update the nonce for the next transaction check.
		from.Nonce = tx.Nonce

		// Update the final changes to these accounts.
		db.accounts[fromID] = from
	}

	return nil
}

// account returns the stored account or a zero balance account carrying
// the id. Callers must hold the lock.
func (db *Database) account(accountID AccountID) Account {
	account, exists := db.accounts[accountID]
	if !exists {
		return newAccount(accountID, 0)
	}

	return account
}

// =============================================================================

// UpdateLatestBlock provides safe access to update the latest block.
func (db *Database) UpdateLatestBlock(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestBlock = block
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Write adds a new block to the chain.
func (db *Database) Write(block Block) error {
	return db.serializer.Write(NewBlockData(block))
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.serializer.ForEach()}
}

// GetBlock searches the ledger storage to locate and return the
// contents of the specified block by number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	blockData, err := db.serializer.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}
