// Package mempool maintains the mempool for the ledger.
package mempool

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/mempool/selector"
)

// Mempool represents a cache of transactions organized by account:nonce
// with a second key on the transaction nonce.
type Mempool struct {
	pool     map[string]database.BlockTx
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyPriority)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.BlockTx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool.
func (mp *Mempool) Upsert(tx database.BlockTx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key, err := mapKey(tx)
	if err != nil {
		return 0, err
	}

	mp.pool[key] = tx

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key, err := mapKey(tx)
	if err != nil {
		return err
	}

	delete(mp.pool, key)

	return nil
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.BlockTx)
}

// LastNonce returns the highest nonce the pool holds for the specified
// account. The second return is false when the account has nothing pending.
func (mp *Mempool) LastNonce(accountID database.AccountID) (uint64, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	var last uint64
	var found bool
	for key, tx := range mp.pool {
		if accountFromKey(key) == accountID && tx.Nonce >= last {
			last = tx.Nonce
			found = true
		}
	}

	return last, found
}

// PickBest uses the configured sort strategy to return the next set
// of transactions for the next block.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {

	// Group the transactions by account.
	m := make(map[database.AccountID][]database.BlockTx)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for key, tx := range mp.pool {
			account := accountFromKey(key)
			m[account] = append(m[account], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}

// =============================================================================

// mapKey is used to generate the map key.
func mapKey(tx database.BlockTx) (string, error) {
	account, err := tx.FromAccount()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s:%d", account, tx.Nonce), nil
}

// accountFromKey extracts the account part from the map key.
func accountFromKey(key string) database.AccountID {
	return database.AccountID(strings.Split(key, ":")[0])
}
