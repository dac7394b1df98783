package state

import (
	"errors"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// QueryAccount returns a copy of the account from the database.
func (s *State) QueryAccount(accountID database.AccountID) (database.Account, error) {
	accounts := s.db.CopyAccounts()

	if account, exists := accounts[accountID]; exists {
		return account, nil
	}

	return database.Account{}, errors.New("account not found")
}

// QueryNextNonce returns the nonce the account should sign its next
// transaction with, taking pending mempool transactions into account.
func (s *State) QueryNextNonce(accountID database.AccountID) uint64 {
	var nonce uint64
	if account, err := s.db.Query(accountID); err == nil {
		nonce = account.Nonce
	}

	if pending, exists := s.mempool.LastNonce(accountID); exists && pending > nonce {
		nonce = pending
	}

	return nonce + 1
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers.
// This function reads the chain from storage first.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	if from == QueryLatest {
		from = s.db.LatestBlock().Header.Number
		to = from
	}
	if to == QueryLatest {
		to = s.db.LatestBlock().Header.Number
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByNumber: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryBlocksByAccount returns the set of blocks that carry a transaction
// from or to the specified account. If the account is empty, all blocks
// are returned. This function reads the chain from storage first.
func (s *State) QueryBlocksByAccount(accountID database.AccountID) ([]database.Block, error) {
	var out []database.Block

	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		for _, tx := range block.Trans.Values() {
			fromID, err := tx.FromAccount()
			if err != nil {
				continue
			}

			if accountID == "" || fromID == accountID || tx.ToID == accountID {
				out = append(out, block)
				break
			}
		}
	}

	return out, nil
}
