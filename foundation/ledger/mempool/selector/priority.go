package selector

import (
	"sort"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
)

// prioritySelect returns transactions with the best priority fee while
// respecting the nonce for each account.
var prioritySelect = func(m map[database.AccountID][]database.BlockTx, howMany int) []database.BlockTx {

	// A negative amount means take everything.
	if howMany < 0 {
		howMany = 0
		for key := range m {
			howMany += len(m[key])
		}
	}

	// Sort the transactions per account by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Pick the first transaction in the slice for each account. Each
	// iteration represents a new row of selections. Keep doing that until
	// all the transactions have been selected. A transaction can never be
	// picked before a lower nonce from the same account because it always
	// lands in a later row.
	var rows [][]database.BlockTx
	for {
		var row []database.BlockTx
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	// Sort each row by tip unless we will take all transactions from that
	// row anyway. Then try to select the number of requested transactions.
	// Keep pulling transactions from each row until the amount is fulfilled
	// or there are no more transactions.
	final := []database.BlockTx{}
done:
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Sort(byTip(row))
			final = append(final, row[:need]...)
			break done
		}
		final = append(final, row...)
	}

	return final
}
