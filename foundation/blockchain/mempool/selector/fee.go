package selector

import (
	"sort"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
)

// feeSelect returns transactions with the best fee while respecting the nonce
// for each sender/transaction.
var feeSelect = func(m map[string][]database.Transaction, howMany int) []database.Transaction {
	if howMany < 0 {
		howMany = 0
		for _, txs := range m {
			howMany += len(txs)
		}
	}

	/*
		Bill: {Nonce: 2, RecipientID: "AJjv7WztjJNYHrLAeveG5NgHWp6699ZJwD", Fee: 250},
			  {Nonce: 1, RecipientID: "AW5wtiimZ4CUrDTBYmYvbZxcEi6DdPiq7J", Fee: 150},
		Pavl: {Nonce: 2, RecipientID: "AKATy581uXWrbm8B4DTQh4R9RbqaWRiKRY", Fee: 200},
			  {Nonce: 1, RecipientID: "AW5wtiimZ4CUrDTBYmYvbZxcEi6DdPiq7J", Fee: 75},
	*/

	// Sort the transactions per sender by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Pick the first transaction in the slice for each sender. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	var rows [][]database.Transaction
	for {
		var row []database.Transaction
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

	/*
		0: Bill: {Nonce: 1, RecipientID: "AW5wtiimZ4CUrDTBYmYvbZxcEi6DdPiq7J", Fee: 150},
		0: Pavl: {Nonce: 1, RecipientID: "AW5wtiimZ4CUrDTBYmYvbZxcEi6DdPiq7J", Fee: 75},
		1: Bill: {Nonce: 2, RecipientID: "AJjv7WztjJNYHrLAeveG5NgHWp6699ZJwD", Fee: 250},
		1: Pavl: {Nonce: 2, RecipientID: "AKATy581uXWrbm8B4DTQh4R9RbqaWRiKRY", Fee: 200},
	*/

	// Sort each row by fee unless we will take all transactions from that row
	// anyway. Then try to select the number of requested transactions.
	final := []database.Transaction{}
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Sort(byFee(row))
			final = append(final, row[:need]...)
			break
		}
		final = append(final, row...)
	}

	return final
}
