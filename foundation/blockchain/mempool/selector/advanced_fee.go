package selector

import (
	"maps"
	"math/big"
	"sort"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
)

// advancedFeeSelect returns transactions with the best fee while respecting
// the nonce for each sender/transaction. This strategy takes into account
// high-value transactions that happen to be stuck behind a low-nonce
// transaction with a low fee.
var advancedFeeSelect = func(m map[string][]database.Transaction, howMany int) []database.Transaction {
	if howMany < 0 {
		howMany = 0
		for _, txs := range m {
			howMany += len(txs)
		}
	}

	// Sort the transactions per sender by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	final := []database.Transaction{}

	af := newAdvancedFees(m, howMany)
	for from, num := range af.findBest() {
		final = append(final, m[from][:num]...)
	}

	return final
}

// =============================================================================

type advancedFees struct {
	howMany   int
	bestFee   *big.Int
	bestPos   map[string]int
	groupFees map[string][]*big.Int
	groups    []string
}

func newAdvancedFees(m map[string][]database.Transaction, howMany int) *advancedFees {
	groupFees := make(map[string][]*big.Int)
	groups := make([]string, 0, len(m))

	for from, group := range m {
		groups = append(groups, from)

		fees := []*big.Int{new(big.Int)}
		for i, tx := range group {
			if i >= howMany {
				break
			}
			fees = append(fees, new(big.Int).Add(fees[i], feeOf(tx)))
		}
		groupFees[from] = fees
	}

	// Keep the search order stable between runs.
	sort.Strings(groups)

	return &advancedFees{
		howMany:   howMany,
		bestFee:   big.NewInt(-1),
		bestPos:   map[string]int{},
		groupFees: groupFees,
		groups:    groups,
	}
}

func (af *advancedFees) findBest() map[string]int {
	af.findBestTransactions(0, af.howMany, map[string]int{}, new(big.Int))
	return af.bestPos
}

func (af *advancedFees) findBestTransactions(groupID int, left int, currPos map[string]int, prevFee *big.Int) {
	if prevFee.Cmp(af.bestFee) > 0 {
		af.bestFee = prevFee
		af.bestPos = currPos
	}

	if groupID >= len(af.groups) {
		return
	}
	from := af.groups[groupID]

	for pos, fee := range af.groupFees[from] {
		if left-pos < 0 {
			break
		}

		newCurrPos := maps.Clone(currPos)
		newCurrPos[from] = pos
		af.findBestTransactions(groupID+1, left-pos, newCurrPos, new(big.Int).Add(prevFee, fee))
	}
}
