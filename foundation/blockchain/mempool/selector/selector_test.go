package selector_test

import (
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions/txtest"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type pick struct {
	sender txtest.Account
	nonce  uint64
}

func tran(t *testing.T, a txtest.Account, nonce uint64, fee int64) database.Transaction {
	return a.Sign(t, txtest.Tx{Type: transactions.TypeTransfer, Nonce: nonce, Amount: 1, Fee: fee, RecipientID: a.Address})
}

func group(txs []database.Transaction) map[string][]database.Transaction {
	m := make(map[string][]database.Transaction)
	for _, tx := range txs {
		m[tx.SenderPublicKey] = append(m[tx.SenderPublicKey], tx)
	}
	return m
}

func check(t *testing.T, testID int, got []database.Transaction, best []pick) {
	t.Helper()

	if len(got) != len(best) {
		t.Fatalf("\t%s\tTest %d:\tShould get back %d transactions : got %d", failed, testID, len(best), len(got))
	}

	last := make(map[string]uint64)
	for _, tx := range got {
		found := false
		for _, exp := range best {
			if exp.sender.PublicKey == tx.SenderPublicKey && exp.nonce == tx.Nonce.Uint64() {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("\t%s\tTest %d:\tShould get back the right sender/nonce : %s/%d", failed, testID, tx.SenderPublicKey[:8], tx.Nonce.Uint64())
		}

		if prev, exists := last[tx.SenderPublicKey]; exists && prev >= tx.Nonce.Uint64() {
			t.Fatalf("\t%s\tTest %d:\tShould keep the nonce order for %s", failed, testID, tx.SenderPublicKey[:8])
		}
		last[tx.SenderPublicKey] = tx.Nonce.Uint64()
	}
	t.Logf("\t%s\tTest %d:\tShould get back the right sender/nonce pairs.", success, testID)
}

// =============================================================================

func Test_FeeSelect(t *testing.T) {
	pavel := txtest.NewAccount(t)
	bill := txtest.NewAccount(t)
	ed := txtest.NewAccount(t)

	txs := func() []database.Transaction {
		return []database.Transaction{
			tran(t, pavel, 3, 50),
			tran(t, pavel, 1, 25),
			tran(t, pavel, 2, 75),

			tran(t, bill, 1, 10),
			tran(t, bill, 2, 5),
			tran(t, bill, 3, 75),

			tran(t, ed, 1, 5),
			tran(t, ed, 2, 50),
			tran(t, ed, 3, 25),
		}
	}

	type test struct {
		name    string
		howMany int
		best    []pick
	}

	tt := []test{
		{
			name:    "one from second cycle",
			howMany: 4,
			best:    []pick{{pavel, 1}, {bill, 1}, {ed, 1}, {pavel, 2}},
		},
		{
			name:    "whole two cycles",
			howMany: 6,
			best:    []pick{{pavel, 1}, {pavel, 2}, {bill, 1}, {bill, 2}, {ed, 1}, {ed, 2}},
		},
		{
			name:    "first two",
			howMany: 2,
			best:    []pick{{pavel, 1}, {bill, 1}},
		},
		{
			name:    "take all",
			howMany: -1,
			best:    []pick{{pavel, 1}, {pavel, 2}, {pavel, 3}, {bill, 1}, {bill, 2}, {bill, 3}, {ed, 1}, {ed, 2}, {ed, 3}},
		},
	}

	t.Log("Given the need to pick the best transactions by fee.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transactions.", testID)
			{
				f := func(t *testing.T) {
					fn, err := selector.Retrieve(selector.StrategyFee)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to get the strategy function : %s", failed, testID, err)
					}

					check(t, testID, fn(group(txs()), tst.howMany), tst.best)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_AdvancedFeeSelect(t *testing.T) {
	pavel := txtest.NewAccount(t)
	bill := txtest.NewAccount(t)

	txs := func() []database.Transaction {
		return []database.Transaction{
			tran(t, pavel, 1, 1),
			tran(t, pavel, 2, 2),
			tran(t, pavel, 3, 3),
			tran(t, pavel, 4, 3),

			tran(t, bill, 1, 1),
			tran(t, bill, 2, 10),
			tran(t, bill, 3, 1),
		}
	}

	type test struct {
		name    string
		howMany int
		best    []pick
	}

	tt := []test{
		{
			name:    "stuck high fee",
			howMany: 2,
			best:    []pick{{bill, 1}, {bill, 2}},
		},
		{
			name:    "mixed senders",
			howMany: 4,
			best:    []pick{{bill, 1}, {bill, 2}, {pavel, 1}, {pavel, 2}},
		},
		{
			name:    "take all",
			howMany: -1,
			best:    []pick{{pavel, 1}, {pavel, 2}, {pavel, 3}, {pavel, 4}, {bill, 1}, {bill, 2}, {bill, 3}},
		},
	}

	t.Log("Given the need to find stuck transactions with a high fee.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transactions.", testID)
			{
				f := func(t *testing.T) {
					fn, err := selector.Retrieve(selector.StrategyAdvancedFee)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to get the strategy function : %s", failed, testID, err)
					}

					check(t, testID, fn(group(txs()), tst.howMany), tst.best)
				}

				t.Run(tst.name, f)
			}
		}
	}

	t.Log("Given the need to reject unknown strategies.")
	{
		if _, err := selector.Retrieve("tip"); err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould fail for an unknown strategy.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould fail for an unknown strategy.", success)
	}
}
