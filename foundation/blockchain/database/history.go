package database

import (
	"context"
	"fmt"
	"iter"
)

// Criteria selects transactions from the chain history. A zero TypeGroup
// selects every type.
type Criteria struct {
	TypeGroup       uint32
	Type            uint16
	SenderPublicKey string
	Match           func(tx Transaction) bool
}

func (c Criteria) matches(tx Transaction) bool {
	if c.TypeGroup != 0 && (tx.TypeGroup != c.TypeGroup || tx.Type != c.Type) {
		return false
	}
	if c.SenderPublicKey != "" && tx.SenderPublicKey != c.SenderPublicKey {
		return false
	}
	if c.Match != nil && !c.Match(tx) {
		return false
	}
	return true
}

// History is the behavior the transaction handlers need from the chain
// history.
type History interface {
	StreamByCriteria(ctx context.Context, criteria Criteria) iter.Seq2[Transaction, error]
	FindManyByCriteria(ctx context.Context, criteria ...Criteria) ([]Transaction, error)
	FindByIDs(ctx context.Context, ids ...string) ([]Transaction, error)
}

// StreamByCriteria yields the matching transactions in chain order. The
// sequence is lazy and can be ranged over again to restart it.
func (db *Database) StreamByCriteria(ctx context.Context, criteria Criteria) iter.Seq2[Transaction, error] {
	return func(yield func(Transaction, error) bool) {
		for block, err := range db.Blocks(ctx, 1) {
			if err != nil {
				yield(Transaction{}, err)
				return
			}

			for _, tx := range block.Transactions {
				if !criteria.matches(tx) {
					continue
				}
				if !yield(tx, nil) {
					return
				}
			}
		}
	}
}

// FindManyByCriteria returns the transactions matching any of the criteria
// in chain order.
func (db *Database) FindManyByCriteria(ctx context.Context, criteria ...Criteria) ([]Transaction, error) {
	var txs []Transaction

	for block, err := range db.Blocks(ctx, 1) {
		if err != nil {
			return nil, err
		}

		for _, tx := range block.Transactions {
			for _, c := range criteria {
				if c.matches(tx) {
					txs = append(txs, tx)
					break
				}
			}
		}
	}

	return txs, nil
}

// FindByIDs returns the stored transactions with the specified ids. Each id
// is located through the transaction index. Unknown ids are skipped.
func (db *Database) FindByIDs(ctx context.Context, ids ...string) ([]Transaction, error) {
	var txs []Transaction

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tx, _, err := db.Transaction(id)
		if err != nil {
			continue
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// Transaction returns the stored transaction and the height of its block.
func (db *Database) Transaction(id string) (Transaction, int64, error) {
	height, err := db.storage.TxHeight(id)
	if err != nil {
		return Transaction{}, 0, err
	}

	block, err := db.readBlock(height)
	if err != nil {
		return Transaction{}, 0, err
	}

	for _, tx := range block.Transactions {
		if tx.ID == id {
			return tx, height, nil
		}
	}

	return Transaction{}, 0, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
}
