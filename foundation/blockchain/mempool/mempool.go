// Package mempool maintains the pool of transactions waiting to be forged.
package mempool

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/mempool/selector"
)

// ErrSenderLimit is returned when a sender already fills its share of the pool.
var ErrSenderLimit = errors.New("sender exceeded the pool limit")

// Config represents the settings of the pool.
type Config struct {
	Strategy     string
	MaxPerSender int
}

// Mempool represents a cache of transactions organized by sender:nonce.
type Mempool struct {
	pool         map[string]database.Transaction
	mu           sync.RWMutex
	selectFn     selector.Func
	maxPerSender int
}

// New constructs a new mempool using the fee strategy and no sender limit.
func New() (*Mempool, error) {
	return NewWithConfig(Config{Strategy: selector.StrategyFee})
}

// NewWithConfig constructs a new mempool with the specified settings.
func NewWithConfig(cfg Config) (*Mempool, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = selector.StrategyFee
	}

	selectFn, err := selector.Retrieve(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:         make(map[string]database.Transaction),
		selectFn:     selectFn,
		maxPerSender: cfg.MaxPerSender,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool.
func (mp *Mempool) Upsert(tx database.Transaction) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := mapKey(tx)

	if _, exists := mp.pool[key]; !exists && mp.maxPerSender > 0 {
		if mp.countSender(tx.SenderPublicKey) >= mp.maxPerSender {
			return 0, fmt.Errorf("%w: %d transactions", ErrSenderLimit, mp.maxPerSender)
		}
	}

	mp.pool[key] = tx

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, mapKey(tx))
}

// DeleteByID removes the transaction with the specified id.
func (mp *Mempool) DeleteByID(id string) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for key, tx := range mp.pool {
		if tx.ID == id {
			delete(mp.pool, key)
			return true
		}
	}

	return false
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.Transaction)
}

// Pending returns a copy of every transaction in the pool.
func (mp *Mempool) Pending() []database.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.Transaction, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}

	return txs
}

// PickBest uses the configured sort strategy to return the next set
// of transactions for the next block.
func (mp *Mempool) PickBest(howMany int) []database.Transaction {

	// Group the transactions by sender.
	m := make(map[string][]database.Transaction)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for key, tx := range mp.pool {
			sender := strings.Split(key, ":")[0]
			m[sender] = append(m[sender], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}

// =============================================================================

func (mp *Mempool) countSender(publicKey string) int {
	var n int
	for _, tx := range mp.pool {
		if tx.SenderPublicKey == publicKey {
			n++
		}
	}
	return n
}

// mapKey is used to generate the map key. Version 1 transactions carry no
// nonce and are keyed by their id.
func mapKey(tx database.Transaction) string {
	if tx.Nonce == nil {
		return fmt.Sprintf("%s:%s", tx.SenderPublicKey, tx.ID)
	}
	return fmt.Sprintf("%s:%s", tx.SenderPublicKey, tx.Nonce.Dec())
}
