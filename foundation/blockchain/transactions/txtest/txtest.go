// Package txtest provides the accounts, history and pool doubles the
// transaction and state tests build on.
package txtest

import (
	"context"
	"crypto/ecdsa"
	"iter"
	"math/big"
	"slices"
	"sync"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/holiman/uint256"
)

// Milestones returns a single milestone schedule with every feature
// enabled, two active delegates and a multipayment limit of three.
func Milestones() *milestones.Schedule {
	return milestones.MustNew(milestones.Milestone{
		Height:            1,
		BlockTime:         8,
		ActiveDelegates:   2,
		Reward:            big.NewInt(200),
		MultiPaymentLimit: 3,
		AIP11:             true,
		HtlcEnabled:       true,
		MagistrateEnabled: true,
		AIP36:             true,
	})
}

// =============================================================================

// Account is a key pair with its derived address.
type Account struct {
	Key       *ecdsa.PrivateKey
	PublicKey string
	Address   string
}

// NewAccount generates a fresh account.
func NewAccount(t testing.TB) Account {
	t.Helper()

	key, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	pk := signature.PublicKeyHex(key.PublicKey)
	addr, err := signature.AddressFromPublicKey(pk)
	if err != nil {
		t.Fatalf("deriving address: %v", err)
	}

	return Account{Key: key, PublicKey: pk, Address: addr}
}

// Tx describes a transaction to sign. A zero TypeGroup means the core
// group and a zero Version means version 2.
type Tx struct {
	TypeGroup   uint32
	Type        uint16
	Version     uint8
	Nonce       uint64
	Amount      int64
	Fee         int64
	RecipientID string
	VendorField string
	Timestamp   int64
	Asset       *database.Asset
}

// Sign builds the transaction from the description and signs it.
func (a Account) Sign(t testing.TB, args Tx) database.Transaction {
	t.Helper()

	if args.TypeGroup == 0 {
		args.TypeGroup = database.TypeGroupCore
	}
	if args.Version == 0 {
		args.Version = 2
	}

	tx := database.Transaction{
		Version:         args.Version,
		TypeGroup:       args.TypeGroup,
		Type:            args.Type,
		SenderPublicKey: a.PublicKey,
		Fee:             big.NewInt(args.Fee),
		Amount:          big.NewInt(args.Amount),
		RecipientID:     args.RecipientID,
		VendorField:     args.VendorField,
		Timestamp:       args.Timestamp,
		Asset:           args.Asset,
	}
	if args.Version >= 2 {
		tx.Nonce = uint256.NewInt(args.Nonce)
	}

	signed, err := tx.Sign(a.Key)
	if err != nil {
		t.Fatalf("signing transaction: %v", err)
	}

	return signed
}

// =============================================================================

// History is an in memory chain history.
type History struct {
	mu  sync.RWMutex
	txs []database.Transaction
}

// Add appends the transactions in chain order.
func (h *History) Add(txs ...database.Transaction) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.txs = append(h.txs, txs...)
}

// Remove drops the transaction with the id.
func (h *History) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.txs = slices.DeleteFunc(h.txs, func(tx database.Transaction) bool { return tx.ID == id })
}

// StreamByCriteria implements the database.History interface.
func (h *History) StreamByCriteria(ctx context.Context, criteria database.Criteria) iter.Seq2[database.Transaction, error] {
	txs, _ := h.FindManyByCriteria(ctx, criteria)

	return func(yield func(database.Transaction, error) bool) {
		for _, tx := range txs {
			if !yield(tx, nil) {
				return
			}
		}
	}
}

// FindManyByCriteria implements the database.History interface.
func (h *History) FindManyByCriteria(ctx context.Context, criteria ...database.Criteria) ([]database.Transaction, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var txs []database.Transaction
	for _, tx := range h.txs {
		if slices.ContainsFunc(criteria, func(c database.Criteria) bool { return matches(c, tx) }) {
			txs = append(txs, tx)
		}
	}

	return txs, nil
}

// FindByIDs implements the database.History interface.
func (h *History) FindByIDs(ctx context.Context, ids ...string) ([]database.Transaction, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var txs []database.Transaction
	for _, tx := range h.txs {
		if slices.Contains(ids, tx.ID) {
			txs = append(txs, tx)
		}
	}

	return txs, nil
}

func matches(c database.Criteria, tx database.Transaction) bool {
	if c.TypeGroup != 0 && (tx.TypeGroup != c.TypeGroup || tx.Type != c.Type) {
		return false
	}
	if c.SenderPublicKey != "" && tx.SenderPublicKey != c.SenderPublicKey {
		return false
	}
	return c.Match == nil || c.Match(tx)
}

// =============================================================================

// Pool is an in memory set of pending transactions.
type Pool struct {
	mu  sync.RWMutex
	txs []database.Transaction
}

// Add appends pending transactions.
func (p *Pool) Add(txs ...database.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.txs = append(p.txs, txs...)
}

// Pending returns the pending transactions.
func (p *Pool) Pending() []database.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.txs)
}
