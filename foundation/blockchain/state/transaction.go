package state

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

// UpsertMempool accepts a transaction into the pool once it applies on top
// of the wallets and the pending transactions of its sender. A pooled
// transaction is never replaced by another one with the same nonce. The
// canonical wallets are never touched.
func (s *State) UpsertMempool(ctx context.Context, tx database.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	if _, _, err := s.db.Transaction(tx.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyForged, tx.ID)
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	handler, err := s.registry.ActivatedHandler(tx, s.milestone())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.verifyNonceFree(tx); err != nil {
		return err
	}

	if err := handler.VerifyCanEnterPool(ctx, tx); err != nil {
		return err
	}

	overlay := wallets.NewCopyOnWrite(s.wallets)
	s.applyPending(ctx, overlay, tx)

	if err := s.verifyApply(ctx, handler, tx, overlay); err != nil {
		return err
	}

	n, err := s.mempool.Upsert(tx)
	if err != nil {
		return err
	}

	s.evHandler("state: UpsertMempool: tx[%s] kind[%s] accepted: pool[%d]", tx.ID, transactions.KindOf(tx), n)

	if s.Worker != nil {
		s.Worker.SignalForge()
	}

	return nil
}

// =============================================================================

// verifyNonceFree rejects a transaction whose sender already pools a
// transaction with the same nonce.
func (s *State) verifyNonceFree(tx database.Transaction) error {
	nonce := tx.NonceOrZero()

	for _, p := range s.mempool.Pending() {
		if p.SenderPublicKey != tx.SenderPublicKey || p.NonceOrZero().Cmp(nonce) != 0 {
			continue
		}

		if p.ID == tx.ID {
			return transactions.NewDuplicateError("transaction %s is already in the pool", tx.ID)
		}
		return transactions.NewPendingError("sender %s already has transaction %s in the pool with nonce %s", tx.SenderPublicKey, p.ID, nonce.Dec())
	}

	return nil
}

// applyPending applies the pooled transactions of the sender that precede
// tx onto the overlay, so a chain of nonces can wait in the pool.
func (s *State) applyPending(ctx context.Context, overlay wallets.Store, tx database.Transaction) {
	var pending []database.Transaction
	for _, p := range s.mempool.Pending() {
		if p.SenderPublicKey != tx.SenderPublicKey || p.ID == tx.ID {
			continue
		}
		if p.NonceOrZero().Cmp(tx.NonceOrZero()) >= 0 {
			continue
		}
		pending = append(pending, p)
	}

	slices.SortFunc(pending, func(a, b database.Transaction) int {
		return a.NonceOrZero().Cmp(b.NonceOrZero())
	})

	for _, p := range pending {
		handler, err := s.registry.Handler(transactions.KindOf(p))
		if err != nil {
			s.evHandler("state: applyPending: WARNING: tx[%s]: %s", p.ID, err)
			return
		}
		if err := s.verifyApply(ctx, handler, p, overlay); err != nil {
			s.evHandler("state: applyPending: WARNING: tx[%s]: %s", p.ID, err)
			return
		}
	}
}

// verifyApply checks the transaction against the store and applies it.
func (s *State) verifyApply(ctx context.Context, handler transactions.Handler, tx database.Transaction, store wallets.Store) error {
	sender, err := store.FindByPublicKey(tx.SenderPublicKey)
	if err != nil {
		return err
	}

	if err := handler.VerifyCanApply(ctx, tx, sender, store); err != nil {
		return err
	}

	return handler.Apply(ctx, tx, store)
}
