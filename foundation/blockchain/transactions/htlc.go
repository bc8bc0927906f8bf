package transactions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// HtlcLock is an open lock as recorded on the wallet that created it.
type HtlcLock struct {
	Amount      *big.Int                `json:"amount"`
	RecipientID string                  `json:"recipientId"`
	Timestamp   int64                   `json:"timestamp"`
	VendorField string                  `json:"vendorField,omitempty"`
	SecretHash  string                  `json:"secretHash"`
	Expiration  database.HtlcExpiration `json:"expiration"`
}

// newLockRecord builds the lock record of a lock transaction.
func newLockRecord(tx database.Transaction) HtlcLock {
	return HtlcLock{
		Amount:      amount(tx),
		RecipientID: tx.RecipientID,
		Timestamp:   tx.Timestamp,
		VendorField: tx.VendorField,
		SecretHash:  tx.Asset.Lock.SecretHash,
		Expiration:  tx.Asset.Lock.Expiration,
	}
}

// CloneAttribute implements the wallets.Cloner interface.
func (l HtlcLock) CloneAttribute() any {
	if l.Amount != nil {
		l.Amount = new(big.Int).Set(l.Amount)
	}
	return l
}

// Expired reports whether the lock can no longer be claimed on top of the
// block.
func (l HtlcLock) Expired(tip database.BlockHeader) bool {
	switch l.Expiration.Type {
	case database.ExpirationEpochTimestamp:
		return l.Expiration.Value <= tip.Timestamp
	case database.ExpirationBlockHeight:
		return l.Expiration.Value <= tip.Height
	}
	return false
}

// FindLock returns the wallet holding the open lock and the lock itself.
func FindLock(store wallets.Store, lockID string) (*wallets.Wallet, HtlcLock, error) {
	w, err := store.FindByIndex(wallets.IndexLocks, lockID)
	if err != nil {
		return nil, HtlcLock{}, ErrHtlcLockTransactionNotFound
	}

	locks := wallets.AttrOr(w, "htlc.locks", map[string]any{})
	lock, ok := locks[lockID].(HtlcLock)
	if !ok {
		return nil, HtlcLock{}, ErrHtlcLockTransactionNotFound
	}

	return w, lock, nil
}

func openLock(w *wallets.Wallet, lockID string, lock HtlcLock) error {
	locked := wallets.BigAttr(w, "htlc.lockedBalance")
	locked.Add(locked, lock.Amount)

	locks := wallets.AttrOr(w, "htlc.locks", map[string]any{})
	locks[lockID] = lock

	if err := w.SetAttribute("htlc.lockedBalance", locked); err != nil {
		return err
	}
	return w.SetAttribute("htlc.locks", locks)
}

// closeLock drops the lock. A wallet without locked funds loses its htlc
// attribute entirely.
func closeLock(w *wallets.Wallet, lockID string, lock HtlcLock) error {
	locked := wallets.BigAttr(w, "htlc.lockedBalance")
	locked.Sub(locked, lock.Amount)

	if locked.Sign() <= 0 {
		w.ForgetAttribute("htlc")
		return nil
	}

	locks := wallets.AttrOr(w, "htlc.locks", map[string]any{})
	delete(locks, lockID)

	if err := w.SetAttribute("htlc.lockedBalance", locked); err != nil {
		return err
	}
	return w.SetAttribute("htlc.locks", locks)
}

func htlcActivated(m milestones.Milestone) bool {
	return m.AIP11 && m.HtlcEnabled
}

// =============================================================================

// HtlcLockHandler locks an amount behind a secret hash until it is claimed
// by the recipient or refunded after expiry.
type HtlcLockHandler struct {
	Base
}

// NewHtlcLock constructs the lock handler.
func NewHtlcLock(env Env) HtlcLockHandler {
	return HtlcLockHandler{NewBase(env, database.TypeGroupCore, TypeHtlcLock, 2)}
}

// WalletAttributes implements the Handler interface.
func (h HtlcLockHandler) WalletAttributes() []string {
	return []string{"htlc", "htlc.locks", "htlc.lockedBalance"}
}

// IsActivated implements the Handler interface.
func (h HtlcLockHandler) IsActivated(m milestones.Milestone) bool {
	return htlcActivated(m)
}

// Bootstrap opens every historical lock. Claims and refunds replayed after
// it close the ones that were settled.
func (h HtlcLockHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.Lock == nil {
			return assertion("lock")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := openLock(sender, tx.ID, newLockRecord(tx)); err != nil {
			return err
		}

		h.Wallets.Index(sender)
		return nil
	})
}

// VerifyCanApply implements the Handler interface.
func (h HtlcLockHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.Lock == nil {
		return assertion("lock")
	}

	if tx.RecipientID == "" {
		return assertion("recipientId")
	}

	if newLockRecord(tx).Expired(h.Tip()) {
		return ErrHtlcLockExpired
	}

	return nil
}

// Apply implements the Handler interface.
func (h HtlcLockHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Lock == nil {
		return assertion("lock")
	}

	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := openLock(sender, tx.ID, newLockRecord(tx)); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the Handler interface.
func (h HtlcLockHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Lock == nil {
		return assertion("lock")
	}

	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	if err := closeLock(sender, tx.ID, newLockRecord(tx)); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// EmitEvents implements the Handler interface.
func (h HtlcLockHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.HtlcLock, tx)
}

// =============================================================================

// settlement holds what claims and refunds share: both close a lock and pay
// it out minus their own fee.
type settlement struct {
	Base
}

// Dependencies implements the Handler interface.
func (s settlement) Dependencies() []Kind {
	return []Kind{{TypeGroup: database.TypeGroupCore, Type: TypeHtlcLock, Version: 2}}
}

// IsActivated implements the Handler interface.
func (s settlement) IsActivated(m milestones.Milestone) bool {
	return htlcActivated(m)
}

// DynamicFee implements the Handler interface. Settlements are paid out of
// the lock.
func (s settlement) DynamicFee(fc FeeContext) *big.Int {
	return new(big.Int)
}

// verifyPool rejects a settlement of an unknown lock or of a lock that is
// already being settled from the pool.
func (s settlement) verifyPool(lockID string, label string) error {
	if _, _, err := FindLock(s.Wallets, lockID); err != nil {
		return &PoolError{
			Type:    PoolErrLockNotFound,
			Message: fmt.Sprintf("The associated lock transaction id %q was not found.", lockID),
		}
	}

	sameLock := func(p database.Transaction) bool {
		return SettledLockID(p) == lockID
	}
	if s.HasPending(s.Kind(), "", sameLock) {
		return pending("%s for %q already in the pool", label, lockID)
	}

	return nil
}

// settle closes the lock and pays amount minus fee to the payee.
func (s settlement) settle(tx database.Transaction, store wallets.Store, lockID string, payee func(lockWallet *wallets.Wallet, lock HtlcLock) *wallets.Wallet) error {
	sender, err := store.FindByPublicKey(tx.SenderPublicKey)
	if err != nil {
		return err
	}

	lockWallet, lock, err := FindLock(store, lockID)
	if err != nil {
		return err
	}

	s.advanceNonce(tx, sender)

	payout := new(big.Int).Sub(lock.Amount, fee(tx))
	to := payee(lockWallet, lock)
	to.IncreaseBalance(payout)

	if err := closeLock(lockWallet, lockID, lock); err != nil {
		return err
	}

	store.Index(sender, lockWallet, to)
	return nil
}

// unsettle reopens the lock from the lock transaction in the history and
// takes the payout back from the payee.
func (s settlement) unsettle(ctx context.Context, tx database.Transaction, store wallets.Store, lockID string, payee func(lockWallet *wallets.Wallet, lockTx database.Transaction) *wallets.Wallet) error {
	sender, err := store.FindByPublicKey(tx.SenderPublicKey)
	if err != nil {
		return err
	}

	lockTx, err := s.lockTransaction(ctx, lockID)
	if err != nil {
		return err
	}

	if err := s.rewindNonce(tx, sender); err != nil {
		return err
	}

	lockWallet, err := store.FindByPublicKey(lockTx.SenderPublicKey)
	if err != nil {
		return err
	}

	payout := new(big.Int).Sub(amount(lockTx), fee(tx))
	to := payee(lockWallet, lockTx)
	to.DecreaseBalance(payout)

	if err := openLock(lockWallet, lockTx.ID, newLockRecord(lockTx)); err != nil {
		return err
	}

	store.Index(sender, lockWallet, to)
	return nil
}

// replaySettlements closes every lock settled in the history. The generic
// replay charged the settlement fee to the sender, it comes out of the lock
// instead.
func (s settlement) replaySettlements(ctx context.Context, lockID func(tx database.Transaction) string, payee func(lockWallet *wallets.Wallet, lock HtlcLock) *wallets.Wallet) error {
	return s.Replay(ctx, func(tx database.Transaction) error {
		id := lockID(tx)
		if id == "" {
			return assertion("lockTransactionId")
		}

		sender, err := s.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		lockWallet, lock, err := FindLock(s.Wallets, id)
		if err != nil {
			return err
		}

		sender.IncreaseBalance(fee(tx))
		payout := new(big.Int).Sub(lock.Amount, fee(tx))
		payee(lockWallet, lock).IncreaseBalance(payout)

		if err := closeLock(lockWallet, id, lock); err != nil {
			return err
		}

		s.Wallets.Index(lockWallet)
		return nil
	})
}

func (s settlement) lockTransaction(ctx context.Context, lockID string) (database.Transaction, error) {
	if s.History == nil {
		return database.Transaction{}, ErrHtlcLockTransactionNotFound
	}

	txs, err := s.History.FindByIDs(ctx, lockID)
	if err != nil {
		return database.Transaction{}, fmt.Errorf("loading lock %s: %w", lockID, err)
	}

	for _, tx := range txs {
		if tx.ID == lockID && tx.Asset != nil && tx.Asset.Lock != nil {
			return tx, nil
		}
	}

	return database.Transaction{}, ErrHtlcLockTransactionNotFound
}

// SettledLockID returns the lock a claim or refund settles.
func SettledLockID(tx database.Transaction) string {
	switch {
	case tx.Asset == nil:
		return ""
	case tx.Asset.Claim != nil:
		return tx.Asset.Claim.LockTransactionID
	case tx.Asset.Refund != nil:
		return tx.Asset.Refund.LockTransactionID
	}
	return ""
}

// =============================================================================

// HtlcClaimHandler pays an open lock to its recipient against the secret.
type HtlcClaimHandler struct {
	settlement
}

// NewHtlcClaim constructs the claim handler.
func NewHtlcClaim(env Env) HtlcClaimHandler {
	return HtlcClaimHandler{settlement{NewBase(env, database.TypeGroupCore, TypeHtlcClaim, 2)}}
}

// Bootstrap implements the Handler interface.
func (h HtlcClaimHandler) Bootstrap(ctx context.Context) error {
	return h.replaySettlements(ctx, claimedLockID, h.claimPayee)
}

// VerifyCanApply implements the Handler interface.
func (h HtlcClaimHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifySender(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.Claim == nil {
		return assertion("claim")
	}
	claim := tx.Asset.Claim

	_, lock, err := FindLock(h.Resolve(store), claim.LockTransactionID)
	if err != nil {
		return err
	}

	if lock.Expired(h.Tip()) {
		return ErrHtlcLockExpired
	}

	secret, err := hex.DecodeString(claim.UnlockSecret)
	if err != nil {
		return ErrHtlcSecretHashMismatch
	}

	hash := sha256.Sum256(secret)
	if !strings.EqualFold(hex.EncodeToString(hash[:]), lock.SecretHash) {
		return ErrHtlcSecretHashMismatch
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h HtlcClaimHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	id := claimedLockID(tx)
	if id == "" {
		return assertion("claim.lockTransactionId")
	}
	return h.verifyPool(id, "HtlcClaim")
}

// Apply implements the Handler interface.
func (h HtlcClaimHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	id := claimedLockID(tx)
	if id == "" {
		return assertion("claim.lockTransactionId")
	}

	store = h.Resolve(store)
	return h.settle(tx, store, id, func(_ *wallets.Wallet, lock HtlcLock) *wallets.Wallet {
		return store.FindByAddress(lock.RecipientID)
	})
}

// Revert implements the Handler interface.
func (h HtlcClaimHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	id := claimedLockID(tx)
	if id == "" {
		return assertion("claim.lockTransactionId")
	}

	store = h.Resolve(store)
	return h.unsettle(ctx, tx, store, id, func(_ *wallets.Wallet, lockTx database.Transaction) *wallets.Wallet {
		return store.FindByAddress(lockTx.RecipientID)
	})
}

// EmitEvents implements the Handler interface.
func (h HtlcClaimHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.HtlcClaim, tx)
}

func (h HtlcClaimHandler) claimPayee(_ *wallets.Wallet, lock HtlcLock) *wallets.Wallet {
	return h.Wallets.FindByAddress(lock.RecipientID)
}

func claimedLockID(tx database.Transaction) string {
	if tx.Asset == nil || tx.Asset.Claim == nil {
		return ""
	}
	return tx.Asset.Claim.LockTransactionID
}

// =============================================================================

// HtlcRefundHandler returns an expired lock to the wallet that created it.
type HtlcRefundHandler struct {
	settlement
}

// NewHtlcRefund constructs the refund handler.
func NewHtlcRefund(env Env) HtlcRefundHandler {
	return HtlcRefundHandler{settlement{NewBase(env, database.TypeGroupCore, TypeHtlcRefund, 2)}}
}

// Bootstrap implements the Handler interface.
func (h HtlcRefundHandler) Bootstrap(ctx context.Context) error {
	return h.replaySettlements(ctx, refundedLockID, refundPayee)
}

// VerifyCanApply implements the Handler interface.
func (h HtlcRefundHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifySender(tx, sender); err != nil {
		return err
	}

	id := refundedLockID(tx)
	if id == "" {
		return assertion("refund.lockTransactionId")
	}

	_, lock, err := FindLock(h.Resolve(store), id)
	if err != nil {
		return err
	}

	if !lock.Expired(h.Tip()) {
		return ErrHtlcLockNotExpired
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h HtlcRefundHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	id := refundedLockID(tx)
	if id == "" {
		return assertion("refund.lockTransactionId")
	}
	return h.verifyPool(id, "HtlcRefund")
}

// Apply implements the Handler interface.
func (h HtlcRefundHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	id := refundedLockID(tx)
	if id == "" {
		return assertion("refund.lockTransactionId")
	}
	return h.settle(tx, h.Resolve(store), id, refundPayee)
}

// Revert implements the Handler interface.
func (h HtlcRefundHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	id := refundedLockID(tx)
	if id == "" {
		return assertion("refund.lockTransactionId")
	}
	return h.unsettle(ctx, tx, h.Resolve(store), id, func(lockWallet *wallets.Wallet, _ database.Transaction) *wallets.Wallet {
		return lockWallet
	})
}

// EmitEvents implements the Handler interface.
func (h HtlcRefundHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.HtlcRefund, tx)
}

func refundPayee(lockWallet *wallets.Wallet, _ HtlcLock) *wallets.Wallet {
	return lockWallet
}

func refundedLockID(tx database.Transaction) string {
	if tx.Asset == nil || tx.Asset.Refund == nil {
		return ""
	}
	return tx.Asset.Refund.LockTransactionID
}
