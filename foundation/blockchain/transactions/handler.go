// Package transactions defines the per type handlers that validate, apply
// and revert ledger transactions against a wallet store, and the registry
// that resolves them.
package transactions

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// Core transaction types.
const (
	TypeTransfer             uint16 = 0
	TypeSecondSignature      uint16 = 1
	TypeDelegateRegistration uint16 = 2
	TypeVote                 uint16 = 3
	TypeMultiSignature       uint16 = 4
	TypeIpfs                 uint16 = 5
	TypeMultiPayment         uint16 = 6
	TypeDelegateResignation  uint16 = 7
	TypeHtlcLock             uint16 = 8
	TypeHtlcClaim            uint16 = 9
	TypeHtlcRefund           uint16 = 10
)

// Kind identifies a handler.
type Kind struct {
	TypeGroup uint32
	Type      uint16
	Version   uint8
}

// KindOf returns the kind of the transaction. A transaction without a
// version is a version 1 transaction.
func KindOf(tx database.Transaction) Kind {
	version := tx.Version
	if version == 0 {
		version = 1
	}
	return Kind{TypeGroup: tx.TypeGroup, Type: tx.Type, Version: version}
}

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	return fmt.Sprintf("%d/%d/v%d", k.TypeGroup, k.Type, k.Version)
}

// sameType reports whether both kinds describe the same type in any version.
func (k Kind) sameType(o Kind) bool {
	return k.TypeGroup == o.TypeGroup && k.Type == o.Type
}

// FeeContext carries what a handler needs to price a transaction.
type FeeContext struct {
	Transaction    database.Transaction
	Height         int64
	SatoshiPerByte int64
	AddonBytes     int64
}

// Handler is the behavior every transaction type implements. A nil store
// means the canonical store the handler was constructed with.
type Handler interface {
	Kind() Kind
	Dependencies() []Kind
	WalletAttributes() []string
	IsActivated(m milestones.Milestone) bool
	Bootstrap(ctx context.Context) error
	VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error
	VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error
	Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error
	Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error
	EmitEvents(tx database.Transaction, d events.Dispatcher)
	DynamicFee(fc FeeContext) *big.Int
}

// PoolQuery is the behavior the handlers need from the transaction pool.
type PoolQuery interface {
	Pending() []database.Transaction
}

// Env carries the collaborators every handler is constructed with.
type Env struct {
	Wallets    *wallets.Repository
	History    database.History
	Pool       PoolQuery
	Milestones *milestones.Schedule
	LastBlock  func() database.BlockHeader
}

// Resolve returns the store, the canonical store when nil.
func (env Env) Resolve(store wallets.Store) wallets.Store {
	if store == nil {
		return env.Wallets
	}
	return store
}

// Tip returns the header of the last applied block.
func (env Env) Tip() database.BlockHeader {
	if env.LastBlock == nil {
		return database.BlockHeader{}
	}
	return env.LastBlock()
}

// Milestone returns the milestone of the block being built on top of the
// last block.
func (env Env) Milestone() milestones.Milestone {
	return env.Milestones.At(env.Tip().Height + 1)
}

// HasPending reports whether the pool holds a transaction of the kind's type
// that matches. An empty sender matches every sender.
func (env Env) HasPending(kind Kind, sender string, match func(tx database.Transaction) bool) bool {
	if env.Pool == nil {
		return false
	}

	for _, tx := range env.Pool.Pending() {
		if !KindOf(tx).sameType(kind) {
			continue
		}
		if sender != "" && !strings.EqualFold(tx.SenderPublicKey, sender) {
			continue
		}
		if match == nil || match(tx) {
			return true
		}
	}

	return false
}

// =============================================================================

// Base provides the checks and balance effects shared by every type.
type Base struct {
	Env
	kind Kind
}

func NewBase(env Env, group uint32, typ uint16, version uint8) Base {
	return Base{
		Env:  env,
		kind: Kind{TypeGroup: group, Type: typ, Version: version},
	}
}

// Kind implements the Handler interface.
func (b Base) Kind() Kind {
	return b.kind
}

// Dependencies implements the Handler interface.
func (b Base) Dependencies() []Kind {
	return nil
}

// WalletAttributes implements the Handler interface.
func (b Base) WalletAttributes() []string {
	return nil
}

// IsActivated implements the Handler interface. Version 2 transactions need
// the aip11 milestone.
func (b Base) IsActivated(m milestones.Milestone) bool {
	if b.kind.Version >= 2 {
		return m.AIP11
	}
	return true
}

// Bootstrap implements the Handler interface.
func (b Base) Bootstrap(ctx context.Context) error {
	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (b Base) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return nil
}

// EmitEvents implements the Handler interface.
func (b Base) EmitEvents(tx database.Transaction, d events.Dispatcher) {}

// DynamicFee implements the Handler interface.
func (b Base) DynamicFee(fc FeeContext) *big.Int {
	satoshiPerByte := fc.SatoshiPerByte
	if satoshiPerByte <= 0 {
		satoshiPerByte = 1
	}

	size := int64(fc.Transaction.Size())
	bytes := fc.AddonBytes + (size+1)/2

	return new(big.Int).Mul(big.NewInt(satoshiPerByte), big.NewInt(bytes))
}

// Criteria selects the history of this kind, version included.
func (b Base) Criteria() database.Criteria {
	return database.Criteria{
		TypeGroup: b.kind.TypeGroup,
		Type:      b.kind.Type,
		Match: func(tx database.Transaction) bool {
			return KindOf(tx).Version == b.kind.Version
		},
	}
}

// Replay calls fn with every historical transaction of this kind.
func (b Base) Replay(ctx context.Context, fn func(tx database.Transaction) error) error {
	if b.History == nil {
		return nil
	}

	for tx, err := range b.History.StreamByCriteria(ctx, b.Criteria()) {
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return fmt.Errorf("bootstrap %s, tx %s: %w", b.kind, tx.ID, err)
		}
	}

	return nil
}

// PendingFromSender rejects a second pending transaction of this type from
// the same sender.
func (b Base) PendingFromSender(tx database.Transaction) error {
	if b.HasPending(b.kind, tx.SenderPublicKey, nil) {
		return pending("Sender %s already has a transaction of type '%d' in the pool", tx.SenderPublicKey, b.kind.Type)
	}
	return nil
}

// =============================================================================

// VerifyWallet runs the wallet checks shared by every type that debits
// the sender.
func (b Base) VerifyWallet(tx database.Transaction, sender *wallets.Wallet) error {
	if err := b.verifyKey(tx, sender); err != nil {
		return err
	}

	if err := b.verifyNonce(tx, sender); err != nil {
		return err
	}

	total := tx.TotalAmount()
	total.Add(total, tx.Fee)
	if sender.Balance().Cmp(total) < 0 {
		return ErrInsufficientBalance
	}

	return b.verifySignatures(tx, sender)
}

// VerifySender runs the wallet checks without the balance check, for the
// types paid out of a lock.
func (b Base) VerifySender(tx database.Transaction, sender *wallets.Wallet) error {
	if err := b.verifyKey(tx, sender); err != nil {
		return err
	}

	if err := b.verifyNonce(tx, sender); err != nil {
		return err
	}

	return b.verifySignatures(tx, sender)
}

func (b Base) verifyKey(tx database.Transaction, sender *wallets.Wallet) error {
	if tx.Fee == nil || tx.Amount == nil {
		return fmt.Errorf("%w: transaction fee and amount are required", ErrAssertion)
	}

	if !strings.EqualFold(tx.SenderPublicKey, sender.PublicKey()) {
		return ErrSenderWalletMismatch
	}

	return nil
}

func (b Base) verifyNonce(tx database.Transaction, sender *wallets.Wallet) error {
	if KindOf(tx).Version < 2 {
		return nil
	}

	expected := sender.Nonce()
	expected.AddUint64(expected, 1)

	if tx.Nonce == nil || !tx.Nonce.Eq(expected) {
		return &UnexpectedNonceError{
			Nonce:           tx.NonceOrZero(),
			Expected:        sender.Nonce(),
			SenderPublicKey: tx.SenderPublicKey,
		}
	}

	return nil
}

func (b Base) verifySignatures(tx database.Transaction, sender *wallets.Wallet) error {
	switch {
	case sender.HasMultiSignature():
		asset, err := multiSignatureOf(sender)
		if err != nil {
			return err
		}
		ok, err := tx.VerifyMultiSignatures(asset)
		if err != nil || !ok {
			return ErrInvalidMultiSignature
		}

	default:
		if len(tx.Signatures) > 0 && !b.kind.sameType(Kind{TypeGroup: database.TypeGroupCore, Type: TypeMultiSignature}) {
			return ErrUnexpectedMultiSignature
		}
		if err := tx.VerifySignature(); err != nil {
			return ErrInvalidSignature
		}
	}

	if sender.HasSecondSignature() {
		secondPublicKey := wallets.AttrOr(sender, "secondPublicKey", "")
		ok, err := tx.VerifySecondSignature(secondPublicKey)
		if err != nil || !ok {
			return ErrInvalidSecondSignature
		}
		return nil
	}

	if tx.SecondSignature != "" {
		return ErrUnexpectedSecondSignature
	}

	return nil
}

func multiSignatureOf(w *wallets.Wallet) (signature.MultiSignatureAsset, error) {
	asset, ok := wallets.Attr[signature.MultiSignatureAsset](w, "multiSignature")
	if !ok {
		return signature.MultiSignatureAsset{}, ErrMissingMultiSignatureOnSender
	}
	return asset, nil
}

// =============================================================================

// ApplyToSender debits amount and fee and advances the nonce.
func (b Base) ApplyToSender(tx database.Transaction, store wallets.Store) (*wallets.Wallet, error) {
	sender, err := store.FindByPublicKey(tx.SenderPublicKey)
	if err != nil {
		return nil, err
	}

	b.advanceNonce(tx, sender)

	total := tx.TotalAmount()
	total.Add(total, tx.Fee)
	sender.DecreaseBalance(total)

	return sender, nil
}

// RevertForSender credits amount and fee and rewinds the nonce.
func (b Base) RevertForSender(tx database.Transaction, store wallets.Store) (*wallets.Wallet, error) {
	sender, err := store.FindByPublicKey(tx.SenderPublicKey)
	if err != nil {
		return nil, err
	}

	if err := b.rewindNonce(tx, sender); err != nil {
		return nil, err
	}

	total := tx.TotalAmount()
	total.Add(total, tx.Fee)
	sender.IncreaseBalance(total)

	return sender, nil
}

func (b Base) advanceNonce(tx database.Transaction, sender *wallets.Wallet) {
	if KindOf(tx).Version >= 2 && tx.Nonce != nil {
		sender.SetNonce(tx.Nonce)
		return
	}
	sender.IncreaseNonce()
}

func (b Base) rewindNonce(tx database.Transaction, sender *wallets.Wallet) error {
	if KindOf(tx).Version >= 2 {
		nonce := sender.Nonce()
		if tx.Nonce == nil || !tx.Nonce.Eq(nonce) {
			return &UnexpectedNonceError{
				Nonce:           tx.NonceOrZero(),
				Expected:        nonce,
				SenderPublicKey: tx.SenderPublicKey,
				Reverting:       true,
			}
		}
	}

	return sender.DecreaseNonce()
}

// fee returns the transaction fee, zero when unset.
func fee(tx database.Transaction) *big.Int {
	if tx.Fee == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(tx.Fee)
}

// amount returns the transaction amount, zero when unset.
func amount(tx database.Transaction) *big.Int {
	if tx.Amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(tx.Amount)
}
