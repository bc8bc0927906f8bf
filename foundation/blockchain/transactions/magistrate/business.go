package magistrate

import (
	"context"
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// BusinessRegistrationHandler registers the sender as a business.
type BusinessRegistrationHandler struct {
	base
}

// NewBusinessRegistration constructs the business registration handler.
func NewBusinessRegistration(env transactions.Env) BusinessRegistrationHandler {
	return BusinessRegistrationHandler{newBase(env, TypeBusinessRegistration)}
}

// WalletAttributes implements the transactions.Handler interface.
func (h BusinessRegistrationHandler) WalletAttributes() []string {
	return []string{
		"business",
		"business.businessAsset",
		"business.resigned",
		"business.bridgechains",
	}
}

// Bootstrap implements the transactions.Handler interface.
func (h BusinessRegistrationHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.BusinessRegistration == nil {
			return transactions.Assertion("businessRegistration")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := sender.SetAttribute("business", map[string]any{"businessAsset": *tx.Asset.BusinessRegistration}); err != nil {
			return err
		}

		h.Wallets.Index(sender)
		return nil
	})
}

// VerifyCanApply implements the transactions.Handler interface.
func (h BusinessRegistrationHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.BusinessRegistration == nil {
		return transactions.Assertion("businessRegistration")
	}

	if sender.HasAttribute("business") {
		return ErrBusinessAlreadyRegistered
	}

	return nil
}

// VerifyCanEnterPool implements the transactions.Handler interface.
func (h BusinessRegistrationHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return h.PendingFromSender(tx)
}

// Apply implements the transactions.Handler interface.
func (h BusinessRegistrationHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.BusinessRegistration == nil {
		return transactions.Assertion("businessRegistration")
	}

	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := sender.SetAttribute("business", map[string]any{"businessAsset": *tx.Asset.BusinessRegistration}); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the transactions.Handler interface.
func (h BusinessRegistrationHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	sender.ForgetAttribute("business")
	store.Index(sender)
	return nil
}

// EmitEvents implements the transactions.Handler interface.
func (h BusinessRegistrationHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.BusinessRegistered, tx)
}

// =============================================================================

// verifyActiveBusiness rejects a sender that is not a business or whose
// business resigned.
func verifyActiveBusiness(sender *wallets.Wallet) error {
	if !sender.HasAttribute("business") {
		return ErrBusinessIsNotRegistered
	}

	if businessResigned(sender) {
		return ErrBusinessIsResigned
	}

	return nil
}

// BusinessResignationHandler resigns the business of the sender.
type BusinessResignationHandler struct {
	base
}

// NewBusinessResignation constructs the business resignation handler.
func NewBusinessResignation(env transactions.Env) BusinessResignationHandler {
	return BusinessResignationHandler{newBase(env, TypeBusinessResignation)}
}

// Dependencies implements the transactions.Handler interface.
func (h BusinessResignationHandler) Dependencies() []transactions.Kind {
	return []transactions.Kind{kind(TypeBusinessRegistration)}
}

// Bootstrap implements the transactions.Handler interface.
func (h BusinessResignationHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}
		return sender.SetAttribute("business.resigned", true)
	})
}

// VerifyCanApply implements the transactions.Handler interface.
func (h BusinessResignationHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	return verifyActiveBusiness(sender)
}

// VerifyCanEnterPool implements the transactions.Handler interface.
func (h BusinessResignationHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return h.PendingFromSender(tx)
}

// Apply implements the transactions.Handler interface.
func (h BusinessResignationHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := sender.SetAttribute("business.resigned", true); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the transactions.Handler interface.
func (h BusinessResignationHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	sender.ForgetAttribute("business.resigned")
	store.Index(sender)
	return nil
}

// EmitEvents implements the transactions.Handler interface.
func (h BusinessResignationHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.BusinessResigned, tx)
}

// =============================================================================

// BusinessUpdateHandler replaces the set fields of the sender's business.
type BusinessUpdateHandler struct {
	base
}

// NewBusinessUpdate constructs the business update handler.
func NewBusinessUpdate(env transactions.Env) BusinessUpdateHandler {
	return BusinessUpdateHandler{newBase(env, TypeBusinessUpdate)}
}

// Dependencies implements the transactions.Handler interface.
func (h BusinessUpdateHandler) Dependencies() []transactions.Kind {
	return []transactions.Kind{kind(TypeBusinessRegistration)}
}

// Bootstrap implements the transactions.Handler interface.
func (h BusinessUpdateHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.BusinessUpdate == nil {
			return transactions.Assertion("businessUpdate")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}
		return updateBusiness(sender, *tx.Asset.BusinessUpdate)
	})
}

// VerifyCanApply implements the transactions.Handler interface.
func (h BusinessUpdateHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.BusinessUpdate == nil {
		return transactions.Assertion("businessUpdate")
	}

	return verifyActiveBusiness(sender)
}

// VerifyCanEnterPool implements the transactions.Handler interface.
func (h BusinessUpdateHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return h.PendingFromSender(tx)
}

// Apply implements the transactions.Handler interface.
func (h BusinessUpdateHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.BusinessUpdate == nil {
		return transactions.Assertion("businessUpdate")
	}

	sender, err := h.ApplyToSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	return updateBusiness(sender, *tx.Asset.BusinessUpdate)
}

// Revert rebuilds the business from the registration and the updates that
// precede the reverted one.
func (h BusinessUpdateHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	sender, err := h.RevertForSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	if h.History == nil {
		return fmt.Errorf("reverting business update %s: no history", tx.ID)
	}

	history, err := h.History.FindManyByCriteria(ctx,
		criteria(TypeBusinessRegistration, tx.SenderPublicKey, nil),
		criteria(TypeBusinessUpdate, tx.SenderPublicKey, nil),
	)
	if err != nil {
		return fmt.Errorf("reverting business update %s: %w", tx.ID, err)
	}

	var asset database.BusinessAsset
	for _, prev := range history {
		if prev.ID == tx.ID {
			break
		}
		if prev.Asset == nil {
			continue
		}

		switch prev.Type {
		case TypeBusinessRegistration:
			if prev.Asset.BusinessRegistration != nil {
				asset = *prev.Asset.BusinessRegistration
			}
		case TypeBusinessUpdate:
			if prev.Asset.BusinessUpdate != nil {
				asset = mergeBusiness(asset, *prev.Asset.BusinessUpdate)
			}
		}
	}

	return sender.SetAttribute("business.businessAsset", asset)
}

// EmitEvents implements the transactions.Handler interface.
func (h BusinessUpdateHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.BusinessUpdated, tx)
}

func updateBusiness(w *wallets.Wallet, update database.BusinessAsset) error {
	current, _ := businessAsset(w)
	return w.SetAttribute("business.businessAsset", mergeBusiness(current, update))
}
