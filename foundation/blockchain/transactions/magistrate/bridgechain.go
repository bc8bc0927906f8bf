package magistrate

import (
	"context"
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// BridgechainRegistrationHandler registers a bridgechain under the sender's
// business. The genesis hash identifies the bridgechain.
type BridgechainRegistrationHandler struct {
	base
}

// NewBridgechainRegistration constructs the bridgechain registration handler.
func NewBridgechainRegistration(env transactions.Env) BridgechainRegistrationHandler {
	return BridgechainRegistrationHandler{newBase(env, TypeBridgechainRegistration)}
}

// Dependencies implements the transactions.Handler interface.
func (h BridgechainRegistrationHandler) Dependencies() []transactions.Kind {
	return []transactions.Kind{kind(TypeBusinessRegistration)}
}

// Bootstrap implements the transactions.Handler interface.
func (h BridgechainRegistrationHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.BridgechainRegistration == nil {
			return transactions.Assertion("bridgechainRegistration")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := registerBridgechain(sender, *tx.Asset.BridgechainRegistration); err != nil {
			return err
		}

		h.Wallets.Index(sender)
		return nil
	})
}

// VerifyCanApply implements the transactions.Handler interface.
func (h BridgechainRegistrationHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.BridgechainRegistration == nil {
		return transactions.Assertion("bridgechainRegistration")
	}
	asset := *tx.Asset.BridgechainRegistration

	if !sender.HasAttribute("business") {
		return ErrWalletIsNotBusiness
	}

	if businessResigned(sender) {
		return ErrBusinessIsResigned
	}

	for id := range bridgechains(sender) {
		if registered, ok := bridgechainAsset(sender, id); ok && registered.Name == asset.Name {
			return ErrBridgechainAlreadyRegistered
		}
	}

	if h.Resolve(store).HasByIndex(IndexBridgechains, asset.GenesisHash) {
		return ErrGenesisHashAlreadyRegistered
	}

	return verifyPorts(asset.Ports)
}

// Apply implements the transactions.Handler interface.
func (h BridgechainRegistrationHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.BridgechainRegistration == nil {
		return transactions.Assertion("bridgechainRegistration")
	}

	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := registerBridgechain(sender, *tx.Asset.BridgechainRegistration); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the transactions.Handler interface.
func (h BridgechainRegistrationHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.BridgechainRegistration == nil {
		return transactions.Assertion("bridgechainRegistration")
	}

	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	chains := bridgechains(sender)
	delete(chains, tx.Asset.BridgechainRegistration.GenesisHash)

	switch len(chains) {
	case 0:
		sender.ForgetAttribute("business.bridgechains")
	default:
		if err := sender.SetAttribute("business.bridgechains", chains); err != nil {
			return err
		}
	}

	store.Index(sender)
	return nil
}

// EmitEvents implements the transactions.Handler interface.
func (h BridgechainRegistrationHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.BridgechainRegistered, tx)
}

func registerBridgechain(w *wallets.Wallet, asset database.BridgechainAsset) error {
	return w.SetAttribute(bridgechainKey(asset.GenesisHash, "bridgechainAsset"), asset)
}

// =============================================================================

// verifyOwnBridgechain rejects a bridgechain the sender does not hold or
// that already resigned.
func verifyOwnBridgechain(sender *wallets.Wallet, id string) error {
	if _, ok := bridgechainAsset(sender, id); !ok {
		return ErrBridgechainIsNotRegisteredByWallet
	}

	if bridgechainResigned(sender, id) {
		return ErrBridgechainIsResigned
	}

	return nil
}

// BridgechainResignationHandler resigns a bridgechain of the sender.
type BridgechainResignationHandler struct {
	base
}

// NewBridgechainResignation constructs the bridgechain resignation handler.
func NewBridgechainResignation(env transactions.Env) BridgechainResignationHandler {
	return BridgechainResignationHandler{newBase(env, TypeBridgechainResignation)}
}

// Dependencies implements the transactions.Handler interface.
func (h BridgechainResignationHandler) Dependencies() []transactions.Kind {
	return []transactions.Kind{kind(TypeBridgechainRegistration)}
}

// Bootstrap implements the transactions.Handler interface.
func (h BridgechainResignationHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		id := resignedBridgechain(tx)
		if id == "" {
			return transactions.Assertion("bridgechainResignation")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}
		return sender.SetAttribute(bridgechainKey(id, "resigned"), true)
	})
}

// VerifyCanApply implements the transactions.Handler interface.
func (h BridgechainResignationHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	id := resignedBridgechain(tx)
	if id == "" {
		return transactions.Assertion("bridgechainResignation")
	}

	if !sender.HasAttribute("business") {
		return ErrWalletIsNotBusiness
	}

	if businessResigned(sender) {
		return ErrBusinessIsResigned
	}

	return verifyOwnBridgechain(sender, id)
}

// VerifyCanEnterPool implements the transactions.Handler interface.
func (h BridgechainResignationHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	id := resignedBridgechain(tx)
	if id == "" {
		return transactions.Assertion("bridgechainResignation")
	}

	sameBridgechain := func(p database.Transaction) bool {
		return resignedBridgechain(p) == id
	}
	if h.HasPending(h.Kind(), tx.SenderPublicKey, sameBridgechain) {
		return transactions.NewPendingError("Bridgechain resignation for bridgechainId %q already in the pool", id)
	}

	return nil
}

// Apply implements the transactions.Handler interface.
func (h BridgechainResignationHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	id := resignedBridgechain(tx)
	if id == "" {
		return transactions.Assertion("bridgechainResignation")
	}

	sender, err := h.ApplyToSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	return sender.SetAttribute(bridgechainKey(id, "resigned"), true)
}

// Revert implements the transactions.Handler interface.
func (h BridgechainResignationHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	id := resignedBridgechain(tx)
	if id == "" {
		return transactions.Assertion("bridgechainResignation")
	}

	sender, err := h.RevertForSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	sender.ForgetAttribute(bridgechainKey(id, "resigned"))
	return nil
}

// EmitEvents implements the transactions.Handler interface.
func (h BridgechainResignationHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.BridgechainResigned, tx)
}

func resignedBridgechain(tx database.Transaction) string {
	if tx.Asset == nil || tx.Asset.BridgechainResignation == nil {
		return ""
	}
	return tx.Asset.BridgechainResignation.BridgechainID
}

// =============================================================================

// BridgechainUpdateHandler replaces the set fields of a bridgechain of the
// sender.
type BridgechainUpdateHandler struct {
	base
}

// NewBridgechainUpdate constructs the bridgechain update handler.
func NewBridgechainUpdate(env transactions.Env) BridgechainUpdateHandler {
	return BridgechainUpdateHandler{newBase(env, TypeBridgechainUpdate)}
}

// Dependencies implements the transactions.Handler interface.
func (h BridgechainUpdateHandler) Dependencies() []transactions.Kind {
	return []transactions.Kind{kind(TypeBridgechainRegistration)}
}

// Bootstrap implements the transactions.Handler interface.
func (h BridgechainUpdateHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.BridgechainUpdate == nil {
			return transactions.Assertion("bridgechainUpdate")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}
		return updateBridgechain(sender, *tx.Asset.BridgechainUpdate)
	})
}

// VerifyCanApply implements the transactions.Handler interface.
func (h BridgechainUpdateHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.BridgechainUpdate == nil {
		return transactions.Assertion("bridgechainUpdate")
	}
	update := *tx.Asset.BridgechainUpdate

	if err := verifyActiveBusiness(sender); err != nil {
		return err
	}

	if err := verifyOwnBridgechain(sender, update.BridgechainID); err != nil {
		return err
	}

	return verifyPorts(update.Ports)
}

// VerifyCanEnterPool implements the transactions.Handler interface.
func (h BridgechainUpdateHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	if tx.Asset == nil || tx.Asset.BridgechainUpdate == nil {
		return transactions.Assertion("bridgechainUpdate")
	}
	id := tx.Asset.BridgechainUpdate.BridgechainID

	sameBridgechain := func(p database.Transaction) bool {
		return p.Asset != nil && p.Asset.BridgechainUpdate != nil && p.Asset.BridgechainUpdate.BridgechainID == id
	}
	if h.HasPending(h.Kind(), tx.SenderPublicKey, sameBridgechain) {
		return transactions.NewPendingError("Bridgechain update for bridgechainId %q already in the pool", id)
	}

	return nil
}

// Apply implements the transactions.Handler interface.
func (h BridgechainUpdateHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.BridgechainUpdate == nil {
		return transactions.Assertion("bridgechainUpdate")
	}

	sender, err := h.ApplyToSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	return updateBridgechain(sender, *tx.Asset.BridgechainUpdate)
}

// Revert rebuilds the bridgechain from its registration and the updates
// that precede the reverted one.
func (h BridgechainUpdateHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.BridgechainUpdate == nil {
		return transactions.Assertion("bridgechainUpdate")
	}
	id := tx.Asset.BridgechainUpdate.BridgechainID

	sender, err := h.RevertForSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	if h.History == nil {
		return fmt.Errorf("reverting bridgechain update %s: no history", tx.ID)
	}

	registration := func(p database.Transaction) bool {
		return p.Asset != nil && p.Asset.BridgechainRegistration != nil && p.Asset.BridgechainRegistration.GenesisHash == id
	}
	update := func(p database.Transaction) bool {
		return p.Asset != nil && p.Asset.BridgechainUpdate != nil && p.Asset.BridgechainUpdate.BridgechainID == id
	}

	history, err := h.History.FindManyByCriteria(ctx,
		criteria(TypeBridgechainRegistration, tx.SenderPublicKey, registration),
		criteria(TypeBridgechainUpdate, tx.SenderPublicKey, update),
	)
	if err != nil {
		return fmt.Errorf("reverting bridgechain update %s: %w", tx.ID, err)
	}

	var asset database.BridgechainAsset
	for _, prev := range history {
		if prev.ID == tx.ID {
			break
		}

		switch prev.Type {
		case TypeBridgechainRegistration:
			asset = prev.Asset.BridgechainRegistration.CloneAttribute().(database.BridgechainAsset)
		case TypeBridgechainUpdate:
			asset = mergeBridgechain(asset, *prev.Asset.BridgechainUpdate)
		}
	}

	return sender.SetAttribute(bridgechainKey(id, "bridgechainAsset"), asset)
}

// EmitEvents implements the transactions.Handler interface.
func (h BridgechainUpdateHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.BridgechainUpdated, tx)
}

func updateBridgechain(w *wallets.Wallet, update database.BridgechainUpdateAsset) error {
	current, _ := bridgechainAsset(w, update.BridgechainID)
	return w.SetAttribute(bridgechainKey(update.BridgechainID, "bridgechainAsset"), mergeBridgechain(current, update))
}
