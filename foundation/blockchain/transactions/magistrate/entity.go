package magistrate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// Set of entity types.
const (
	EntityBusiness    uint8 = 0
	EntityBridgechain uint8 = 1
	EntityDeveloper   uint8 = 2
	EntityPlugin      uint8 = 3
	EntityDelegate    uint8 = 4
)

// Set of entity actions.
const (
	EntityRegister uint8 = 0
	EntityUpdate   uint8 = 1
	EntityResign   uint8 = 2
)

// Static entity fees.
var (
	EntityRegisterFee = big.NewInt(5_000_000_000)
	EntityUpdateFee   = big.NewInt(500_000_000)
)

// Entity is a registered entity as kept in the entities attribute, keyed by
// the id of its registration.
type Entity struct {
	Type     uint8               `json:"type"`
	SubType  uint8               `json:"subType"`
	Data     database.EntityData `json:"data"`
	Resigned bool                `json:"resigned,omitempty"`
}

// =============================================================================

// EntityHandler registers, updates and resigns the entities of the sender.
type EntityHandler struct {
	base
}

// NewEntity constructs the entity handler.
func NewEntity(env transactions.Env) EntityHandler {
	return EntityHandler{newBase(env, TypeEntity)}
}

// IsActivated implements the transactions.Handler interface.
func (h EntityHandler) IsActivated(m milestones.Milestone) bool {
	return m.AIP36
}

// DynamicFee returns the static fee of the entity action.
func (h EntityHandler) DynamicFee(fc transactions.FeeContext) *big.Int {
	return entityFee(fc.Transaction)
}

// WalletAttributes implements the transactions.Handler interface.
func (h EntityHandler) WalletAttributes() []string {
	return []string{"entities"}
}

// Bootstrap implements the transactions.Handler interface.
func (h EntityHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.Entity == nil {
			return transactions.Assertion("entity")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := applyEntity(sender, tx); err != nil {
			return err
		}

		h.Wallets.Index(sender)
		return nil
	})
}

// VerifyCanApply implements the transactions.Handler interface.
func (h EntityHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Entity == nil {
		return transactions.Assertion("entity")
	}
	asset := tx.Asset.Entity

	if fee := entityFee(tx); tx.Fee == nil || tx.Fee.Cmp(fee) != 0 {
		return &StaticFeeMismatchError{Fee: fee}
	}

	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	switch asset.Action {
	case EntityRegister:
		if asset.Data.Name == "" {
			return transactions.Assertion("entity.data.name")
		}

		if _, exists := entity(sender, tx.ID); exists {
			return ErrEntityAlreadyRegistered
		}

		if h.Resolve(store).HasByIndex(IndexEntityNames, entityNameKey(asset.Type, asset.SubType, asset.Data.Name)) {
			return ErrEntityNameAlreadyRegistered
		}

		if asset.Type == EntityDelegate {
			username, ok := wallets.Attr[string](sender, "delegate.username")
			if !ok {
				return ErrEntitySenderIsNotDelegate
			}
			if username != asset.Data.Name {
				return ErrEntityNameDoesNotMatchDelegate
			}
		}

	case EntityUpdate, EntityResign:
		registered, exists := entity(sender, asset.RegistrationID)
		switch {
		case !exists:
			return ErrEntityNotRegistered
		case registered.Resigned:
			return ErrEntityAlreadyResigned
		case registered.Type != asset.Type:
			return ErrEntityWrongType
		case registered.SubType != asset.SubType:
			return ErrEntityWrongSubType
		}

	default:
		return ErrEntityUnknownAction
	}

	return nil
}

// VerifyCanEnterPool rejects a registration while another one with the same
// type, sub type and name waits in the pool.
func (h EntityHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	if tx.Asset == nil || tx.Asset.Entity == nil {
		return transactions.Assertion("entity")
	}

	asset := tx.Asset.Entity
	if asset.Action != EntityRegister {
		return nil
	}

	key := entityNameKey(asset.Type, asset.SubType, asset.Data.Name)
	sameName := func(p database.Transaction) bool {
		if p.Asset == nil || p.Asset.Entity == nil || p.Asset.Entity.Action != EntityRegister {
			return false
		}
		pa := p.Asset.Entity
		return entityNameKey(pa.Type, pa.SubType, pa.Data.Name) == key
	}

	if h.HasPending(h.Kind(), "", sameName) {
		return transactions.NewPendingError("entity registration with name %q and type %d already in the pool", asset.Data.Name, asset.Type)
	}

	return nil
}

// Apply implements the transactions.Handler interface.
func (h EntityHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Entity == nil {
		return transactions.Assertion("entity")
	}

	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := applyEntity(sender, tx); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the transactions.Handler interface. A reverted update
// rebuilds the entity from its registration and the updates before it.
func (h EntityHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Entity == nil {
		return transactions.Assertion("entity")
	}
	asset := tx.Asset.Entity

	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	switch asset.Action {
	case EntityRegister:
		sender.ForgetAttribute(entityKey(tx.ID))

	case EntityResign:
		registered, exists := entity(sender, asset.RegistrationID)
		if !exists {
			return fmt.Errorf("reverting entity resignation %s: %w", tx.ID, ErrEntityNotRegistered)
		}
		registered.Resigned = false
		if err := sender.SetAttribute(entityKey(asset.RegistrationID), registered); err != nil {
			return err
		}

	case EntityUpdate:
		rebuilt, err := h.replayEntity(ctx, tx)
		if err != nil {
			return fmt.Errorf("reverting entity update %s: %w", tx.ID, err)
		}
		if err := sender.SetAttribute(entityKey(asset.RegistrationID), rebuilt); err != nil {
			return err
		}
	}

	store.Index(sender)
	return nil
}

// EmitEvents implements the transactions.Handler interface. Entities raise
// no events.
func (h EntityHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {}

// replayEntity rebuilds the entity the update applies to from the history,
// stopping at the update.
func (h EntityHandler) replayEntity(ctx context.Context, tx database.Transaction) (Entity, error) {
	if h.History == nil {
		return Entity{}, errors.New("no history")
	}

	regID := tx.Asset.Entity.RegistrationID

	found, err := h.History.FindByIDs(ctx, regID)
	if err != nil {
		return Entity{}, err
	}
	if len(found) == 0 || found[0].Asset == nil || found[0].Asset.Entity == nil {
		return Entity{}, fmt.Errorf("registration %s: %w", regID, ErrEntityNotRegistered)
	}

	reg := found[0].Asset.Entity
	rebuilt := Entity{
		Type:    reg.Type,
		SubType: reg.SubType,
		Data:    reg.Data,
	}

	updates, err := h.History.FindManyByCriteria(ctx, criteria(TypeEntity, tx.SenderPublicKey, func(p database.Transaction) bool {
		return p.Asset != nil && p.Asset.Entity != nil &&
			p.Asset.Entity.Action == EntityUpdate &&
			p.Asset.Entity.RegistrationID == regID
	}))
	if err != nil {
		return Entity{}, err
	}

	for _, u := range updates {
		if u.ID == tx.ID {
			break
		}
		rebuilt.Data = mergeEntityData(rebuilt.Data, u.Asset.Entity.Data)
	}

	return rebuilt, nil
}

// =============================================================================

// StaticFeeMismatchError is returned when an entity transaction does not pay
// the static fee of its action.
type StaticFeeMismatchError struct {
	Fee *big.Int
}

// Error implements the error interface.
func (e *StaticFeeMismatchError) Error() string {
	return fmt.Sprintf("Failed to apply transaction, because fee doesn't match static fee %s.", e.Fee)
}

// Is makes the error match transactions.ErrValidation.
func (e *StaticFeeMismatchError) Is(target error) bool {
	return target == transactions.ErrValidation
}

// =============================================================================

func entityFee(tx database.Transaction) *big.Int {
	if tx.Asset != nil && tx.Asset.Entity != nil && tx.Asset.Entity.Action == EntityRegister {
		return new(big.Int).Set(EntityRegisterFee)
	}
	return new(big.Int).Set(EntityUpdateFee)
}

func entityKey(id string) string {
	return "entities." + id
}

func entityNameKey(typ uint8, subType uint8, name string) string {
	return fmt.Sprintf("%d:%d:%s", typ, subType, strings.ToLower(name))
}

func entities(w *wallets.Wallet) map[string]any {
	return wallets.AttrOr(w, "entities", map[string]any{})
}

func entity(w *wallets.Wallet, id string) (Entity, bool) {
	if id == "" {
		return Entity{}, false
	}
	return wallets.Attr[Entity](w, entityKey(id))
}

// applyEntity records the entity action of the transaction on the wallet.
func applyEntity(w *wallets.Wallet, tx database.Transaction) error {
	asset := tx.Asset.Entity

	switch asset.Action {
	case EntityRegister:
		return w.SetAttribute(entityKey(tx.ID), Entity{
			Type:    asset.Type,
			SubType: asset.SubType,
			Data:    asset.Data,
		})

	case EntityUpdate:
		current, exists := entity(w, asset.RegistrationID)
		if !exists {
			return ErrEntityNotRegistered
		}
		current.Data = mergeEntityData(current.Data, asset.Data)
		return w.SetAttribute(entityKey(asset.RegistrationID), current)

	case EntityResign:
		current, exists := entity(w, asset.RegistrationID)
		if !exists {
			return ErrEntityNotRegistered
		}
		current.Resigned = true
		return w.SetAttribute(entityKey(asset.RegistrationID), current)
	}

	return ErrEntityUnknownAction
}

func mergeEntityData(dst database.EntityData, src database.EntityData) database.EntityData {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.IpfsData != "" {
		dst.IpfsData = src.IpfsData
	}
	return dst
}
