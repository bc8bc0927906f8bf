package transactions

import (
	"slices"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

// Registry resolves the handler of a transaction kind. Handlers are
// registered once at startup, dependencies first.
type Registry struct {
	mu         sync.RWMutex
	attributes *wallets.AttributeSet
	handlers   map[Kind]Handler
	order      []Handler
}

// NewRegistry constructs an empty registry that records the wallet
// attributes of every registered handler in the attribute set.
func NewRegistry(attributes *wallets.AttributeSet) *Registry {
	return &Registry{
		attributes: attributes,
		handlers:   make(map[Kind]Handler),
	}
}

// Register adds the handler. Every dependency must already be registered.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := h.Kind()
	if _, exists := r.handlers[kind]; exists {
		return &KindError{Kind: kind, Err: ErrAlreadyRegistered}
	}

	for _, dep := range h.Dependencies() {
		if _, exists := r.handlers[dep]; !exists {
			return &KindError{Kind: kind, Err: ErrUnsatisfiedDependency}
		}
	}

	if r.attributes != nil {
		r.attributes.Register(h.WalletAttributes()...)
	}

	r.handlers[kind] = h
	r.order = append(r.order, h)

	return nil
}

// Handler returns the handler registered for the kind.
func (r *Registry) Handler(kind Kind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[kind]
	if !exists {
		return nil, &KindError{Kind: kind, Err: ErrInvalidTransactionType}
	}

	return h, nil
}

// ActivatedHandler returns the handler of the transaction when it is active
// under the milestone.
func (r *Registry) ActivatedHandler(tx database.Transaction, m milestones.Milestone) (Handler, error) {
	h, err := r.Handler(KindOf(tx))
	if err != nil {
		return nil, err
	}

	if !h.IsActivated(m) {
		return nil, &KindError{Kind: h.Kind(), Err: ErrDeactivatedHandler}
	}

	return h, nil
}

// Handlers returns the handlers in registration order.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

// =============================================================================

// RegisterCore registers the handlers of the core type group.
func RegisterCore(r *Registry, env Env) error {
	handlers := []Handler{
		NewTransfer(env, 1),
		NewTransfer(env, 2),
		NewSecondSignature(env, 1),
		NewSecondSignature(env, 2),
		NewDelegateRegistration(env, 1),
		NewDelegateRegistration(env, 2),
		NewVote(env, 1),
		NewVote(env, 2),
		NewLegacyMultiSignature(env),
		NewMultiSignature(env),
		NewIpfs(env),
		NewMultiPayment(env),
		NewDelegateResignation(env),
		NewHtlcLock(env),
		NewHtlcClaim(env),
		NewHtlcRefund(env),
	}

	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return err
		}
	}

	return nil
}
