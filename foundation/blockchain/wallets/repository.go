package wallets

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/holiman/uint256"
)

// Set of error variables for wallet lookups.
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrIndexNotFound  = errors.New("index not found")
)

// NotFoundError is returned when a secondary lookup misses.
type NotFoundError struct {
	Key     string
	Indexes []string
	Scope   Scope
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("A wallet with the ID [%s] does not exist in the [%s] scope.", e.Key, e.Scope)
	}
	return fmt.Sprintf("A wallet with the ID [%s] does not exist in the [%s] index.", e.Key, strings.Join(e.Indexes, ","))
}

// Is makes the error match ErrWalletNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrWalletNotFound
}

// Scope selects the indexes FindByScope searches.
type Scope string

// Set of supported scopes.
const (
	ScopeWallets   Scope = "wallets"
	ScopeDelegates Scope = "delegates"
)

var scopeIndexes = []string{IndexUsernames, IndexAddresses, IndexPublicKeys}

// =============================================================================

// Store is the behavior the handlers and the state layer need from a wallet
// store. Both the canonical Repository and the CopyOnWrite overlay satisfy it.
type Store interface {
	FindByAddress(address string) *Wallet
	FindByPublicKey(publicKey string) (*Wallet, error)
	FindByUsername(username string) (*Wallet, error)
	FindByIndex(index string, key string) (*Wallet, error)
	FindByIndexes(indexes []string, key string) (*Wallet, error)
	FindByScope(scope Scope, id string) (*Wallet, error)
	Has(address string) bool
	HasByPublicKey(publicKey string) bool
	HasByUsername(username string) bool
	HasByIndex(index string, key string) bool
	GetIndex(name string) (*Index, error)
	GetIndexNames() []string
	AllByAddress() []*Wallet
	AllByPublicKey() []*Wallet
	AllByUsername() []*Wallet
	AllByIndex(index string) ([]*Wallet, error)
	GetNonce(publicKey string) *uint256.Int
	Index(wallets ...*Wallet)
	Reset()
}

// =============================================================================

// Repository is the canonical wallet store.
type Repository struct {
	mu         sync.RWMutex
	attributes *AttributeSet
	defs       []IndexDefinition
	indexes    map[string]*Index
	names      []string
}

// NewRepository constructs a store with the core indexes plus any extra
// index definitions.
func NewRepository(attributes *AttributeSet, extra ...IndexDefinition) (*Repository, error) {
	defs := append(CoreIndexes(), extra...)

	r := Repository{
		attributes: attributes,
		defs:       defs,
		indexes:    make(map[string]*Index, len(defs)),
	}

	for _, def := range defs {
		if _, exists := r.indexes[def.Name]; exists {
			return nil, fmt.Errorf("wallet index %q is already registered", def.Name)
		}
		r.indexes[def.Name] = newIndex(def)
		r.names = append(r.names, def.Name)
	}

	return &r, nil
}

// Attributes returns the attribute set wallets of this store use.
func (r *Repository) Attributes() *AttributeSet {
	return r.attributes
}

// IndexDefinitions returns the definitions the store was built with.
func (r *Repository) IndexDefinitions() []IndexDefinition {
	return slices.Clone(r.defs)
}

// NewWallet constructs a wallet bound to the store's attribute set. The
// wallet is not stored until it is indexed.
func (r *Repository) NewWallet(address string) *Wallet {
	return NewWallet(address, r.attributes)
}

// FindByAddress returns the wallet for the address, creating and indexing an
// empty one when it is unknown.
func (r *Repository) FindByAddress(address string) *Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.findByAddress(address)
}

// FindByPublicKey returns the wallet owning the public key, binding the key
// to the wallet when it was unknown.
func (r *Repository) FindByPublicKey(publicKey string) (*Wallet, error) {
	r.mu.RLock()
	w, exists := r.indexes[IndexPublicKeys].Get(publicKey)
	r.mu.RUnlock()

	if exists {
		return w, nil
	}

	address, err := signature.AddressFromPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("deriving address: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w = r.findByAddress(address)
	if err := w.SetPublicKey(publicKey); err != nil {
		return nil, err
	}
	r.index(w)

	return w, nil
}

// FindByUsername returns the delegate registered with the username.
func (r *Repository) FindByUsername(username string) (*Wallet, error) {
	return r.FindByIndex(IndexUsernames, username)
}

// FindByIndex returns the wallet stored under the key in the named index.
func (r *Repository) FindByIndex(index string, key string) (*Wallet, error) {
	return r.FindByIndexes([]string{index}, key)
}

// FindByIndexes searches the indexes in order and returns the first hit.
func (r *Repository) FindByIndexes(indexes []string, key string) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range indexes {
		idx, err := r.getIndex(name)
		if err != nil {
			return nil, err
		}

		if w, exists := idx.Get(key); exists {
			return w, nil
		}
	}

	return nil, &NotFoundError{Key: key, Indexes: indexes}
}

// FindByScope searches usernames, addresses and public keys. The delegates
// scope only matches delegate wallets.
func (r *Repository) FindByScope(scope Scope, id string) (*Wallet, error) {
	return findByScope(r, scope, id)
}

// Has reports whether a wallet exists for the address.
func (r *Repository) Has(address string) bool {
	return r.HasByIndex(IndexAddresses, address)
}

// HasByPublicKey reports whether a wallet is bound to the public key.
func (r *Repository) HasByPublicKey(publicKey string) bool {
	return r.HasByIndex(IndexPublicKeys, publicKey)
}

// HasByUsername reports whether a delegate uses the username.
func (r *Repository) HasByUsername(username string) bool {
	return r.HasByIndex(IndexUsernames, username)
}

// HasByIndex reports whether the key exists in the named index. Unknown
// indexes report false.
func (r *Repository) HasByIndex(index string, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, err := r.getIndex(index)
	if err != nil {
		return false
	}

	return idx.Has(key)
}

// GetIndex returns the named index.
func (r *Repository) GetIndex(name string) (*Index, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.getIndex(name)
}

// GetIndexNames returns the index names in registration order.
func (r *Repository) GetIndexNames() []string {
	return slices.Clone(r.names)
}

// AllByAddress returns every wallet.
func (r *Repository) AllByAddress() []*Wallet {
	w, _ := r.AllByIndex(IndexAddresses)
	return w
}

// AllByPublicKey returns every wallet with a bound public key.
func (r *Repository) AllByPublicKey() []*Wallet {
	w, _ := r.AllByIndex(IndexPublicKeys)
	return w
}

// AllByUsername returns every delegate.
func (r *Repository) AllByUsername() []*Wallet {
	w, _ := r.AllByIndex(IndexUsernames)
	return w
}

// AllByIndex returns the distinct wallets of the named index.
func (r *Repository) AllByIndex(index string) ([]*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, err := r.getIndex(index)
	if err != nil {
		return nil, err
	}

	return idx.Values(), nil
}

// GetNonce returns the nonce of the wallet bound to the public key, zero
// when no wallet is bound to it.
func (r *Repository) GetNonce(publicKey string) *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.indexes[IndexPublicKeys].Get(publicKey)
	if !exists {
		return new(uint256.Int)
	}

	return w.Nonce()
}

// Index recomputes every index entry of the wallets.
func (r *Repository) Index(wallets ...*Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range wallets {
		r.index(w)
	}
}

// Reset drops every wallet.
func (r *Repository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, idx := range r.indexes {
		idx.Clear()
	}
}

// =============================================================================

func (r *Repository) findByAddress(address string) *Wallet {
	idx := r.indexes[IndexAddresses]

	if w, exists := idx.Get(address); exists {
		return w
	}

	w := NewWallet(address, r.attributes)
	r.index(w)

	return w
}

// empty returns a store with the same attributes and indexes and no
// wallets.
func (r *Repository) empty() *Repository {
	e := Repository{
		attributes: r.attributes,
		defs:       r.defs,
		indexes:    make(map[string]*Index, len(r.defs)),
		names:      r.names,
	}

	for _, def := range r.defs {
		e.indexes[def.Name] = newIndex(def)
	}

	return &e
}

// insert stores a wallet built elsewhere, replacing whatever the store held
// for its address.
func (r *Repository) insert(w *Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.index(w)
}

func (r *Repository) index(w *Wallet) {
	for _, name := range r.names {
		r.indexes[name].Index(w)
	}
}

func (r *Repository) getIndex(name string) (*Index, error) {
	idx, exists := r.indexes[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	return idx, nil
}

// =============================================================================

type indexFinder interface {
	FindByIndexes(indexes []string, key string) (*Wallet, error)
}

func findByScope(f indexFinder, scope Scope, id string) (*Wallet, error) {
	switch scope {
	case ScopeWallets:
		return f.FindByIndexes(scopeIndexes, id)

	case ScopeDelegates:
		w, err := f.FindByIndexes(scopeIndexes, id)
		if err == nil && w.IsDelegate() {
			return w, nil
		}
	}

	return nil, &NotFoundError{Key: id, Scope: scope}
}

func (r *Repository) lookup(index string, key string) (*Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, exists := r.indexes[index]
	if !exists {
		return nil, false
	}

	return idx.Get(key)
}
