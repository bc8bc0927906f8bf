package wallets

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/holiman/uint256"
)

// CopyOnWrite is a speculative store over a canonical Repository. Wallets are
// cloned into a private overlay the first time they are looked up, so writes
// through it never reach the canonical store.
type CopyOnWrite struct {
	mu        sync.Mutex
	canonical *Repository
	overlay   *Repository
}

// NewCopyOnWrite constructs an overlay over the canonical store.
func NewCopyOnWrite(canonical *Repository) *CopyOnWrite {
	return &CopyOnWrite{
		canonical: canonical,
		overlay:   canonical.empty(),
	}
}

// FindByAddress returns the overlay copy of the wallet for the address.
func (c *CopyOnWrite) FindByAddress(address string) *Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.findByAddress(address)
}

// FindByPublicKey returns the overlay copy of the wallet owning the key.
func (c *CopyOnWrite) FindByPublicKey(publicKey string) (*Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, exists := c.overlay.lookup(IndexPublicKeys, publicKey); exists {
		return w, nil
	}

	address, err := signature.AddressFromPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("deriving address: %w", err)
	}

	c.findByAddress(address)

	return c.overlay.FindByPublicKey(publicKey)
}

// FindByUsername returns the overlay copy of the delegate.
func (c *CopyOnWrite) FindByUsername(username string) (*Wallet, error) {
	return c.FindByIndex(IndexUsernames, username)
}

// FindByIndex returns the overlay copy of the wallet stored under the key.
func (c *CopyOnWrite) FindByIndex(index string, key string) (*Wallet, error) {
	return c.FindByIndexes([]string{index}, key)
}

// FindByIndexes searches the indexes in order. A wallet already cloned into
// the overlay is only matched by its overlay keys.
func (c *CopyOnWrite) FindByIndexes(indexes []string, key string) (*Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range indexes {
		if _, err := c.canonical.GetIndex(name); err != nil {
			return nil, err
		}

		if w, exists := c.overlay.lookup(name, key); exists {
			return w, nil
		}

		cw, exists := c.canonical.lookup(name, key)
		if !exists || c.overlay.Has(cw.Address()) {
			continue
		}

		return c.cloneIn(cw), nil
	}

	return nil, &NotFoundError{Key: key, Indexes: indexes}
}

// FindByScope searches usernames, addresses and public keys.
func (c *CopyOnWrite) FindByScope(scope Scope, id string) (*Wallet, error) {
	return findByScope(c, scope, id)
}

// Has reports whether a wallet exists for the address in either store.
func (c *CopyOnWrite) Has(address string) bool {
	return c.HasByIndex(IndexAddresses, address)
}

// HasByPublicKey reports whether a wallet is bound to the public key.
func (c *CopyOnWrite) HasByPublicKey(publicKey string) bool {
	return c.HasByIndex(IndexPublicKeys, publicKey)
}

// HasByUsername reports whether a delegate uses the username.
func (c *CopyOnWrite) HasByUsername(username string) bool {
	return c.HasByIndex(IndexUsernames, username)
}

// HasByIndex reports whether the key resolves through the overlay or through
// a canonical wallet the overlay has not cloned yet.
func (c *CopyOnWrite) HasByIndex(index string, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay.HasByIndex(index, key) {
		return true
	}

	cw, exists := c.canonical.lookup(index, key)
	if !exists {
		return false
	}

	return !c.overlay.Has(cw.Address())
}

// GetIndex returns the overlay index after cloning every canonical wallet it
// references.
func (c *CopyOnWrite) GetIndex(name string) (*Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cloneIndex(name); err != nil {
		return nil, err
	}

	return c.overlay.GetIndex(name)
}

// GetIndexNames returns the index names in registration order.
func (c *CopyOnWrite) GetIndexNames() []string {
	return c.canonical.GetIndexNames()
}

// AllByAddress returns overlay copies of every wallet.
func (c *CopyOnWrite) AllByAddress() []*Wallet {
	w, _ := c.AllByIndex(IndexAddresses)
	return w
}

// AllByPublicKey returns overlay copies of every wallet with a public key.
func (c *CopyOnWrite) AllByPublicKey() []*Wallet {
	w, _ := c.AllByIndex(IndexPublicKeys)
	return w
}

// AllByUsername returns the canonical delegates merged with the overlay.
func (c *CopyOnWrite) AllByUsername() []*Wallet {
	w, _ := c.AllByIndex(IndexUsernames)
	return w
}

// AllByIndex returns overlay copies of the wallets of the named index.
func (c *CopyOnWrite) AllByIndex(index string) ([]*Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cloneIndex(index); err != nil {
		return nil, err
	}

	return c.overlay.AllByIndex(index)
}

// GetNonce returns the nonce the overlay observes for the public key.
func (c *CopyOnWrite) GetNonce(publicKey string) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, exists := c.overlay.lookup(IndexPublicKeys, publicKey); exists {
		return w.Nonce()
	}

	return c.canonical.GetNonce(publicKey)
}

// Index recomputes the overlay index entries of the wallets.
func (c *CopyOnWrite) Index(wallets ...*Wallet) {
	c.overlay.Index(wallets...)
}

// Reset discards the overlay.
func (c *CopyOnWrite) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlay.Reset()
}

// =============================================================================

func (c *CopyOnWrite) findByAddress(address string) *Wallet {
	if w, exists := c.overlay.lookup(IndexAddresses, address); exists {
		return w
	}

	if cw, exists := c.canonical.lookup(IndexAddresses, address); exists {
		return c.cloneIn(cw)
	}

	return c.overlay.FindByAddress(address)
}

func (c *CopyOnWrite) cloneIn(cw *Wallet) *Wallet {
	w := cw.Clone()
	c.overlay.insert(w)
	return w
}

func (c *CopyOnWrite) cloneIndex(name string) error {
	idx, err := c.canonical.GetIndex(name)
	if err != nil {
		return err
	}

	for _, cw := range idx.Values() {
		if !c.overlay.Has(cw.Address()) {
			c.cloneIn(cw)
		}
	}

	return nil
}

// =============================================================================

// Ensure both stores satisfy the interface.
var (
	_ Store = (*Repository)(nil)
	_ Store = (*CopyOnWrite)(nil)
)
