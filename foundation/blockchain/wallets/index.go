package wallets

import (
	"maps"
	"slices"
	"sync"
)

// Set of known index names.
const (
	IndexAddresses    = "addresses"
	IndexPublicKeys   = "publicKeys"
	IndexUsernames    = "usernames"
	IndexResignations = "resignations"
	IndexLocks        = "locks"
	IndexIpfs         = "ipfs"
)

// Indexer returns the keys a wallet is reachable by in an index.
type Indexer func(w *Wallet) []string

// IndexDefinition names an index and how it derives keys.
type IndexDefinition struct {
	Name    string
	Indexer Indexer
}

// CoreIndexes returns the index definitions every store carries.
func CoreIndexes() []IndexDefinition {
	return []IndexDefinition{
		{Name: IndexAddresses, Indexer: func(w *Wallet) []string {
			return []string{w.Address()}
		}},
		{Name: IndexPublicKeys, Indexer: func(w *Wallet) []string {
			if pk := w.PublicKey(); pk != "" {
				return []string{pk}
			}
			return nil
		}},
		{Name: IndexUsernames, Indexer: func(w *Wallet) []string {
			if username, ok := Attr[string](w, "delegate.username"); ok {
				return []string{username}
			}
			return nil
		}},
		{Name: IndexResignations, Indexer: func(w *Wallet) []string {
			if !w.IsResigned() {
				return nil
			}
			if username, ok := Attr[string](w, "delegate.username"); ok {
				return []string{username}
			}
			return nil
		}},
		{Name: IndexLocks, Indexer: func(w *Wallet) []string {
			return attrKeys(w, "htlc.locks")
		}},
		{Name: IndexIpfs, Indexer: func(w *Wallet) []string {
			return attrKeys(w, "ipfs.hashes")
		}},
	}
}

// attrKeys returns the keys of the object attribute at key.
func attrKeys(w *Wallet, key string) []string {
	m, ok := Attr[map[string]any](w, key)
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(m))
}

// =============================================================================

// Index is a named lookup table from a derived key to a wallet.
type Index struct {
	mu      sync.RWMutex
	name    string
	indexer Indexer
	wallets map[string]*Wallet
	keys    map[string][]string
}

func newIndex(def IndexDefinition) *Index {
	return &Index{
		name:    def.Name,
		indexer: def.Indexer,
		wallets: make(map[string]*Wallet),
		keys:    make(map[string][]string),
	}
}

// Name returns the name of the index.
func (idx *Index) Name() string {
	return idx.name
}

// Get returns the wallet stored under the key.
func (idx *Index) Get(key string) (*Wallet, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	w, exists := idx.wallets[key]
	return w, exists
}

// Has reports whether the key is present.
func (idx *Index) Has(key string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, exists := idx.wallets[key]
	return exists
}

// Set stores the wallet under the key.
func (idx *Index) Set(key string, w *Wallet) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.set(key, w)
}

// Forget removes the key.
func (idx *Index) Forget(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	w, exists := idx.wallets[key]
	if !exists {
		return
	}

	delete(idx.wallets, key)
	addr := w.Address()
	idx.keys[addr] = slices.DeleteFunc(idx.keys[addr], func(k string) bool { return k == key })
}

// Keys returns every key in sorted order.
func (idx *Index) Keys() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return slices.Sorted(maps.Keys(idx.wallets))
}

// Values returns the distinct wallets of the index ordered by address.
func (idx *Index) Values() []*Wallet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]*Wallet, len(idx.wallets))
	for _, w := range idx.wallets {
		seen[w.Address()] = w
	}

	wallets := make([]*Wallet, 0, len(seen))
	for _, addr := range slices.Sorted(maps.Keys(seen)) {
		wallets = append(wallets, seen[addr])
	}

	return wallets
}

// Entries returns a copy of the key to wallet mapping.
func (idx *Index) Entries() map[string]*Wallet {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return maps.Clone(idx.wallets)
}

// Len returns the number of keys.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.wallets)
}

// Index recomputes the keys of the wallet, dropping the keys it no longer
// derives.
func (idx *Index) Index(w *Wallet) {
	keys := idx.indexer(w)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	addr := w.Address()
	for _, old := range idx.keys[addr] {
		if !slices.Contains(keys, old) && idx.wallets[old] == w {
			delete(idx.wallets, old)
		}
	}
	delete(idx.keys, addr)

	for _, key := range keys {
		idx.set(key, w)
	}
}

// Clear drops every key.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	clear(idx.wallets)
	clear(idx.keys)
}

func (idx *Index) set(key string, w *Wallet) {
	if prev, exists := idx.wallets[key]; exists && prev != w {
		paddr := prev.Address()
		idx.keys[paddr] = slices.DeleteFunc(idx.keys[paddr], func(k string) bool { return k == key })
	}

	idx.wallets[key] = w

	addr := w.Address()
	if !slices.Contains(idx.keys[addr], key) {
		idx.keys[addr] = append(idx.keys[addr], key)
	}
}
