package wallets

import (
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strings"
	"sync"

	"github.com/holiman/uint256"
)

// ErrUnknownAttribute is returned when a wallet attribute is set that no
// handler has registered.
var ErrUnknownAttribute = errors.New("unknown wallet attribute")

// Cloner is implemented by attribute values holding references that need to
// be copied when a wallet is cloned.
type Cloner interface {
	CloneAttribute() any
}

// AttributeSet holds the attribute names wallets are allowed to carry. A key
// is allowed when it or one of its dotted parents is registered.
type AttributeSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewAttributeSet constructs a set with the specified names registered.
func NewAttributeSet(names ...string) *AttributeSet {
	as := AttributeSet{
		names: make(map[string]struct{}),
	}
	as.Register(names...)

	return &as
}

// Register adds the names to the set. Registering a name twice is a no-op.
func (as *AttributeSet) Register(names ...string) {
	as.mu.Lock()
	defer as.mu.Unlock()

	for _, name := range names {
		as.names[name] = struct{}{}
	}
}

// Has reports whether the exact name is registered.
func (as *AttributeSet) Has(name string) bool {
	as.mu.RLock()
	defer as.mu.RUnlock()

	_, exists := as.names[name]
	return exists
}

// Allows reports whether the key or one of its parents is registered.
func (as *AttributeSet) Allows(key string) bool {
	as.mu.RLock()
	defer as.mu.RUnlock()

	for k := key; ; {
		if _, exists := as.names[k]; exists {
			return true
		}

		i := strings.LastIndexByte(k, '.')
		if i < 0 {
			return false
		}
		k = k[:i]
	}
}

// Names returns the registered names in sorted order.
func (as *AttributeSet) Names() []string {
	as.mu.RLock()
	defer as.mu.RUnlock()

	return slices.Sorted(maps.Keys(as.names))
}

// =============================================================================

// attrMap is a nested bag addressed by dotted paths.
type attrMap map[string]any

func (a attrMap) get(key string) (any, bool) {
	parts := strings.Split(key, ".")

	var node map[string]any = a
	for i, part := range parts {
		v, exists := node[part]
		if !exists {
			return nil, false
		}

		if i == len(parts)-1 {
			return v, true
		}

		child, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		node = child
	}

	return nil, false
}

func (a attrMap) set(key string, value any) error {
	parts := strings.Split(key, ".")

	var node map[string]any = a
	for _, part := range parts[:len(parts)-1] {
		v, exists := node[part]
		if !exists {
			child := make(map[string]any)
			node[part] = child
			node = child
			continue
		}

		child, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("attribute %q: %q is not an object", key, part)
		}
		node = child
	}

	node[parts[len(parts)-1]] = value
	return nil
}

func (a attrMap) forget(key string) bool {
	parts := strings.Split(key, ".")

	var node map[string]any = a
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			return false
		}
		node = child
	}

	last := parts[len(parts)-1]
	if _, exists := node[last]; !exists {
		return false
	}

	delete(node, last)
	return true
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, child := range v {
			m[k] = cloneValue(child)
		}
		return m
	case attrMap:
		return attrMap(cloneValue(map[string]any(v)).(map[string]any))
	case *big.Int:
		if v == nil {
			return v
		}
		return new(big.Int).Set(v)
	case *uint256.Int:
		if v == nil {
			return v
		}
		return v.Clone()
	case []string:
		return slices.Clone(v)
	case Cloner:
		return v.CloneAttribute()
	}

	return v
}
