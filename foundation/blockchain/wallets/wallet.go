// Package wallets maintains the account state of the ledger: the wallets,
// their secondary indexes and the copy on write overlay used for speculative
// validation.
package wallets

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

// Wallet is the account record for a single address. All access is safe for
// concurrent use.
type Wallet struct {
	mu        sync.RWMutex
	address   string
	publicKey string
	balance   *big.Int
	nonce     *uint256.Int
	attrs     attrMap
	set       *AttributeSet
}

// NewWallet constructs an empty wallet for the address. A nil attribute set
// allows every attribute.
func NewWallet(address string, set *AttributeSet) *Wallet {
	return &Wallet{
		address: address,
		balance: new(big.Int),
		nonce:   new(uint256.Int),
		attrs:   make(attrMap),
		set:     set,
	}
}

// Address returns the address of the wallet.
func (w *Wallet) Address() string {
	return w.address
}

// PublicKey returns the public key bound to the wallet, empty when unknown.
func (w *Wallet) PublicKey() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.publicKey
}

// SetPublicKey binds the public key. A wallet can only be bound once.
func (w *Wallet) SetPublicKey(publicKey string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.publicKey != "" && w.publicKey != publicKey {
		return fmt.Errorf("wallet %s is already bound to public key %s", w.address, w.publicKey)
	}

	w.publicKey = publicKey
	return nil
}

// Balance returns a copy of the balance.
func (w *Wallet) Balance() *big.Int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return new(big.Int).Set(w.balance)
}

// SetBalance replaces the balance.
func (w *Wallet) SetBalance(balance *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balance = new(big.Int).Set(balance)
}

// IncreaseBalance adds the amount to the balance.
func (w *Wallet) IncreaseBalance(amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balance = new(big.Int).Add(w.balance, amount)
}

// DecreaseBalance subtracts the amount from the balance. The balance is
// allowed to go negative; callers validate before applying.
func (w *Wallet) DecreaseBalance(amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balance = new(big.Int).Sub(w.balance, amount)
}

// Nonce returns a copy of the nonce.
func (w *Wallet) Nonce() *uint256.Int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.nonce.Clone()
}

// SetNonce replaces the nonce.
func (w *Wallet) SetNonce(nonce *uint256.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nonce = nonce.Clone()
}

// IncreaseNonce advances the nonce by one.
func (w *Wallet) IncreaseNonce() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nonce = new(uint256.Int).AddUint64(w.nonce, 1)
}

// DecreaseNonce moves the nonce back by one. It fails on a zero nonce.
func (w *Wallet) DecreaseNonce() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.nonce.IsZero() {
		return fmt.Errorf("wallet %s: nonce can not go below zero", w.address)
	}

	w.nonce = new(uint256.Int).SubUint64(w.nonce, 1)
	return nil
}

// HasAttribute reports whether the dotted key is present.
func (w *Wallet) HasAttribute(key string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	_, exists := w.attrs.get(key)
	return exists
}

// GetAttribute returns a copy of the value stored at the dotted key.
func (w *Wallet) GetAttribute(key string) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	v, exists := w.attrs.get(key)
	if !exists {
		return nil, false
	}

	return cloneValue(v), true
}

// SetAttribute stores the value at the dotted key.
func (w *Wallet) SetAttribute(key string, value any) error {
	if w.set != nil && !w.set.Allows(key) {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, key)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return w.attrs.set(key, cloneValue(value))
}

// ForgetAttribute removes the dotted key and reports whether it existed.
func (w *Wallet) ForgetAttribute(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.attrs.forget(key)
}

// Attributes returns a copy of every attribute.
func (w *Wallet) Attributes() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return cloneValue(map[string]any(w.attrs)).(map[string]any)
}

// IsDelegate reports whether the wallet registered as a delegate.
func (w *Wallet) IsDelegate() bool {
	return w.HasAttribute("delegate")
}

// IsResigned reports whether the delegate of the wallet resigned.
func (w *Wallet) IsResigned() bool {
	return AttrOr(w, "delegate.resigned", false)
}

// HasVoted reports whether the wallet votes for a delegate.
func (w *Wallet) HasVoted() bool {
	return w.HasAttribute("vote")
}

// HasSecondSignature reports whether the wallet registered a second key.
func (w *Wallet) HasSecondSignature() bool {
	return w.HasAttribute("secondPublicKey")
}

// HasMultiSignature reports whether the wallet is a multisignature wallet.
func (w *Wallet) HasMultiSignature() bool {
	return w.HasAttribute("multiSignature")
}

// Clone returns a deep copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &Wallet{
		address:   w.address,
		publicKey: w.publicKey,
		balance:   new(big.Int).Set(w.balance),
		nonce:     w.nonce.Clone(),
		attrs:     cloneValue(w.attrs).(attrMap),
		set:       w.set,
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (w *Wallet) MarshalJSON() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	wallet := struct {
		Address    string         `json:"address"`
		PublicKey  string         `json:"publicKey,omitempty"`
		Balance    *big.Int       `json:"balance"`
		Nonce      *uint256.Int   `json:"nonce"`
		Attributes map[string]any `json:"attributes"`
	}{
		Address:    w.address,
		PublicKey:  w.publicKey,
		Balance:    w.balance,
		Nonce:      w.nonce,
		Attributes: w.attrs,
	}

	return json.Marshal(wallet)
}

// =============================================================================

// Attr returns the attribute at key when it holds a value of type T.
func Attr[T any](w *Wallet, key string) (T, bool) {
	var zero T

	v, exists := w.GetAttribute(key)
	if !exists {
		return zero, false
	}

	t, ok := v.(T)
	if !ok {
		return zero, false
	}

	return t, true
}

// AttrOr returns the attribute at key or def when it is missing.
func AttrOr[T any](w *Wallet, key string, def T) T {
	if t, ok := Attr[T](w, key); ok {
		return t
	}
	return def
}

// BigAttr returns the big integer attribute at key, zero when missing.
func BigAttr(w *Wallet, key string) *big.Int {
	if v, ok := Attr[*big.Int](w, key); ok && v != nil {
		return v
	}
	return new(big.Int)
}
