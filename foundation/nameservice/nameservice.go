// Package nameservice reads a folder of key files and maps the ledger
// addresses of the keys to the file names.
package nameservice

import (
	"crypto/ecdsa"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains the names of the addresses found in a key folder.
type NameService struct {
	names map[string]string
	keys  map[string]*ecdsa.PrivateKey
}

// New constructs a name service with the *.ecdsa files found under root.
// The file name without the extension is the name of the address.
func New(root string) (*NameService, error) {
	ns := NameService{
		names: make(map[string]string),
		keys:  make(map[string]*ecdsa.PrivateKey),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		address, err := signature.AddressFromPublicKey(signature.PublicKeyHex(privateKey.PublicKey))
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(filepath.Base(fileName), ".ecdsa")
		ns.names[address] = name
		ns.keys[name] = privateKey

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the address, or the address itself when it
// has no name.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.names[address]
	if !exists {
		return address
	}
	return name
}

// Key returns the private key stored under the name.
func (ns *NameService) Key(name string) (*ecdsa.PrivateKey, error) {
	key, exists := ns.keys[name]
	if !exists {
		return nil, fmt.Errorf("no key named %q", name)
	}
	return key, nil
}

// Copy returns a copy of the map of addresses and names.
func (ns *NameService) Copy() map[string]string {
	return maps.Clone(ns.names)
}
