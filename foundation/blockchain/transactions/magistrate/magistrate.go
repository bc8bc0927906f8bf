// Package magistrate implements the business, bridgechain and entity
// transaction types of the magistrate type group.
package magistrate

import (
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

// Magistrate transaction types.
const (
	TypeBusinessRegistration    uint16 = 0
	TypeBusinessResignation     uint16 = 1
	TypeBusinessUpdate          uint16 = 2
	TypeBridgechainRegistration uint16 = 3
	TypeBridgechainResignation  uint16 = 4
	TypeBridgechainUpdate       uint16 = 5
	TypeEntity                  uint16 = 6
)

// Set of wallet indexes the magistrate types maintain.
const (
	IndexBusinesses   = "businesses"
	IndexBridgechains = "bridgechains"
	IndexEntities     = "entities"
	IndexEntityNames  = "entityNames"
)

var portKey = regexp.MustCompile(`^(?:@[a-z0-9-*~][a-z0-9-*._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)

// Indexes returns the wallet index definitions the magistrate types need.
// They are passed to wallets.NewRepository.
func Indexes() []wallets.IndexDefinition {
	return []wallets.IndexDefinition{
		{Name: IndexBusinesses, Indexer: func(w *wallets.Wallet) []string {
			if pk := w.PublicKey(); pk != "" && w.HasAttribute("business") {
				return []string{pk}
			}
			return nil
		}},
		{Name: IndexBridgechains, Indexer: func(w *wallets.Wallet) []string {
			return slices.Sorted(maps.Keys(bridgechains(w)))
		}},
		{Name: IndexEntities, Indexer: func(w *wallets.Wallet) []string {
			return slices.Sorted(maps.Keys(entities(w)))
		}},

		// Names are kept per type and sub type, resigned entities included.
		{Name: IndexEntityNames, Indexer: func(w *wallets.Wallet) []string {
			var keys []string
			for _, v := range entities(w) {
				if e, ok := v.(Entity); ok {
					keys = append(keys, entityNameKey(e.Type, e.SubType, e.Data.Name))
				}
			}
			slices.Sort(keys)
			return keys
		}},
	}
}

// Register registers the magistrate handlers, dependencies first.
func Register(r *transactions.Registry, env transactions.Env) error {
	handlers := []transactions.Handler{
		NewBusinessRegistration(env),
		NewBusinessResignation(env),
		NewBusinessUpdate(env),
		NewBridgechainRegistration(env),
		NewBridgechainResignation(env),
		NewBridgechainUpdate(env),
		NewEntity(env),
	}

	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

type base struct {
	transactions.Base
}

func newBase(env transactions.Env, typ uint16) base {
	return base{transactions.NewBase(env, database.TypeGroupMagistrate, typ, 2)}
}

// IsActivated implements the transactions.Handler interface.
func (b base) IsActivated(m milestones.Milestone) bool {
	return m.AIP11 && m.MagistrateEnabled
}

func kind(typ uint16) transactions.Kind {
	return transactions.Kind{TypeGroup: database.TypeGroupMagistrate, Type: typ, Version: 2}
}

func criteria(typ uint16, sender string, match func(tx database.Transaction) bool) database.Criteria {
	return database.Criteria{
		TypeGroup:       database.TypeGroupMagistrate,
		Type:            typ,
		SenderPublicKey: sender,
		Match:           match,
	}
}

// =============================================================================

func businessAsset(w *wallets.Wallet) (database.BusinessAsset, bool) {
	return wallets.Attr[database.BusinessAsset](w, "business.businessAsset")
}

func businessResigned(w *wallets.Wallet) bool {
	return wallets.AttrOr(w, "business.resigned", false)
}

func bridgechains(w *wallets.Wallet) map[string]any {
	return wallets.AttrOr(w, "business.bridgechains", map[string]any{})
}

func bridgechainKey(id string, field string) string {
	return fmt.Sprintf("business.bridgechains.%s.%s", id, field)
}

func bridgechainAsset(w *wallets.Wallet, id string) (database.BridgechainAsset, bool) {
	return wallets.Attr[database.BridgechainAsset](w, bridgechainKey(id, "bridgechainAsset"))
}

func bridgechainResigned(w *wallets.Wallet, id string) bool {
	return wallets.AttrOr(w, bridgechainKey(id, "resigned"), false)
}

func verifyPorts(ports map[string]int) error {
	for name := range ports {
		if !portKey.MatchString(name) {
			return ErrPortKeyMustBeValidPackageName
		}
	}
	return nil
}

func mergeBusiness(dst database.BusinessAsset, src database.BusinessAsset) database.BusinessAsset {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Website != "" {
		dst.Website = src.Website
	}
	if src.Vat != "" {
		dst.Vat = src.Vat
	}
	if src.Repository != "" {
		dst.Repository = src.Repository
	}
	return dst
}

func mergeBridgechain(dst database.BridgechainAsset, src database.BridgechainUpdateAsset) database.BridgechainAsset {
	if len(src.SeedNodes) > 0 {
		dst.SeedNodes = slices.Clone(src.SeedNodes)
	}
	if len(src.Ports) > 0 {
		dst.Ports = maps.Clone(src.Ports)
	}
	if src.BridgechainRepository != "" {
		dst.BridgechainRepository = src.BridgechainRepository
	}
	if src.BridgechainAssetRepository != "" {
		dst.BridgechainAssetRepository = src.BridgechainAssetRepository
	}
	return dst
}
