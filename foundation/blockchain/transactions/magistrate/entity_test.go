package magistrate_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions/magistrate"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions/txtest"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

func Test_EntityRegister(t *testing.T) {
	registers := []struct {
		name  string
		asset database.EntityAsset
	}{
		{"business", database.EntityAsset{Type: magistrate.EntityBusiness, SubType: 0, Data: database.EntityData{Name: "my business"}}},
		{"bridgechain", database.EntityAsset{Type: magistrate.EntityBridgechain, SubType: 0, Data: database.EntityData{Name: "my bridgechain", IpfsData: "QmR45FmbVVrixReBwJkhEKde2qwHYaQzGxu4ZoDeswuF9w"}}},
		{"developer", database.EntityAsset{Type: magistrate.EntityDeveloper, SubType: 0, Data: database.EntityData{Name: "my developer"}}},
		{"plugin core", database.EntityAsset{Type: magistrate.EntityPlugin, SubType: 1, Data: database.EntityData{Name: "my plugin for core"}}},
		{"plugin desktop", database.EntityAsset{Type: magistrate.EntityPlugin, SubType: 2, Data: database.EntityData{Name: "my plugin for desktop"}}},
	}

	t.Log("Given the need to register entities.")
	{
		for testID, tt := range registers {
			tf := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen registering a %s entity.", testID, tt.name)
				{
					f := newFixture(t)
					a := fundedAccount(t, f)

					tx := entityTx(t, a, 1, tt.asset)
					if err := f.apply(tx); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould apply the registration : %v", failed, testID, err)
					}

					got := mustEntity(t, f.wallet(a), tx.ID)
					exp := magistrate.Entity{Type: tt.asset.Type, SubType: tt.asset.SubType, Data: tt.asset.Data}
					if got != exp {
						t.Fatalf("\t%s\tTest %d:\tShould set the wallet attribute : got %+v, exp %+v", failed, testID, got, exp)
					}
					if !f.wallets.HasByIndex(magistrate.IndexEntities, tx.ID) {
						t.Fatalf("\t%s\tTest %d:\tShould index the registration id.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould set the wallet attribute.", success, testID)

					again := entityTx(t, a, 2, tt.asset)
					if err := f.apply(again); !errors.Is(err, magistrate.ErrEntityNameAlreadyRegistered) {
						t.Fatalf("\t%s\tTest %d:\tShould reject the same name : %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the same name.", success, testID)

					if err := f.revert(tx); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould revert the registration : %v", failed, testID, err)
					}
					if _, ok := wallets.Attr[magistrate.Entity](f.wallet(a), "entities."+tx.ID); ok {
						t.Fatalf("\t%s\tTest %d:\tShould delete the wallet attribute.", failed, testID)
					}
					if f.wallets.HasByIndex(magistrate.IndexEntities, tx.ID) {
						t.Fatalf("\t%s\tTest %d:\tShould drop the registration id from the index.", failed, testID)
					}
					if n := f.wallet(a).Nonce().Uint64(); n != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould revert the nonce : got %d", failed, testID, n)
					}
					t.Logf("\t%s\tTest %d:\tShould delete the wallet attribute.", success, testID)
				}
			}

			t.Run(tt.name, tf)
		}
	}
}

func Test_EntityRules(t *testing.T) {
	const registrationID = "0x533384534cd561fc17f72be0bb57bf39961954ba0741f53c08e3f463ef19118c"

	registered := magistrate.Entity{Type: magistrate.EntityBusiness, SubType: 0, Data: database.EntityData{Name: "acme"}}

	rules := []struct {
		name     string
		existing *magistrate.Entity
		asset    database.EntityAsset
		fee      int64
		err      error
	}{
		{
			name:  "register fee mismatch",
			asset: database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityRegister, Data: database.EntityData{Name: "acme"}},
			fee:   4000,
		},
		{
			name:  "resign fee mismatch",
			asset: database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityResign, RegistrationID: registrationID},
			fee:   magistrate.EntityRegisterFee.Int64(),
		},
		{
			name:  "update not registered",
			asset: database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityUpdate, RegistrationID: registrationID},
			err:   magistrate.ErrEntityNotRegistered,
		},
		{
			name:  "resign not registered",
			asset: database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityResign, RegistrationID: registrationID},
			err:   magistrate.ErrEntityNotRegistered,
		},
		{
			name:     "update resigned",
			existing: &magistrate.Entity{Type: registered.Type, Data: registered.Data, Resigned: true},
			asset:    database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityUpdate, RegistrationID: registrationID},
			err:      magistrate.ErrEntityAlreadyResigned,
		},
		{
			name:     "resign resigned",
			existing: &magistrate.Entity{Type: registered.Type, Data: registered.Data, Resigned: true},
			asset:    database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityResign, RegistrationID: registrationID},
			err:      magistrate.ErrEntityAlreadyResigned,
		},
		{
			name:     "update wrong type",
			existing: &registered,
			asset:    database.EntityAsset{Type: magistrate.EntityDeveloper, Action: magistrate.EntityUpdate, RegistrationID: registrationID},
			err:      magistrate.ErrEntityWrongType,
		},
		{
			name:     "resign wrong sub type",
			existing: &registered,
			asset:    database.EntityAsset{Type: magistrate.EntityBusiness, SubType: 1, Action: magistrate.EntityResign, RegistrationID: registrationID},
			err:      magistrate.ErrEntityWrongSubType,
		},
		{
			name:  "register delegate not a delegate",
			asset: database.EntityAsset{Type: magistrate.EntityDelegate, Action: magistrate.EntityRegister, Data: database.EntityData{Name: "thedelegate"}},
			err:   magistrate.ErrEntitySenderIsNotDelegate,
		},
		{
			name:     "update delegate not a delegate",
			existing: &magistrate.Entity{Type: magistrate.EntityDelegate, Data: database.EntityData{Name: "somename"}},
			asset:    database.EntityAsset{Type: magistrate.EntityDelegate, Action: magistrate.EntityUpdate, RegistrationID: registrationID, Data: database.EntityData{IpfsData: "QmR45FmbVVrixReBwJkhEKde2qwHYaQzGxu4ZoDeswuF9w"}},
		},
		{
			name:     "resign delegate not a delegate",
			existing: &magistrate.Entity{Type: magistrate.EntityDelegate, Data: database.EntityData{Name: "somename"}},
			asset:    database.EntityAsset{Type: magistrate.EntityDelegate, Action: magistrate.EntityResign, RegistrationID: registrationID},
		},
		{
			name:  "unknown action",
			asset: database.EntityAsset{Type: magistrate.EntityBusiness, Action: 7, RegistrationID: registrationID},
			err:   magistrate.ErrEntityUnknownAction,
		},
	}

	t.Log("Given the need to check entity transactions against the sender.")
	{
		for testID, tt := range rules {
			tf := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen checking %s.", testID, tt.name)
				{
					f := newFixture(t)
					a := fundedAccount(t, f)

					if tt.existing != nil {
						if err := f.wallet(a).SetAttribute("entities."+registrationID, *tt.existing); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to set the entity : %v", failed, testID, err)
						}
					}

					tx := entityTx(t, a, 1, tt.asset)
					if tt.fee != 0 {
						tx = a.Sign(t, txtest.Tx{
							TypeGroup: database.TypeGroupMagistrate,
							Type:      magistrate.TypeEntity,
							Nonce:     1,
							Fee:       tt.fee,
							Asset:     &database.Asset{Entity: &tt.asset},
						})
					}

					err := mustHandler(t, f, tx).VerifyCanApply(t.Context(), tx, f.wallet(a), nil)

					switch {
					case tt.fee != 0:
						var feeErr *magistrate.StaticFeeMismatchError
						if !errors.As(err, &feeErr) || !errors.Is(err, transactions.ErrValidation) {
							t.Fatalf("\t%s\tTest %d:\tShould reject the fee : %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould reject the fee.", success, testID)

					case tt.err != nil:
						if !errors.Is(err, tt.err) || !errors.Is(err, transactions.ErrValidation) {
							t.Fatalf("\t%s\tTest %d:\tShould reject the transaction : got %v, exp %v", failed, testID, err, tt.err)
						}
						t.Logf("\t%s\tTest %d:\tShould reject the transaction.", success, testID)

					default:
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould accept the transaction : %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould accept the transaction.", success, testID)
					}
				}
			}

			t.Run(tt.name, tf)
		}
	}
}

func Test_Entity(t *testing.T) {
	t.Log("Given the need to maintain entities.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen pricing entity actions.", testID)
		{
			f := newFixture(t)
			a := txtest.NewAccount(t)

			fees := []struct {
				action uint8
				fee    *big.Int
			}{
				{magistrate.EntityRegister, magistrate.EntityRegisterFee},
				{magistrate.EntityUpdate, magistrate.EntityUpdateFee},
				{magistrate.EntityResign, magistrate.EntityUpdateFee},
			}
			for _, fe := range fees {
				tx := entityTx(t, a, 1, database.EntityAsset{Action: fe.action, Data: database.EntityData{Name: "acme"}})
				if got := mustHandler(t, f, tx).DynamicFee(transactions.FeeContext{Transaction: tx}); got.Cmp(fe.fee) != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould return the static fee of action %d : got %s, exp %s", failed, testID, fe.action, got, fe.fee)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould return the static fee of each action.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen two wallets register the same name.", testID)
		{
			f := newFixture(t)
			a, b := fundedAccount(t, f), fundedAccount(t, f)

			asset := database.EntityAsset{Type: magistrate.EntityDeveloper, SubType: 0, Data: database.EntityData{Name: "Ark"}}
			if err := f.apply(entityTx(t, a, 1, asset)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould register the name : %v", failed, testID, err)
			}

			asset.Data.Name = "ark"
			if err := f.apply(entityTx(t, b, 1, asset)); !errors.Is(err, magistrate.ErrEntityNameAlreadyRegistered) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the name in any case : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the name in any case.", success, testID)

			asset.Type = magistrate.EntityPlugin
			if err := f.apply(entityTx(t, b, 1, asset)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the name for another type : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the name for another type.", success, testID)

			asset.SubType = 1
			if err := f.apply(entityTx(t, b, 2, asset)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the name for another sub type : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the name for another sub type.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a delegate registers its entity.", testID)
		{
			f := newFixture(t)
			a := fundedAccount(t, f)

			if err := f.wallet(a).SetAttribute("delegate.username", "therealdelegate"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to make a delegate : %v", failed, testID, err)
			}

			wrong := entityTx(t, a, 1, database.EntityAsset{Type: magistrate.EntityDelegate, Data: database.EntityData{Name: "thedelegate"}})
			if err := f.apply(wrong); !errors.Is(err, magistrate.ErrEntityNameDoesNotMatchDelegate) {
				t.Fatalf("\t%s\tTest %d:\tShould reject another name : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject another name.", success, testID)

			right := entityTx(t, a, 1, database.EntityAsset{Type: magistrate.EntityDelegate, Data: database.EntityData{Name: "therealdelegate"}})
			if err := f.apply(right); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the delegate name : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the delegate name.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen resigning an entity and reverting it.", testID)
		{
			f := newFixture(t)
			a := fundedAccount(t, f)

			reg := entityTx(t, a, 1, database.EntityAsset{Type: magistrate.EntityBusiness, Data: database.EntityData{Name: "acme"}})
			resign := entityTx(t, a, 2, database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityResign, RegistrationID: reg.ID})
			for _, tx := range []database.Transaction{reg, resign} {
				if err := f.apply(tx); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould apply the transaction : %v", failed, testID, err)
				}
			}

			if !mustEntity(t, f.wallet(a), reg.ID).Resigned {
				t.Fatalf("\t%s\tTest %d:\tShould set the entity to resigned.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould set the entity to resigned.", success, testID)

			if err := f.revert(resign); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould revert the resignation : %v", failed, testID, err)
			}
			if got := mustEntity(t, f.wallet(a), reg.ID); got.Resigned || got.Data.Name != "acme" {
				t.Fatalf("\t%s\tTest %d:\tShould drop the resigned flag : got %+v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould drop the resigned flag.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen updating twice and reverting both updates.", testID)
		{
			f := newFixture(t)
			a := fundedAccount(t, f)

			reg := entityTx(t, a, 1, database.EntityAsset{Type: magistrate.EntityPlugin, SubType: 1, Data: database.EntityData{Name: "random name", IpfsData: "QmR45FmbVVrixReBwJkhEKde2qwHYaQzGxu4ZoDeswuF9w"}})
			first := entityTx(t, a, 2, database.EntityAsset{Type: magistrate.EntityPlugin, SubType: 1, Action: magistrate.EntityUpdate, RegistrationID: reg.ID, Data: database.EntityData{IpfsData: "QmUMbuGSxP1HsSVnSMH3kQsHLAnhUZJMDc1DN1Uu3vxPuX"}})
			second := entityTx(t, a, 3, database.EntityAsset{Type: magistrate.EntityPlugin, SubType: 1, Action: magistrate.EntityUpdate, RegistrationID: reg.ID, Data: database.EntityData{Name: "renamed"}})
			for _, tx := range []database.Transaction{reg, first, second} {
				if err := f.apply(tx); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould apply the transaction : %v", failed, testID, err)
				}
			}

			exp := database.EntityData{Name: "renamed", IpfsData: "QmUMbuGSxP1HsSVnSMH3kQsHLAnhUZJMDc1DN1Uu3vxPuX"}
			if got := mustEntity(t, f.wallet(a), reg.ID).Data; got != exp {
				t.Fatalf("\t%s\tTest %d:\tShould merge the set fields : got %+v, exp %+v", failed, testID, got, exp)
			}
			if !f.wallets.HasByIndex(magistrate.IndexEntityNames, "3:1:renamed") {
				t.Fatalf("\t%s\tTest %d:\tShould index the new name.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould merge the set fields.", success, testID)

			if err := f.revert(second); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould revert the second update : %v", failed, testID, err)
			}
			exp = database.EntityData{Name: "random name", IpfsData: "QmUMbuGSxP1HsSVnSMH3kQsHLAnhUZJMDc1DN1Uu3vxPuX"}
			if got := mustEntity(t, f.wallet(a), reg.ID).Data; got != exp {
				t.Fatalf("\t%s\tTest %d:\tShould replay the registration and the first update : got %+v, exp %+v", failed, testID, got, exp)
			}
			if f.wallets.HasByIndex(magistrate.IndexEntityNames, "3:1:renamed") {
				t.Fatalf("\t%s\tTest %d:\tShould drop the reverted name from the index.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould replay the registration and the first update.", success, testID)

			if err := f.revert(first); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould revert the first update : %v", failed, testID, err)
			}
			exp = reg.Asset.Entity.Data
			if got := mustEntity(t, f.wallet(a), reg.ID).Data; got != exp {
				t.Fatalf("\t%s\tTest %d:\tShould restore the registration : got %+v, exp %+v", failed, testID, got, exp)
			}
			t.Logf("\t%s\tTest %d:\tShould restore the registration.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the same name is already pending.", testID)
		{
			f := newFixture(t)
			a, b := txtest.NewAccount(t), txtest.NewAccount(t)

			asset := database.EntityAsset{Type: magistrate.EntityBusiness, Data: database.EntityData{Name: "acme"}}
			f.pool.Add(entityTx(t, a, 1, asset))

			asset.Data.Name = "ACME"
			tx := entityTx(t, b, 1, asset)
			var poolErr *transactions.PoolError
			if err := mustHandler(t, f, tx).VerifyCanEnterPool(t.Context(), tx); !errors.As(err, &poolErr) || poolErr.Type != transactions.PoolErrPending {
				t.Fatalf("\t%s\tTest %d:\tShould reject a pending name : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a pending name.", success, testID)

			update := entityTx(t, b, 1, database.EntityAsset{Type: magistrate.EntityBusiness, Action: magistrate.EntityUpdate, RegistrationID: "0x01", Data: database.EntityData{Name: "acme"}})
			if err := mustHandler(t, f, update).VerifyCanEnterPool(t.Context(), update); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould not check the pool for updates : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not check the pool for updates.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen rebuilding the entities from the history.", testID)
		{
			f := newFixture(t)
			a := fundedAccount(t, f)

			reg := entityTx(t, a, 1, database.EntityAsset{Type: magistrate.EntityDeveloper, Data: database.EntityData{Name: "dev"}})
			update := entityTx(t, a, 2, database.EntityAsset{Type: magistrate.EntityDeveloper, Action: magistrate.EntityUpdate, RegistrationID: reg.ID, Data: database.EntityData{IpfsData: "QmR45FmbVVrixReBwJkhEKde2qwHYaQzGxu4ZoDeswuF9w"}})
			resign := entityTx(t, a, 3, database.EntityAsset{Type: magistrate.EntityDeveloper, Action: magistrate.EntityResign, RegistrationID: reg.ID})

			rebuilt := newFixture(t)
			rebuilt.history.Add(reg, update, resign)
			if err := mustHandler(t, rebuilt, reg).Bootstrap(t.Context()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould bootstrap : %v", failed, testID, err)
			}

			got := mustEntity(t, rebuilt.wallet(a), reg.ID)
			exp := magistrate.Entity{Type: magistrate.EntityDeveloper, Data: database.EntityData{Name: "dev", IpfsData: "QmR45FmbVVrixReBwJkhEKde2qwHYaQzGxu4ZoDeswuF9w"}, Resigned: true}
			if got != exp {
				t.Fatalf("\t%s\tTest %d:\tShould replay every action : got %+v, exp %+v", failed, testID, got, exp)
			}
			if !rebuilt.wallets.HasByIndex(magistrate.IndexEntityNames, "2:0:dev") {
				t.Fatalf("\t%s\tTest %d:\tShould index the name.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould replay every action.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the AIP36 milestone is off.", testID)
		{
			f := newFixture(t)
			a := txtest.NewAccount(t)

			m := f.env.Milestone()
			m.AIP36 = false

			tx := entityTx(t, a, 1, database.EntityAsset{Data: database.EntityData{Name: "acme"}})
			if _, err := f.reg.ActivatedHandler(tx, m); !errors.Is(err, transactions.ErrDeactivatedHandler) {
				t.Fatalf("\t%s\tTest %d:\tShould deactivate the handler : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould deactivate the handler.", success, testID)

			h := mustHandler(t, f, tx)
			var em eventCount
			h.EmitEvents(tx, &em)
			if em != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not dispatch events : got %d", failed, testID, em)
			}
			t.Logf("\t%s\tTest %d:\tShould not dispatch events.", success, testID)
		}
	}
}

// =============================================================================

type eventCount int

func (c *eventCount) Dispatch(name string, payload any) {
	*c++
}

func fundedAccount(t *testing.T, f *fixture) txtest.Account {
	t.Helper()

	a := txtest.NewAccount(t)
	f.wallet(a).IncreaseBalance(big.NewInt(100_000_000_000))
	return a
}

func entityTx(t *testing.T, a txtest.Account, nonce uint64, asset database.EntityAsset) database.Transaction {
	t.Helper()

	fee := magistrate.EntityUpdateFee
	if asset.Action == magistrate.EntityRegister {
		fee = magistrate.EntityRegisterFee
	}

	return a.Sign(t, txtest.Tx{
		TypeGroup: database.TypeGroupMagistrate,
		Type:      magistrate.TypeEntity,
		Nonce:     nonce,
		Fee:       fee.Int64(),
		Asset:     &database.Asset{Entity: &asset},
	})
}

func mustEntity(t *testing.T, w *wallets.Wallet, id string) magistrate.Entity {
	t.Helper()

	e, ok := wallets.Attr[magistrate.Entity](w, "entities."+id)
	if !ok {
		t.Fatalf("wallet %s has no entity %s", w.Address(), id)
	}
	return e
}
