package wallets_test

import (
	"math/big"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

func Test_CopyOnWrite(t *testing.T) {
	t.Log("Given the need to validate against an isolated copy of the state.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mutating wallets through the overlay.", testID)
		{
			r := newRepository(t)
			pk := newPublicKey(t)

			canonical, err := r.FindByPublicKey(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find by public key: %v", failed, testID, err)
			}
			canonical.SetBalance(big.NewInt(1000))
			canonical.SetAttribute("delegate.username", "genesis_1")
			r.Index(canonical)

			cow := wallets.NewCopyOnWrite(r)

			w, err := cow.FindByPublicKey(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find by public key: %v", failed, testID, err)
			}
			if w == canonical {
				t.Fatalf("\t%s\tTest %d:\tShould hand out a clone.", failed, testID)
			}
			if w.Balance().Int64() != 1000 {
				t.Fatalf("\t%s\tTest %d:\tShould clone the canonical state: %d", failed, testID, w.Balance())
			}
			t.Logf("\t%s\tTest %d:\tShould clone the canonical state.", success, testID)

			w.DecreaseBalance(big.NewInt(600))
			w.IncreaseNonce()
			w.ForgetAttribute("delegate")
			cow.Index(w)

			if cow.FindByAddress(canonical.Address()) != w {
				t.Fatalf("\t%s\tTest %d:\tShould keep serving the same clone.", failed, testID)
			}
			if cow.HasByUsername("genesis_1") {
				t.Fatalf("\t%s\tTest %d:\tShould hide canonical keys of cloned wallets.", failed, testID)
			}
			if !cow.GetNonce(pk).Eq(w.Nonce()) {
				t.Fatalf("\t%s\tTest %d:\tShould report the overlay nonce.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould observe its own writes.", success, testID)

			if canonical.Balance().Int64() != 1000 || !canonical.Nonce().IsZero() || !r.HasByUsername("genesis_1") {
				t.Fatalf("\t%s\tTest %d:\tShould leave the canonical store untouched.", failed, testID)
			}
			if got := r.FindByAddress(canonical.Address()).Balance().Int64(); got != 1000 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the canonical store untouched: %d", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the canonical store untouched.", success, testID)

			cow.Reset()
			fresh := cow.FindByAddress(canonical.Address())
			if fresh.Balance().Int64() != 1000 || !fresh.Nonce().IsZero() || !fresh.IsDelegate() {
				t.Fatalf("\t%s\tTest %d:\tShould observe canonical state after a reset.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould observe canonical state after a reset.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen listing delegates.", testID)
		{
			r := newRepository(t)
			for _, name := range []string{"a", "b"} {
				w := r.FindByAddress("0x" + name)
				w.SetAttribute("delegate.username", name)
				r.Index(w)
			}

			cow := wallets.NewCopyOnWrite(r)
			n := cow.FindByAddress("0xc")
			n.SetAttribute("delegate.username", "c")
			cow.Index(n)

			addresses, err := r.GetIndex(wallets.IndexAddresses)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould get the addresses index: %v", failed, testID, err)
			}

			delegates := cow.AllByUsername()
			if len(delegates) != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould merge canonical and overlay delegates: %d", failed, testID, len(delegates))
			}
			for _, d := range delegates {
				if cw, exists := addresses.Get(d.Address()); exists && cw == d {
					t.Fatalf("\t%s\tTest %d:\tShould only hand out clones.", failed, testID)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould merge canonical and overlay delegates.", success, testID)

			if len(r.AllByUsername()) != 2 || r.Has("0xc") {
				t.Fatalf("\t%s\tTest %d:\tShould not leak overlay wallets.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not leak overlay wallets.", success, testID)
		}
	}
}
