package wallets_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

func newRepository(t *testing.T) *wallets.Repository {
	t.Helper()

	r, err := wallets.NewRepository(newAttributes())
	if err != nil {
		t.Fatalf("constructing repository: %v", err)
	}
	return r
}

func Test_FindByAddress(t *testing.T) {
	t.Log("Given the need to look wallets up by address.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the address is unknown.", testID)
		{
			r := newRepository(t)

			w := r.FindByAddress("0xabc")
			if w == nil || w.Balance().Sign() != 0 || !w.Nonce().IsZero() {
				t.Fatalf("\t%s\tTest %d:\tShould create an empty wallet.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould create an empty wallet.", success, testID)

			if r.FindByAddress("0xabc") != w {
				t.Fatalf("\t%s\tTest %d:\tShould return the same instance.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould return the same instance.", success, testID)

			if !r.Has("0xabc") || len(r.AllByAddress()) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould index the new wallet.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould index the new wallet.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen looking up by public key.", testID)
		{
			r := newRepository(t)
			pk := newPublicKey(t)

			addr, err := signature.AddressFromPublicKey(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould derive the address: %v", failed, testID, err)
			}

			byAddr := r.FindByAddress(addr)
			byKey, err := r.FindByPublicKey(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find by public key: %v", failed, testID, err)
			}
			if byAddr != byKey || byKey.PublicKey() != pk {
				t.Fatalf("\t%s\tTest %d:\tShould bind the key to the existing wallet.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould bind the key to the existing wallet.", success, testID)

			if !r.HasByPublicKey(pk) {
				t.Fatalf("\t%s\tTest %d:\tShould index the public key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould index the public key.", success, testID)

			if n := r.GetNonce(newPublicKey(t)); !n.IsZero() {
				t.Fatalf("\t%s\tTest %d:\tShould report a zero nonce for unknown keys.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report a zero nonce for unknown keys.", success, testID)
		}
	}
}

func Test_FindByIndex(t *testing.T) {
	t.Log("Given the need to look wallets up by secondary index.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the key is missing.", testID)
		{
			r := newRepository(t)

			_, err := r.FindByIndex(wallets.IndexUsernames, "unknown")
			if !errors.Is(err, wallets.ErrWalletNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould fail with a not found error: %v", failed, testID, err)
			}
			exp := "A wallet with the ID [unknown] does not exist in the [usernames] index."
			if err.Error() != exp {
				t.Logf("\t\tTest %d:\tgot: %s", testID, err)
				t.Logf("\t\tTest %d:\texp: %s", testID, exp)
				t.Fatalf("\t%s\tTest %d:\tShould produce the not found message.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail with a not found error.", success, testID)

			if _, err := r.FindByIndex("nope", "x"); !errors.Is(err, wallets.ErrIndexNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould fail on an unknown index: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould fail on an unknown index.", success, testID)

			if r.Has("0xnever") {
				t.Fatalf("\t%s\tTest %d:\tShould not create wallets on secondary misses.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not create wallets on secondary misses.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen attributes change.", testID)
		{
			r := newRepository(t)
			w := r.FindByAddress("0xabc")

			w.SetAttribute("delegate.username", "first")
			r.Index(w)
			if got, err := r.FindByUsername("first"); err != nil || got != w {
				t.Fatalf("\t%s\tTest %d:\tShould index the username: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould index the username.", success, testID)

			w.SetAttribute("delegate.username", "second")
			r.Index(w)
			if r.HasByUsername("first") || !r.HasByUsername("second") {
				t.Fatalf("\t%s\tTest %d:\tShould drop the stale username.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould drop the stale username.", success, testID)

			w.SetAttribute("delegate.resigned", true)
			r.Index(w)
			if !r.HasByIndex(wallets.IndexResignations, "second") {
				t.Fatalf("\t%s\tTest %d:\tShould index the resignation.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould index the resignation.", success, testID)

			w.SetAttribute("ipfs.hashes.QmHash", true)
			r.Index(w)
			if !r.HasByIndex(wallets.IndexIpfs, "QmHash") {
				t.Fatalf("\t%s\tTest %d:\tShould index ipfs hashes.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould index ipfs hashes.", success, testID)

			if _, err := r.FindByScope(wallets.ScopeDelegates, "second"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find a delegate by scope: %v", failed, testID, err)
			}
			if _, err := r.FindByScope(wallets.ScopeDelegates, "0xabc"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find a delegate by address: %v", failed, testID, err)
			}
			r.FindByAddress("0xdef")
			if _, err := r.FindByScope(wallets.ScopeDelegates, "0xdef"); !errors.Is(err, wallets.ErrWalletNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould not find a plain wallet in the delegates scope: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould search by scope.", success, testID)

			exp := []string{"addresses", "publicKeys", "usernames", "resignations", "locks", "ipfs"}
			names := r.GetIndexNames()
			if len(names) != len(exp) {
				t.Fatalf("\t%s\tTest %d:\tShould list the index names: %v", failed, testID, names)
			}
			for i := range exp {
				if names[i] != exp[i] {
					t.Fatalf("\t%s\tTest %d:\tShould list the index names in order: %v", failed, testID, names)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould list the index names in order.", success, testID)

			r.Reset()
			if r.Has("0xabc") || r.HasByUsername("second") {
				t.Fatalf("\t%s\tTest %d:\tShould drop everything on reset.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould drop everything on reset.", success, testID)
		}
	}
}
