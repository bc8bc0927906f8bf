package wallets_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/holiman/uint256"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func newAttributes() *wallets.AttributeSet {
	return wallets.NewAttributeSet(
		"delegate",
		"vote",
		"secondPublicKey",
		"multiSignature",
		"htlc.locks",
		"htlc.lockedBalance",
		"ipfs.hashes",
	)
}

func newPublicKey(t *testing.T) string {
	t.Helper()

	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	return signature.PublicKeyHex(pk.PublicKey)
}

// =============================================================================

func Test_Attributes(t *testing.T) {
	t.Log("Given the need to manage wallet attributes by dotted path.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a delegate wallet.", testID)
		{
			w := wallets.NewWallet("0xabc", newAttributes())

			if err := w.SetAttribute("delegate.username", "genesis_1"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to set a registered attribute: %v", failed, testID, err)
			}
			if err := w.SetAttribute("delegate.voteBalance", big.NewInt(50)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to set a nested attribute: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to set registered attributes.", success, testID)

			if err := w.SetAttribute("business.resigned", true); !errors.Is(err, wallets.ErrUnknownAttribute) {
				t.Fatalf("\t%s\tTest %d:\tShould reject an unregistered attribute: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject an unregistered attribute.", success, testID)

			if !w.IsDelegate() {
				t.Fatalf("\t%s\tTest %d:\tShould report the wallet as a delegate.", failed, testID)
			}
			if got := wallets.AttrOr(w, "delegate.username", ""); got != "genesis_1" {
				t.Fatalf("\t%s\tTest %d:\tShould read the username back: %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould read attributes back.", success, testID)

			vb := wallets.BigAttr(w, "delegate.voteBalance")
			vb.Add(vb, big.NewInt(1))
			if got := wallets.BigAttr(w, "delegate.voteBalance"); got.Int64() != 50 {
				t.Fatalf("\t%s\tTest %d:\tShould hand out copies of attribute values: %d", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould hand out copies of attribute values.", success, testID)

			if !w.ForgetAttribute("delegate") || w.IsDelegate() || w.HasAttribute("delegate.username") {
				t.Fatalf("\t%s\tTest %d:\tShould forget a whole object.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould forget a whole object.", success, testID)
		}
	}
}

func Test_WalletClone(t *testing.T) {
	t.Log("Given the need to clone wallets.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mutating a clone.", testID)
		{
			w := wallets.NewWallet("0xabc", newAttributes())
			w.SetBalance(big.NewInt(100))
			w.SetNonce(uint256.NewInt(3))
			w.SetAttribute("htlc.locks.lock1", "a")
			w.SetAttribute("htlc.lockedBalance", big.NewInt(7))

			c := w.Clone()
			c.IncreaseBalance(big.NewInt(1))
			c.IncreaseNonce()
			c.SetAttribute("htlc.locks.lock2", "b")
			c.ForgetAttribute("htlc.locks.lock1")

			if w.Balance().Int64() != 100 || w.Nonce().Uint64() != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould not change the original balance or nonce.", failed, testID)
			}
			if !w.HasAttribute("htlc.locks.lock1") || w.HasAttribute("htlc.locks.lock2") {
				t.Fatalf("\t%s\tTest %d:\tShould not change the original attributes.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not change the original.", success, testID)

			if c.Balance().Int64() != 101 || c.Nonce().Uint64() != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould change the clone.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould change the clone.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen moving the nonce.", testID)
		{
			w := wallets.NewWallet("0xabc", nil)
			if err := w.DecreaseNonce(); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould not move the nonce below zero.", failed, testID)
			}
			w.IncreaseNonce()
			if err := w.DecreaseNonce(); err != nil || !w.Nonce().IsZero() {
				t.Fatalf("\t%s\tTest %d:\tShould move the nonce back: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the nonce unsigned.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen binding a public key.", testID)
		{
			w := wallets.NewWallet("0xabc", nil)
			if err := w.SetPublicKey("02aa"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould bind a public key: %v", failed, testID, err)
			}
			if err := w.SetPublicKey("02aa"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the same key again: %v", failed, testID, err)
			}
			if err := w.SetPublicKey("02bb"); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould not rebind a different key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould bind the public key once.", success, testID)
		}
	}
}
