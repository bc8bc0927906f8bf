package nameservice_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_NameService(t *testing.T) {
	t.Log("Given the need to name the addresses of a key folder.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the folder holds a key and another file.", testID)
		{
			root := t.TempDir()

			key, err := signature.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould generate a key : %v", failed, testID, err)
			}
			if err := crypto.SaveECDSA(filepath.Join(root, "kennedy.ecdsa"), key); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould save the key : %v", failed, testID, err)
			}
			if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip"), 0600); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould write the extra file : %v", failed, testID, err)
			}

			ns, err := nameservice.New(root)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould load the folder : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould load the folder.", success, testID)

			address, err := signature.AddressFromPublicKey(signature.PublicKeyHex(key.PublicKey))
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould derive the address : %v", failed, testID, err)
			}

			if got := ns.Lookup(address); got != "kennedy" {
				t.Fatalf("\t%s\tTest %d:\tShould name the address : got %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould name the address.", success, testID)

			if got := ns.Lookup("unknown"); got != "unknown" {
				t.Fatalf("\t%s\tTest %d:\tShould echo unknown addresses : got %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould echo unknown addresses.", success, testID)

			loaded, err := ns.Key("kennedy")
			if err != nil || loaded.D.Cmp(key.D) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould return the key by name : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould return the key by name.", success, testID)

			if len(ns.Copy()) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould only hold the key file.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould only hold the key file.", success, testID)
		}
	}
}
