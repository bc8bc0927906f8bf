package genesis_test

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions/txtest"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to build and load a genesis file.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen building a genesis with three delegates.", testID)
		{
			key, err := signature.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould generate a key : %v", failed, testID, err)
			}

			var delegates []genesis.Delegate
			for _, name := range []string{"bill", "ale", "pavel"} {
				delegates = append(delegates, genesis.Delegate{Username: name, Key: txtest.NewAccount(t).Key})
			}

			g, err := genesis.Build(genesis.BuildArgs{
				Date:          time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
				ChainID:       7,
				TransPerBlock: 50,
				Milestones:    txtest.Milestones(),
				Key:           key,
				Delegates:     delegates,
				Balance:       big.NewInt(5000),
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould build the genesis : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould build the genesis.", success, testID)

			if n := len(g.Block.Transactions); n != 9 {
				t.Fatalf("\t%s\tTest %d:\tShould fund, register and vote per delegate : got %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould fund, register and vote per delegate.", success, testID)

			if n := len(g.Senders()); n != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould report four senders : got %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould report four senders.", success, testID)

			path := filepath.Join(t.TempDir(), "genesis.json")
			if err := g.Save(path); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould save the file : %v", failed, testID, err)
			}

			loaded, err := genesis.Load(path)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould load the file : %v", failed, testID, err)
			}
			if loaded.Block.ID != g.Block.ID || loaded.ChainID != 7 || loaded.Milestones.At(1).BlockTime != 8 {
				t.Fatalf("\t%s\tTest %d:\tShould load the same genesis.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould load the same genesis.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the milestones are missing.", testID)
		{
			key, err := signature.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould generate a key : %v", failed, testID, err)
			}

			if _, err := genesis.Build(genesis.BuildArgs{Key: key}); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to build.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to build.", success, testID)
		}
	}
}
