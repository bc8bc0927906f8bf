package worker_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/dposledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions/txtest"
	"github.com/ardanlabs/dposledger/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Worker(t *testing.T) {
	t.Log("Given the need to run and stop the forging loop.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the node has no delegate key.", testID)
		{
			genesisKey, err := signature.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould generate a key : %v", failed, testID, err)
			}

			a, b := txtest.NewAccount(t), txtest.NewAccount(t)
			g, err := genesis.Build(genesis.BuildArgs{
				Date:          time.Now(),
				TransPerBlock: 10,
				Milestones:    txtest.Milestones(),
				Key:           genesisKey,
				Delegates:     []genesis.Delegate{{Username: "ardan", Key: a.Key}, {Username: "labs", Key: b.Key}},
				Balance:       big.NewInt(100),
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould build a genesis : %v", failed, testID, err)
			}

			storage, err := leveldb.NewMemory()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould open the storage : %v", failed, testID, err)
			}

			st, err := state.New(state.Config{Storage: storage, Genesis: g})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould construct the state : %v", failed, testID, err)
			}
			if err := st.Initialize(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould initialize the state : %v", failed, testID, err)
			}

			worker.Run(st, nil, nil)
			if st.Worker == nil {
				t.Fatalf("\t%s\tTest %d:\tShould register with the state.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould register with the state.", success, testID)

			st.Worker.SignalForge()
			st.Worker.SignalForge()

			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould shut down : %v", failed, testID, err)
			}

			if st.LastBlock().Height != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not forge without a key : height %d", failed, testID, st.LastBlock().Height)
			}
			t.Logf("\t%s\tTest %d:\tShould shut down without forging.", success, testID)
		}
	}
}
