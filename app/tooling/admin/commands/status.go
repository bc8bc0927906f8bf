package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/dposledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/nameservice"
	"go.uber.org/zap"
)

// Status rebuilds the ledger from storage the way the node does at startup
// and prints the current round and the forgers of the current slot.
func Status(log *zap.SugaredLogger, dbPath string, genesisPath string, keyFolder string) error {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return err
	}

	ns, err := nameservice.New(keyFolder)
	if err != nil {
		return err
	}

	storage, err := leveldb.New(dbPath)
	if err != nil {
		return err
	}

	st, err := state.New(state.Config{
		Storage: storage,
		Genesis: gen,
		EvHandler: func(v string, args ...any) {
			log.Debugw(fmt.Sprintf(v, args...))
		},
	})
	if err != nil {
		storage.Close()
		return err
	}
	defer st.Shutdown()

	start := time.Now()
	if err := st.Initialize(context.Background()); err != nil {
		return err
	}

	last := st.LastBlock()
	ri := st.RoundInfo()

	fmt.Printf("Height: %d  Block: %s  Rebuilt in: %v\n", last.Height, last.ID, time.Since(start))
	fmt.Printf("Round: %d  Starts at: %d  Delegates: %d\n\n", ri.Round, ri.RoundHeight, ri.MaxDelegates)

	for i, d := range st.ActiveDelegates() {
		fmt.Printf("%3d  %-20s %-24s %s\n", i+1,
			wallets.AttrOr(d, "delegate.username", ""),
			wallets.BigAttr(d, "delegate.voteBalance"),
			ns.Lookup(d.Address()))
	}

	now := int64(time.Since(gen.Date) / time.Second)
	info, err := st.ForgingInfo(now)
	if err != nil {
		return err
	}

	fmt.Printf("\nSlot: %d  Forger: %s  Next: %s  Can forge: %v\n",
		info.BlockTimestamp, info.CurrentForger.Username, info.NextForger.Username, info.CanForge)

	return nil
}
