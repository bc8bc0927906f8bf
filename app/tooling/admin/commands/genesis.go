package commands

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// GenesisArgs are the settings of a new chain.
type GenesisArgs struct {
	Path          string
	KeyFolder     string
	Delegates     []string
	ChainID       uint16
	TransPerBlock int
	BlockTime     int64
	Reward        int64
	Balance       int64
}

// Genesis writes a genesis file funding the named delegates. The key of a
// delegate is reused when the key folder already holds it.
func Genesis(log *zap.SugaredLogger, args GenesisArgs) error {
	if len(args.Delegates) == 0 {
		return errors.New("at least one delegate name is required")
	}

	if err := os.MkdirAll(args.KeyFolder, 0755); err != nil {
		return err
	}

	genesisKey, err := signature.GenerateKey()
	if err != nil {
		return err
	}

	var delegates []genesis.Delegate
	for _, name := range args.Delegates {
		path := filepath.Join(args.KeyFolder, name+".ecdsa")

		key, err := crypto.LoadECDSA(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if key, err = signature.GenerateKey(); err != nil {
				return err
			}
			if err := crypto.SaveECDSA(path, key); err != nil {
				return fmt.Errorf("saving key of %s: %w", name, err)
			}
			log.Infow("genesis", "status", "key created", "delegate", name, "path", path)

		case err != nil:
			return fmt.Errorf("loading key of %s: %w", name, err)
		}

		delegates = append(delegates, genesis.Delegate{Username: name, Key: key})
	}

	sch, err := milestones.New(milestones.Milestone{
		Height:            1,
		BlockTime:         args.BlockTime,
		ActiveDelegates:   len(delegates),
		Reward:            big.NewInt(args.Reward),
		MultiPaymentLimit: 256,
		AIP11:             true,
		HtlcEnabled:       true,
		MagistrateEnabled: true,
		AIP36:             true,
	})
	if err != nil {
		return err
	}

	g, err := genesis.Build(genesis.BuildArgs{
		Date:          time.Now().UTC().Truncate(time.Second),
		ChainID:       args.ChainID,
		TransPerBlock: args.TransPerBlock,
		Milestones:    sch,
		Key:           genesisKey,
		Delegates:     delegates,
		Balance:       big.NewInt(args.Balance),
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(args.Path), 0755); err != nil {
		return err
	}
	if err := g.Save(args.Path); err != nil {
		return err
	}

	log.Infow("genesis", "status", "genesis written", "path", args.Path, "block", g.Block.ID, "delegates", len(delegates))

	return nil
}
