// This program performs administrative tasks for the ledger node.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/dposledger/app/tooling/admin/commands"
	"github.com/ardanlabs/dposledger/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("admin", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args  conf.Args
		State struct {
			DBPath      string `conf:"default:zblock/ledger"`
			GenesisPath string `conf:"default:zblock/genesis.json"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
		Genesis struct {
			ChainID       uint16        `conf:"default:1"`
			TransPerBlock int           `conf:"default:50"`
			BlockTime     time.Duration `conf:"default:8s"`
			Reward        int64         `conf:"default:200000000"`
			Balance       int64         `conf:"default:1000000000000"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "dpos ledger admin",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.Args.Num(0) {
	case "genesis":
		args := commands.GenesisArgs{
			Path:          cfg.State.GenesisPath,
			KeyFolder:     cfg.NameService.Folder,
			Delegates:     cfg.Args[1:],
			ChainID:       cfg.Genesis.ChainID,
			TransPerBlock: cfg.Genesis.TransPerBlock,
			BlockTime:     int64(cfg.Genesis.BlockTime / time.Second),
			Reward:        cfg.Genesis.Reward,
			Balance:       cfg.Genesis.Balance,
		}
		if err := commands.Genesis(log, args); err != nil {
			return fmt.Errorf("building genesis: %w", err)
		}

	case "blocks":
		if err := commands.Blocks(cfg.State.DBPath, cfg.Args.Num(1)); err != nil {
			return fmt.Errorf("listing blocks: %w", err)
		}

	case "round":
		if err := commands.Round(cfg.State.DBPath, cfg.Args.Num(1)); err != nil {
			return fmt.Errorf("reading round: %w", err)
		}

	case "status":
		if err := commands.Status(log, cfg.State.DBPath, cfg.State.GenesisPath, cfg.NameService.Folder); err != nil {
			return fmt.Errorf("reading status: %w", err)
		}

	default:
		fmt.Println("genesis <delegate>...: create the delegate keys and the genesis file")
		fmt.Println("blocks [from]:         list the stored blocks")
		fmt.Println("round [number]:        show the delegates of a stored round")
		fmt.Println("status:                rebuild the ledger and show the current round and forger")
		return commands.ErrHelp
	}

	return nil
}
