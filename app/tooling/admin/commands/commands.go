// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"errors"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/database/storage/leveldb"
)

// ErrHelp is returned when the tool only printed its usage.
var ErrHelp = errors.New("provided help")

func openDB(path string) (*database.Database, error) {
	storage, err := leveldb.New(path)
	if err != nil {
		return nil, err
	}

	return database.New(storage, nil), nil
}
