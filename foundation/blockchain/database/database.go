// Package database handles the persistence of blocks and rounds and answers
// the history queries the ledger needs to rebuild and revert wallet state.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math/big"
)

// ErrNotFound is returned when a block, round or transaction is not stored.
var ErrNotFound = errors.New("not found")

// ErrCorruptBlock is returned when a stored block can not be decoded or does
// not validate.
var ErrCorruptBlock = errors.New("corrupt block")

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Storage interface {
	WriteBlock(height int64, txIDs []string, data []byte) error
	ReadBlock(height int64) ([]byte, error)
	DeleteBlock(height int64, txIDs []string) error
	LastHeight() (int64, error)
	TxHeight(id string) (int64, error)
	WriteRound(round int64, data []byte) error
	ReadRound(round int64) ([]byte, error)
	DeleteRound(round int64) error
	Reset() error
	Close() error
}

// =============================================================================

// RoundDelegate is the persisted form of a delegate inside a round.
type RoundDelegate struct {
	PublicKey   string   `json:"publicKey"`
	Username    string   `json:"username"`
	VoteBalance *big.Int `json:"voteBalance"`
	Rank        int      `json:"rank"`
}

// Round is the persisted ranking of a round.
type Round struct {
	Round     int64           `json:"round"`
	Height    int64           `json:"height"`
	Delegates []RoundDelegate `json:"delegates"`
}

// =============================================================================

// Database manages the blocks and rounds kept by the storage.
type Database struct {
	storage   Storage
	evHandler func(v string, args ...any)
}

// New constructs a database over the specified storage.
func New(storage Storage, evHandler func(v string, args ...any)) *Database {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	return &Database{
		storage:   storage,
		evHandler: evHandler,
	}
}

// Close closes the storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Reset wipes every block and round.
func (db *Database) Reset() error {
	db.evHandler("database: Reset: wiping storage")
	return db.storage.Reset()
}

// SaveBlock validates the block, writes it and indexes its transactions.
func (db *Database) SaveBlock(block Block) error {
	if err := block.Validate(); err != nil {
		return fmt.Errorf("saving block %d: %w", block.Height, err)
	}

	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encoding block %d: %w", block.Height, err)
	}

	if err := db.storage.WriteBlock(block.Height, block.TxIDs(), data); err != nil {
		return fmt.Errorf("writing block %d: %w", block.Height, err)
	}

	return nil
}

// Block reads and validates the block at height.
func (db *Database) Block(height int64) (Block, error) {
	block, err := db.readBlock(height)
	if err != nil {
		return Block{}, err
	}

	if err := block.Validate(); err != nil {
		return Block{}, fmt.Errorf("%w: height %d: %w", ErrCorruptBlock, height, err)
	}

	return block, nil
}

// readBlock reads and decodes the block at height without validating it.
func (db *Database) readBlock(height int64) (Block, error) {
	data, err := db.storage.ReadBlock(height)
	if err != nil {
		return Block{}, err
	}

	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return Block{}, fmt.Errorf("%w: height %d: %w", ErrCorruptBlock, height, err)
	}

	return block, nil
}

// DeleteBlock removes the block and its transaction index.
func (db *Database) DeleteBlock(block Block) error {
	return db.storage.DeleteBlock(block.Height, block.TxIDs())
}

// DeleteHeight removes whatever is stored at height, including blocks that
// can no longer be decoded.
func (db *Database) DeleteHeight(height int64) error {
	var ids []string

	data, err := db.storage.ReadBlock(height)
	if err == nil {
		var block Block
		if json.Unmarshal(data, &block) == nil {
			ids = block.TxIDs()
		}
	}

	return db.storage.DeleteBlock(height, ids)
}

// LastHeight returns the height of the last stored block, zero when empty.
func (db *Database) LastHeight() (int64, error) {
	return db.storage.LastHeight()
}

// LastBlock returns the last stored block.
func (db *Database) LastBlock() (Block, error) {
	height, err := db.storage.LastHeight()
	if err != nil {
		return Block{}, err
	}
	if height == 0 {
		return Block{}, ErrNotFound
	}

	return db.Block(height)
}

// BlockTimestamp returns the timestamp of the block at height.
func (db *Database) BlockTimestamp(height int64) (int64, error) {
	block, err := db.readBlock(height)
	if err != nil {
		return 0, err
	}
	return block.Timestamp, nil
}

// Blocks walks the stored blocks from the specified height up to the last
// block. The blocks are decoded but not validated again.
func (db *Database) Blocks(ctx context.Context, from int64) iter.Seq2[Block, error] {
	return func(yield func(Block, error) bool) {
		last, err := db.storage.LastHeight()
		if err != nil {
			yield(Block{}, err)
			return
		}

		if from < 1 {
			from = 1
		}

		for h := from; h <= last; h++ {
			if err := ctx.Err(); err != nil {
				yield(Block{}, err)
				return
			}

			block, err := db.readBlock(h)
			if !yield(block, err) || err != nil {
				return
			}
		}
	}
}

// SaveRound writes the round.
func (db *Database) SaveRound(round Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("encoding round %d: %w", round.Round, err)
	}

	return db.storage.WriteRound(round.Round, data)
}

// Round reads the round.
func (db *Database) Round(round int64) (Round, error) {
	data, err := db.storage.ReadRound(round)
	if err != nil {
		return Round{}, err
	}

	var r Round
	if err := json.Unmarshal(data, &r); err != nil {
		return Round{}, fmt.Errorf("decoding round %d: %w", round, err)
	}

	return r, nil
}

// DeleteRound removes the round.
func (db *Database) DeleteRound(round int64) error {
	return db.storage.DeleteRound(round)
}
