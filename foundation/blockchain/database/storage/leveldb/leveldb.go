// Package leveldb implements the database storage interface on top of
// goleveldb, either on disk or in memory.
package leveldb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes.
var (
	prefixBlock = []byte("b/")
	prefixTx    = []byte("i/")
	prefixRound = []byte("r/")
)

// ErrClosed is returned once the storage has been closed.
var ErrClosed = errors.New("storage closed")

// LevelDB represents the storage of blocks and rounds in a leveldb database.
type LevelDB struct {
	mu sync.RWMutex
	db *goleveldb.DB
}

// New opens the database at the specified path, recovering it when the
// manifest is corrupt.
func New(path string) (*LevelDB, error) {
	options := opt.Options{
		Filter: filter.NewBloomFilter(10),
	}

	db, err := goleveldb.OpenFile(path, &options)
	if lderrors.IsCorrupted(err) {
		db, err = goleveldb.RecoverFile(path, &options)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	return &LevelDB{db: db}, nil
}

// NewMemory constructs a storage kept entirely in memory.
func NewMemory() (*LevelDB, error) {
	db, err := goleveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("opening memory storage: %w", err)
	}

	return &LevelDB{db: db}, nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}

	err := l.db.Close()
	l.db = nil
	return err
}

// WriteBlock writes the block and points every transaction id at its height
// in one batch.
func (l *LevelDB) WriteBlock(height int64, txIDs []string, data []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return ErrClosed
	}

	var batch goleveldb.Batch
	batch.Put(heightKey(prefixBlock, height), data)
	for _, id := range txIDs {
		batch.Put(txKey(id), be64(height))
	}

	return l.db.Write(&batch, nil)
}

// ReadBlock reads the block data at height.
func (l *LevelDB) ReadBlock(height int64) ([]byte, error) {
	return l.get(heightKey(prefixBlock, height))
}

// DeleteBlock removes the block and its transaction index entries.
func (l *LevelDB) DeleteBlock(height int64, txIDs []string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return ErrClosed
	}

	var batch goleveldb.Batch
	batch.Delete(heightKey(prefixBlock, height))
	for _, id := range txIDs {
		batch.Delete(txKey(id))
	}

	return l.db.Write(&batch, nil)
}

// LastHeight returns the highest stored block height, zero when empty.
func (l *LevelDB) LastHeight() (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return 0, ErrClosed
	}

	iter := l.db.NewIterator(util.BytesPrefix(prefixBlock), nil)
	defer iter.Release()

	if !iter.Last() {
		return 0, iter.Error()
	}

	return int64(binary.BigEndian.Uint64(iter.Key()[len(prefixBlock):])), nil
}

// TxHeight returns the height of the block holding the transaction.
func (l *LevelDB) TxHeight(id string) (int64, error) {
	data, err := l.get(txKey(id))
	if err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(data)), nil
}

// WriteRound writes the round data.
func (l *LevelDB) WriteRound(round int64, data []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return ErrClosed
	}

	return l.db.Put(heightKey(prefixRound, round), data, nil)
}

// ReadRound reads the round data.
func (l *LevelDB) ReadRound(round int64) ([]byte, error) {
	return l.get(heightKey(prefixRound, round))
}

// DeleteRound removes the round.
func (l *LevelDB) DeleteRound(round int64) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return ErrClosed
	}

	return l.db.Delete(heightKey(prefixRound, round), nil)
}

// Reset deletes every key.
func (l *LevelDB) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrClosed
	}

	var batch goleveldb.Batch

	iter := l.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()

	if err := iter.Error(); err != nil {
		return err
	}

	return l.db.Write(&batch, nil)
}

func (l *LevelDB) get(key []byte) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, ErrClosed
	}

	data, err := l.db.Get(key, nil)
	if errors.Is(err, goleveldb.ErrNotFound) {
		return nil, database.ErrNotFound
	}

	return data, err
}

// =============================================================================

func be64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func heightKey(prefix []byte, v int64) []byte {
	return append(append([]byte(nil), prefix...), be64(v)...)
}

func txKey(id string) []byte {
	return append(append([]byte(nil), prefixTx...), id...)
}
