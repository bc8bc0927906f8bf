package database_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

func newDatabase(t *testing.T) (*database.Database, *leveldb.LevelDB) {
	t.Helper()

	s, err := leveldb.NewMemory()
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return database.New(s, nil), s
}

func transfer(t *testing.T, pk *ecdsa.PrivateKey, nonce uint64, amount int64, typ uint16) database.Transaction {
	t.Helper()

	tx := database.Transaction{
		Version:         2,
		TypeGroup:       database.TypeGroupCore,
		Type:            typ,
		Nonce:           uint256.NewInt(nonce),
		SenderPublicKey: signature.PublicKeyHex(pk.PublicKey),
		Fee:             big.NewInt(10),
		Amount:          big.NewInt(amount),
		RecipientID:     "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32",
	}

	tx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("signing transaction: %v", err)
	}
	return tx
}

func forge(t *testing.T, pk *ecdsa.PrivateKey, height int64, txs ...database.Transaction) database.Block {
	t.Helper()

	b, err := database.Forge(database.BlockArgs{
		Height:       height,
		Timestamp:    height * 8,
		Reward:       big.NewInt(2),
		Transactions: txs,
	}, pk)
	if err != nil {
		t.Fatalf("forging block: %v", err)
	}
	return b
}

// writeRaw stores the block as is, bypassing the validation of SaveBlock.
func writeRaw(t *testing.T, s database.Storage, b database.Block) {
	t.Helper()

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("encoding block: %v", err)
	}
	if err := s.WriteBlock(b.Height, b.TxIDs(), data); err != nil {
		t.Fatalf("writing block: %v", err)
	}
}

// countingStorage counts the block reads that reach the storage.
type countingStorage struct {
	*leveldb.LevelDB
	reads int
}

func (c *countingStorage) ReadBlock(height int64) ([]byte, error) {
	c.reads++
	return c.LevelDB.ReadBlock(height)
}

// =============================================================================

func Test_Blocks(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	t.Log("Given the need to persist and reload blocks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling three blocks.", testID)
		{
			db, _ := newDatabase(t)

			blocks := []database.Block{
				forge(t, pk, 1),
				forge(t, pk, 2, transfer(t, pk, 1, 100, 0)),
				forge(t, pk, 3, transfer(t, pk, 2, 200, 0), transfer(t, pk, 3, 300, 0)),
			}
			for _, b := range blocks {
				if err := db.SaveBlock(b); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to save block %d: %v", failed, testID, b.Height, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to save blocks.", success, testID)

			last, err := db.LastBlock()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to load the last block: %v", failed, testID, err)
			}
			if last.ID != blocks[2].ID {
				t.Fatalf("\t%s\tTest %d:\tShould load the last block: got %s exp %s", failed, testID, last.ID, blocks[2].ID)
			}
			t.Logf("\t%s\tTest %d:\tShould load the last block.", success, testID)

			var heights []int64
			for b, err := range db.Blocks(context.Background(), 2) {
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould walk the blocks: %v", failed, testID, err)
				}
				heights = append(heights, b.Height)
			}
			if len(heights) != 2 || heights[0] != 2 || heights[1] != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould walk the blocks in order: %v", failed, testID, heights)
			}
			t.Logf("\t%s\tTest %d:\tShould walk the blocks in order.", success, testID)

			tx, height, err := db.Transaction(blocks[2].Transactions[1].ID)
			if err != nil || height != 3 || tx.Amount.Int64() != 300 {
				t.Fatalf("\t%s\tTest %d:\tShould find a transaction by id: %d %v", failed, testID, height, err)
			}
			t.Logf("\t%s\tTest %d:\tShould find a transaction by id.", success, testID)

			if err := db.DeleteBlock(blocks[2]); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to delete a block: %v", failed, testID, err)
			}
			if _, _, err := db.Transaction(blocks[2].Transactions[1].ID); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould drop the transactions of a deleted block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould drop the transactions of a deleted block.", success, testID)
		}
	}
}

func Test_CorruptBlock(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	t.Log("Given the need to detect corrupt blocks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block does not decode or validate.", testID)
		{
			db, s := newDatabase(t)

			if err := s.WriteBlock(1, nil, []byte("{not json")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write raw data: %v", failed, testID, err)
			}
			if _, err := db.Block(1); !errors.Is(err, database.ErrCorruptBlock) {
				t.Fatalf("\t%s\tTest %d:\tShould report undecodable data as corrupt: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report undecodable data as corrupt.", success, testID)

			b := forge(t, pk, 2, transfer(t, pk, 1, 100, 0))
			b.Transactions[0].Amount = big.NewInt(101)
			if err := db.SaveBlock(b); !errors.Is(err, database.ErrInvalidBlock) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to save a tampered block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to save a tampered block.", success, testID)

			writeRaw(t, s, b)
			if _, err := db.Block(2); !errors.Is(err, database.ErrCorruptBlock) {
				t.Fatalf("\t%s\tTest %d:\tShould report a tampered block as corrupt: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report a tampered block as corrupt.", success, testID)

			if err := db.DeleteHeight(2); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to delete a corrupt block: %v", failed, testID, err)
			}
			if h, _ := db.LastHeight(); h != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould drop the corrupt block: %d", failed, testID, h)
			}
			t.Logf("\t%s\tTest %d:\tShould drop the corrupt block.", success, testID)
		}
	}
}

func Test_History(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	t.Log("Given the need to query the transaction history.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen selecting by type and sender.", testID)
		{
			db, _ := newDatabase(t)
			ctx := context.Background()

			other, err := signature.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a key: %v", failed, testID, err)
			}

			txs := []database.Transaction{
				transfer(t, pk, 1, 1, 0),
				transfer(t, pk, 2, 2, 6),
				transfer(t, other, 1, 3, 0),
				transfer(t, pk, 3, 4, 0),
			}
			db.SaveBlock(forge(t, pk, 1, txs[0], txs[1]))
			db.SaveBlock(forge(t, pk, 2, txs[2], txs[3]))

			var got []int64
			criteria := database.Criteria{
				TypeGroup:       database.TypeGroupCore,
				Type:            0,
				SenderPublicKey: signature.PublicKeyHex(pk.PublicKey),
			}
			for tx, err := range db.StreamByCriteria(ctx, criteria) {
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould stream the history: %v", failed, testID, err)
				}
				got = append(got, tx.Amount.Int64())
			}
			if len(got) != 2 || got[0] != 1 || got[1] != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould stream the matching transactions in order: %v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould stream the matching transactions in order.", success, testID)

			many, err := db.FindManyByCriteria(ctx,
				database.Criteria{TypeGroup: database.TypeGroupCore, Type: 6},
				database.Criteria{SenderPublicKey: signature.PublicKeyHex(other.PublicKey)},
			)
			if err != nil || len(many) != 2 || many[0].ID != txs[1].ID || many[1].ID != txs[2].ID {
				t.Fatalf("\t%s\tTest %d:\tShould union the criteria in chain order: %d %v", failed, testID, len(many), err)
			}
			t.Logf("\t%s\tTest %d:\tShould union the criteria in chain order.", success, testID)

			found, err := db.FindByIDs(ctx, txs[3].ID, "0xunknown", txs[0].ID)
			if err != nil || len(found) != 2 || found[0].ID != txs[3].ID {
				t.Fatalf("\t%s\tTest %d:\tShould find transactions by id: %d %v", failed, testID, len(found), err)
			}
			t.Logf("\t%s\tTest %d:\tShould find transactions by id.", success, testID)
		}
	}
}

func Test_HistoryReads(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	t.Log("Given the need to read the history without validating it again.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen walking stored blocks.", testID)
		{
			_, s := newDatabase(t)
			cs := countingStorage{LevelDB: s}
			db := database.New(&cs, nil)
			ctx := context.Background()

			txs := []database.Transaction{
				transfer(t, pk, 1, 1, 0),
				transfer(t, pk, 2, 2, 0),
				transfer(t, pk, 3, 3, 0),
			}
			for i, tx := range txs {
				if err := db.SaveBlock(forge(t, pk, int64(i+1), tx)); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to save block %d: %v", failed, testID, i+1, err)
				}
			}

			// A block that no longer validates, written behind the database.
			b := forge(t, pk, 4, transfer(t, pk, 4, 4, 0))
			b.Transactions[0].Amount = big.NewInt(40)
			writeRaw(t, s, b)

			if _, err := db.Block(4); !errors.Is(err, database.ErrCorruptBlock) {
				t.Fatalf("\t%s\tTest %d:\tShould validate a block read by height: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould validate a block read by height.", success, testID)

			cs.reads = 0
			var amounts []int64
			for tx, err := range db.StreamByCriteria(ctx, database.Criteria{}) {
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould stream the history: %v", failed, testID, err)
				}
				amounts = append(amounts, tx.Amount.Int64())
			}
			if len(amounts) != 4 || amounts[3] != 40 {
				t.Fatalf("\t%s\tTest %d:\tShould decode the history without validating it: %v", failed, testID, amounts)
			}
			if cs.reads != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould read each block once: got %d", failed, testID, cs.reads)
			}
			t.Logf("\t%s\tTest %d:\tShould decode the history without validating it.", success, testID)

			cs.reads = 0
			found, err := db.FindByIDs(ctx, txs[2].ID, txs[0].ID)
			if err != nil || len(found) != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould find the transactions: %d %v", failed, testID, len(found), err)
			}
			if cs.reads != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould only read the blocks holding the ids: got %d", failed, testID, cs.reads)
			}
			t.Logf("\t%s\tTest %d:\tShould only read the blocks holding the ids.", success, testID)
		}
	}
}
