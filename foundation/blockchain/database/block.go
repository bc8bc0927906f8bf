package database

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/dposledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidBlock is returned when a block does not match its own header.
var ErrInvalidBlock = errors.New("invalid block")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	ID                   string   `json:"id"`
	Version              uint8    `json:"version"`
	Height               int64    `json:"height"`
	Timestamp            int64    `json:"timestamp"`
	PreviousBlock        string   `json:"previousBlock"`
	NumberOfTransactions int      `json:"numberOfTransactions"`
	TotalAmount          *big.Int `json:"totalAmount"`
	TotalFee             *big.Int `json:"totalFee"`
	Reward               *big.Int `json:"reward"`
	PayloadHash          string   `json:"payloadHash"`
	GeneratorPublicKey   string   `json:"generatorPublicKey"`
	BlockSignature       string   `json:"blockSignature,omitempty"`
}

// Block represents a group of transactions batched together.
type Block struct {
	BlockHeader
	Transactions []Transaction `json:"transactions"`
}

// BlockArgs are the inputs required to forge a block.
type BlockArgs struct {
	Height        int64
	Timestamp     int64
	PreviousBlock string
	Reward        *big.Int
	Transactions  []Transaction
}

// Forge constructs a new block over the transactions and signs it with the
// generator key.
func Forge(args BlockArgs, generator *ecdsa.PrivateKey) (Block, error) {
	reward := args.Reward
	if reward == nil {
		reward = new(big.Int)
	}

	totalAmount := new(big.Int)
	totalFee := new(big.Int)
	for _, tx := range args.Transactions {
		totalAmount.Add(totalAmount, tx.TotalAmount())
		totalFee.Add(totalFee, tx.Fee)
	}

	payloadHash, err := PayloadHash(args.Transactions)
	if err != nil {
		return Block{}, err
	}

	b := Block{
		BlockHeader: BlockHeader{
			Version:              0,
			Height:               args.Height,
			Timestamp:            args.Timestamp,
			PreviousBlock:        args.PreviousBlock,
			NumberOfTransactions: len(args.Transactions),
			TotalAmount:          totalAmount,
			TotalFee:             totalFee,
			Reward:               new(big.Int).Set(reward),
			PayloadHash:          payloadHash,
			GeneratorPublicKey:   signature.PublicKeyHex(generator.PublicKey),
		},
		Transactions: append([]Transaction(nil), args.Transactions...),
	}

	sig, err := signature.Sign(b.signingPayload(), generator)
	if err != nil {
		return Block{}, fmt.Errorf("signing block: %w", err)
	}
	b.BlockSignature = sig

	id, err := b.ComputeID()
	if err != nil {
		return Block{}, err
	}
	b.ID = id

	return b, nil
}

// PayloadHash returns the merkle root over the transaction ids.
func PayloadHash(txs []Transaction) (string, error) {
	if len(txs) == 0 {
		return signature.ZeroHash, nil
	}

	tree, err := merkle.NewTree(txs)
	if err != nil {
		return "", fmt.Errorf("building payload tree: %w", err)
	}

	return tree.RootHex(), nil
}

// ComputeID returns the hash that identifies the block header.
func (b Block) ComputeID() (string, error) {
	h := b.BlockHeader
	h.ID = ""

	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}

	return hexutil.Encode(crypto.Keccak256(data)), nil
}

// Validate checks the header commits to the transactions it carries and
// that the generator signed it.
func (b Block) Validate() error {
	if b.NumberOfTransactions != len(b.Transactions) {
		return fmt.Errorf("%w: header counts %d transactions, got %d", ErrInvalidBlock, b.NumberOfTransactions, len(b.Transactions))
	}

	totalAmount := new(big.Int)
	totalFee := new(big.Int)
	for i, tx := range b.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("%w: transaction %d: %w", ErrInvalidBlock, i, err)
		}
		totalAmount.Add(totalAmount, tx.TotalAmount())
		totalFee.Add(totalFee, tx.Fee)
	}

	if b.TotalAmount == nil || b.TotalAmount.Cmp(totalAmount) != 0 {
		return fmt.Errorf("%w: total amount mismatch", ErrInvalidBlock)
	}
	if b.TotalFee == nil || b.TotalFee.Cmp(totalFee) != 0 {
		return fmt.Errorf("%w: total fee mismatch", ErrInvalidBlock)
	}
	if b.Reward == nil {
		return fmt.Errorf("%w: missing reward", ErrInvalidBlock)
	}

	payloadHash, err := PayloadHash(b.Transactions)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if payloadHash != b.PayloadHash {
		return fmt.Errorf("%w: payload hash mismatch", ErrInvalidBlock)
	}

	id, err := b.ComputeID()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if id != b.ID {
		return fmt.Errorf("%w: id mismatch", ErrInvalidBlock)
	}

	ok, err := signature.Verify(b.signingPayload(), b.BlockSignature, b.GeneratorPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if !ok {
		return fmt.Errorf("%w: invalid generator signature", ErrInvalidBlock)
	}

	return nil
}

// TxIDs returns the ids of the transactions in block order.
func (b Block) TxIDs() []string {
	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	return ids
}

func (b Block) signingPayload() BlockHeader {
	h := b.BlockHeader
	h.ID = ""
	h.BlockSignature = ""
	return h
}
