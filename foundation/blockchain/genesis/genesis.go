// Package genesis maintains access to the genesis file.
package genesis

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/holiman/uint256"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time            `json:"date"`
	ChainID       uint16               `json:"chainId"`       // The chain id represents an unique id for this running instance.
	TransPerBlock int                  `json:"transPerBlock"` // The maximum number of transactions that can be in a block.
	Milestones    *milestones.Schedule `json:"milestones"`
	Block         database.Block       `json:"block"`

	// NegativeBalances lists, per sender public key and nonce, the balances
	// a non genesis wallet is allowed to end up with.
	NegativeBalances map[string]map[string]*big.Int `json:"negativeBalanceExceptions,omitempty"`
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file.
func (g Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the genesis block and the milestone schedule.
func (g Genesis) Validate() error {
	if g.Milestones == nil {
		return errors.New("genesis: milestones are required")
	}
	if g.Block.Height != 1 {
		return fmt.Errorf("genesis: block height must be 1, got %d", g.Block.Height)
	}
	if err := g.Block.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	return nil
}

// Senders returns the public keys that sent a genesis transaction.
func (g Genesis) Senders() map[string]bool {
	senders := make(map[string]bool)
	for _, tx := range g.Block.Transactions {
		senders[tx.SenderPublicKey] = true
	}
	return senders
}

// =============================================================================

// Delegate is a genesis delegate and its key.
type Delegate struct {
	Username string
	Key      *ecdsa.PrivateKey
}

// BuildArgs are the inputs required to build a genesis file.
type BuildArgs struct {
	Date          time.Time
	ChainID       uint16
	TransPerBlock int
	Milestones    *milestones.Schedule
	Key           *ecdsa.PrivateKey
	Delegates     []Delegate
	Balance       *big.Int
}

// Build forges the genesis block. The genesis key funds every delegate with
// the balance, then each delegate registers itself and votes for itself.
func Build(args BuildArgs) (Genesis, error) {
	if args.Milestones == nil {
		return Genesis{}, errors.New("genesis: milestones are required")
	}
	if args.Balance == nil {
		args.Balance = new(big.Int)
	}

	var funds, registrations, votes []database.Transaction
	for i, d := range args.Delegates {
		publicKey := signature.PublicKeyHex(d.Key.PublicKey)
		address, err := signature.AddressFromPublicKey(publicKey)
		if err != nil {
			return Genesis{}, err
		}

		fund, err := sign(args.Key, uint64(i+1), database.Transaction{
			Type:        transactions.TypeTransfer,
			Amount:      new(big.Int).Set(args.Balance),
			RecipientID: address,
		})
		if err != nil {
			return Genesis{}, fmt.Errorf("funding %s: %w", d.Username, err)
		}
		funds = append(funds, fund)

		reg, err := sign(d.Key, 1, database.Transaction{
			Type:  transactions.TypeDelegateRegistration,
			Asset: &database.Asset{Delegate: &database.DelegateAsset{Username: d.Username}},
		})
		if err != nil {
			return Genesis{}, fmt.Errorf("registering %s: %w", d.Username, err)
		}
		registrations = append(registrations, reg)

		vote, err := sign(d.Key, 2, database.Transaction{
			Type:  transactions.TypeVote,
			Asset: &database.Asset{Votes: []string{"+" + publicKey}},
		})
		if err != nil {
			return Genesis{}, fmt.Errorf("voting %s: %w", d.Username, err)
		}
		votes = append(votes, vote)
	}

	txs := append(append(funds, registrations...), votes...)

	block, err := database.Forge(database.BlockArgs{
		Height:       1,
		Timestamp:    0,
		Transactions: txs,
	}, args.Key)
	if err != nil {
		return Genesis{}, fmt.Errorf("forging genesis block: %w", err)
	}

	genesis := Genesis{
		Date:          args.Date,
		ChainID:       args.ChainID,
		TransPerBlock: args.TransPerBlock,
		Milestones:    args.Milestones,
		Block:         block,
	}

	return genesis, nil
}

func sign(key *ecdsa.PrivateKey, nonce uint64, tx database.Transaction) (database.Transaction, error) {
	tx.Version = 2
	tx.TypeGroup = database.TypeGroupCore
	tx.Nonce = uint256.NewInt(nonce)
	tx.SenderPublicKey = signature.PublicKeyHex(key.PublicKey)
	tx.Fee = new(big.Int)
	if tx.Amount == nil {
		tx.Amount = new(big.Int)
	}

	return tx.Sign(key)
}
