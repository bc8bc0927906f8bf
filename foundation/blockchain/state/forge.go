package state

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

// ForgeBlock forges the next block with the key when the key belongs to
// the forger of the slot the timestamp falls into, and applies it.
func (s *State) ForgeBlock(ctx context.Context, key *ecdsa.PrivateKey, timestamp int64) (database.Block, error) {
	info, err := s.ForgingInfo(timestamp)
	if err != nil {
		return database.Block{}, err
	}

	publicKey := signature.PublicKeyHex(key.PublicKey)
	if info.CurrentForger.PublicKey != publicKey {
		return database.Block{}, fmt.Errorf("%w: slot belongs to %s", ErrNotForger, info.CurrentForger.Username)
	}
	if !info.CanForge {
		return database.Block{}, ErrSlotClosed
	}
	if info.BlockTimestamp <= s.LastBlock().Timestamp {
		return database.Block{}, ErrSlotTaken
	}

	return s.forge(ctx, key, info.BlockTimestamp)
}

// ForgeNextBlock forges the next block with the key in the slot that
// follows the last block, whoever its forger is. It is used by the private
// API to drive a chain by hand.
func (s *State) ForgeNextBlock(ctx context.Context, key *ecdsa.PrivateKey) (database.Block, error) {
	last := s.LastBlock()
	blockTime := s.genesis.Milestones.At(last.Height + 1).BlockTime

	return s.forge(ctx, key, last.Timestamp+blockTime)
}

// =============================================================================

func (s *State) forge(ctx context.Context, key *ecdsa.PrivateKey, timestamp int64) (database.Block, error) {
	s.evHandler("state: forge: FORGING: pick transactions")

	last := s.LastBlock()
	height := last.Height + 1
	ms := s.genesis.Milestones.At(height)

	block, err := database.Forge(database.BlockArgs{
		Height:        height,
		Timestamp:     timestamp,
		PreviousBlock: last.ID,
		Reward:        ms.Reward,
		Transactions:  s.pickTransactions(ctx, height),
	}, key)
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: forge: FORGING: apply block[%s] height[%d] trans[%d]", block.ID, block.Height, len(block.Transactions))

	if err := s.ApplyBlock(ctx, block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// pickTransactions returns the best pooled transactions that apply in
// order on top of the wallets. The ones that no longer apply leave the pool.
func (s *State) pickTransactions(ctx context.Context, height int64) []database.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.genesis.Milestones.At(height)
	overlay := wallets.NewCopyOnWrite(s.wallets)

	howMany := s.genesis.TransPerBlock
	if howMany <= 0 {
		howMany = -1
	}

	var txs []database.Transaction
	for _, tx := range s.mempool.PickBest(howMany) {
		handler, err := s.registry.ActivatedHandler(tx, ms)
		if err == nil {
			err = s.verifyApply(ctx, handler, tx, overlay)
		}

		if err != nil {
			s.evHandler("state: pickTransactions: WARNING: dropping tx[%s] kind[%s]: %s", tx.ID, transactions.KindOf(tx), err)
			s.mempool.Delete(tx)
			continue
		}

		txs = append(txs, tx)
	}

	return txs
}
