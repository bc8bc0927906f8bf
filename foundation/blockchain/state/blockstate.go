package state

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// BlockState applies and reverts the transactions of a block and the
// generator reward against the canonical wallet store.
type BlockState struct {
	store      wallets.Store
	registry   *transactions.Registry
	milestones *milestones.Schedule
	dispatcher events.Dispatcher
	evHandler  EventHandler
}

// NewBlockState constructs a block state over the store.
func NewBlockState(store wallets.Store, registry *transactions.Registry, sch *milestones.Schedule, dispatcher events.Dispatcher, evHandler EventHandler) *BlockState {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	return &BlockState{
		store:      store,
		registry:   registry,
		milestones: sch,
		dispatcher: dispatcher,
		evHandler:  evHandler,
	}
}

// ApplyBlock applies every transaction of the block in order and credits
// the generator. When anything fails the transactions already applied are
// reverted in reverse order.
func (bs *BlockState) ApplyBlock(ctx context.Context, block database.Block) error {
	if block.Height == 1 {
		bs.initGenesisForger(block)
	}

	var applied []database.Transaction
	rollback := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			if err := bs.RevertTransaction(ctx, applied[i]); err != nil {
				bs.evHandler("state: ApplyBlock: WARNING: rollback tx[%s]: %s", applied[i].ID, err)
			}
		}
	}

	for _, tx := range block.Transactions {
		if err := bs.ApplyTransaction(ctx, block.Height, tx); err != nil {
			bs.evHandler("state: ApplyBlock: ERROR: height[%d] tx[%s]: %s", block.Height, tx.ID, err)
			rollback()
			return fmt.Errorf("applying transaction %s: %w", tx.ID, err)
		}
		applied = append(applied, tx)
	}

	if err := bs.applyToForger(block, false); err != nil {
		rollback()
		return fmt.Errorf("crediting generator: %w", err)
	}

	return nil
}

// RevertBlock takes the reward back from the generator and reverts the
// transactions in reverse order. When anything fails the transactions
// already reverted are applied again.
func (bs *BlockState) RevertBlock(ctx context.Context, block database.Block) error {
	if err := bs.applyToForger(block, true); err != nil {
		return fmt.Errorf("debiting generator: %w", err)
	}

	var reverted []database.Transaction
	for i := len(block.Transactions) - 1; i >= 0; i-- {
		tx := block.Transactions[i]

		if err := bs.RevertTransaction(ctx, tx); err != nil {
			bs.evHandler("state: RevertBlock: ERROR: height[%d] tx[%s]: %s", block.Height, tx.ID, err)

			for j := len(reverted) - 1; j >= 0; j-- {
				if err := bs.applyTransaction(ctx, block.Height, reverted[j], false); err != nil {
					bs.evHandler("state: RevertBlock: WARNING: reapply tx[%s]: %s", reverted[j].ID, err)
				}
			}
			if err := bs.applyToForger(block, false); err != nil {
				bs.evHandler("state: RevertBlock: WARNING: recredit generator: %s", err)
			}

			return fmt.Errorf("reverting transaction %s: %w", tx.ID, err)
		}
		reverted = append(reverted, tx)
	}

	return nil
}

// ApplyTransaction verifies the transaction against the sender wallet,
// applies it and moves the vote balances it affects. Genesis transactions
// are applied without verification.
func (bs *BlockState) ApplyTransaction(ctx context.Context, height int64, tx database.Transaction) error {
	return bs.applyTransaction(ctx, height, tx, height > 1)
}

func (bs *BlockState) applyTransaction(ctx context.Context, height int64, tx database.Transaction, verify bool) error {
	h, err := bs.registry.ActivatedHandler(tx, bs.milestones.At(height))
	if err != nil {
		return err
	}

	if verify {
		sender, err := bs.store.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := h.VerifyCanApply(ctx, tx, sender, bs.store); err != nil {
			return err
		}
	}

	// The lock is gone once a settlement is applied.
	settled, err := bs.settledLock(tx)
	if err != nil {
		return err
	}

	if err := h.Apply(ctx, tx, bs.store); err != nil {
		return err
	}

	if err := bs.updateVoteBalances(tx, settled, false); err != nil {
		return err
	}

	h.EmitEvents(tx, bs.dispatcher)
	bs.dispatcher.Dispatch(events.TransactionApplied, tx)

	return nil
}

// RevertTransaction reverts the transaction and moves the vote balances
// back.
func (bs *BlockState) RevertTransaction(ctx context.Context, tx database.Transaction) error {
	h, err := bs.registry.Handler(transactions.KindOf(tx))
	if err != nil {
		return err
	}

	if err := h.Revert(ctx, tx, bs.store); err != nil {
		return err
	}

	// The lock is open again once a settlement is reverted.
	settled, err := bs.settledLock(tx)
	if err != nil {
		return err
	}

	if err := bs.updateVoteBalances(tx, settled, true); err != nil {
		return err
	}

	bs.dispatcher.Dispatch(events.TransactionReverted, tx)

	return nil
}

// =============================================================================

// initGenesisForger makes sure the generator of the genesis block owns a
// wallet bound to its key.
func (bs *BlockState) initGenesisForger(block database.Block) {
	if bs.store.HasByPublicKey(block.GeneratorPublicKey) {
		return
	}

	forger, err := bs.store.FindByPublicKey(block.GeneratorPublicKey)
	if err != nil {
		bs.evHandler("state: initGenesisForger: WARNING: %s", err)
		return
	}
	bs.store.Index(forger)
}

// applyToForger credits, or on revert debits, the generator with the
// reward and the fees of the block.
func (bs *BlockState) applyToForger(block database.Block, revert bool) error {
	forger, err := bs.store.FindByPublicKey(block.GeneratorPublicKey)
	if err != nil {
		return err
	}

	reward := bigOrZero(block.Reward)
	fees := bigOrZero(block.TotalFee)
	total := new(big.Int).Add(reward, fees)

	if forger.IsDelegate() {
		produced := wallets.AttrOr(forger, "delegate.producedBlocks", int64(0))
		forgedFees := wallets.BigAttr(forger, "delegate.forgedFees")
		forgedRewards := wallets.BigAttr(forger, "delegate.forgedRewards")

		if revert {
			produced--
			forgedFees = new(big.Int).Sub(forgedFees, fees)
			forgedRewards = new(big.Int).Sub(forgedRewards, reward)
			forger.ForgetAttribute("delegate.lastBlock")
		} else {
			produced++
			forgedFees = new(big.Int).Add(forgedFees, fees)
			forgedRewards = new(big.Int).Add(forgedRewards, reward)

			if err := forger.SetAttribute("delegate.lastBlock", lastBlockAttr(block.BlockHeader)); err != nil {
				return err
			}
		}

		if err := forger.SetAttribute("delegate.producedBlocks", produced); err != nil {
			return err
		}
		if err := forger.SetAttribute("delegate.forgedFees", forgedFees); err != nil {
			return err
		}
		if err := forger.SetAttribute("delegate.forgedRewards", forgedRewards); err != nil {
			return err
		}
	}

	if revert {
		forger.DecreaseBalance(total)
	} else {
		forger.IncreaseBalance(total)
	}

	return bs.moveVoteBalance(forger, total, revert)
}

// =============================================================================

// lockSettlement is the lock a claim or refund settles, looked up while
// the lock is open.
type lockSettlement struct {
	lockWallet *wallets.Wallet
	payee      *wallets.Wallet
	amount     *big.Int
}

func (bs *BlockState) settledLock(tx database.Transaction) (*lockSettlement, error) {
	if tx.TypeGroup != database.TypeGroupCore || (tx.Type != transactions.TypeHtlcClaim && tx.Type != transactions.TypeHtlcRefund) {
		return nil, nil
	}

	lockWallet, lock, err := transactions.FindLock(bs.store, transactions.SettledLockID(tx))
	if err != nil {
		return nil, err
	}

	payee := lockWallet
	if tx.Type == transactions.TypeHtlcClaim {
		payee = bs.store.FindByAddress(lock.RecipientID)
	}

	ls := lockSettlement{
		lockWallet: lockWallet,
		payee:      payee,
		amount:     bigOrZero(lock.Amount),
	}

	return &ls, nil
}

// updateVoteBalances moves the vote balances of the delegates voted by the
// wallets the transaction touches.
func (bs *BlockState) updateVoteBalances(tx database.Transaction, settled *lockSettlement, revert bool) error {
	fee := bigOrZero(tx.Fee)

	if tx.TypeGroup == database.TypeGroupCore && tx.Type == transactions.TypeVote {
		return bs.updateVotes(tx, fee, revert)
	}

	// Settlements are paid out of the lock, the sender is not charged.
	if settled != nil {
		if err := bs.moveVoteBalance(settled.lockWallet, new(big.Int).Neg(settled.amount), revert); err != nil {
			return err
		}
		return bs.moveVoteBalance(settled.payee, new(big.Int).Sub(settled.amount, fee), revert)
	}

	sender, err := bs.store.FindByPublicKey(tx.SenderPublicKey)
	if err != nil {
		return err
	}

	// Locked funds keep counting for the sender's delegate.
	isLock := tx.TypeGroup == database.TypeGroupCore && tx.Type == transactions.TypeHtlcLock

	spent := new(big.Int).Set(fee)
	if !isLock {
		spent.Add(spent, tx.TotalAmount())
	}
	if err := bs.moveVoteBalance(sender, spent.Neg(spent), revert); err != nil {
		return err
	}

	if isLock {
		return nil
	}

	if tx.RecipientID != "" {
		recipient := bs.store.FindByAddress(tx.RecipientID)
		if err := bs.moveVoteBalance(recipient, bigOrZero(tx.Amount), revert); err != nil {
			return err
		}
	}

	if tx.Asset != nil {
		for _, p := range tx.Asset.Payments {
			recipient := bs.store.FindByAddress(p.RecipientID)
			if err := bs.moveVoteBalance(recipient, bigOrZero(p.Amount), revert); err != nil {
				return err
			}
		}
	}

	return nil
}

// updateVotes moves the weight of the sender between the delegates of a
// vote. The first unvote also carries the fee the vote paid.
func (bs *BlockState) updateVotes(tx database.Transaction, fee *big.Int, revert bool) error {
	if tx.Asset == nil {
		return nil
	}

	sender, err := bs.store.FindByPublicKey(tx.SenderPublicKey)
	if err != nil {
		return err
	}

	delegated := sender.Balance()
	delegated.Add(delegated, wallets.BigAttr(sender, "htlc.lockedBalance"))
	if revert {
		delegated.Sub(delegated, fee)
	}

	for i, vote := range tx.Asset.Votes {
		if len(vote) < 2 {
			continue
		}

		delegate, err := bs.store.FindByPublicKey(vote[1:])
		if err != nil {
			return err
		}

		change := new(big.Int).Set(delegated)
		if vote[0] == '-' {
			if i == 0 {
				change.Add(change, fee)
			}
			change.Neg(change)
		}
		if revert {
			change.Neg(change)
		}

		if err := addVoteBalance(delegate, change); err != nil {
			return err
		}
	}

	return nil
}

// moveVoteBalance adds the amount, subtracted on revert, to the vote
// balance of the delegate the wallet votes for.
func (bs *BlockState) moveVoteBalance(w *wallets.Wallet, amount *big.Int, revert bool) error {
	vote, ok := wallets.Attr[string](w, "vote")
	if !ok {
		return nil
	}

	delegate, err := bs.store.FindByPublicKey(vote)
	if err != nil {
		return err
	}

	change := new(big.Int).Set(amount)
	if revert {
		change.Neg(change)
	}

	return addVoteBalance(delegate, change)
}

func addVoteBalance(delegate *wallets.Wallet, change *big.Int) error {
	vb := new(big.Int).Add(wallets.BigAttr(delegate, "delegate.voteBalance"), change)
	return delegate.SetAttribute("delegate.voteBalance", vb)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
