package state

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/dpos"
	"github.com/ardanlabs/dposledger/foundation/blockchain/forging"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
	"go.opentelemetry.io/otel/trace"
)

// Builder rebuilds every wallet from the stored blocks.
type Builder struct {
	db         *database.Database
	repo       *wallets.Repository
	registry   *transactions.Registry
	dpos       *dpos.State
	milestones *milestones.Schedule
	dispatcher events.Dispatcher
	tracer     trace.Tracer
	evHandler  EventHandler

	// Public keys of the genesis senders, allowed to end with a negative
	// balance.
	genesisSenders map[string]bool

	// Balances a non genesis sender is allowed to end with, by public key
	// and nonce.
	negativeBalances map[string]map[string]*big.Int
}

// Run replays the chain into the canonical store: generator rewards, the
// balance and nonce effects shared by every transaction, then each handler
// bootstrap in registration order. It finishes with the delegate statistics
// and the ranking, and checks the resulting wallets.
func (b *Builder) Run(ctx context.Context, height int64) error {
	b.repo.Reset()

	handlers := b.registry.Handlers()
	steps := len(handlers) + 3

	b.evHandler("state: builder: State Generation - Step 1 of %d: Block Rewards", steps)
	if err := b.buildBlockRewards(ctx); err != nil {
		return err
	}

	b.evHandler("state: builder: State Generation - Step 2 of %d: Fees & Nonces", steps)
	if err := b.buildSentTransactions(ctx); err != nil {
		return err
	}

	for i, h := range handlers {
		name := stepName(h)
		b.evHandler("state: builder: State Generation - Step %d of %d: %s", i+3, steps, name)

		spanCtx, span := b.tracer.Start(ctx, "state.builder."+name)
		err := h.Bootstrap(spanCtx)
		span.End()

		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", name, err)
		}
	}

	b.evHandler("state: builder: State Generation - Step %d of %d: Delegate Statistics", steps, steps)
	if err := b.buildDelegates(ctx); err != nil {
		return err
	}

	ri, err := forging.CalculateRound(height, b.milestones)
	if err != nil {
		return err
	}

	if err := b.dpos.BuildVoteBalances(); err != nil {
		return err
	}
	if _, err := b.dpos.BuildDelegateRanking(ri); err != nil {
		return err
	}

	if err := b.verifyWalletsConsistency(); err != nil {
		return err
	}

	b.evHandler("state: builder: Number of registered delegates: %d", len(b.repo.AllByUsername()))
	b.dispatcher.Dispatch(events.StateBuilderFinished, nil)

	return nil
}

// =============================================================================

// buildBlockRewards credits every generator with the reward and the fees of
// its blocks.
func (b *Builder) buildBlockRewards(ctx context.Context) error {
	for block, err := range b.db.Blocks(ctx, 1) {
		if err != nil {
			return err
		}

		generator, err := b.repo.FindByPublicKey(block.GeneratorPublicKey)
		if err != nil {
			return fmt.Errorf("block %d generator: %w", block.Height, err)
		}

		earned := bigOrZero(block.Reward)
		earned.Add(earned, bigOrZero(block.TotalFee))
		generator.IncreaseBalance(earned)
	}

	return nil
}

// buildSentTransactions debits every sender with amount and fee and
// advances its nonce.
func (b *Builder) buildSentTransactions(ctx context.Context) error {
	for tx, err := range b.db.StreamByCriteria(ctx, database.Criteria{}) {
		if err != nil {
			return err
		}

		sender, err := b.repo.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return fmt.Errorf("tx %s sender: %w", tx.ID, err)
		}

		if transactions.KindOf(tx).Version >= 2 && tx.Nonce != nil {
			sender.SetNonce(tx.Nonce)
		} else {
			sender.IncreaseNonce()
		}

		spent := tx.TotalAmount()
		spent.Add(spent, bigOrZero(tx.Fee))
		sender.DecreaseBalance(spent)
	}

	return nil
}

// buildDelegates sets the forging statistics of every delegate.
func (b *Builder) buildDelegates(ctx context.Context) error {
	for block, err := range b.db.Blocks(ctx, 1) {
		if err != nil {
			return err
		}

		if !b.repo.HasByPublicKey(block.GeneratorPublicKey) {
			continue
		}

		forger, err := b.repo.FindByPublicKey(block.GeneratorPublicKey)
		if err != nil {
			return err
		}
		if !forger.IsDelegate() {
			continue
		}

		fees := new(big.Int).Set(wallets.BigAttr(forger, "delegate.forgedFees"))
		rewards := new(big.Int).Set(wallets.BigAttr(forger, "delegate.forgedRewards"))
		produced := wallets.AttrOr[int64](forger, "delegate.producedBlocks", 0)

		attrs := map[string]any{
			"delegate.forgedFees":     fees.Add(fees, bigOrZero(block.TotalFee)),
			"delegate.forgedRewards":  rewards.Add(rewards, bigOrZero(block.Reward)),
			"delegate.producedBlocks": produced + 1,
			"delegate.lastBlock":      lastBlockAttr(block.BlockHeader),
		}
		for k, v := range attrs {
			if err := forger.SetAttribute(k, v); err != nil {
				return err
			}
		}
	}

	return nil
}

// verifyWalletsConsistency rejects a negative balance outside the genesis
// senders and the configured exceptions, and any negative vote balance.
func (b *Builder) verifyWalletsConsistency() error {
	for _, w := range b.repo.AllByAddress() {
		balance := w.Balance()

		if balance.Sign() < 0 && !b.genesisSenders[w.PublicKey()] {
			allowed, ok := b.negativeBalances[w.PublicKey()][w.Nonce().Dec()]
			if !ok || allowed.Cmp(balance) != 0 {
				return &NegativeBalanceError{Address: w.Address(), Balance: balance}
			}

			b.evHandler("state: builder: WARNING: wallet %s has a negative balance of %s", w.Address(), balance)
		}

		if vb := wallets.BigAttr(w, "delegate.voteBalance"); vb.Sign() < 0 {
			return &NegativeBalanceError{Address: w.Address(), Balance: new(big.Int).Set(vb), Vote: true}
		}
	}

	return nil
}

// stepName names a handler for the builder log, for example
// "DelegateRegistration v2".
func stepName(h transactions.Handler) string {
	name := fmt.Sprintf("%T", h)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "Handler")

	return fmt.Sprintf("%s v%d", name, h.Kind().Version)
}

func lastBlockAttr(h database.BlockHeader) map[string]any {
	return map[string]any{
		"id":        h.ID,
		"height":    h.Height,
		"timestamp": h.Timestamp,
	}
}
