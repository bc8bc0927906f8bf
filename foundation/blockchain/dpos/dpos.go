// Package dpos ranks delegates by vote balance and keeps the delegate lists
// of the current and previous rounds.
package dpos

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/forging"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

// ErrRoundNotRetained is returned when the delegates of a round older than
// the previous round are requested.
var ErrRoundNotRetained = errors.New("round not retained")

// EventHandler defines a function that is called when events occur in the
// processing of rounds.
type EventHandler func(v string, args ...any)

// State maintains the delegate ranking and round membership over a wallet
// store.
type State struct {
	mu        sync.RWMutex
	store     wallets.Store
	evHandler EventHandler

	ranking      []*wallets.Wallet
	roundInfo    forging.RoundInfo
	active       []*wallets.Wallet
	previousInfo forging.RoundInfo
	previous     []*wallets.Wallet
}

// New constructs a ranking state over the store.
func New(store wallets.Store, evHandler EventHandler) *State {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	return &State{
		store:     store,
		evHandler: evHandler,
	}
}

// BuildVoteBalances recomputes every delegate vote balance from the balances
// and locked balances of its voters.
func (s *State) BuildVoteBalances() error {
	for _, d := range s.store.AllByUsername() {
		if err := d.SetAttribute("delegate.voteBalance", new(big.Int)); err != nil {
			return err
		}
	}

	for _, voter := range s.store.AllByPublicKey() {
		vote, ok := wallets.Attr[string](voter, "vote")
		if !ok {
			continue
		}

		delegate, err := s.store.FindByPublicKey(vote)
		if err != nil {
			return fmt.Errorf("voter %s: %w", voter.Address(), err)
		}

		balance := voter.Balance()
		balance.Add(balance, wallets.BigAttr(voter, "htlc.lockedBalance"))

		vb := wallets.BigAttr(delegate, "delegate.voteBalance")
		if err := delegate.SetAttribute("delegate.voteBalance", vb.Add(vb, balance)); err != nil {
			return err
		}
	}

	return nil
}

// BuildDelegateRanking orders the non resigned delegates by vote balance,
// highest first, breaking ties by public key. Each ranked delegate gets its
// 1-based rank; resigned delegates lose theirs.
func (s *State) BuildDelegateRanking(ri forging.RoundInfo) ([]*wallets.Wallet, error) {
	var delegates []*wallets.Wallet
	for _, d := range s.store.AllByUsername() {
		if d.IsResigned() {
			d.ForgetAttribute("delegate.rank")
			continue
		}
		delegates = append(delegates, d)
	}

	balances := make(map[*wallets.Wallet]*big.Int, len(delegates))
	for _, d := range delegates {
		balances[d] = wallets.BigAttr(d, "delegate.voteBalance")
	}

	var sortErr error
	slices.SortStableFunc(delegates, func(a, b *wallets.Wallet) int {
		if diff := balances[b].Cmp(balances[a]); diff != 0 {
			return diff
		}

		if a.PublicKey() == b.PublicKey() && sortErr == nil {
			username := wallets.AttrOr(a, "delegate.username", "")
			sortErr = fmt.Errorf("The balance and public key of both delegates are identical! Delegate %q appears twice in the list.", username)
		}

		return strings.Compare(a.PublicKey(), b.PublicKey())
	})

	if sortErr != nil {
		return nil, sortErr
	}

	for i, d := range delegates {
		if err := d.SetAttribute("delegate.rank", i+1); err != nil {
			return nil, err
		}
	}

	s.warnEqualBalances(delegates, ri)

	s.mu.Lock()
	s.ranking = delegates
	s.mu.Unlock()

	return slices.Clone(delegates), nil
}

// SetDelegatesRound makes the first MaxDelegates of the last ranking the
// delegates of the round and moves the current round to the previous slot.
func (s *State) SetDelegatesRound(ri forging.RoundInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ranking) < ri.MaxDelegates {
		return fmt.Errorf("Expected to find %d delegates but only found %d. This indicates an issue with the genesis block & delegates.", ri.MaxDelegates, len(s.ranking))
	}

	active := make([]*wallets.Wallet, ri.MaxDelegates)
	for i, d := range s.ranking[:ri.MaxDelegates] {
		c := d.Clone()
		if err := c.SetAttribute("delegate.round", ri.Round); err != nil {
			return err
		}
		active[i] = c
	}

	if s.active != nil && s.roundInfo.Round != ri.Round {
		s.previousInfo = s.roundInfo
		s.previous = s.active
	}

	s.roundInfo = ri
	s.active = active

	s.evHandler("dpos: SetDelegatesRound: round[%d] height[%d] delegates[%d]", ri.Round, ri.RoundHeight, len(active))

	return nil
}

// RestoreRounds installs the delegate lists of the current and previous
// rounds directly, as loaded from storage.
func (s *State) RestoreRounds(current forging.RoundInfo, active []*wallets.Wallet, previous forging.RoundInfo, previousActive []*wallets.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roundInfo = current
	s.active = active
	s.previousInfo = previous
	s.previous = previousActive
}

// RoundDelegates returns the delegates of the current or the previous round.
func (s *State) RoundDelegates(round int64) ([]*wallets.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.active != nil && round == s.roundInfo.Round:
		return slices.Clone(s.active), nil
	case s.previous != nil && round == s.previousInfo.Round:
		return slices.Clone(s.previous), nil
	}

	return nil, fmt.Errorf("%w: %d", ErrRoundNotRetained, round)
}

// ActiveDelegates returns the delegates of the current round.
func (s *State) ActiveDelegates() []*wallets.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.active)
}

// AllDelegates returns the last computed ranking.
func (s *State) AllDelegates() []*wallets.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.ranking)
}

// RoundInfo returns the current round.
func (s *State) RoundInfo() forging.RoundInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.roundInfo
}

// PreviousRoundInfo returns the retained previous round.
func (s *State) PreviousRoundInfo() forging.RoundInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.previousInfo
}

func (s *State) warnEqualBalances(ranked []*wallets.Wallet, ri forging.RoundInfo) {
	top := min(ri.MaxDelegates, len(ranked))
	for i := 1; i < top; i++ {
		a, b := ranked[i-1], ranked[i]
		if wallets.BigAttr(a, "delegate.voteBalance").Cmp(wallets.BigAttr(b, "delegate.voteBalance")) == 0 {
			s.evHandler("dpos: BuildDelegateRanking: WARNING: delegates %s and %s have a matching vote balance", a.PublicKey(), b.PublicKey())
		}
	}
}
