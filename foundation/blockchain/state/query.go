package state

import (
	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/forging"
	"github.com/ardanlabs/dposledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

// Forger identifies the delegate of a forging slot.
type Forger struct {
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
	Address   string `json:"address"`
}

// ForgingInfo describes the forging slot of a timestamp in terms of the
// delegates of the current round.
type ForgingInfo struct {
	CurrentForger  Forger            `json:"currentForger"`
	NextForger     Forger            `json:"nextForger"`
	BlockTimestamp int64             `json:"blockTimestamp"`
	CanForge       bool              `json:"canForge"`
	Round          forging.RoundInfo `json:"round"`
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// LastBlock returns the last applied block.
func (s *State) LastBlock() database.Block {
	s.tipMu.RLock()
	defer s.tipMu.RUnlock()

	return s.tip
}

// Block returns the stored block at height.
func (s *State) Block(height int64) (database.Block, error) {
	return s.db.Block(height)
}

// Transaction returns the forged transaction and the height of its block.
func (s *State) Transaction(id string) (database.Transaction, int64, error) {
	return s.db.Transaction(id)
}

// Milestone returns the milestone of the next block.
func (s *State) Milestone() milestones.Milestone {
	return s.milestone()
}

// =============================================================================

// Wallet returns a copy of the wallet of the address.
func (s *State) Wallet(address string) (*wallets.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wallets.Has(address) {
		return nil, &wallets.NotFoundError{Key: address, Indexes: []string{wallets.IndexAddresses}}
	}

	return s.wallets.FindByAddress(address).Clone(), nil
}

// WalletByPublicKey returns a copy of the wallet bound to the public key.
func (s *State) WalletByPublicKey(publicKey string) (*wallets.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wallets.HasByPublicKey(publicKey) {
		return nil, &wallets.NotFoundError{Key: publicKey, Indexes: []string{wallets.IndexPublicKeys}}
	}

	w, err := s.wallets.FindByPublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	return w.Clone(), nil
}

// WalletByUsername returns a copy of the delegate wallet of the username.
func (s *State) WalletByUsername(username string) (*wallets.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.wallets.FindByUsername(username)
	if err != nil {
		return nil, err
	}

	return w.Clone(), nil
}

// Delegates returns copies of every ranked delegate, best first.
func (s *State) Delegates() []*wallets.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneAll(s.dpos.AllDelegates())
}

// ActiveDelegates returns copies of the delegates of the current round in
// forging order.
func (s *State) ActiveDelegates() []*wallets.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneAll(s.dpos.ActiveDelegates())
}

// RoundInfo returns the current round.
func (s *State) RoundInfo() forging.RoundInfo {
	return s.dpos.RoundInfo()
}

// Round returns the stored delegates of the round.
func (s *State) Round(round int64) (database.Round, error) {
	return s.db.Round(round)
}

// ForgingInfo returns the forgers of the slot the timestamp falls into.
func (s *State) ForgingInfo(timestamp int64) (ForgingInfo, error) {
	active := s.dpos.ActiveDelegates()
	if len(active) == 0 {
		return ForgingInfo{}, ErrNoActiveRound
	}

	height := s.LastBlock().Height + 1

	fi, err := forging.CalculateForgingInfo(timestamp, height, len(active), s.genesis.Milestones, s.roundState.BlockTimeLookup())
	if err != nil {
		return ForgingInfo{}, err
	}

	info := ForgingInfo{
		CurrentForger:  forgerOf(active[fi.CurrentForger]),
		NextForger:     forgerOf(active[fi.NextForger]),
		BlockTimestamp: fi.BlockTimestamp,
		CanForge:       fi.CanForge,
		Round:          s.dpos.RoundInfo(),
	}

	return info, nil
}

// =============================================================================

// Mempool returns the pooled transactions.
func (s *State) Mempool() []database.Transaction {
	return s.mempool.Pending()
}

// MempoolLength returns the number of pooled transactions.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// DeleteMempool drops a pooled transaction.
func (s *State) DeleteMempool(id string) bool {
	return s.mempool.DeleteByID(id)
}

// =============================================================================

func (s *State) milestone() milestones.Milestone {
	return s.genesis.Milestones.At(s.lastHeader().Height + 1)
}

func forgerOf(w *wallets.Wallet) Forger {
	return Forger{
		Username:  wallets.AttrOr(w, "delegate.username", ""),
		PublicKey: w.PublicKey(),
		Address:   w.Address(),
	}
}

func cloneAll(ws []*wallets.Wallet) []*wallets.Wallet {
	out := make([]*wallets.Wallet, len(ws))
	for i, w := range ws {
		out[i] = w.Clone()
	}
	return out
}
