package dpos_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/dpos"
	"github.com/ardanlabs/dposledger/foundation/blockchain/forging"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type fixture struct {
	store     *wallets.Repository
	delegates map[string]*wallets.Wallet
}

// newFixture registers a delegate per username and a voter per entry of
// votes, funding the voter with the listed balance.
func newFixture(t *testing.T, usernames []string, votes map[string]int64) fixture {
	t.Helper()

	store, err := wallets.NewRepository(wallets.NewAttributeSet("delegate", "vote", "htlc.lockedBalance"))
	if err != nil {
		t.Fatalf("constructing repository: %v", err)
	}

	f := fixture{
		store:     store,
		delegates: make(map[string]*wallets.Wallet),
	}

	for _, username := range usernames {
		w := f.newWallet(t)
		w.SetAttribute("delegate.username", username)
		store.Index(w)
		f.delegates[username] = w
	}

	for username, balance := range votes {
		voter := f.newWallet(t)
		voter.SetBalance(big.NewInt(balance))
		voter.SetAttribute("vote", f.delegates[username].PublicKey())
	}

	return f
}

func (f fixture) newWallet(t *testing.T) *wallets.Wallet {
	t.Helper()

	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	w, err := f.store.FindByPublicKey(signature.PublicKeyHex(pk.PublicKey))
	if err != nil {
		t.Fatalf("finding wallet: %v", err)
	}
	return w
}

func usernames(ws []*wallets.Wallet) []string {
	names := make([]string, len(ws))
	for i, w := range ws {
		names[i] = wallets.AttrOr(w, "delegate.username", "")
	}
	return names
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================

func Test_Ranking(t *testing.T) {
	t.Log("Given the need to rank delegates by vote balance.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen delegates have distinct balances.", testID)
		{
			f := newFixture(t, []string{"a", "b", "c"}, map[string]int64{"a": 10, "b": 30, "c": 20})
			s := dpos.New(f.store, nil)

			if err := s.BuildVoteBalances(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould build vote balances: %v", failed, testID, err)
			}
			if got := wallets.BigAttr(f.delegates["b"], "delegate.voteBalance").Int64(); got != 30 {
				t.Fatalf("\t%s\tTest %d:\tShould sum the voter balances: %d", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould sum the voter balances.", success, testID)

			ranking, err := s.BuildDelegateRanking(forging.RoundInfo{Round: 1, MaxDelegates: 3})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould rank the delegates: %v", failed, testID, err)
			}
			if got := usernames(ranking); !equal(got, []string{"b", "c", "a"}) {
				t.Fatalf("\t%s\tTest %d:\tShould order by vote balance: %v", failed, testID, got)
			}
			if rank := wallets.AttrOr(f.delegates["a"], "delegate.rank", 0); rank != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould write the rank: %d", failed, testID, rank)
			}
			t.Logf("\t%s\tTest %d:\tShould order by vote balance.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen delegates have equal balances.", testID)
		{
			f := newFixture(t, []string{"a", "b", "c", "d"}, nil)
			s := dpos.New(f.store, nil)
			s.BuildVoteBalances()

			first, err := s.BuildDelegateRanking(forging.RoundInfo{Round: 1, MaxDelegates: 4})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould rank the delegates: %v", failed, testID, err)
			}
			for i := 1; i < len(first); i++ {
				if first[i-1].PublicKey() >= first[i].PublicKey() {
					t.Fatalf("\t%s\tTest %d:\tShould break ties by public key.", failed, testID)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould break ties by public key.", success, testID)

			second, _ := s.BuildDelegateRanking(forging.RoundInfo{Round: 1, MaxDelegates: 4})
			if !equal(usernames(first), usernames(second)) {
				t.Fatalf("\t%s\tTest %d:\tShould produce the same ranking twice.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce the same ranking twice.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a delegate resigned.", testID)
		{
			f := newFixture(t, []string{"a", "b"}, map[string]int64{"a": 50, "b": 5})
			s := dpos.New(f.store, nil)
			s.BuildVoteBalances()
			s.BuildDelegateRanking(forging.RoundInfo{Round: 1, MaxDelegates: 1})

			f.delegates["a"].SetAttribute("delegate.resigned", true)
			ranking, err := s.BuildDelegateRanking(forging.RoundInfo{Round: 1, MaxDelegates: 1})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould rank the delegates: %v", failed, testID, err)
			}
			if got := usernames(ranking); !equal(got, []string{"b"}) {
				t.Fatalf("\t%s\tTest %d:\tShould skip the resigned delegate: %v", failed, testID, got)
			}
			if f.delegates["a"].HasAttribute("delegate.rank") {
				t.Fatalf("\t%s\tTest %d:\tShould drop the rank of the resigned delegate.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould skip the resigned delegate.", success, testID)
		}
	}
}

func Test_Rounds(t *testing.T) {
	t.Log("Given the need to retain the delegates of the previous round.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen moving through three rounds.", testID)
		{
			f := newFixture(t, []string{"a", "b", "c"}, map[string]int64{"a": 3, "b": 2, "c": 1})
			s := dpos.New(f.store, nil)
			s.BuildVoteBalances()

			for round := int64(1); round <= 3; round++ {
				if _, err := s.BuildDelegateRanking(forging.RoundInfo{Round: round, MaxDelegates: 2}); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould rank the delegates: %v", failed, testID, err)
				}
				if err := s.SetDelegatesRound(forging.RoundInfo{Round: round, MaxDelegates: 2, RoundHeight: (round-1)*2 + 1}); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould set the round: %v", failed, testID, err)
				}
			}

			active := s.ActiveDelegates()
			if got := usernames(active); !equal(got, []string{"a", "b"}) {
				t.Fatalf("\t%s\tTest %d:\tShould select the top delegates: %v", failed, testID, got)
			}
			if r := wallets.AttrOr(active[0], "delegate.round", int64(0)); r != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould stamp the round: %d", failed, testID, r)
			}
			t.Logf("\t%s\tTest %d:\tShould select the top delegates.", success, testID)

			if _, err := s.RoundDelegates(2); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould retain the previous round: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould retain the previous round.", success, testID)

			if _, err := s.RoundDelegates(1); !errors.Is(err, dpos.ErrRoundNotRetained) {
				t.Fatalf("\t%s\tTest %d:\tShould not retain older rounds: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not retain older rounds.", success, testID)

			if err := s.SetDelegatesRound(forging.RoundInfo{Round: 4, MaxDelegates: 5}); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail without enough delegates.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail without enough delegates.", success, testID)
		}
	}
}
