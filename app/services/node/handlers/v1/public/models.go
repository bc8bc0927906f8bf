package public

import (
	"math/big"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
)

type wallet struct {
	Name   string          `json:"name,omitempty"`
	Wallet *wallets.Wallet `json:"wallet"`
}

type delegate struct {
	Username       string   `json:"username"`
	Address        string   `json:"address"`
	PublicKey      string   `json:"publicKey"`
	Rank           int      `json:"rank"`
	VoteBalance    *big.Int `json:"voteBalance"`
	ProducedBlocks int64    `json:"producedBlocks"`
	Resigned       bool     `json:"resigned"`
}

type tx struct {
	Transaction database.Transaction `json:"transaction"`
	Height      int64                `json:"height,omitempty"`
	SenderName  string               `json:"senderName,omitempty"`
}

type submitted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type status struct {
	Height    int64  `json:"height"`
	BlockID   string `json:"blockId"`
	Round     int64  `json:"round"`
	Mempool   int    `json:"mempool"`
	Delegates int    `json:"activeDelegates"`
}

func toDelegate(w *wallets.Wallet) delegate {
	return delegate{
		Username:       wallets.AttrOr(w, "delegate.username", ""),
		Address:        w.Address(),
		PublicKey:      w.PublicKey(),
		Rank:           wallets.AttrOr(w, "delegate.rank", 0),
		VoteBalance:    wallets.BigAttr(w, "delegate.voteBalance"),
		ProducedBlocks: wallets.AttrOr(w, "delegate.producedBlocks", int64(0)),
		Resigned:       w.IsResigned(),
	}
}
