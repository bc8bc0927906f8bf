package transactions

import (
	"context"
	"math/big"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// TransferHandler moves an amount from the sender to the recipient.
type TransferHandler struct {
	Base
}

// NewTransfer constructs the transfer handler of the version.
func NewTransfer(env Env, version uint8) TransferHandler {
	return TransferHandler{NewBase(env, database.TypeGroupCore, TypeTransfer, version)}
}

// Bootstrap credits the recipient of every transfer.
func (h TransferHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		h.Wallets.FindByAddress(tx.RecipientID).IncreaseBalance(amount(tx))
		return nil
	})
}

// VerifyCanApply implements the Handler interface.
func (h TransferHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.RecipientID == "" {
		return assertion("recipientId")
	}

	return nil
}

// Apply implements the Handler interface.
func (h TransferHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	if _, err := h.ApplyToSender(tx, store); err != nil {
		return err
	}

	store.FindByAddress(tx.RecipientID).IncreaseBalance(amount(tx))
	return nil
}

// Revert implements the Handler interface.
func (h TransferHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	if _, err := h.RevertForSender(tx, store); err != nil {
		return err
	}

	store.FindByAddress(tx.RecipientID).DecreaseBalance(amount(tx))
	return nil
}

// EmitEvents implements the Handler interface.
func (h TransferHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.Transfer, tx)
}

// =============================================================================

// SecondSignatureHandler registers a second public key on the sender.
type SecondSignatureHandler struct {
	Base
}

// NewSecondSignature constructs the second signature handler of the version.
func NewSecondSignature(env Env, version uint8) SecondSignatureHandler {
	return SecondSignatureHandler{NewBase(env, database.TypeGroupCore, TypeSecondSignature, version)}
}

// WalletAttributes implements the Handler interface.
func (h SecondSignatureHandler) WalletAttributes() []string {
	return []string{"secondPublicKey"}
}

// Bootstrap implements the Handler interface.
func (h SecondSignatureHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.Signature == nil {
			return assertion("signature")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}
		return sender.SetAttribute("secondPublicKey", tx.Asset.Signature.PublicKey)
	})
}

// VerifyCanApply implements the Handler interface.
func (h SecondSignatureHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.Signature == nil {
		return assertion("signature")
	}

	if sender.HasSecondSignature() {
		return ErrSecondSignatureAlreadyRegistered
	}

	if sender.HasMultiSignature() {
		return ErrNotSupportedForMultiSignatureWallet
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h SecondSignatureHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return h.PendingFromSender(tx)
}

// Apply implements the Handler interface.
func (h SecondSignatureHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Signature == nil {
		return assertion("signature")
	}

	sender, err := h.ApplyToSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	return sender.SetAttribute("secondPublicKey", tx.Asset.Signature.PublicKey)
}

// Revert implements the Handler interface.
func (h SecondSignatureHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	sender, err := h.RevertForSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	sender.ForgetAttribute("secondPublicKey")
	return nil
}

// EmitEvents implements the Handler interface.
func (h SecondSignatureHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.SecondSignatureRegistered, tx)
}

// =============================================================================

// DelegateRegistrationHandler registers the sender as a delegate under a
// unique username.
type DelegateRegistrationHandler struct {
	Base
}

// NewDelegateRegistration constructs the delegate registration handler of
// the version.
func NewDelegateRegistration(env Env, version uint8) DelegateRegistrationHandler {
	return DelegateRegistrationHandler{NewBase(env, database.TypeGroupCore, TypeDelegateRegistration, version)}
}

// WalletAttributes implements the Handler interface.
func (h DelegateRegistrationHandler) WalletAttributes() []string {
	return []string{
		"delegate",
		"delegate.username",
		"delegate.voteBalance",
		"delegate.forgedFees",
		"delegate.forgedRewards",
		"delegate.producedBlocks",
		"delegate.rank",
		"delegate.round",
		"delegate.lastBlock",
	}
}

// Bootstrap implements the Handler interface.
func (h DelegateRegistrationHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.Delegate == nil {
			return assertion("delegate")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := registerDelegate(sender, tx.Asset.Delegate.Username); err != nil {
			return err
		}

		h.Wallets.Index(sender)
		return nil
	})
}

// VerifyCanApply implements the Handler interface.
func (h DelegateRegistrationHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.Delegate == nil || tx.Asset.Delegate.Username == "" {
		return assertion("delegate.username")
	}

	if sender.IsDelegate() {
		return ErrWalletIsAlreadyDelegate
	}

	username := tx.Asset.Delegate.Username
	if h.Resolve(store).HasByUsername(username) {
		return &UsernameAlreadyRegisteredError{Username: username}
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h DelegateRegistrationHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	if err := h.PendingFromSender(tx); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.Delegate == nil {
		return assertion("delegate")
	}

	username := tx.Asset.Delegate.Username
	sameUsername := func(p database.Transaction) bool {
		return p.Asset != nil && p.Asset.Delegate != nil && p.Asset.Delegate.Username == username
	}
	if h.HasPending(h.Kind(), "", sameUsername) {
		return pending("Delegate registration for %q already in the pool", username)
	}

	return nil
}

// Apply implements the Handler interface.
func (h DelegateRegistrationHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Delegate == nil {
		return assertion("delegate")
	}

	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := registerDelegate(sender, tx.Asset.Delegate.Username); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the Handler interface.
func (h DelegateRegistrationHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	sender.ForgetAttribute("delegate")
	store.Index(sender)
	return nil
}

// EmitEvents implements the Handler interface.
func (h DelegateRegistrationHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.DelegateRegistered, tx)
}

func registerDelegate(w *wallets.Wallet, username string) error {
	delegate := map[string]any{
		"username":       username,
		"voteBalance":    new(big.Int),
		"forgedFees":     new(big.Int),
		"forgedRewards":  new(big.Int),
		"producedBlocks": int64(0),
	}
	return w.SetAttribute("delegate", delegate)
}

// =============================================================================

// VoteHandler casts and withdraws the vote of the sender. A version 2 vote
// can carry an unvote followed by a vote.
type VoteHandler struct {
	Base
}

// NewVote constructs the vote handler of the version.
func NewVote(env Env, version uint8) VoteHandler {
	return VoteHandler{NewBase(env, database.TypeGroupCore, TypeVote, version)}
}

// Dependencies implements the Handler interface.
func (h VoteHandler) Dependencies() []Kind {
	return []Kind{{TypeGroup: database.TypeGroupCore, Type: TypeDelegateRegistration, Version: h.Kind().Version}}
}

// WalletAttributes implements the Handler interface.
func (h VoteHandler) WalletAttributes() []string {
	return []string{"vote"}
}

// Bootstrap implements the Handler interface.
func (h VoteHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || len(tx.Asset.Votes) == 0 {
			return assertion("votes")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}
		return castVotes(sender, tx.Asset.Votes)
	})
}

// VerifyCanApply implements the Handler interface.
func (h VoteHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || len(tx.Asset.Votes) == 0 || len(tx.Asset.Votes) > 2 {
		return assertion("votes")
	}

	store = h.Resolve(store)
	voted, hasVoted := wallets.Attr[string](sender, "vote")

	for _, vote := range tx.Asset.Votes {
		sign, publicKey, err := splitVote(vote)
		if err != nil {
			return err
		}

		if sign == '-' {
			if !hasVoted {
				return ErrNoVote
			}
			if voted != publicKey {
				return ErrUnvoteMismatch
			}
			hasVoted = false
			continue
		}

		if hasVoted {
			return ErrAlreadyVoted
		}

		delegate, err := store.FindByIndex(wallets.IndexPublicKeys, publicKey)
		if err != nil || !delegate.IsDelegate() {
			return ErrVotedForNonDelegate
		}
		if delegate.IsResigned() {
			return ErrVotedForResignedDelegate
		}

		voted, hasVoted = publicKey, true
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h VoteHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return h.PendingFromSender(tx)
}

// Apply implements the Handler interface.
func (h VoteHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || len(tx.Asset.Votes) == 0 {
		return assertion("votes")
	}

	sender, err := h.ApplyToSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	return castVotes(sender, tx.Asset.Votes)
}

// Revert implements the Handler interface.
func (h VoteHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || len(tx.Asset.Votes) == 0 {
		return assertion("votes")
	}

	sender, err := h.RevertForSender(tx, h.Resolve(store))
	if err != nil {
		return err
	}

	votes := tx.Asset.Votes
	for i := len(votes) - 1; i >= 0; i-- {
		sign, publicKey, err := splitVote(votes[i])
		if err != nil {
			return err
		}

		if sign == '+' {
			sender.ForgetAttribute("vote")
			continue
		}
		if err := sender.SetAttribute("vote", publicKey); err != nil {
			return err
		}
	}

	return nil
}

// EmitEvents dispatches a single event. A transaction that casts a vote is
// a vote, one that only withdraws is an unvote.
func (h VoteHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	if tx.Asset == nil || len(tx.Asset.Votes) == 0 {
		return
	}

	name := events.WalletUnvote
	var delegate string
	for _, vote := range tx.Asset.Votes {
		sign, publicKey, err := splitVote(vote)
		if err != nil {
			return
		}
		delegate = publicKey
		if sign == '+' {
			name = events.WalletVote
			break
		}
	}

	d.Dispatch(name, map[string]any{
		"delegate":    delegate,
		"votes":       tx.Asset.Votes,
		"transaction": tx,
	})
}

func castVotes(w *wallets.Wallet, votes []string) error {
	for _, vote := range votes {
		sign, publicKey, err := splitVote(vote)
		if err != nil {
			return err
		}

		if sign == '-' {
			w.ForgetAttribute("vote")
			continue
		}
		if err := w.SetAttribute("vote", publicKey); err != nil {
			return err
		}
	}
	return nil
}

// splitVote separates the +/- marker of a vote from the delegate key.
func splitVote(vote string) (byte, string, error) {
	if len(vote) < 2 || (vote[0] != '+' && vote[0] != '-') {
		return 0, "", assertion("votes")
	}
	return vote[0], vote[1:], nil
}

// =============================================================================

// MultiSignatureHandler turns the address derived from a set of keys into a
// multisignature wallet. The sender pays the fee.
type MultiSignatureHandler struct {
	Base
}

// NewMultiSignature constructs the version 2 multisignature handler.
func NewMultiSignature(env Env) MultiSignatureHandler {
	return MultiSignatureHandler{NewBase(env, database.TypeGroupCore, TypeMultiSignature, 2)}
}

// WalletAttributes implements the Handler interface.
func (h MultiSignatureHandler) WalletAttributes() []string {
	return []string{"multiSignature"}
}

// Bootstrap implements the Handler interface.
func (h MultiSignatureHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.MultiSignature == nil {
			return assertion("multiSignature")
		}
		return h.register(h.Wallets, *tx.Asset.MultiSignature)
	})
}

// VerifyCanApply implements the Handler interface.
func (h MultiSignatureHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.MultiSignature == nil {
		return assertion("multiSignature")
	}
	asset := *tx.Asset.MultiSignature

	if len(asset.PublicKeys) < 2 || asset.Min < 1 || len(asset.PublicKeys) < asset.Min {
		return ErrMultiSignatureMinimumKeys
	}

	if len(asset.PublicKeys) != len(tx.Signatures) {
		return ErrMultiSignatureKeyCountMismatch
	}

	publicKey, err := signature.MultiSignaturePublicKey(asset)
	if err != nil {
		return err
	}

	store = h.Resolve(store)
	if w, err := store.FindByIndex(wallets.IndexPublicKeys, publicKey); err == nil && w.HasMultiSignature() {
		return ErrMultiSignatureAlreadyRegistered
	}

	ok, err := tx.VerifyMultiSignatures(asset)
	if err != nil || !ok {
		return ErrInvalidMultiSignature
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h MultiSignatureHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return h.PendingFromSender(tx)
}

// Apply implements the Handler interface.
func (h MultiSignatureHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.MultiSignature == nil {
		return assertion("multiSignature")
	}

	store = h.Resolve(store)

	if _, err := h.ApplyToSender(tx, store); err != nil {
		return err
	}

	return h.register(store, *tx.Asset.MultiSignature)
}

// Revert implements the Handler interface.
func (h MultiSignatureHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.MultiSignature == nil {
		return assertion("multiSignature")
	}

	store = h.Resolve(store)

	if _, err := h.RevertForSender(tx, store); err != nil {
		return err
	}

	publicKey, err := signature.MultiSignaturePublicKey(*tx.Asset.MultiSignature)
	if err != nil {
		return err
	}

	w, err := store.FindByPublicKey(publicKey)
	if err != nil {
		return err
	}

	w.ForgetAttribute("multiSignature")
	store.Index(w)
	return nil
}

// EmitEvents implements the Handler interface.
func (h MultiSignatureHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.MultiSignatureRegistered, tx)
}

func (h MultiSignatureHandler) register(store wallets.Store, asset signature.MultiSignatureAsset) error {
	publicKey, err := signature.MultiSignaturePublicKey(asset)
	if err != nil {
		return err
	}

	w, err := store.FindByPublicKey(publicKey)
	if err != nil {
		return err
	}

	if err := w.SetAttribute("multiSignature", asset); err != nil {
		return err
	}

	store.Index(w)
	return nil
}

// LegacyMultiSignatureHandler rejects the retired version 1 multisignature
// registration. It is only active before aip11.
type LegacyMultiSignatureHandler struct {
	Base
}

// NewLegacyMultiSignature constructs the version 1 multisignature handler.
func NewLegacyMultiSignature(env Env) LegacyMultiSignatureHandler {
	return LegacyMultiSignatureHandler{NewBase(env, database.TypeGroupCore, TypeMultiSignature, 1)}
}

// IsActivated implements the Handler interface.
func (h LegacyMultiSignatureHandler) IsActivated(m milestones.Milestone) bool {
	return !m.AIP11
}

// VerifyCanApply implements the Handler interface.
func (h LegacyMultiSignatureHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	return ErrLegacyMultiSignature
}

// Apply implements the Handler interface.
func (h LegacyMultiSignatureHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	return ErrLegacyMultiSignature
}

// Revert implements the Handler interface.
func (h LegacyMultiSignatureHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	return ErrLegacyMultiSignature
}

// =============================================================================

// IpfsHandler registers an IPFS hash on the sender.
type IpfsHandler struct {
	Base
}

// NewIpfs constructs the IPFS handler.
func NewIpfs(env Env) IpfsHandler {
	return IpfsHandler{NewBase(env, database.TypeGroupCore, TypeIpfs, 2)}
}

// WalletAttributes implements the Handler interface.
func (h IpfsHandler) WalletAttributes() []string {
	return []string{"ipfs", "ipfs.hashes"}
}

// Bootstrap implements the Handler interface.
func (h IpfsHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || tx.Asset.Ipfs == "" {
			return assertion("ipfs")
		}

		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := addIpfs(sender, tx.Asset.Ipfs); err != nil {
			return err
		}

		h.Wallets.Index(sender)
		return nil
	})
}

// VerifyCanApply implements the Handler interface.
func (h IpfsHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if tx.Asset == nil || tx.Asset.Ipfs == "" {
		return assertion("ipfs")
	}

	if h.Resolve(store).HasByIndex(wallets.IndexIpfs, tx.Asset.Ipfs) {
		return ErrIpfsHashAlreadyExists
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h IpfsHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	if tx.Asset == nil || tx.Asset.Ipfs == "" {
		return assertion("ipfs")
	}

	hash := tx.Asset.Ipfs
	sameHash := func(p database.Transaction) bool {
		return p.Asset != nil && p.Asset.Ipfs == hash
	}
	if h.HasPending(h.Kind(), "", sameHash) {
		return pending("IPFS hash %q already in the pool", hash)
	}

	return nil
}

// Apply implements the Handler interface.
func (h IpfsHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Ipfs == "" {
		return assertion("ipfs")
	}

	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := addIpfs(sender, tx.Asset.Ipfs); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the Handler interface.
func (h IpfsHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || tx.Asset.Ipfs == "" {
		return assertion("ipfs")
	}

	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	hashes := wallets.AttrOr(sender, "ipfs.hashes", map[string]any{})
	delete(hashes, tx.Asset.Ipfs)

	switch len(hashes) {
	case 0:
		sender.ForgetAttribute("ipfs")
	default:
		if err := sender.SetAttribute("ipfs.hashes", hashes); err != nil {
			return err
		}
	}

	store.Index(sender)
	return nil
}

// EmitEvents implements the Handler interface.
func (h IpfsHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.IpfsRegistered, tx)
}

func addIpfs(w *wallets.Wallet, hash string) error {
	hashes := wallets.AttrOr(w, "ipfs.hashes", map[string]any{})
	hashes[hash] = true

	return w.SetAttribute("ipfs.hashes", hashes)
}

// =============================================================================

// MultiPaymentHandler pays several recipients out of one transaction.
type MultiPaymentHandler struct {
	Base
}

// NewMultiPayment constructs the multipayment handler.
func NewMultiPayment(env Env) MultiPaymentHandler {
	return MultiPaymentHandler{NewBase(env, database.TypeGroupCore, TypeMultiPayment, 2)}
}

// Bootstrap implements the Handler interface.
func (h MultiPaymentHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		if tx.Asset == nil || len(tx.Asset.Payments) == 0 {
			return assertion("payments")
		}

		for _, p := range tx.Asset.Payments {
			h.Wallets.FindByAddress(p.RecipientID).IncreaseBalance(p.Amount)
		}
		return nil
	})
}

// VerifyCanApply implements the Handler interface.
func (h MultiPaymentHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if tx.Asset == nil || len(tx.Asset.Payments) == 0 {
		return assertion("payments")
	}

	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if limit := h.Milestone().MultiPaymentLimit; limit > 0 && len(tx.Asset.Payments) > limit {
		return ErrTooManyPayments
	}

	return nil
}

// Apply implements the Handler interface.
func (h MultiPaymentHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || len(tx.Asset.Payments) == 0 {
		return assertion("payments")
	}

	store = h.Resolve(store)

	if _, err := h.ApplyToSender(tx, store); err != nil {
		return err
	}

	for _, p := range tx.Asset.Payments {
		store.FindByAddress(p.RecipientID).IncreaseBalance(p.Amount)
	}
	return nil
}

// Revert implements the Handler interface.
func (h MultiPaymentHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	if tx.Asset == nil || len(tx.Asset.Payments) == 0 {
		return assertion("payments")
	}

	store = h.Resolve(store)

	if _, err := h.RevertForSender(tx, store); err != nil {
		return err
	}

	for _, p := range tx.Asset.Payments {
		store.FindByAddress(p.RecipientID).DecreaseBalance(p.Amount)
	}
	return nil
}

// EmitEvents implements the Handler interface.
func (h MultiPaymentHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.MultiPayment, tx)
}

// =============================================================================

// DelegateResignationHandler retires the delegate of the sender from the
// ranking.
type DelegateResignationHandler struct {
	Base
}

// NewDelegateResignation constructs the delegate resignation handler.
func NewDelegateResignation(env Env) DelegateResignationHandler {
	return DelegateResignationHandler{NewBase(env, database.TypeGroupCore, TypeDelegateResignation, 2)}
}

// Dependencies implements the Handler interface.
func (h DelegateResignationHandler) Dependencies() []Kind {
	return []Kind{{TypeGroup: database.TypeGroupCore, Type: TypeDelegateRegistration, Version: 2}}
}

// WalletAttributes implements the Handler interface.
func (h DelegateResignationHandler) WalletAttributes() []string {
	return []string{"delegate.resigned"}
}

// Bootstrap implements the Handler interface.
func (h DelegateResignationHandler) Bootstrap(ctx context.Context) error {
	return h.Replay(ctx, func(tx database.Transaction) error {
		sender, err := h.Wallets.FindByPublicKey(tx.SenderPublicKey)
		if err != nil {
			return err
		}

		if err := sender.SetAttribute("delegate.resigned", true); err != nil {
			return err
		}

		h.Wallets.Index(sender)
		return nil
	})
}

// VerifyCanApply implements the Handler interface.
func (h DelegateResignationHandler) VerifyCanApply(ctx context.Context, tx database.Transaction, sender *wallets.Wallet, store wallets.Store) error {
	if err := h.VerifyWallet(tx, sender); err != nil {
		return err
	}

	if !sender.IsDelegate() {
		return ErrWalletNotADelegate
	}

	if sender.IsResigned() {
		return ErrWalletAlreadyResigned
	}

	var active int
	for _, d := range h.Resolve(store).AllByUsername() {
		if !d.IsResigned() {
			active++
		}
	}
	if active-1 < h.Milestone().ActiveDelegates {
		return ErrNotEnoughDelegates
	}

	return nil
}

// VerifyCanEnterPool implements the Handler interface.
func (h DelegateResignationHandler) VerifyCanEnterPool(ctx context.Context, tx database.Transaction) error {
	return h.PendingFromSender(tx)
}

// Apply implements the Handler interface.
func (h DelegateResignationHandler) Apply(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	sender, err := h.ApplyToSender(tx, store)
	if err != nil {
		return err
	}

	if err := sender.SetAttribute("delegate.resigned", true); err != nil {
		return err
	}

	store.Index(sender)
	return nil
}

// Revert implements the Handler interface.
func (h DelegateResignationHandler) Revert(ctx context.Context, tx database.Transaction, store wallets.Store) error {
	store = h.Resolve(store)

	sender, err := h.RevertForSender(tx, store)
	if err != nil {
		return err
	}

	sender.ForgetAttribute("delegate.resigned")
	store.Index(sender)
	return nil
}

// EmitEvents implements the Handler interface.
func (h DelegateResignationHandler) EmitEvents(tx database.Transaction, d events.Dispatcher) {
	d.Dispatch(events.DelegateResigned, tx)
}
