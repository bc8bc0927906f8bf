package events

// Lifecycle events of the ledger state.
const (
	StateStarting        = "state.starting"
	StateBuilderFinished = "state.builder.finished"

	TransactionApplied  = "transaction.applied"
	TransactionReverted = "transaction.reverted"

	BlockApplied  = "block.applied"
	BlockReverted = "block.reverted"

	RoundApplied = "round.applied"
	RoundCreated = "round.created"

	ForgerMissing = "forger.missing"
	RoundMissed   = "round.missed"
)

// Events raised by the core transaction types.
const (
	Transfer                  = "transfer"
	SecondSignatureRegistered = "wallet.signature.registered"
	DelegateRegistered        = "delegate.registered"
	WalletVote                = "wallet.vote"
	WalletUnvote              = "wallet.unvote"
	MultiSignatureRegistered  = "wallet.multisignature.registered"
	IpfsRegistered            = "ipfs"
	MultiPayment              = "multipayment"
	DelegateResigned          = "delegate.resigned"
	HtlcLock                  = "htlc.lock"
	HtlcClaim                 = "htlc.claim"
	HtlcRefund                = "htlc.refund"
)

// Events raised by the magistrate transaction types.
const (
	BusinessRegistered    = "business.registered"
	BusinessResigned      = "business.resigned"
	BusinessUpdated       = "business.updated"
	BridgechainRegistered = "bridgechain.registered"
	BridgechainResigned   = "bridgechain.resigned"
	BridgechainUpdated    = "bridgechain.updated"
)
