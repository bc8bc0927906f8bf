package transactions

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Set of error kinds the handlers report. Every rejection of a transaction
// matches ErrValidation, a missing asset field matches ErrAssertion.
var (
	ErrValidation = errors.New("validation")
	ErrAssertion  = errors.New("assertion")
)

// ValidationError is the rejection of a single transaction.
type ValidationError struct {
	msg string
}

// NewValidationError constructs a validation error with the message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func validation(msg string) *ValidationError {
	return NewValidationError(msg)
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.msg
}

// Is makes every validation error match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Generic wallet checks.
var (
	ErrInsufficientBalance           = validation("Insufficient balance in the wallet.")
	ErrSenderWalletMismatch          = validation("Failed to apply transaction, because the public key does not match the wallet.")
	ErrInvalidSignature              = validation("Failed to apply transaction, because the signature could not be verified.")
	ErrUnexpectedSecondSignature     = validation("Failed to apply transaction, because wallet does not allow second signatures.")
	ErrInvalidSecondSignature        = validation("Failed to apply transaction, because the second signature could not be verified.")
	ErrMissingMultiSignatureOnSender = validation("Failed to apply transaction, because sender does not have a multi signature.")
	ErrInvalidMultiSignature         = validation("Failed to apply transaction, because the multi signature could not be verified.")
	ErrUnexpectedMultiSignature      = validation("Failed to apply transaction, because wallet does not allow multi-signatures.")
)

// Signature registrations.
var (
	ErrSecondSignatureAlreadyRegistered    = validation("Failed to apply transaction, because second signature is already enabled.")
	ErrNotSupportedForMultiSignatureWallet = validation("Failed to apply transaction, because multi signature is enabled.")
	ErrMultiSignatureAlreadyRegistered     = validation("Failed to apply transaction, because multi signature is already enabled.")
	ErrMultiSignatureMinimumKeys           = validation("Failed to apply transaction, because too few keys were provided.")
	ErrMultiSignatureKeyCountMismatch      = validation("Failed to apply transaction, because the number of provided keys does not match the number of signatures.")
	ErrLegacyMultiSignature                = validation("Failed to apply transaction, because legacy multisignature is no longer supported.")
)

// Votes and delegates.
var (
	ErrAlreadyVoted             = validation("Failed to apply transaction, because the sender wallet has already voted.")
	ErrNoVote                   = validation("Failed to apply transaction, because the wallet has not voted.")
	ErrUnvoteMismatch           = validation("Failed to apply transaction, because the wallet vote does not match.")
	ErrVotedForNonDelegate      = validation("Failed to apply transaction, because only delegates can be voted.")
	ErrVotedForResignedDelegate = validation("Failed to apply transaction, because it votes for a resigned delegate.")
	ErrNotEnoughDelegates       = validation("Failed to apply transaction, because not enough delegates to allow resignation.")
	ErrWalletAlreadyResigned    = validation("Failed to apply transaction, because the wallet already resigned as delegate.")
	ErrWalletNotADelegate       = validation("Failed to apply transaction, because the wallet is not a delegate.")
	ErrWalletIsAlreadyDelegate  = validation("Failed to apply transaction, because the wallet already has a registered username.")
)

// IPFS, multipayment and HTLC.
var (
	ErrIpfsHashAlreadyExists       = validation("Failed to apply transaction, because this IPFS hash is already registered on the blockchain.")
	ErrTooManyPayments             = validation("Failed to apply transaction, because the number of payments exceeds the limit.")
	ErrHtlcLockTransactionNotFound = validation("Failed to apply transaction, because the associated HTLC lock transaction could not be found.")
	ErrHtlcSecretHashMismatch      = validation("Failed to apply transaction, because the secret provided does not match the associated HTLC lock transaction secret.")
	ErrHtlcLockNotExpired          = validation("Failed to apply transaction, because the associated HTLC lock transaction did not expire yet.")
	ErrHtlcLockExpired             = validation("Failed to apply transaction, because the associated HTLC lock transaction expired.")
)

// UsernameAlreadyRegisteredError is returned when a delegate registration
// asks for a username another wallet holds.
type UsernameAlreadyRegisteredError struct {
	Username string
}

// Error implements the error interface.
func (e *UsernameAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("Failed to apply transaction, because the username '%s' is already registered.", e.Username)
}

// Is makes the error match ErrValidation.
func (e *UsernameAlreadyRegisteredError) Is(target error) bool {
	return target == ErrValidation
}

// UnexpectedNonceError is returned when the transaction nonce does not
// follow the sender nonce.
type UnexpectedNonceError struct {
	Nonce           *uint256.Int
	Expected        *uint256.Int
	SenderPublicKey string
	Reverting       bool
}

// Error implements the error interface.
func (e *UnexpectedNonceError) Error() string {
	action := "apply"
	if e.Reverting {
		action = "revert"
	}
	return fmt.Sprintf("Cannot %s a transaction with nonce %s: the sender %s has nonce %s.", action, e.Nonce.Dec(), e.SenderPublicKey, e.Expected.Dec())
}

// Is makes the error match ErrValidation.
func (e *UnexpectedNonceError) Is(target error) bool {
	return target == ErrValidation
}

// =============================================================================

// Set of registry errors.
var (
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrDeactivatedHandler     = errors.New("deactivated transaction handler")
	ErrUnsatisfiedDependency  = errors.New("unsatisfied dependency")
	ErrAlreadyRegistered      = errors.New("already registered")
)

// KindError reports a registry failure for a transaction kind.
type KindError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *KindError) Error() string {
	switch e.Err {
	case ErrInvalidTransactionType:
		return fmt.Sprintf("Transaction type %s does not exist.", e.Kind)
	case ErrDeactivatedHandler:
		return fmt.Sprintf("Transaction type %s is deactivated.", e.Kind)
	case ErrUnsatisfiedDependency:
		return fmt.Sprintf("Transaction type %s is missing required dependencies", e.Kind)
	case ErrAlreadyRegistered:
		return fmt.Sprintf("Transaction type %s is already registered", e.Kind)
	}
	return fmt.Sprintf("Transaction type %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying registry error.
func (e *KindError) Unwrap() error {
	return e.Err
}

// Is makes unknown and deactivated types match ErrValidation, they reject
// the transaction that carries them.
func (e *KindError) Is(target error) bool {
	if target != ErrValidation {
		return false
	}
	return e.Err == ErrInvalidTransactionType || e.Err == ErrDeactivatedHandler
}

// =============================================================================

// Set of pool error types.
const (
	PoolErrPending      = "ERR_PENDING"
	PoolErrDuplicate    = "ERR_DUPLICATE"
	PoolErrLockNotFound = "ERR_HTLCLOCKNOTFOUND"
)

// PoolError is a conflict with the pending transactions. It only rejects
// the pool entry attempt.
type PoolError struct {
	Type    string
	Message string
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// NewPendingError reports a conflict with a pending transaction.
func NewPendingError(format string, args ...any) *PoolError {
	return &PoolError{Type: PoolErrPending, Message: fmt.Sprintf(format, args...)}
}

// NewDuplicateError reports a transaction that is already pooled.
func NewDuplicateError(format string, args ...any) *PoolError {
	return &PoolError{Type: PoolErrDuplicate, Message: fmt.Sprintf(format, args...)}
}

func pending(format string, args ...any) *PoolError {
	return NewPendingError(format, args...)
}

// Assertion reports a missing asset field on a transaction.
func Assertion(field string) error {
	return fmt.Errorf("%w: transaction asset %s is missing", ErrAssertion, field)
}

func assertion(field string) error {
	return Assertion(field)
}
