package magistrate

import "github.com/ardanlabs/dposledger/foundation/blockchain/transactions"

// Set of validation errors for the magistrate types. All of them match
// transactions.ErrValidation.
var (
	ErrBusinessAlreadyRegistered          = transactions.NewValidationError("Failed to apply transaction, because business is already registered.")
	ErrBusinessIsNotRegistered            = transactions.NewValidationError("Failed to apply transaction, because business is not registered.")
	ErrBusinessIsResigned                 = transactions.NewValidationError("Failed to apply transaction, because business is resigned.")
	ErrBridgechainAlreadyRegistered       = transactions.NewValidationError("Failed to apply transaction, because bridgechain is already registered.")
	ErrBridgechainIsNotRegisteredByWallet = transactions.NewValidationError("Failed to apply transaction, because bridgechain is not registered by wallet.")
	ErrBridgechainIsResigned              = transactions.NewValidationError("Failed to apply transaction, because bridgechain is resigned.")
	ErrGenesisHashAlreadyRegistered       = transactions.NewValidationError("Failed to apply transaction, because genesis hash is already registered by a wallet.")
	ErrPortKeyMustBeValidPackageName      = transactions.NewValidationError("Failed to apply transaction, because the port key must be a valid package name.")
	ErrWalletIsNotBusiness                = transactions.NewValidationError("Failed to apply transaction, because wallet is not a business.")
)

// Set of validation errors for the entity type.
var (
	ErrEntityAlreadyRegistered        = transactions.NewValidationError("Failed to apply transaction, because entity is already registered.")
	ErrEntityNameAlreadyRegistered    = transactions.NewValidationError("Failed to apply transaction, because entity name is already registered.")
	ErrEntityNotRegistered            = transactions.NewValidationError("Failed to apply transaction, because entity is not registered.")
	ErrEntityAlreadyResigned          = transactions.NewValidationError("Failed to apply transaction, because entity is already resigned.")
	ErrEntityWrongType                = transactions.NewValidationError("Failed to apply transaction, because entity type does not match.")
	ErrEntityWrongSubType             = transactions.NewValidationError("Failed to apply transaction, because entity sub type does not match.")
	ErrEntitySenderIsNotDelegate      = transactions.NewValidationError("Failed to apply transaction, because sender is not a delegate.")
	ErrEntityNameDoesNotMatchDelegate = transactions.NewValidationError("Failed to apply transaction, because entity name does not match the delegate name.")
	ErrEntityUnknownAction            = transactions.NewValidationError("Failed to apply transaction, because entity action is unknown.")
)
