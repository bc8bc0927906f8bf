// Package errs provides the error responses of the ledger web api.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/web"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Type   string            `json:"type,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (re *Trusted) Error() string {
	return re.Err.Error()
}

// Unwrap returns the wrapped error.
func (re *Trusted) Unwrap() error {
	return re.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}

// =============================================================================

// Classify turns an error of the ledger into the response and status sent
// to the client. Errors the ledger does not expect come back with ok false.
func Classify(err error) (Response, int, bool) {
	if trusted := GetTrusted(err); trusted != nil {
		return Response{Error: trusted.Error()}, trusted.Status, true
	}

	if fe := web.GetFieldErrors(err); fe != nil {
		return Response{Error: "data validation error", Fields: fe.Fields()}, http.StatusBadRequest, true
	}

	var poolErr *transactions.PoolError
	if errors.As(err, &poolErr) {
		return Response{Error: poolErr.Message, Type: poolErr.Type}, http.StatusConflict, true
	}

	switch {
	case errors.Is(err, wallets.ErrWalletNotFound),
		errors.Is(err, database.ErrNotFound):
		return Response{Error: err.Error()}, http.StatusNotFound, true

	case errors.Is(err, transactions.ErrValidation),
		errors.Is(err, transactions.ErrAssertion),
		errors.Is(err, state.ErrInvalidBlock),
		errors.Is(err, state.ErrGenesisRevert):
		return Response{Error: err.Error()}, http.StatusBadRequest, true

	case errors.Is(err, state.ErrAlreadyForged),
		errors.Is(err, mempool.ErrSenderLimit),
		errors.Is(err, state.ErrNotForger),
		errors.Is(err, state.ErrSlotClosed),
		errors.Is(err, state.ErrSlotTaken):
		return Response{Error: err.Error()}, http.StatusConflict, true

	case errors.Is(err, state.ErrNoActiveRound),
		errors.Is(err, state.ErrNotInitialized):
		return Response{Error: err.Error()}, http.StatusServiceUnavailable, true
	}

	return Response{Error: http.StatusText(http.StatusInternalServerError)}, http.StatusInternalServerError, false
}
