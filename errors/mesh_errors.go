package errors

import (
	"errors"

	"github.com/globepay/meshpay/jsonx"
)

// MeshErrorCode represents standardized error codes for mesh and ledger operations
type MeshErrorCode string

const (
	// General errors
	ErrCodeInternal MeshErrorCode = "internal_error"

	// Validation errors
	ErrCodeInvalidSignature   MeshErrorCode = "invalid_signature"
	ErrCodeHashMismatch       MeshErrorCode = "hash_mismatch"
	ErrCodeInvalidAddress     MeshErrorCode = "invalid_address"
	ErrCodeInvalidAmount      MeshErrorCode = "invalid_amount"
	ErrCodeInvalidPayload     MeshErrorCode = "invalid_payload"
	ErrCodeMalformedMessage   MeshErrorCode = "malformed_message"

	// Business logic errors
	ErrCodeDuplicateTransaction MeshErrorCode = "duplicate_transaction"
	ErrCodeNonceOutOfOrder      MeshErrorCode = "nonce_out_of_order"
	ErrCodeTransactionNotFound  MeshErrorCode = "transaction_not_found"
	ErrCodeInvalidStatusChange  MeshErrorCode = "invalid_status_change"

	// Mesh and ledger errors
	ErrCodePeerUnreachable        MeshErrorCode = "peer_unreachable"
	ErrCodeNotPropagated          MeshErrorCode = "not_propagated"
	ErrCodeLedgerSubmissionFailed MeshErrorCode = "ledger_submission_failed"
	ErrCodeLedgerRejected         MeshErrorCode = "ledger_rejected"
)

// MeshError represents a standardized error crossing the mesh/ledger boundary
type MeshError struct {
	Code    MeshErrorCode `json:"code"`
	Message string        `json:"message"`
}

// Error implements the error interface
func (e *MeshError) Error() string {
	data, _ := jsonx.Marshal(MeshError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(data)
}

// Error message constants - user-friendly and concise
const (
	ErrMsgInvalidSignature        = "Transaction signature is invalid"
	ErrMsgHashMismatch            = "Transaction hash does not match its contents"
	ErrMsgInvalidAddress          = "Wallet address is invalid"
	ErrMsgInvalidAmount           = "Amount is invalid or zero"
	ErrMsgInvalidPayload          = "Exchange payload is invalid"
	ErrMsgDuplicateTransaction    = "This transaction already exists"
	ErrMsgNonceOutOfOrder         = "Transaction nonce is out of sequence"
	ErrMsgTransactionNotFound     = "Transaction could not be found"
	ErrMsgNotPropagated           = "No mesh peers reachable, transaction kept locally"
	ErrMsgLedgerSubmissionFailed  = "Ledger is unreachable, will retry"
	ErrMsgLedgerRejected          = "Ledger rejected the transaction"
	ErrMsgInternal                = "Internal error, please try again"
)

// NewError creates a new MeshError and returns it as error interface
func NewError(code MeshErrorCode, message string) error {
	return &MeshError{
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the MeshErrorCode from err, or ErrCodeInternal when err is
// not a MeshError.
func CodeOf(err error) MeshErrorCode {
	var meshErr *MeshError
	if errors.As(err, &meshErr) {
		return meshErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code MeshErrorCode) bool {
	return CodeOf(err) == code
}
