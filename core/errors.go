package core

import "fmt"

// Code is a stable numeric error code surfaced across the ledger's public
// boundary. Internal helpers are free to return plain wrapped errors;
// only the state-machine boundary converts them to a LedgerError carrying
// one of these codes.
type Code int

const (
	CodeNotAllowAnonymous               Code = 1
	CodeOnlyOwner                       Code = 2
	CodeOnlyMinter                      Code = 3
	CodeInvalidSpender                  Code = 4
	CodeInvalidFrom                     Code = 5
	CodeInvalidTo                       Code = 6
	CodeInvalidFeeTo                    Code = 7
	CodeInsufficientBalance             Code = 8
	CodeInsufficientAllowance           Code = 9
	CodeTransferExceedsAllowance        Code = 10
	CodeTransferExceedsBalance          Code = 11
	CodeBurnValueTooSmall               Code = 12
	CodeBurnExceedsBalance              Code = 13
	CodeBurnExceedsAllowance            Code = 14
	CodeNotificationFailed              Code = 15
	CodeStorageScalingFailed            Code = 16
	CodeMoveTxToScalingStorageFailed    Code = 17
	CodeInvalidLogo                     Code = 18
	CodeParentHashMismatch              Code = 19
	CodeInvalidTimestamp                Code = 20
	CodeTxTooOld                        Code = 21
	CodeTxCreatedInFuture               Code = 22
	CodeTxDuplicate                     Code = 23
	CodeTooManyInWindow                 Code = 24
	CodeNonExistentBlockHeight          Code = 25
	CodeRequestTooLarge                 Code = 26
	CodeInvalidTxId                     Code = 27
	CodeTxIdForeign                     Code = 28
	CodeOnlyTokenMayCall                Code = 29
	CodeUnknown                         Code = 10000
)

var codeNames = map[Code]string{
	CodeNotAllowAnonymous:            "NotAllowAnonymous",
	CodeOnlyOwner:                    "OnlyOwner",
	CodeOnlyMinter:                   "OnlyMinter",
	CodeInvalidSpender:               "InvalidSpender",
	CodeInvalidFrom:                  "InvalidFrom",
	CodeInvalidTo:                    "InvalidTo",
	CodeInvalidFeeTo:                 "InvalidFeeTo",
	CodeInsufficientBalance:          "InsufficientBalance",
	CodeInsufficientAllowance:        "InsufficientAllowance",
	CodeTransferExceedsAllowance:     "TransferExceedsAllowance",
	CodeTransferExceedsBalance:       "TransferExceedsBalance",
	CodeBurnValueTooSmall:            "BurnValueTooSmall",
	CodeBurnExceedsBalance:           "BurnExceedsBalance",
	CodeBurnExceedsAllowance:         "BurnExceedsAllowance",
	CodeNotificationFailed:           "NotificationFailed",
	CodeStorageScalingFailed:         "StorageScalingFailed",
	CodeMoveTxToScalingStorageFailed: "MoveTxToScalingStorageFailed",
	CodeInvalidLogo:                  "InvalidLogo",
	CodeParentHashMismatch:           "ParentHashMismatch",
	CodeInvalidTimestamp:             "InvalidTimestamp",
	CodeTxTooOld:                     "TxTooOld",
	CodeTxCreatedInFuture:            "TxCreatedInFuture",
	CodeTxDuplicate:                  "TxDuplicate",
	CodeTooManyInWindow:              "TooManyInWindow",
	CodeNonExistentBlockHeight:       "NonExistentBlockHeight",
	CodeRequestTooLarge:              "RequestTooLarge",
	CodeInvalidTxId:                  "InvalidTxId",
	CodeTxIdForeign:                  "TxIdForeign",
	CodeOnlyTokenMayCall:             "OnlyTokenMayCall",
	CodeUnknown:                      "Unknown",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// LedgerError is the stable, numeric error type returned across the
// ledger's public boundary. Internal code paths wrap plain errors with
// fmt.Errorf; LedgerError is attached only where a caller-visible code
// is required.
type LedgerError struct {
	Code    Code
	Message string
	err     error
}

func (e *LedgerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

func (e *LedgerError) Unwrap() error { return e.err }

// NewError builds a LedgerError with a formatted message.
func NewError(code Code, format string, args ...any) *LedgerError {
	return &LedgerError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches code to an existing error, preserving it for
// errors.Unwrap / errors.Is chains.
func WrapError(code Code, err error) *LedgerError {
	if err == nil {
		return nil
	}
	return &LedgerError{Code: code, Message: err.Error(), err: err}
}

// AsLedgerError extracts the numeric code from err, defaulting to
// CodeUnknown for anything that did not originate as a LedgerError —
// the catch-all for decode/unexpected failures.
func AsLedgerError(err error) *LedgerError {
	if err == nil {
		return nil
	}
	if le, ok := err.(*LedgerError); ok {
		return le
	}
	return &LedgerError{Code: CodeUnknown, Message: err.Error(), err: err}
}
