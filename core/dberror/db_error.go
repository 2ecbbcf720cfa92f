package dberror

import "errors"

// --- Error Definitions ---

var (
	ErrKeyNotFound           = errors.New("key not found")
	ErrDuplicateKey          = errors.New("duplicate key")
	ErrOutOfMemory           = errors.New("out of memory")
	ErrCacheExhausted        = errors.New("page cache is full and no pages can be evicted")
	ErrIO                    = errors.New("i/o error")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrLimitsReached         = errors.New("limits reached")
	ErrCorruption            = errors.New("integrity violated, data corruption suspected")
	ErrTransactionConflict   = errors.New("transaction conflict")
	ErrRecoveryRequired      = errors.New("environment needs recovery")
	ErrDatabaseNotFound      = errors.New("database not found")
	ErrDatabaseAlreadyExists = errors.New("database already exists")
	ErrDatabaseAlreadyOpen   = errors.New("database already open")
	ErrAlreadyClosed         = errors.New("handle already closed")
	ErrReadOnly              = errors.New("environment is read-only")
	ErrTxnStillOpen          = errors.New("transaction still open")
	ErrCursorStillOpen       = errors.New("cursor still open")
	ErrCursorIsNil           = errors.New("cursor does not point to a key")
	ErrNotImplemented        = errors.New("operation not implemented")
)

// Status codes shared with remote clients. The values follow the engine's
// historical numbering so existing tooling keeps working.
const (
	StatusSuccess                = 0
	StatusOutOfMemory            = -6
	StatusInvalidParameter       = -8
	StatusKeyNotFound            = -11
	StatusDuplicateKey           = -12
	StatusIntegrityViolated      = -13
	StatusIOError                = -18
	StatusNotImplemented         = -20
	StatusLimitsReached          = -24
	StatusCursorIsNil            = -100
	StatusAlreadyClosed          = -25
	StatusCacheFull              = -27
	StatusNeedRecovery           = -28
	StatusTxnConflict            = -31
	StatusTxnStillOpen           = -33
	StatusCursorStillOpen        = -34
	StatusReadOnly               = -35
	StatusDatabaseNotFound       = -200
	StatusDatabaseAlreadyExists  = -201
	StatusDatabaseAlreadyOpen    = -202
	StatusUnknown                = -1
)

var codeTable = []struct {
	err  error
	code int
}{
	{ErrKeyNotFound, StatusKeyNotFound},
	{ErrDuplicateKey, StatusDuplicateKey},
	{ErrOutOfMemory, StatusOutOfMemory},
	{ErrCacheExhausted, StatusCacheFull},
	{ErrIO, StatusIOError},
	{ErrInvalidParameter, StatusInvalidParameter},
	{ErrLimitsReached, StatusLimitsReached},
	{ErrCorruption, StatusIntegrityViolated},
	{ErrTransactionConflict, StatusTxnConflict},
	{ErrRecoveryRequired, StatusNeedRecovery},
	{ErrDatabaseNotFound, StatusDatabaseNotFound},
	{ErrDatabaseAlreadyExists, StatusDatabaseAlreadyExists},
	{ErrDatabaseAlreadyOpen, StatusDatabaseAlreadyOpen},
	{ErrAlreadyClosed, StatusAlreadyClosed},
	{ErrReadOnly, StatusReadOnly},
	{ErrTxnStillOpen, StatusTxnStillOpen},
	{ErrCursorStillOpen, StatusCursorStillOpen},
	{ErrCursorIsNil, StatusCursorIsNil},
	{ErrNotImplemented, StatusNotImplemented},
}

// Code maps an error returned by the engine to its status code.
func Code(err error) int {
	if err == nil {
		return StatusSuccess
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return StatusUnknown
}

// FromCode is the inverse of Code. Unknown codes map to a generic error.
func FromCode(code int, msg string) error {
	if code == StatusSuccess {
		return nil
	}
	for _, e := range codeTable {
		if e.code == code {
			if msg == "" || msg == e.err.Error() {
				return e.err
			}
			return &remoteError{base: e.err, msg: msg}
		}
	}
	if msg == "" {
		msg = "unknown status"
	}
	return errors.New(msg)
}

// IsFatal reports whether err leaves the owning handle unusable.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCorruption)
}

type remoteError struct {
	base error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.base }
