package transaction

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid transaction request")
	ErrInvalidResponse    = errors.New("invalid transaction response")
	ErrInvalidState       = errors.New("invalid transaction state for operation")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionExists  = errors.New("transaction already exists")
	ErrTimeout            = errors.New("transaction timed out")
	ErrTerminated         = errors.New("transaction already terminated")
	ErrTransportFailure   = errors.New("transport send failed")
	ErrCannotCancel       = errors.New("transaction cannot be cancelled")
	ErrMaxRetransmits     = errors.New("transaction exceeded maximum retransmissions")
)
