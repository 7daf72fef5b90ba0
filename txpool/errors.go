package txpool

import "errors"

var (
	// ErrNonceTooLow is returned by AddTransaction when tx.Nonce() is below
	// the sender's current on-chain nonce.
	ErrNonceTooLow = errors.New("nonce too low")
	// ErrInvalidSender is returned when the transaction's signature does
	// not recover to a valid sender address.
	ErrInvalidSender = errors.New("invalid transaction sender")
)
