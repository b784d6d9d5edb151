package wallet

import "errors"

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrUserInvalid       = errors.New("user does not exist")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrInvalidAction     = errors.New("action must be debit or credit")
)
