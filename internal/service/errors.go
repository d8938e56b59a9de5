package service

import "errors"

var (
	// ErrValidation wraps bad-input failures; handlers report the message
	// and apply nothing.
	ErrValidation = errors.New("validation failed")

	ErrOrderNotFound = errors.New("order not found")

	// ErrCheckoutFailed is the generic error surfaced when the processor
	// or the store fails mid-checkout. The shopper retries; details stay
	// in the logs.
	ErrCheckoutFailed = errors.New("failed to create checkout session")
)
