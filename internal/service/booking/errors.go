package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrShowNotFound           = errors.New("show not found")
	ErrUserInvalid            = errors.New("user does not exist")
	ErrUserCheckUnavailable   = errors.New("user validation undetermined")
	ErrInvalidSeatCount       = errors.New("seat count must be positive")
	ErrSeatsUnavailable       = errors.New("not enough seats available")
	ErrWalletOperationFailed  = errors.New("wallet operation failed")
	ErrUserHasNoBookings      = errors.New("user has no bookings")
	ErrBookingNotFoundForPair = errors.New("no bookings for user and show")
	ErrShowBusy               = errors.New("show is locked by another booking")
	ErrRateLimited            = errors.New("rate limited")

	// ErrOutcomeUnknown marks a booking whose wallet was debited but whose
	// local write failed without a known rollback.
	ErrOutcomeUnknown = errors.New("booking outcome unknown")
)

type SeatsUnavailableError struct {
	ShowID    int64
	Requested int
	Available int
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("show %d: requested %d seats, %d available", e.ShowID, e.Requested, e.Available)
}

func (e *SeatsUnavailableError) Is(target error) bool {
	return target == ErrSeatsUnavailable
}

// Compensation stages.
const (
	StageShow   = "show"
	StageCredit = "credit"
)

// CompensationError reports a booking whose refund could not be completed.
// The booking row is left in place. Only a failed credit counts as a
// wallet operation failure; a failed show lookup is operational.
type CompensationError struct {
	BookingID int64
	Stage     string
	Err       error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensate booking %d: %s: %v", e.BookingID, e.Stage, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

func (e *CompensationError) Is(target error) bool {
	return target == ErrWalletOperationFailed && e.Stage == StageCredit
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

type ErrorKind int

const (
	KindOperational ErrorKind = iota
	KindRejected
)

func (k ErrorKind) String() string {
	if k == KindRejected {
		return "rejected"
	}
	return "operational"
}

var rejected = []error{
	ErrShowNotFound,
	ErrUserInvalid,
	ErrInvalidSeatCount,
	ErrSeatsUnavailable,
	ErrWalletOperationFailed,
	ErrUserHasNoBookings,
	ErrBookingNotFoundForPair,
	ErrRateLimited,
}

// Kind tells a problem with the request apart from an operational failure
// of a store or collaborator.
func Kind(err error) ErrorKind {
	for _, target := range rejected {
		if errors.Is(err, target) {
			return KindRejected
		}
	}

	return KindOperational
}

func IsRejected(err error) bool {
	return Kind(err) == KindRejected
}
