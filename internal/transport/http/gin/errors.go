package httpgin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tix-saga/internal/service/account"
	"github.com/kirinyoku/tix-saga/internal/service/booking"
	"github.com/kirinyoku/tix-saga/internal/service/catalog"
	"github.com/kirinyoku/tix-saga/internal/service/users"
	"github.com/kirinyoku/tix-saga/internal/service/wallet"
)

type errorMapping struct {
	target error
	status int
	msg    string
}

var errorMappings = []errorMapping{
	// catalog
	{catalog.ErrTheatreNotFound, http.StatusNotFound, "theatre not found"},
	{catalog.ErrShowNotFound, http.StatusNotFound, "show not found"},
	// bookings
	{booking.ErrUserHasNoBookings, http.StatusNotFound, "user has no bookings"},
	{booking.ErrBookingNotFoundForPair, http.StatusNotFound, "no bookings for user and show"},
	{booking.ErrUserCheckUnavailable, http.StatusServiceUnavailable, "user directory unavailable"},
	// identity directory
	{users.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{account.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{users.ErrEmailTaken, http.StatusBadRequest, "email already registered"},
	{users.ErrInvalidUser, http.StatusBadRequest, "invalid name or email"},
	// wallet ledger
	{wallet.ErrWalletNotFound, http.StatusNotFound, "wallet not found"},
	{wallet.ErrInsufficientFunds, http.StatusBadRequest, "insufficient funds"},
	{wallet.ErrUserInvalid, http.StatusBadRequest, "user does not exist"},
	{wallet.ErrInvalidAmount, http.StatusBadRequest, "invalid amount"},
	{wallet.ErrInvalidAction, http.StatusBadRequest, "invalid action"},
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var rl *booking.RateLimitedError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	}

	if errors.Is(err, booking.ErrShowBusy) {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "show is busy, retry"})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, ErrorResponse{Error: m.msg})
			return
		}
	}

	// Any other refusal by the booking orchestrator is a bad request.
	if booking.Kind(err) == booking.KindRejected {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: rejectionMessage(err)})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, booking.ErrShowNotFound):
		return "show not found"
	case errors.Is(err, booking.ErrUserInvalid):
		return "user does not exist"
	case errors.Is(err, booking.ErrSeatsUnavailable):
		return "not enough seats available"
	case errors.Is(err, booking.ErrInvalidSeatCount):
		return "seats_booked must be positive"
	case errors.Is(err, booking.ErrWalletOperationFailed):
		return "wallet operation failed"
	default:
		return "request rejected"
	}
}

// respondCancel reports a batch cancellation. A batch that stopped part
// way also reports how many bookings were cancelled before it stopped.
func respondCancel(c *gin.Context, n int, err error) {
	if err == nil {
		c.JSON(http.StatusOK, CancelResponse{Cancelled: n})
		return
	}

	if errors.Is(err, booking.ErrWalletOperationFailed) {
		c.JSON(http.StatusBadRequest, CancelErrorResponse{
			Error:     "wallet operation failed",
			Cancelled: n,
		})
		return
	}

	respondErr(c, err)
}
