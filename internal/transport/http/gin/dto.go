package httpgin

import "github.com/kirinyoku/tix-saga/internal/domain"

type CreateBookingRequest struct {
	ShowID      int64 `json:"show_id" binding:"required"`
	UserID      int64 `json:"user_id" binding:"required"`
	SeatsBooked int   `json:"seats_booked"`
}

type CreateUserRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

type WalletActionRequest struct {
	Action domain.WalletAction `json:"action" binding:"required,oneof=debit credit"`
	Amount int64               `json:"amount" binding:"gte=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CancelResponse struct {
	Cancelled int `json:"cancelled"`
}

// CancelErrorResponse reports a batch cancellation that stopped part way.
type CancelErrorResponse struct {
	Error     string `json:"error"`
	Cancelled int    `json:"cancelled"`
}
