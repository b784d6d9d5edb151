package domain

import (
	"time"

	"github.com/google/uuid"
)

type WalletAction string

const (
	WalletDebit  WalletAction = "debit"
	WalletCredit WalletAction = "credit"
)

type BookingEventType string

const (
	BookingCreated   BookingEventType = "booking.created"
	BookingCancelled BookingEventType = "booking.cancelled"
)

type Theatre struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Show carries the mutable seat counter.
type Show struct {
	ID             int64  `json:"id"`
	TheatreID      int64  `json:"theatre_id"`
	Title          string `json:"title"`
	Price          int64  `json:"price"`
	SeatsAvailable int    `json:"seats_available"`
}

// Cost returns the price of the given number of seats.
func (s *Show) Cost(seats int) int64 {
	return int64(seats) * s.Price
}

type Booking struct {
	ID          int64 `json:"id"`
	ShowID      int64 `json:"show_id"`
	UserID      int64 `json:"user_id"`
	SeatsBooked int   `json:"seats_booked"`
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Wallet struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

type BookingRequest struct {
	ShowID      int64
	UserID      int64
	SeatsBooked int
}

type BookingEvent struct {
	ID        uuid.UUID        `json:"id"`
	Type      BookingEventType `json:"type"`
	BookingID int64            `json:"booking_id"`
	ShowID    int64            `json:"show_id"`
	UserID    int64            `json:"user_id"`
	Seats     int              `json:"seats"`
	Amount    int64            `json:"amount"`
	At        time.Time        `json:"at"`
}
