// Package bookingtest provides in-memory collaborators for the booking
// orchestrator, shared by service and transport tests.
package bookingtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/kirinyoku/tix-saga/internal/domain"
	"github.com/kirinyoku/tix-saga/internal/repository"
)

var ErrInjected = errors.New("injected failure")

// Ledger is an in-memory inventory and booking store.
type Ledger struct {
	mu       sync.Mutex
	theatres map[int64]domain.Theatre
	shows    map[int64]domain.Show
	bookings map[int64]domain.Booking
	nextID   int64

	// FailPlace makes PlaceBooking return this error without writing.
	FailPlace error
	// FailRelease makes ReleaseSeats return this error.
	FailRelease error
	// FailGetShow makes GetShow return this error.
	FailGetShow error
	// BeforePlace runs inside PlaceBooking before the seat check.
	BeforePlace func()
}

func NewLedger(shows ...domain.Show) *Ledger {
	l := &Ledger{
		theatres: make(map[int64]domain.Theatre),
		shows:    make(map[int64]domain.Show),
		bookings: make(map[int64]domain.Booking),
	}
	for _, s := range shows {
		l.shows[s.ID] = s
	}
	return l
}

func (l *Ledger) AddTheatre(t domain.Theatre) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.theatres[t.ID] = t
}

func (l *Ledger) TheatreExists(_ context.Context, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.theatres[id]
	return ok, nil
}

func (l *Ledger) ListTheatres(context.Context) ([]domain.Theatre, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []domain.Theatre{}
	for _, t := range l.theatres {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (l *Ledger) ListShowsByTheatre(_ context.Context, theatreID int64) ([]domain.Show, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []domain.Show{}
	for _, s := range l.shows {
		if s.TheatreID == theatreID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (l *Ledger) ShowExists(_ context.Context, showID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.shows[showID]
	return ok, nil
}

func (l *Ledger) GetShow(_ context.Context, showID int64) (*domain.Show, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailGetShow != nil {
		return nil, l.FailGetShow
	}

	s, ok := l.shows[showID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (l *Ledger) PlaceBooking(_ context.Context, show *domain.Show, userID int64, seats int) (*domain.Booking, error) {
	if l.BeforePlace != nil {
		l.BeforePlace()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailPlace != nil {
		return nil, l.FailPlace
	}

	cur, ok := l.shows[show.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if cur.SeatsAvailable < seats {
		return nil, repository.ErrConflict
	}

	cur.SeatsAvailable -= seats
	l.shows[cur.ID] = cur

	l.nextID++
	b := domain.Booking{ID: l.nextID, ShowID: show.ID, UserID: userID, SeatsBooked: seats}
	l.bookings[b.ID] = b

	return &b, nil
}

func (l *Ledger) ReleaseSeats(_ context.Context, showID int64, seats int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailRelease != nil {
		return l.FailRelease
	}

	s, ok := l.shows[showID]
	if !ok {
		return repository.ErrNotFound
	}
	s.SeatsAvailable += seats
	l.shows[showID] = s

	return nil
}

func (l *Ledger) BookingsByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	return l.filter(func(b domain.Booking) bool { return b.UserID == userID }), nil
}

func (l *Ledger) BookingsByUserAndShow(_ context.Context, userID, showID int64) ([]domain.Booking, error) {
	return l.filter(func(b domain.Booking) bool { return b.UserID == userID && b.ShowID == showID }), nil
}

func (l *Ledger) AllBookings(context.Context) ([]domain.Booking, error) {
	return l.filter(func(domain.Booking) bool { return true }), nil
}

func (l *Ledger) DeleteBooking(_ context.Context, bookingID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.bookings[bookingID]; !ok {
		return repository.ErrNotFound
	}
	delete(l.bookings, bookingID)

	return nil
}

// Show returns the current state of a show, or the zero value.
func (l *Ledger) Show(id int64) domain.Show {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.shows[id]
}

// SetSeats overwrites a show's seat counter.
func (l *Ledger) SetSeats(id int64, seats int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.shows[id]
	s.SeatsAvailable = seats
	l.shows[id] = s
}

// AddBooking stores b as is, assigning an id if it has none.
func (l *Ledger) AddBooking(b domain.Booking) domain.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b.ID == 0 {
		l.nextID++
		b.ID = l.nextID
	} else if b.ID > l.nextID {
		l.nextID = b.ID
	}
	l.bookings[b.ID] = b

	return b
}

func (l *Ledger) BookingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.bookings)
}

func (l *Ledger) filter(keep func(domain.Booking) bool) []domain.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []domain.Booking{}
	for _, b := range l.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Users is an in-memory identity directory.
type Users struct {
	mu     sync.Mutex
	byID   map[int64]domain.User
	nextID int64

	// Err makes UserExists fail as an unreachable directory would.
	Err error
}

func NewUsers(ids ...int64) *Users {
	u := &Users{byID: make(map[int64]domain.User)}
	for _, id := range ids {
		u.byID[id] = domain.User{ID: id, Name: fmt.Sprintf("user%d", id), Email: fmt.Sprintf("user%d@example.com", id)}
		if id > u.nextID {
			u.nextID = id
		}
	}
	return u
}

func (u *Users) UserExists(_ context.Context, userID int64) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.Err != nil {
		return false, u.Err
	}
	_, ok := u.byID[userID]
	return ok, nil
}

func (u *Users) Exists(ctx context.Context, userID int64) (bool, error) {
	return u.UserExists(ctx, userID)
}

func (u *Users) Create(_ context.Context, name, email string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, x := range u.byID {
		if x.Email == email {
			return nil, repository.ErrConflict
		}
	}
	u.nextID++
	usr := domain.User{ID: u.nextID, Name: name, Email: email}
	u.byID[usr.ID] = usr

	return &usr, nil
}

func (u *Users) Get(_ context.Context, id int64) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	usr, ok := u.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &usr, nil
}

func (u *Users) List(context.Context) ([]domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := []domain.User{}
	for _, usr := range u.byID {
		out = append(out, usr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (u *Users) Delete(_ context.Context, id int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(u.byID, id)

	return nil
}

func (u *Users) DeleteAll(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.byID = make(map[int64]domain.User)

	return nil
}

// Wallets is an in-memory wallet ledger with the lazy-create semantics of
// the real one.
type Wallets struct {
	mu       sync.Mutex
	balances map[int64]int64

	// FailCreditAfter lets this many credits succeed, then fails the rest.
	// Negative disables the injection.
	FailCreditAfter int

	Debits  int
	Credits int
}

func NewWallets(balances map[int64]int64) *Wallets {
	w := &Wallets{balances: make(map[int64]int64), FailCreditAfter: -1}
	for id, bal := range balances {
		w.balances[id] = bal
	}
	return w
}

func (w *Wallets) Debit(_ context.Context, userID, amount int64) (*domain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	bal := w.balances[userID]
	if bal < amount {
		return nil, fmt.Errorf("debit %d from %d: %w", amount, bal, repository.ErrInsufficientFunds)
	}
	w.balances[userID] = bal - amount
	w.Debits++

	return &domain.Wallet{UserID: userID, Balance: bal - amount}, nil
}

func (w *Wallets) Credit(_ context.Context, userID, amount int64) (*domain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.FailCreditAfter >= 0 && w.Credits >= w.FailCreditAfter {
		return nil, ErrInjected
	}

	w.balances[userID] += amount
	w.Credits++

	return &domain.Wallet{UserID: userID, Balance: w.balances[userID]}, nil
}

func (w *Wallets) Get(_ context.Context, userID int64) (*domain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	bal, ok := w.balances[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.Wallet{UserID: userID, Balance: bal}, nil
}

func (w *Wallets) Create(_ context.Context, userID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.balances[userID]; !ok {
		w.balances[userID] = 0
	}
	return nil
}

func (w *Wallets) Delete(_ context.Context, userID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.balances[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(w.balances, userID)

	return nil
}

func (w *Wallets) DeleteAll(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balances = make(map[int64]int64)

	return nil
}

func (w *Wallets) Balance(userID int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.balances[userID]
}

// WalletsMock is a testify mock of the remote wallet ledger.
type WalletsMock struct {
	mock.Mock
}

func (m *WalletsMock) Debit(ctx context.Context, userID, amount int64) (*domain.Wallet, error) {
	args := m.Called(ctx, userID, amount)
	w, _ := args.Get(0).(*domain.Wallet)
	return w, args.Error(1)
}

func (m *WalletsMock) Credit(ctx context.Context, userID, amount int64) (*domain.Wallet, error) {
	args := m.Called(ctx, userID, amount)
	w, _ := args.Get(0).(*domain.Wallet)
	return w, args.Error(1)
}

// UsersMock is a testify mock of the remote identity directory.
type UsersMock struct {
	mock.Mock
}

func (m *UsersMock) UserExists(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// Notifier records what it is told.
type Notifier struct {
	mu     sync.Mutex
	Shows  []domain.Show
	Events []domain.BookingEvent
}

func (n *Notifier) ShowChanged(_ context.Context, s domain.Show) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.Shows = append(n.Shows, s)
}

func (n *Notifier) BookingChanged(_ context.Context, ev domain.BookingEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.Events = append(n.Events, ev)
}
