package httpgin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/tix-saga/internal/domain"
	redisrepo "github.com/kirinyoku/tix-saga/internal/repository/redis"
	"github.com/kirinyoku/tix-saga/internal/service"
	"github.com/kirinyoku/tix-saga/internal/service/booking"
)

const headerIdempotencyKey = "Idempotency-Key"

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Inventory
	r.GET("/theatres", handleListTheatres(svcs))
	r.GET("/shows/theatres/:theatre_id", handleListShows(svcs))
	r.GET("/shows/:id", handleGetShow(svcs))

	// Bookings
	r.GET("/bookings/users/:user_id", handleListBookings(svcs))
	r.POST("/bookings", handleCreateBooking(svcs, idem))
	r.DELETE("/bookings/users/:user_id", handleCancelForUser(svcs))
	r.DELETE("/bookings/users/:user_id/shows/:show_id", handleCancelForUserAndShow(svcs))
	r.DELETE("/bookings", handleCancelAll(svcs))

	// Identity directory
	r.POST("/users", handleCreateUser(svcs))
	r.GET("/users", handleListUsers(svcs))
	r.GET("/users/:id", handleGetUser(svcs))
	r.DELETE("/users/:id", handleDeleteUser(svcs))
	r.DELETE("/users", handleDeleteAllUsers(svcs))

	// Wallet ledger
	r.GET("/wallets/:user_id", handleGetWallet(svcs))
	r.PUT("/wallets/:user_id", handleWalletAction(svcs))
	r.DELETE("/wallets/:user_id", handleDeleteWallet(svcs))
	r.DELETE("/wallets", handleDeleteAllWallets(svcs))

	return r
}

// @Summary  List theatres
// @Success  200  {array}  domain.Theatre
// @Router   /theatres [get]
func handleListTheatres(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		theatres, err := svcs.Catalog.ListTheatres(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithETag(c, theatres, "no-cache")
	}
}

// @Summary  List shows of a theatre
// @Param    theatre_id  path  int  true  "Theatre ID"
// @Success  200  {array}   domain.Show
// @Failure  404  {object}  ErrorResponse
// @Router   /shows/theatres/{theatre_id} [get]
func handleListShows(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		theatreID, ok := parseInt64Param(c, "theatre_id")
		if !ok {
			return
		}
		shows, err := svcs.Catalog.ListShowsByTheatre(c.Request.Context(), theatreID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithETag(c, shows, "no-cache")
	}
}

// @Summary  Get show
// @Param    id  path  int  true  "Show ID"
// @Success  200  {object}  domain.Show
// @Failure  404  {object}  ErrorResponse
// @Router   /shows/{id} [get]
func handleGetShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		showID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		show, err := svcs.Catalog.GetShow(c.Request.Context(), showID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithETag(c, show, "no-cache")
	}
}

// @Summary  List bookings of a user
// @Param    user_id  path  int  true  "User ID"
// @Success  200  {array}  domain.Booking
// @Router   /bookings/users/{user_id} [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "user_id")
		if !ok {
			return
		}
		bookings, err := svcs.Bookings.ListByUser(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, bookings)
	}
}

// @Summary  Create booking (idempotent)
// @Param    req  body  CreateBookingRequest  true  "payload"
// @Param    Idempotency-Key  header  string  false  "retry key"
// @Success  200  {object}  domain.Booking
// @Failure  400  {object}  ErrorResponse  "rejected"
// @Failure  409  {object}  ErrorResponse  "show busy / idem in progress or unresolved"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  503  {object}  ErrorResponse  "user directory unavailable"
// @Router   /bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(idemKey)

			if replayed := replayIdempotent(c, idem, idemStorageKey, idemKey); replayed {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayed := replayIdempotent(c, idem, idemStorageKey, idemKey); replayed {
					return
				}
				if unresolved, _ := idem.IsUnresolved(c.Request.Context(), idemStorageKey); unresolved {
					c.JSON(http.StatusConflict, ErrorResponse{Error: "previous attempt with this key has an unknown outcome"})
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		b, err := svcs.Bookings.Create(c.Request.Context(), domain.BookingRequest{
			ShowID:      req.ShowID,
			UserID:      req.UserID,
			SeatsBooked: req.SeatsBooked,
		}, fmt.Sprintf("user:%d", req.UserID))
		if err != nil {
			if idemStorageKey != "" {
				// The wallet may already be debited; the key must not run again.
				if errors.Is(err, booking.ErrOutcomeUnknown) {
					_ = idem.MarkUnresolved(c.Request.Context(), idemStorageKey)
				} else {
					_ = idem.Release(c.Request.Context(), idemStorageKey)
				}
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			payload, _ := json.Marshal(b)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(payload))
			c.Header(headerIdempotencyKey, idemKey)
		}

		c.JSON(http.StatusOK, b)
	}
}

func replayIdempotent(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, idemKey string) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}

	c.Header(headerIdempotencyKey, idemKey)
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))

	return true
}

// @Summary  Cancel all bookings of a user
// @Param    user_id  path  int  true  "User ID"
// @Success  200  {object}  CancelResponse
// @Failure  400  {object}  CancelErrorResponse  "refund failed"
// @Failure  404  {object}  ErrorResponse  "no bookings"
// @Router   /bookings/users/{user_id} [delete]
func handleCancelForUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "user_id")
		if !ok {
			return
		}
		n, err := svcs.Bookings.CancelByUser(c.Request.Context(), userID)
		respondCancel(c, n, err)
	}
}

// @Summary  Cancel bookings of a user for one show
// @Param    user_id  path  int  true  "User ID"
// @Param    show_id  path  int  true  "Show ID"
// @Success  200  {object}  CancelResponse
// @Failure  400  {object}  CancelErrorResponse  "refund failed"
// @Failure  404  {object}  ErrorResponse  "no bookings for the pair"
// @Router   /bookings/users/{user_id}/shows/{show_id} [delete]
func handleCancelForUserAndShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "user_id")
		if !ok {
			return
		}
		showID, ok := parseInt64Param(c, "show_id")
		if !ok {
			return
		}
		n, err := svcs.Bookings.CancelByUserAndShow(c.Request.Context(), userID, showID)
		respondCancel(c, n, err)
	}
}

// @Summary  Cancel every booking
// @Success  200  {object}  CancelResponse
// @Failure  400  {object}  CancelErrorResponse  "refund failed"
// @Router   /bookings [delete]
func handleCancelAll(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svcs.Bookings.CancelAll(c.Request.Context())
		respondCancel(c, n, err)
	}
}

// @Summary  Create user
// @Param    req  body  CreateUserRequest  true  "payload"
// @Success  201  {object}  domain.User
// @Failure  400  {object}  ErrorResponse
// @Router   /users [post]
func handleCreateUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		u, err := svcs.Users.Create(c.Request.Context(), req.Name, req.Email)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// @Summary  List users
// @Success  200  {array}  domain.User
// @Router   /users [get]
func handleListUsers(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Users.List(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Get user
// @Param    id  path  int  true  "User ID"
// @Success  200  {object}  domain.User
// @Failure  404  {object}  ErrorResponse
// @Router   /users/{id} [get]
func handleGetUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		u, err := svcs.Users.Get(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// @Summary  Delete user with their bookings and wallet
// @Param    id  path  int  true  "User ID"
// @Success  204
// @Failure  404  {object}  ErrorResponse
// @Router   /users/{id} [delete]
func handleDeleteUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		respondErr(c, svcs.Accounts.DeleteUser(c.Request.Context(), userID))
	}
}

// @Summary  Delete every user with their bookings and wallets
// @Success  204
// @Router   /users [delete]
func handleDeleteAllUsers(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondErr(c, svcs.Accounts.DeleteAll(c.Request.Context()))
	}
}

// @Summary  Get wallet
// @Param    user_id  path  int  true  "User ID"
// @Success  200  {object}  domain.Wallet
// @Failure  404  {object}  ErrorResponse
// @Router   /wallets/{user_id} [get]
func handleGetWallet(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "user_id")
		if !ok {
			return
		}
		w, err := svcs.Wallets.Get(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

// @Summary  Debit or credit a wallet
// @Param    user_id  path  int  true  "User ID"
// @Param    req  body  WalletActionRequest  true  "payload"
// @Success  200  {object}  domain.Wallet
// @Failure  400  {object}  ErrorResponse  "insufficient funds / unknown user"
// @Router   /wallets/{user_id} [put]
func handleWalletAction(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "user_id")
		if !ok {
			return
		}
		var req WalletActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		w, err := svcs.Wallets.Transact(c.Request.Context(), userID, req.Action, req.Amount)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

// @Summary  Delete wallet
// @Param    user_id  path  int  true  "User ID"
// @Success  204
// @Failure  404  {object}  ErrorResponse
// @Router   /wallets/{user_id} [delete]
func handleDeleteWallet(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "user_id")
		if !ok {
			return
		}
		respondErr(c, svcs.Wallets.Delete(c.Request.Context(), userID))
	}
}

// @Summary  Delete every wallet
// @Success  204
// @Router   /wallets [delete]
func handleDeleteAllWallets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondErr(c, svcs.Wallets.DeleteAll(c.Request.Context()))
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
