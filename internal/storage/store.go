package storage

import (
	"errors"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
)

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Sentinel errors shared by both store implementations. The service layer
// maps these onto the public error taxonomy.
var (
	// ErrNotFound means the addressed record does not exist or is inactive.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a competing record blocks the write (duplicate
	// active booking, trip already confirmed elsewhere).
	ErrConflict = errors.New("conflicting record exists")
	// ErrStaleState means a conditional transition matched zero rows: the
	// record left the required state between read and write.
	ErrStaleState = errors.New("record state changed")
)

// ConfirmationSweep reports what the confirmation cascade rejected alongside
// the winning booking.
type ConfirmationSweep struct {
	RejectedBookingIDs []string
	RejectedConnectIDs []string
}

// Store defines the interface for storage operations. Transition methods are
// atomic: condition checks and writes happen under one lock (memory) or one
// transaction (database), so callers never see a half-applied cascade.
type Store interface {
	// User operations
	CreateUser(user *models.User) (*models.User, error)
	GetUser(userID string) (*models.User, error)
	GetUserByPhone(phone string) (*models.User, error)

	// Trip operations
	CreateTrip(trip *models.Trip) (*models.Trip, error)
	GetTrip(tripID string) (*models.Trip, error)

	// Customer request operations
	CreateCustomerRequest(req *models.CustomerRequest) (*models.CustomerRequest, error)
	GetCustomerRequest(requestID string) (*models.CustomerRequest, error)

	// Connect request operations
	CreateConnectRequest(cr *models.ConnectRequest) (*models.ConnectRequest, error)
	GetConnectRequest(connectID string) (*models.ConnectRequest, error)
	AcceptConnectRequest(connectID string) (*models.ConnectRequest, error)

	// Booking operations
	CreateBooking(booking *models.Booking) (*models.Booking, error)
	GetBooking(bookingID string) (*models.Booking, error)
	GetBookingsByUser(userID string) ([]*models.Booking, error)
	GetBookingsByTrip(tripID string) ([]*models.Booking, error)
	HasActivePairBooking(tripID, requestID string) (bool, error)

	// ConfirmBookingExclusive moves one pending booking to confirmed and
	// runs the full cascade in the same unit: customer request marked
	// booked, competing pending bookings on the same trip or request
	// rejected, open connect requests of the request rejected. Fails with
	// ErrConflict when another booking already holds the trip or request.
	ConfirmBookingExclusive(bookingID string, now time.Time) (*models.Booking, *ConfirmationSweep, error)
	RejectBooking(bookingID string, now time.Time) (*models.Booking, error)
	CancelPendingBooking(bookingID, reason, requestedBy string, now time.Time) (*models.Booking, error)
	RequestBookingCancellation(bookingID, reason, requestedBy string, now time.Time) (*models.Booking, error)
	FinalizeBookingCancellation(bookingID, confirmedBy string, now time.Time) (*models.Booking, error)
	CompleteBooking(bookingID string, now time.Time) (*models.Booking, error)
	DeactivateBooking(bookingID, deactivatedBy, note string, now time.Time) (*models.Booking, error)

	// OTP challenge operations. CreateOtpChallenge retires any earlier
	// active challenge of the same booking and kind. RegisterOtpAttempt
	// increments the wrong-code counter atomically and deactivates the
	// challenge once the budget is spent. SettlePickup/SettleDelivery
	// transition the booking, consume the challenge and advance the
	// customer request marker as one unit.
	CreateOtpChallenge(ch *models.OtpChallenge) (*models.OtpChallenge, error)
	GetActiveOtpChallenge(bookingID, kind string) (*models.OtpChallenge, error)
	RegisterOtpAttempt(otpID string) (*models.OtpChallenge, error)
	SettlePickup(bookingID, otpID string, now time.Time) (*models.Booking, error)
	SettleDelivery(bookingID, otpID string, now time.Time) (*models.Booking, error)
	DeleteExpiredOtpChallenges(now time.Time) (int, error)

	// Token ledger operations. AppendTokenTransaction reports whether the
	// entry was newly applied; a replayed reference key returns the
	// original entry and false.
	AppendTokenTransaction(entry *models.TokenTransaction) (*models.TokenTransaction, bool, error)
	GetTokenBalance(driverID string) (int, error)
	GetTokenTransactions(driverID string) ([]*models.TokenTransaction, error)

	// Reward settings operations
	CreateRewardSettings(settings *models.RewardSettings) (*models.RewardSettings, error)
	GetActiveRewardSettings(now time.Time) (*models.RewardSettings, error)

	// Reward retry operations (reconciliation job)
	CreateRewardRetry(retry *models.RewardRetry) (*models.RewardRetry, error)
	GetPendingRewardRetries(limit int) ([]*models.RewardRetry, error)
	UpdateRewardRetry(retry *models.RewardRetry) error
}
