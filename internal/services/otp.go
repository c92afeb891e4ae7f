package services

import (
	"errors"
	"time"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// OtpService owns handover challenge mechanics: issuing codes and checking
// presented ones. Booking-level authorization, milestone gates and settlement
// live in BookingService; this layer never transitions a booking.
type OtpService struct {
	store storage.Store
	nowFn func() time.Time
}

func NewOtpService(store storage.Store) *OtpService {
	return &OtpService{store: store, nowFn: time.Now}
}

// Issue creates a fresh challenge for the booking and kind, retiring any
// live predecessor. The clear-text code is returned exactly once, here.
func (s *OtpService) Issue(booking *models.Booking, kind, issuedTo, issuedBy string) (*models.OtpChallenge, string, error) {
	code, err := utils.GenerateSecureOTP()
	if err != nil {
		return nil, "", err
	}

	challenge := &models.OtpChallenge{
		BookingID:   booking.BookingID,
		Kind:        kind,
		Code:        code,
		IssuedTo:    issuedTo,
		IssuedBy:    issuedBy,
		ExpiresAt:   s.nowFn().Add(models.DefaultOtpTTL),
		MaxAttempts: models.DefaultOtpMaxAttempts,
		IsActive:    true,
	}
	created, err := s.store.CreateOtpChallenge(challenge)
	if err != nil {
		return nil, "", err
	}
	return created, code, nil
}

// CheckCode validates a presented code against the booking's live challenge.
// A wrong code burns one attempt; spending the last attempt deactivates the
// challenge, after which even the correct code is rejected. A correct code
// must come from the challenge's issuer. The challenge is NOT consumed here:
// consumption happens inside milestone settlement, so a failed time gate
// leaves the code reusable.
func (s *OtpService) CheckCode(actor models.Actor, booking *models.Booking, kind, code string) (*models.OtpChallenge, error) {
	challenge, err := s.store.GetActiveOtpChallenge(booking.BookingID, kind)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound("no active %s code for booking %s", kind, booking.BookingID)
		}
		return nil, err
	}

	if challenge.Expired(s.nowFn()) {
		return nil, ErrOtpExpired("code expired, generate a new one")
	}

	if code != challenge.Code {
		burned, err := s.store.RegisterOtpAttempt(challenge.OtpID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNotFound("no active %s code for booking %s", kind, booking.BookingID)
			}
			return nil, err
		}
		if burned.Exhausted() {
			return nil, ErrOtpInvalid("incorrect code, attempt limit reached; generate a new one")
		}
		return nil, ErrOtpInvalid("incorrect code, %d attempts left", burned.MaxAttempts-burned.Attempts)
	}

	if actor.UserID != challenge.IssuedBy {
		return nil, ErrForbidden("only the code issuer can verify it")
	}
	return challenge, nil
}

// PurgeExpired removes expired unconsumed challenges. Called by the
// reconciliation job.
func (s *OtpService) PurgeExpired() (int, error) {
	return s.store.DeleteExpiredOtpChallenges(s.nowFn())
}
