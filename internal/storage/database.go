package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
)

// DatabaseStore implements Store on PostgreSQL via GORM. Every transition
// runs inside a transaction with conditional UPDATEs; RowsAffected==0 means
// the row left the required state first and the caller lost the race.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a PostgreSQL-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// notFound maps GORM's miss onto the shared sentinel.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// User operations

func (s *DatabaseStore) CreateUser(user *models.User) (*models.User, error) {
	if err := s.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return user, nil
}

func (s *DatabaseStore) GetUser(userID string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *DatabaseStore) GetUserByPhone(phone string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("phone = ?", models.NormalizePhone(phone)).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// Trip operations

func (s *DatabaseStore) CreateTrip(trip *models.Trip) (*models.Trip, error) {
	if err := s.db.Create(trip).Error; err != nil {
		return nil, err
	}
	return trip, nil
}

func (s *DatabaseStore) GetTrip(tripID string) (*models.Trip, error) {
	var trip models.Trip
	if err := s.db.Where("trip_id = ?", tripID).First(&trip).Error; err != nil {
		return nil, notFound(err)
	}
	return &trip, nil
}

// Customer request operations

func (s *DatabaseStore) CreateCustomerRequest(req *models.CustomerRequest) (*models.CustomerRequest, error) {
	if err := s.db.Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

func (s *DatabaseStore) GetCustomerRequest(requestID string) (*models.CustomerRequest, error) {
	var req models.CustomerRequest
	if err := s.db.Where("request_id = ?", requestID).First(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// Connect request operations

func (s *DatabaseStore) CreateConnectRequest(cr *models.ConnectRequest) (*models.ConnectRequest, error) {
	if err := s.db.Create(cr).Error; err != nil {
		return nil, err
	}
	return cr, nil
}

func (s *DatabaseStore) GetConnectRequest(connectID string) (*models.ConnectRequest, error) {
	var cr models.ConnectRequest
	if err := s.db.Where("connect_id = ?", connectID).First(&cr).Error; err != nil {
		return nil, notFound(err)
	}
	return &cr, nil
}

func (s *DatabaseStore) AcceptConnectRequest(connectID string) (*models.ConnectRequest, error) {
	var cr models.ConnectRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("connect_id = ? AND is_active = ?", connectID, true).First(&cr).Error; err != nil {
			return notFound(err)
		}
		res := tx.Model(&models.ConnectRequest{}).
			Where("connect_id = ? AND status IN ?", connectID,
				[]string{models.ConnectStatusPending, models.ConnectStatusHold}).
			Updates(map[string]interface{}{
				"status":     models.ConnectStatusAccepted,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}
		return tx.Where("connect_id = ?", connectID).First(&cr).Error
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// Booking operations

func (s *DatabaseStore) CreateBooking(booking *models.Booking) (*models.Booking, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&models.Booking{}).
			Where("trip_id = ? AND customer_request_id = ? AND is_active = ? AND status IN ?",
				booking.TripID, booking.CustomerRequestID, true,
				[]string{models.BookingStatusPending, models.BookingStatusConfirmed}).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		return tx.Create(booking).Error
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *DatabaseStore) GetBooking(bookingID string) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.Where("booking_id = ? AND is_active = ?", bookingID, true).First(&booking).Error; err != nil {
		return nil, notFound(err)
	}
	return &booking, nil
}

func (s *DatabaseStore) GetBookingsByUser(userID string) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := s.db.
		Where("is_active = ? AND (driver_id = ? OR customer_id = ?)", true, userID, userID).
		Order("id DESC").
		Find(&bookings).Error
	return bookings, err
}

func (s *DatabaseStore) GetBookingsByTrip(tripID string) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := s.db.
		Where("is_active = ? AND trip_id = ?", true, tripID).
		Order("id DESC").
		Find(&bookings).Error
	return bookings, err
}

func (s *DatabaseStore) HasActivePairBooking(tripID, requestID string) (bool, error) {
	var n int64
	err := s.db.Model(&models.Booking{}).
		Where("trip_id = ? AND customer_request_id = ? AND is_active = ? AND status IN ?",
			tripID, requestID, true,
			[]string{models.BookingStatusPending, models.BookingStatusConfirmed}).
		Count(&n).Error
	return n > 0, err
}

func (s *DatabaseStore) ConfirmBookingExclusive(bookingID string, now time.Time) (*models.Booking, *ConfirmationSweep, error) {
	var confirmed models.Booking
	sweep := &ConfirmationSweep{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.Where("booking_id = ? AND is_active = ?", bookingID, true).First(&b).Error; err != nil {
			return notFound(err)
		}

		// Lock every booking contending for this trip or request, in id
		// order, so concurrent accepts serialize instead of both winning.
		var contenders []models.Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("is_active = ? AND (trip_id = ? OR customer_request_id = ?)", true, b.TripID, b.CustomerRequestID).
			Order("id").
			Find(&contenders).Error
		if err != nil {
			return err
		}

		var self *models.Booking
		for i := range contenders {
			c := &contenders[i]
			if c.BookingID == b.BookingID {
				self = c
				continue
			}
			if c.Status == models.BookingStatusConfirmed {
				return ErrConflict
			}
		}
		if self == nil {
			return ErrNotFound
		}
		if self.Status != models.BookingStatusPending {
			return ErrStaleState
		}

		res := tx.Model(&models.Booking{}).
			Where("booking_id = ? AND status = ?", b.BookingID, models.BookingStatusPending).
			Updates(map[string]interface{}{
				"status":             models.BookingStatusConfirmed,
				"recipient_accepted": true,
				"accepted_at":        now,
				"updated_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}

		err = tx.Model(&models.CustomerRequest{}).
			Where("request_id = ?", b.CustomerRequestID).
			Updates(map[string]interface{}{
				"status":     models.RequestStatusBooked,
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}

		for i := range contenders {
			c := &contenders[i]
			if c.BookingID == b.BookingID || c.Status != models.BookingStatusPending {
				continue
			}
			sweep.RejectedBookingIDs = append(sweep.RejectedBookingIDs, c.BookingID)
		}
		if len(sweep.RejectedBookingIDs) > 0 {
			err = tx.Model(&models.Booking{}).
				Where("booking_id IN ? AND status = ?", sweep.RejectedBookingIDs, models.BookingStatusPending).
				Updates(map[string]interface{}{
					"status":      models.BookingStatusRejected,
					"rejected_at": now,
					"updated_at":  now,
				}).Error
			if err != nil {
				return err
			}
		}

		var open []models.ConnectRequest
		err = tx.Where("customer_request_id = ? AND is_active = ? AND status IN ?",
			b.CustomerRequestID, true,
			[]string{models.ConnectStatusPending, models.ConnectStatusHold}).
			Find(&open).Error
		if err != nil {
			return err
		}
		for _, c := range open {
			sweep.RejectedConnectIDs = append(sweep.RejectedConnectIDs, c.ConnectID)
		}
		if len(sweep.RejectedConnectIDs) > 0 {
			err = tx.Model(&models.ConnectRequest{}).
				Where("connect_id IN ?", sweep.RejectedConnectIDs).
				Updates(map[string]interface{}{
					"status":     models.ConnectStatusRejected,
					"updated_at": now,
				}).Error
			if err != nil {
				return err
			}
		}

		return tx.Where("booking_id = ?", b.BookingID).First(&confirmed).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &confirmed, sweep, nil
}

// transitionBooking runs one conditional booking update inside a transaction
// and returns the reloaded row.
func (s *DatabaseStore) transitionBooking(bookingID string, cond string, condArgs []interface{}, updates map[string]interface{}, after func(tx *gorm.DB, b *models.Booking) error) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("booking_id = ? AND is_active = ?", bookingID, true).First(&booking).Error; err != nil {
			return notFound(err)
		}
		res := tx.Model(&models.Booking{}).
			Where("booking_id = ?", bookingID).
			Where(cond, condArgs...).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}
		if err := tx.Where("booking_id = ?", bookingID).First(&booking).Error; err != nil {
			return err
		}
		if after != nil {
			return after(tx, &booking)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func setRequestStatus(tx *gorm.DB, requestID, status string, now time.Time) error {
	return tx.Model(&models.CustomerRequest{}).
		Where("request_id = ?", requestID).
		Updates(map[string]interface{}{"status": status, "updated_at": now}).Error
}

func (s *DatabaseStore) RejectBooking(bookingID string, now time.Time) (*models.Booking, error) {
	return s.transitionBooking(bookingID,
		"status = ?", []interface{}{models.BookingStatusPending},
		map[string]interface{}{
			"status":      models.BookingStatusRejected,
			"rejected_at": now,
			"updated_at":  now,
		}, nil)
}

func (s *DatabaseStore) CancelPendingBooking(bookingID, reason, requestedBy string, now time.Time) (*models.Booking, error) {
	return s.transitionBooking(bookingID,
		"status = ?", []interface{}{models.BookingStatusPending},
		map[string]interface{}{
			"status":                    models.BookingStatusCancelled,
			"cancelled_at":              now,
			"cancellation_reason":       reason,
			"cancellation_requested_by": requestedBy,
			"updated_at":                now,
		},
		func(tx *gorm.DB, b *models.Booking) error {
			return setRequestStatus(tx, b.CustomerRequestID, models.RequestStatusPending, now)
		})
}

func (s *DatabaseStore) RequestBookingCancellation(bookingID, reason, requestedBy string, now time.Time) (*models.Booking, error) {
	return s.transitionBooking(bookingID,
		"status = ? AND cancellation_pending = ?", []interface{}{models.BookingStatusConfirmed, false},
		map[string]interface{}{
			"cancellation_pending":      true,
			"cancellation_requested_by": requestedBy,
			"cancellation_requested_at": now,
			"cancellation_reason":       reason,
			"updated_at":                now,
		}, nil)
}

func (s *DatabaseStore) FinalizeBookingCancellation(bookingID, confirmedBy string, now time.Time) (*models.Booking, error) {
	return s.transitionBooking(bookingID,
		"status = ? AND cancellation_pending = ?", []interface{}{models.BookingStatusConfirmed, true},
		map[string]interface{}{
			"status":                    models.BookingStatusCancelled,
			"cancellation_pending":      false,
			"cancellation_confirmed_by": confirmedBy,
			"cancelled_at":              now,
			"updated_at":                now,
		},
		func(tx *gorm.DB, b *models.Booking) error {
			return setRequestStatus(tx, b.CustomerRequestID, models.RequestStatusPending, now)
		})
}

func (s *DatabaseStore) CompleteBooking(bookingID string, now time.Time) (*models.Booking, error) {
	return s.transitionBooking(bookingID,
		"status = ?", []interface{}{models.BookingStatusConfirmed},
		map[string]interface{}{
			"status":               models.BookingStatusCompleted,
			"completed_at":         now,
			"cancellation_pending": false,
			"updated_at":           now,
		},
		func(tx *gorm.DB, b *models.Booking) error {
			return setRequestStatus(tx, b.CustomerRequestID, models.RequestStatusCompleted, now)
		})
}

func (s *DatabaseStore) DeactivateBooking(bookingID, deactivatedBy, note string, now time.Time) (*models.Booking, error) {
	return s.transitionBooking(bookingID,
		"is_active = ?", []interface{}{true},
		map[string]interface{}{
			"is_active":         false,
			"deactivated_by":    deactivatedBy,
			"deactivated_at":    now,
			"deactivation_note": note,
			"updated_at":        now,
		}, nil)
}

// OTP challenge operations

func (s *DatabaseStore) CreateOtpChallenge(ch *models.OtpChallenge) (*models.OtpChallenge, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// A fresh code retires any live predecessor for the same handover.
		err := tx.Model(&models.OtpChallenge{}).
			Where("booking_id = ? AND kind = ? AND is_active = ?", ch.BookingID, ch.Kind, true).
			Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
		if err != nil {
			return err
		}
		return tx.Create(ch).Error
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *DatabaseStore) GetActiveOtpChallenge(bookingID, kind string) (*models.OtpChallenge, error) {
	var ch models.OtpChallenge
	err := s.db.
		Where("booking_id = ? AND kind = ? AND is_active = ?", bookingID, kind, true).
		Order("id DESC").
		First(&ch).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

func (s *DatabaseStore) RegisterOtpAttempt(otpID string) (*models.OtpChallenge, error) {
	var ch models.OtpChallenge
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.OtpChallenge{}).
			Where("otp_id = ? AND is_active = ?", otpID, true).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		err := tx.Model(&models.OtpChallenge{}).
			Where("otp_id = ? AND attempts >= max_attempts", otpID).
			Update("is_active", false).Error
		if err != nil {
			return err
		}
		return tx.Where("otp_id = ?", otpID).First(&ch).Error
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *DatabaseStore) SettlePickup(bookingID, otpID string, now time.Time) (*models.Booking, error) {
	return s.settleMilestone(bookingID, otpID, now,
		models.BookingStatusConfirmed, models.OtpKindPickup,
		map[string]interface{}{
			"status":               models.BookingStatusPickedUp,
			"pickup_at":            now,
			"cancellation_pending": false,
			"updated_at":           now,
		}, models.RequestStatusPickedUp)
}

func (s *DatabaseStore) SettleDelivery(bookingID, otpID string, now time.Time) (*models.Booking, error) {
	return s.settleMilestone(bookingID, otpID, now,
		models.BookingStatusPickedUp, models.OtpKindDelivery,
		map[string]interface{}{
			"status":       models.BookingStatusDelivered,
			"delivered_at": now,
			"updated_at":   now,
		}, models.RequestStatusDelivered)
}

// settleMilestone transitions the booking, consumes the challenge and
// advances the customer request marker as one transaction.
func (s *DatabaseStore) settleMilestone(bookingID, otpID string, now time.Time, fromStatus, kind string, updates map[string]interface{}, requestStatus string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("booking_id = ? AND is_active = ?", bookingID, true).First(&booking).Error; err != nil {
			return notFound(err)
		}

		res := tx.Model(&models.Booking{}).
			Where("booking_id = ? AND status = ?", bookingID, fromStatus).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}

		res = tx.Model(&models.OtpChallenge{}).
			Where("otp_id = ? AND booking_id = ? AND kind = ? AND is_active = ? AND consumed_at IS NULL",
				otpID, bookingID, kind, true).
			Updates(map[string]interface{}{
				"consumed_at": now,
				"is_active":   false,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}

		if err := setRequestStatus(tx, booking.CustomerRequestID, requestStatus, now); err != nil {
			return err
		}
		return tx.Where("booking_id = ?", bookingID).First(&booking).Error
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (s *DatabaseStore) DeleteExpiredOtpChallenges(now time.Time) (int, error) {
	res := s.db.
		Where("consumed_at IS NULL AND expires_at < ?", now).
		Delete(&models.OtpChallenge{})
	return int(res.RowsAffected), res.Error
}

// Token ledger operations

func (s *DatabaseStore) AppendTokenTransaction(entry *models.TokenTransaction) (*models.TokenTransaction, bool, error) {
	err := s.db.Create(entry).Error
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}
	// Reference key already applied; hand back the original entry.
	var existing models.TokenTransaction
	if err := s.db.Where("reference_key = ?", entry.ReferenceKey).First(&existing).Error; err != nil {
		return nil, false, notFound(err)
	}
	return &existing, false, nil
}

func (s *DatabaseStore) GetTokenBalance(driverID string) (int, error) {
	type row struct {
		Direction string
		Total     int64
	}
	var rows []row
	err := s.db.Model(&models.TokenTransaction{}).
		Select("direction, COALESCE(SUM(amount), 0) AS total").
		Where("driver_id = ?", driverID).
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	balance := 0
	for _, r := range rows {
		if r.Direction == models.DirectionDebit {
			balance -= int(r.Total)
		} else {
			balance += int(r.Total)
		}
	}
	return balance, nil
}

func (s *DatabaseStore) GetTokenTransactions(driverID string) ([]*models.TokenTransaction, error) {
	var entries []*models.TokenTransaction
	err := s.db.
		Where("driver_id = ?", driverID).
		Order("id DESC").
		Find(&entries).Error
	return entries, err
}

// Reward settings operations

func (s *DatabaseStore) CreateRewardSettings(settings *models.RewardSettings) (*models.RewardSettings, error) {
	if err := s.db.Create(settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *DatabaseStore) GetActiveRewardSettings(now time.Time) (*models.RewardSettings, error) {
	var settings models.RewardSettings
	err := s.db.Preload("Slabs").
		Where("is_active = ? AND effective_at <= ?", true, now).
		Order("effective_at DESC, id DESC").
		First(&settings).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

// Reward retry operations

func (s *DatabaseStore) CreateRewardRetry(retry *models.RewardRetry) (*models.RewardRetry, error) {
	if err := s.db.Create(retry).Error; err != nil {
		return nil, err
	}
	return retry, nil
}

func (s *DatabaseStore) GetPendingRewardRetries(limit int) ([]*models.RewardRetry, error) {
	var retries []*models.RewardRetry
	q := s.db.Where("resolved_at IS NULL").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&retries).Error
	return retries, err
}

func (s *DatabaseStore) UpdateRewardRetry(retry *models.RewardRetry) error {
	res := s.db.Model(&models.RewardRetry{}).
		Where("retry_id = ?", retry.RetryID).
		Updates(map[string]interface{}{
			"attempts":    retry.Attempts,
			"last_error":  retry.LastError,
			"resolved_at": retry.ResolvedAt,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
