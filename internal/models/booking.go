package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// Booking represents one matched pairing of a trip and a customer request.
type Booking struct {
	gorm.Model

	BookingID         string `json:"booking_id" gorm:"uniqueIndex"`
	TripID            string `json:"trip_id" gorm:"index"`
	CustomerRequestID string `json:"customer_request_id" gorm:"index"`
	ConnectRequestID  string `json:"connect_request_id"`

	// Parties, derived once at creation from the trip and the customer
	// request; never updated afterwards.
	DriverID    string `json:"driver_id" gorm:"index"`
	CustomerID  string `json:"customer_id" gorm:"index"`
	InitiatorID string `json:"initiator_id"`
	RecipientID string `json:"recipient_id"`

	Price      float64    `json:"price"`
	PickupDate *time.Time `json:"pickup_date"`
	Notes      string     `json:"notes"`

	// Status tracking
	Status            string `json:"status" gorm:"index"` // see BookingStatus* constants
	RecipientAccepted bool   `json:"recipient_accepted" gorm:"default:false"`

	// Milestone timestamps
	AcceptedAt  *time.Time `json:"accepted_at"`
	RejectedAt  *time.Time `json:"rejected_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CompletedAt *time.Time `json:"completed_at"`
	PickupAt    *time.Time `json:"pickup_at"`
	DeliveredAt *time.Time `json:"delivered_at"`

	// Two-phase cancellation negotiation. CancellationPending is only ever
	// true while Status is still "confirmed".
	CancellationPending     bool       `json:"cancellation_pending" gorm:"default:false"`
	CancellationRequestedBy string     `json:"cancellation_requested_by"`
	CancellationRequestedAt *time.Time `json:"cancellation_requested_at"`
	CancellationReason      string     `json:"cancellation_reason"`
	CancellationConfirmedBy string     `json:"cancellation_confirmed_by"`

	// Soft delete audit. Bookings are never hard-deleted.
	IsActive         bool       `json:"is_active" gorm:"default:true"`
	DeactivatedBy    string     `json:"deactivated_by,omitempty"`
	DeactivatedAt    *time.Time `json:"deactivated_at,omitempty"`
	DeactivationNote string     `json:"deactivation_note,omitempty"`
}

// BeforeCreate generates the BookingID if not already set.
func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.BookingID == "" {
		b.BookingID = utils.GenerateSecureID("BK")
	}
	if b.Status == "" {
		b.Status = BookingStatusPending
	}
	return nil
}

// IsParticipant reports whether the user is the booking's driver or customer.
func (b *Booking) IsParticipant(userID string) bool {
	return userID != "" && (userID == b.DriverID || userID == b.CustomerID)
}

// CounterpartOf returns the other participant for a given participant.
func (b *Booking) CounterpartOf(userID string) string {
	switch userID {
	case b.DriverID:
		return b.CustomerID
	case b.CustomerID:
		return b.DriverID
	}
	return ""
}

// RoleOf returns driver/customer for a participant, "" otherwise.
func (b *Booking) RoleOf(userID string) string {
	switch userID {
	case b.DriverID:
		return RoleDriver
	case b.CustomerID:
		return RoleCustomer
	}
	return ""
}

// BookingCreateRequest is the payload for creating a booking from a
// connect request.
type BookingCreateRequest struct {
	TripID            string     `json:"trip_id"`
	CustomerRequestID string     `json:"customer_request_id"`
	ConnectRequestID  string     `json:"connect_request_id"`
	Price             float64    `json:"price"`
	PickupDate        *time.Time `json:"pickup_date"`
	Notes             string     `json:"notes"`
}

// BookingCancelRequest carries the caller's cancellation reason.
type BookingCancelRequest struct {
	Reason string `json:"reason"`
}
