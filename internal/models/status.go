package models

// Booking lifecycle statuses. These are the only values the booking state
// machine will ever write; everything else is rejected at the boundary.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusRejected  = "rejected"
	BookingStatusCancelled = "cancelled"
	BookingStatusPickedUp  = "picked_up"
	BookingStatusDelivered = "delivered"
	BookingStatusCompleted = "completed"
)

// Customer request operational statuses. The booking machine moves a request
// between these as its booking progresses; the same names are used on both
// models so no opaque status IDs leak into business logic.
const (
	RequestStatusPending   = "pending"
	RequestStatusBooked    = "booked"
	RequestStatusPickedUp  = "picked_up"
	RequestStatusDelivered = "delivered"
	RequestStatusCompleted = "completed"
	RequestStatusCancelled = "cancelled"
)

// Connect request statuses.
const (
	ConnectStatusPending  = "pending"
	ConnectStatusHold     = "hold"
	ConnectStatusAccepted = "accepted"
	ConnectStatusRejected = "rejected"
)

// Trip statuses.
const (
	TripStatusActive = "active"
	TripStatusClosed = "closed"
)

// User roles, resolved once at the auth boundary and carried on the actor.
const (
	RoleDriver   = "driver"
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// OTP challenge kinds.
const (
	OtpKindPickup   = "pickup"
	OtpKindDelivery = "delivery"
)

// Token transaction directions.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Reward stages, each unlocking a percentage share of a slab's base tokens.
const (
	StageConfirmation = "confirmation"
	StagePickup       = "pickup"
	StageDelivery     = "delivery"
)

// IsTerminalBookingStatus reports whether no transition is defined out of the
// given booking status.
func IsTerminalBookingStatus(status string) bool {
	switch status {
	case BookingStatusRejected, BookingStatusCancelled, BookingStatusCompleted, BookingStatusDelivered:
		return true
	}
	return false
}

// ValidBookingStatus reports whether the value is one of the seven wire-level
// booking statuses.
func ValidBookingStatus(status string) bool {
	switch status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusRejected,
		BookingStatusCancelled, BookingStatusPickedUp, BookingStatusDelivered,
		BookingStatusCompleted:
		return true
	}
	return false
}

// ValidOtpKind reports whether the value is a recognised milestone kind.
func ValidOtpKind(kind string) bool {
	return kind == OtpKindPickup || kind == OtpKindDelivery
}
