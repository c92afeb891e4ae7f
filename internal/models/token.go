package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenTransaction is one immutable row in the driver token ledger. Entries
// are append-only; corrections are compensating entries, never updates. A
// driver's balance is the fold of all their entries.
type TokenTransaction struct {
	gorm.Model

	TransactionID string `json:"transaction_id" gorm:"uniqueIndex"`
	DriverID      string `json:"driver_id" gorm:"index"`
	Direction     string `json:"direction"` // credit | debit
	Amount        int    `json:"amount"`    // always positive
	Reason        string `json:"reason"`

	// ReferenceKey deduplicates writes for the same business event, e.g.
	// reward:pickup:BK00042. Mandatory and unique; replays return the
	// original entry instead of appending a second one.
	ReferenceKey string `json:"reference_key" gorm:"uniqueIndex"`

	// ActorID records who triggered the entry (admin adjustments carry the
	// admin's ID, milestone rewards the verifying party's).
	ActorID string `json:"actor_id,omitempty"`
}

// BeforeCreate assigns the transaction ID.
func (t *TokenTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.TransactionID == "" {
		t.TransactionID = uuid.NewString()
	}
	return nil
}

// Signed returns the entry's contribution to the driver balance.
func (t *TokenTransaction) Signed() int {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// RewardRetry is a pending credit that failed at milestone time. The
// milestone itself committed; the reconciler replays the credit under the
// same reference key until it lands, so the ledger's idempotency guarantees
// at-most-once even across retries.
type RewardRetry struct {
	gorm.Model

	RetryID      string     `json:"retry_id" gorm:"uniqueIndex"`
	BookingID    string     `json:"booking_id" gorm:"index"`
	DriverID     string     `json:"driver_id"`
	Stage        string     `json:"stage"`
	Amount       int        `json:"amount"`
	Reason       string     `json:"reason"`
	ReferenceKey string     `json:"reference_key"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// BeforeCreate assigns the retry ID.
func (r *RewardRetry) BeforeCreate(tx *gorm.DB) error {
	if r.RetryID == "" {
		r.RetryID = uuid.NewString()
	}
	return nil
}

// TokenAdjustRequest is the admin payload for manual ledger corrections.
type TokenAdjustRequest struct {
	DriverID     string `json:"driver_id"`
	Direction    string `json:"direction"`
	Amount       int    `json:"amount"`
	Reason       string `json:"reason"`
	ReferenceKey string `json:"reference_key"`
}
