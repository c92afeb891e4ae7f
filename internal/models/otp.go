package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultOtpTTL is how long a handover code stays valid after issue.
const DefaultOtpTTL = 10 * time.Minute

// DefaultOtpMaxAttempts is the number of wrong codes tolerated before the
// challenge is burned and a fresh one must be generated.
const DefaultOtpMaxAttempts = 5

// OtpChallenge is a single-use handover code for a pickup or delivery
// milestone. At most one active challenge exists per (booking, kind);
// generating a new one deactivates its predecessor.
type OtpChallenge struct {
	gorm.Model

	OtpID     string `json:"otp_id" gorm:"uniqueIndex"`
	BookingID string `json:"booking_id" gorm:"index"`
	Kind      string `json:"kind"` // pickup | delivery
	Code      string `json:"-"`    // never serialized back out

	// IssuedTo is the role whose counterpart must verify: a code issued to
	// the customer is presented by the customer and verified by the driver.
	IssuedTo string `json:"issued_to"`
	IssuedBy string `json:"issued_by"`

	ExpiresAt   time.Time  `json:"expires_at"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
}

// BeforeCreate assigns the challenge ID and defaults.
func (o *OtpChallenge) BeforeCreate(tx *gorm.DB) error {
	if o.OtpID == "" {
		o.OtpID = uuid.NewString()
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultOtpMaxAttempts
	}
	return nil
}

// Expired reports whether the challenge is past its TTL at now.
func (o *OtpChallenge) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Consumed reports whether the challenge has already been settled.
func (o *OtpChallenge) Consumed() bool {
	return o.ConsumedAt != nil
}

// Exhausted reports whether the wrong-code budget is spent.
func (o *OtpChallenge) Exhausted() bool {
	return o.Attempts >= o.MaxAttempts
}

// OtpGenerateRequest is the payload for issuing a handover code. IssuedTo
// picks which role holds the code at handover; empty means the caller's
// counterparty.
type OtpGenerateRequest struct {
	Kind     string `json:"kind"` // pickup | delivery
	IssuedTo string `json:"issued_to,omitempty"`
}

// OtpVerifyRequest carries the code presented at handover.
type OtpVerifyRequest struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
}
