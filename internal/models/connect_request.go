package models

import (
	"gorm.io/gorm"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// ConnectRequest is the mutual-interest handshake between a trip owner and a
// customer-request owner. A booking can only be created from an accepted,
// active connect request linking the same trip and customer request.
type ConnectRequest struct {
	gorm.Model

	ConnectID         string `json:"connect_id" gorm:"uniqueIndex"`
	TripID            string `json:"trip_id" gorm:"index"`
	CustomerRequestID string `json:"customer_request_id" gorm:"index"`
	InitiatorID       string `json:"initiator_id"`
	RecipientID       string `json:"recipient_id"`

	Status   string `json:"status" gorm:"default:pending"` // "pending", "hold", "accepted", "rejected"
	IsActive bool   `json:"is_active" gorm:"default:true"`
}

// BeforeCreate generates the ConnectID.
func (c *ConnectRequest) BeforeCreate(tx *gorm.DB) error {
	if c.ConnectID == "" {
		c.ConnectID = utils.GenerateSecureID("CON")
	}
	if c.Status == "" {
		c.Status = ConnectStatusPending
	}
	return nil
}

// Involves reports whether the user is the initiator or recipient.
func (c *ConnectRequest) Involves(userID string) bool {
	return userID != "" && (userID == c.InitiatorID || userID == c.RecipientID)
}

// PartySetEquals reports whether {initiator, recipient} equals exactly
// {a, b}, in either order. Booking creation uses this to refuse handshakes
// between parties other than the derived driver and customer.
func (c *ConnectRequest) PartySetEquals(a, b string) bool {
	return (c.InitiatorID == a && c.RecipientID == b) ||
		(c.InitiatorID == b && c.RecipientID == a)
}

// ConnectRequestCreateRequest is the payload for opening a handshake.
type ConnectRequestCreateRequest struct {
	TripID            string `json:"trip_id"`
	CustomerRequestID string `json:"customer_request_id"`
}
