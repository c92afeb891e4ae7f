package models

import (
	"gorm.io/gorm"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// CustomerRequest represents a shipment a customer wants moved. Its
// DistanceKM drives reward slab resolution at every booking milestone.
type CustomerRequest struct {
	gorm.Model

	RequestID  string `json:"request_id" gorm:"uniqueIndex"`
	CustomerID string `json:"customer_id" gorm:"index"`

	// Route details
	FromCity   string  `json:"from_city"`
	ToCity     string  `json:"to_city"`
	PickupAddr string  `json:"pickup_addr"`
	DropAddr   string  `json:"drop_addr"`
	DistanceKM float64 `json:"distance_km"` // in km

	// Cargo details
	Material  string  `json:"material"` // e.g., "Electronics", "Textiles"
	WeightTon float64 `json:"weight_ton"`

	// Operational status marker, advanced by the booking machine as the
	// matched booking progresses. See RequestStatus* constants.
	Status   string `json:"status" gorm:"default:pending;index"`
	IsActive bool   `json:"is_active" gorm:"default:true"`
}

// BeforeCreate generates the RequestID.
func (r *CustomerRequest) BeforeCreate(tx *gorm.DB) error {
	if r.RequestID == "" {
		r.RequestID = utils.GenerateSecureID("CRQ")
	}
	if r.Status == "" {
		r.Status = RequestStatusPending
	}
	return nil
}

// CustomerRequestCreateRequest is the payload for posting a shipment request.
type CustomerRequestCreateRequest struct {
	FromCity   string  `json:"from_city"`
	ToCity     string  `json:"to_city"`
	PickupAddr string  `json:"pickup_addr"`
	DropAddr   string  `json:"drop_addr"`
	DistanceKM float64 `json:"distance_km"`
	Material   string  `json:"material"`
	WeightTon  float64 `json:"weight_ton"`
}
