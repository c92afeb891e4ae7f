package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/utils"
)

// Trip represents a driver's posted journey that cargo can ride along with.
type Trip struct {
	gorm.Model

	TripID   string `json:"trip_id" gorm:"uniqueIndex"`
	DriverID string `json:"driver_id" gorm:"index"`

	// Route details
	FromCity   string  `json:"from_city"`
	ToCity     string  `json:"to_city"`
	DistanceKM float64 `json:"distance_km"` // in km

	// Vehicle details
	VehicleNo   string  `json:"vehicle_no"`
	VehicleType string  `json:"vehicle_type"` // e.g., "32ft multi axle", "19ft truck"
	CapacityTon float64 `json:"capacity_ton"` // in tons

	DepartureDate *time.Time `json:"departure_date"`

	Status   string `json:"status" gorm:"default:active"` // "active", "closed"
	IsActive bool   `json:"is_active" gorm:"default:true"`
}

// BeforeCreate generates the TripID and normalizes the vehicle number.
func (t *Trip) BeforeCreate(tx *gorm.DB) error {
	if t.TripID == "" {
		t.TripID = utils.GenerateSecureID("TRP")
	}
	t.VehicleNo = strings.ToUpper(strings.ReplaceAll(t.VehicleNo, " ", ""))
	if t.Status == "" {
		t.Status = TripStatusActive
	}
	return nil
}

// TripCreateRequest is the payload for posting a trip.
type TripCreateRequest struct {
	FromCity      string     `json:"from_city"`
	ToCity        string     `json:"to_city"`
	DistanceKM    float64    `json:"distance_km"`
	VehicleNo     string     `json:"vehicle_no"`
	VehicleType   string     `json:"vehicle_type"`
	CapacityTon   float64    `json:"capacity_ton"`
	DepartureDate *time.Time `json:"departure_date"`
}
