package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// TripHandler handles trip posting and lookup
type TripHandler struct {
	store storage.Store
}

// NewTripHandler creates a new trip handler
func NewTripHandler(store storage.Store) *TripHandler {
	return &TripHandler{store: store}
}

// CreateTrip posts a new trip for the calling driver
func (h *TripHandler) CreateTrip(c *fiber.Ctx) error {
	var req models.TripCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	if req.FromCity == "" || req.ToCity == "" || req.VehicleNo == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "From city, to city and vehicle number are required",
		})
	}
	if req.DistanceKM <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Distance must be positive",
		})
	}

	actor := middleware.ActorFromCtx(c)
	trip, err := h.store.CreateTrip(&models.Trip{
		DriverID:      actor.UserID,
		FromCity:      req.FromCity,
		ToCity:        req.ToCity,
		DistanceKM:    req.DistanceKM,
		VehicleNo:     req.VehicleNo,
		VehicleType:   req.VehicleType,
		CapacityTon:   req.CapacityTon,
		DepartureDate: req.DepartureDate,
		Status:        models.TripStatusActive,
		IsActive:      true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal",
			"message": "Failed to create trip",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Trip created successfully",
		"trip":    trip,
	})
}

// GetTrip retrieves a trip by ID
func (h *TripHandler) GetTrip(c *fiber.Ctx) error {
	trip, err := h.store.GetTrip(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Trip not found",
		})
	}
	return c.JSON(fiber.Map{"trip": trip})
}
