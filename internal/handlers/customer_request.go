package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// CustomerRequestHandler handles shipment request posting and lookup
type CustomerRequestHandler struct {
	store storage.Store
}

// NewCustomerRequestHandler creates a new customer request handler
func NewCustomerRequestHandler(store storage.Store) *CustomerRequestHandler {
	return &CustomerRequestHandler{store: store}
}

// CreateCustomerRequest posts a new shipment request for the caller
func (h *CustomerRequestHandler) CreateCustomerRequest(c *fiber.Ctx) error {
	var req models.CustomerRequestCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	if req.FromCity == "" || req.ToCity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "From city and to city are required",
		})
	}
	if req.DistanceKM <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Distance must be positive",
		})
	}

	actor := middleware.ActorFromCtx(c)
	request, err := h.store.CreateCustomerRequest(&models.CustomerRequest{
		CustomerID: actor.UserID,
		FromCity:   req.FromCity,
		ToCity:     req.ToCity,
		PickupAddr: req.PickupAddr,
		DropAddr:   req.DropAddr,
		DistanceKM: req.DistanceKM,
		Material:   req.Material,
		WeightTon:  req.WeightTon,
		Status:     models.RequestStatusPending,
		IsActive:   true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal",
			"message": "Failed to create customer request",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Customer request created successfully",
		"request": request,
	})
}

// GetCustomerRequest retrieves a shipment request by ID
func (h *CustomerRequestHandler) GetCustomerRequest(c *fiber.Ctx) error {
	request, err := h.store.GetCustomerRequest(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Customer request not found",
		})
	}
	return c.JSON(fiber.Map{"request": request})
}
