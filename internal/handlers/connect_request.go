package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// ConnectRequestHandler handles the mutual-interest handshake that precedes
// a booking.
type ConnectRequestHandler struct {
	store storage.Store
}

// NewConnectRequestHandler creates a new connect request handler
func NewConnectRequestHandler(store storage.Store) *ConnectRequestHandler {
	return &ConnectRequestHandler{store: store}
}

// CreateConnectRequest opens a handshake between a trip owner and a
// customer-request owner. The caller must own one of the two sides; the
// owner of the other side becomes the recipient.
func (h *ConnectRequestHandler) CreateConnectRequest(c *fiber.Ctx) error {
	var req models.ConnectRequestCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}
	if req.TripID == "" || req.CustomerRequestID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Trip ID and customer request ID are required",
		})
	}

	trip, err := h.store.GetTrip(req.TripID)
	if err != nil || !trip.IsActive {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Trip not found",
		})
	}
	request, err := h.store.GetCustomerRequest(req.CustomerRequestID)
	if err != nil || !request.IsActive {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Customer request not found",
		})
	}
	if trip.DriverID == request.CustomerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "Cannot connect your own trip and request",
		})
	}

	actor := middleware.ActorFromCtx(c)
	var recipientID string
	switch actor.UserID {
	case trip.DriverID:
		recipientID = request.CustomerID
	case request.CustomerID:
		recipientID = trip.DriverID
	default:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "Caller owns neither the trip nor the customer request",
		})
	}

	connect, err := h.store.CreateConnectRequest(&models.ConnectRequest{
		TripID:            trip.TripID,
		CustomerRequestID: request.RequestID,
		InitiatorID:       actor.UserID,
		RecipientID:       recipientID,
		Status:            models.ConnectStatusPending,
		IsActive:          true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal",
			"message": "Failed to create connect request",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":         "Connect request created successfully",
		"connect_request": connect,
	})
}

// AcceptConnectRequest accepts a handshake (recipient only)
func (h *ConnectRequestHandler) AcceptConnectRequest(c *fiber.Ctx) error {
	connect, err := h.store.GetConnectRequest(c.Params("id"))
	if err != nil || !connect.IsActive {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Connect request not found",
		})
	}

	actor := middleware.ActorFromCtx(c)
	if actor.UserID != connect.RecipientID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "Only the recipient can accept a connect request",
		})
	}

	accepted, err := h.store.AcceptConnectRequest(connect.ConnectID)
	if err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "state_violation",
				"message": "Connect request is no longer open",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal",
			"message": "Failed to accept connect request",
		})
	}

	return c.JSON(fiber.Map{
		"message":         "Connect request accepted",
		"connect_request": accepted,
	})
}

// GetConnectRequest retrieves a handshake by ID (parties or admin)
func (h *ConnectRequestHandler) GetConnectRequest(c *fiber.Ctx) error {
	connect, err := h.store.GetConnectRequest(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Connect request not found",
		})
	}

	actor := middleware.ActorFromCtx(c)
	if !connect.Involves(actor.UserID) && !actor.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "Not a party of this connect request",
		})
	}
	return c.JSON(fiber.Map{"connect_request": connect})
}
