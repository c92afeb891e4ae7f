package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// UserHandler handles the minimal user surface the booking core consumes.
// Registration, KYC and login live in the upstream identity service; this
// endpoint only seeds user records that JWTs can resolve against.
type UserHandler struct {
	store storage.Store
}

// NewUserHandler creates a new user handler
func NewUserHandler(store storage.Store) *UserHandler {
	return &UserHandler{store: store}
}

// CreateUser registers a user record
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req models.UserRegistration
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Name and phone are required",
		})
	}
	switch req.Role {
	case models.RoleDriver, models.RoleCustomer, models.RoleAdmin:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Role must be driver, customer or admin",
		})
	}

	user, err := h.store.CreateUser(&models.User{
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
		IsActive: true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "conflict",
				"message": "A user with this phone already exists",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal",
			"message": "Failed to create user",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// GetUser returns a user record (self or admin)
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)
	userID := c.Params("id")
	if actor.UserID != userID && !actor.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "Cannot read another user's record",
		})
	}

	user, err := h.store.GetUser(userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "User not found",
		})
	}
	return c.JSON(fiber.Map{"user": user})
}
