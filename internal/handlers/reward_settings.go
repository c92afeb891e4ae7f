package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/services"
)

// RewardSettingsHandler manages reward configuration versions
type RewardSettingsHandler struct {
	rewards *services.RewardService
}

// NewRewardSettingsHandler creates a new reward settings handler
func NewRewardSettingsHandler(rewards *services.RewardService) *RewardSettingsHandler {
	return &RewardSettingsHandler{rewards: rewards}
}

// CreateSettings publishes a new configuration version
func (h *RewardSettingsHandler) CreateSettings(c *fiber.Ctx) error {
	var req models.RewardSettingsCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	settings, err := h.rewards.CreateSettings(middleware.ActorFromCtx(c), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Reward settings published",
		"settings": settings,
	})
}

// GetActiveSettings returns the configuration currently in effect
func (h *RewardSettingsHandler) GetActiveSettings(c *fiber.Ctx) error {
	settings, err := h.rewards.ActiveSettings()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"settings": settings})
}
