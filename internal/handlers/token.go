package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/services"
)

// TokenHandler exposes the driver token wallet
type TokenHandler struct {
	ledger *services.LedgerService
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(ledger *services.LedgerService) *TokenHandler {
	return &TokenHandler{ledger: ledger}
}

// walletOwner resolves whose wallet to read: the caller's own, or any
// driver's when an admin passes ?driver_id=.
func walletOwner(c *fiber.Ctx) string {
	actor := middleware.ActorFromCtx(c)
	if actor.IsAdmin() {
		if driverID := c.Query("driver_id"); driverID != "" {
			return driverID
		}
	}
	return actor.UserID
}

// GetBalance returns the current token balance
func (h *TokenHandler) GetBalance(c *fiber.Ctx) error {
	driverID := walletOwner(c)
	balance, err := h.ledger.Balance(driverID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"driver_id": driverID,
		"balance":   balance,
	})
}

// GetTransactions returns the ledger history, newest first
func (h *TokenHandler) GetTransactions(c *fiber.Ctx) error {
	driverID := walletOwner(c)
	transactions, err := h.ledger.Transactions(driverID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"driver_id":    driverID,
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// AdjustTokens applies a manual admin correction to a driver's wallet
func (h *TokenHandler) AdjustTokens(c *fiber.Ctx) error {
	var req models.TokenAdjustRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	entry, err := h.ledger.Adjust(middleware.ActorFromCtx(c), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Adjustment applied",
		"transaction": entry,
	})
}
