package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/services"
)

// statusForKind maps a service error kind onto its HTTP status.
func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidationFailed:
		return fiber.StatusBadRequest
	case services.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict, services.KindStateViolation:
		return fiber.StatusConflict
	case services.KindOtpExpired:
		return fiber.StatusGone
	case services.KindOtpInvalid, services.KindMilestoneTooSoon:
		return fiber.StatusUnprocessableEntity
	case services.KindConfigurationMissing:
		return fiber.StatusFailedDependency
	case services.KindLedgerFailure:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// respondError renders a service error. The body always carries the
// machine-readable kind plus a human message; anything unclassified
// collapses to a bare 500 so internals never leak.
func respondError(c *fiber.Ctx, err error) error {
	se, ok := services.AsServiceError(err)
	if !ok {
		log.Printf("❌ Unclassified error on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal",
			"message": "Internal server error",
		})
	}

	body := fiber.Map{
		"error":   string(se.Kind),
		"message": se.Message,
	}
	if se.Kind == services.KindMilestoneTooSoon {
		body["required_minutes"] = se.RequiredMinutes
		body["actual_minutes"] = se.ActualMinutes
	}
	return c.Status(statusForKind(se.Kind)).JSON(body)
}
