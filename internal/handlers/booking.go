package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/services"
)

// BookingHandler handles booking-related requests
type BookingHandler struct {
	bookings *services.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CreateBooking handles creating a new booking from a connect request
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	var req models.BookingCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	booking, err := h.bookings.Create(middleware.ActorFromCtx(c), &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Booking created successfully",
		"booking": booking,
	})
}

// GetBooking retrieves booking by ID
func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	booking, err := h.bookings.Get(middleware.ActorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"booking": booking})
}

// GetMyBookings lists the caller's bookings
func (h *BookingHandler) GetMyBookings(c *fiber.Ctx) error {
	bookings, err := h.bookings.ListMine(middleware.ActorFromCtx(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetTripBookings lists a trip's bookings for its owner
func (h *BookingHandler) GetTripBookings(c *fiber.Ctx) error {
	bookings, err := h.bookings.ListByTrip(middleware.ActorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// AcceptBooking confirms a pending booking (recipient only)
func (h *BookingHandler) AcceptBooking(c *fiber.Ctx) error {
	booking, tokens, err := h.bookings.Accept(middleware.ActorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":        "Booking confirmed",
		"booking":        booking,
		"tokens_awarded": tokens,
	})
}

// RejectBooking declines a pending booking (recipient only)
func (h *BookingHandler) RejectBooking(c *fiber.Ctx) error {
	booking, err := h.bookings.Reject(middleware.ActorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Booking rejected",
		"booking": booking,
	})
}

// CancelBooking cancels a booking; confirmed bookings need both parties
func (h *BookingHandler) CancelBooking(c *fiber.Ctx) error {
	var req models.BookingCancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation_failed",
				"message": "Invalid request body",
			})
		}
	}

	booking, err := h.bookings.Cancel(middleware.ActorFromCtx(c), c.Params("id"), &req)
	if err != nil {
		return respondError(c, err)
	}

	message := "Booking cancelled"
	if booking.CancellationPending {
		message = "Cancellation requested, awaiting the other party"
	}
	return c.JSON(fiber.Map{
		"message": message,
		"booking": booking,
	})
}

// CompleteBooking closes out a confirmed booking (driver only)
func (h *BookingHandler) CompleteBooking(c *fiber.Ctx) error {
	booking, err := h.bookings.Complete(middleware.ActorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Booking completed",
		"booking": booking,
	})
}

// DeleteBooking soft-deletes a booking
func (h *BookingHandler) DeleteBooking(c *fiber.Ctx) error {
	var req struct {
		Note string `json:"note"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation_failed",
				"message": "Invalid request body",
			})
		}
	}

	booking, err := h.bookings.Delete(middleware.ActorFromCtx(c), c.Params("id"), req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Booking deleted",
		"booking": booking,
	})
}

// GenerateOTP issues a pickup or delivery code for a booking
func (h *BookingHandler) GenerateOTP(c *fiber.Ctx) error {
	var req models.OtpGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	challenge, code, err := h.bookings.GenerateOtp(middleware.ActorFromCtx(c), c.Params("id"), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Code generated",
		"otp_id":     challenge.OtpID,
		"code":       code,
		"kind":       challenge.Kind,
		"issued_to":  challenge.IssuedTo,
		"expires_at": challenge.ExpiresAt,
	})
}

// VerifyOTP settles a milestone with a presented code
func (h *BookingHandler) VerifyOTP(c *fiber.Ctx) error {
	var req models.OtpVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": "Invalid request body",
		})
	}

	booking, tokens, err := h.bookings.VerifyOtp(middleware.ActorFromCtx(c), c.Params("id"), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":        "Milestone verified",
		"booking":        booking,
		"tokens_awarded": tokens,
	})
}
