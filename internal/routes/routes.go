package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/handlers"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/middleware"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/services"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, bookings *services.BookingService, ledger *services.LedgerService, rewards *services.RewardService) {

	healthHandler := handlers.NewHealthHandler("1.0.0")
	userHandler := handlers.NewUserHandler(store)
	tripHandler := handlers.NewTripHandler(store)
	requestHandler := handlers.NewCustomerRequestHandler(store)
	connectHandler := handlers.NewConnectRequestHandler(store)
	bookingHandler := handlers.NewBookingHandler(bookings)
	tokenHandler := handlers.NewTokenHandler(ledger)
	settingsHandler := handlers.NewRewardSettingsHandler(rewards)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to TripFleet Booking Core!",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":   "/health",
				"api":      "/api",
				"bookings": "/api/bookings",
				"tokens":   "/api/tokens",
			},
		})
	})

	// Health check
	app.Get("/health", healthHandler.Check)

	// User bootstrap stays open: records are seeded here and JWTs minted by
	// the upstream identity service resolve against them.
	app.Post("/api/users", userHandler.CreateUser)

	// Everything else requires a resolved actor
	api := app.Group("/api", middleware.RequireAuth())

	// ========== USER ROUTES ==========
	users := api.Group("/users")
	users.Get("/:id", userHandler.GetUser)

	// ========== TRIP ROUTES ==========
	trips := api.Group("/trips")
	trips.Post("/", middleware.RequireRole(models.RoleDriver), tripHandler.CreateTrip)
	trips.Get("/:id", tripHandler.GetTrip)
	trips.Get("/:id/bookings", bookingHandler.GetTripBookings)

	// ========== CUSTOMER REQUEST ROUTES ==========
	requests := api.Group("/customer-requests")
	requests.Post("/", middleware.RequireRole(models.RoleCustomer), requestHandler.CreateCustomerRequest)
	requests.Get("/:id", requestHandler.GetCustomerRequest)

	// ========== CONNECT REQUEST ROUTES ==========
	connects := api.Group("/connect-requests")
	connects.Post("/", connectHandler.CreateConnectRequest)
	connects.Get("/:id", connectHandler.GetConnectRequest)
	connects.Post("/:id/accept", connectHandler.AcceptConnectRequest)

	// ========== BOOKING ROUTES ==========
	bookingGroup := api.Group("/bookings")
	bookingGroup.Post("/", bookingHandler.CreateBooking)
	bookingGroup.Get("/me", bookingHandler.GetMyBookings)
	bookingGroup.Get("/:id", bookingHandler.GetBooking)
	bookingGroup.Post("/:id/accept", bookingHandler.AcceptBooking)
	bookingGroup.Post("/:id/reject", bookingHandler.RejectBooking)
	bookingGroup.Post("/:id/cancel", bookingHandler.CancelBooking)
	bookingGroup.Post("/:id/complete", bookingHandler.CompleteBooking)
	bookingGroup.Delete("/:id", bookingHandler.DeleteBooking)
	bookingGroup.Post("/:id/otp/generate", bookingHandler.GenerateOTP)
	bookingGroup.Post("/:id/otp/verify", bookingHandler.VerifyOTP)

	// ========== TOKEN WALLET ROUTES ==========
	tokens := api.Group("/tokens")
	tokens.Get("/balance", middleware.RequireRole(models.RoleDriver), tokenHandler.GetBalance)
	tokens.Get("/transactions", middleware.RequireRole(models.RoleDriver), tokenHandler.GetTransactions)

	// ========== ADMIN ROUTES ==========
	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.Post("/reward-settings", settingsHandler.CreateSettings)
	admin.Get("/reward-settings/active", settingsHandler.GetActiveSettings)
	admin.Post("/tokens/adjust", tokenHandler.AdjustTokens)
}
