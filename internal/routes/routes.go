package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/auth"
	"github.com/Ananth-NQI/eventpass-backend/internal/handlers"
	"github.com/Ananth-NQI/eventpass-backend/internal/middleware"
	"github.com/Ananth-NQI/eventpass-backend/internal/services"
)

// Dependencies are the services and secrets the routes are built from.
type Dependencies struct {
	Payments      *services.PaymentService
	Allocator     *services.Allocator
	Referrals     *services.ReferralService
	Admission     *services.AdmissionService
	Health        *handlers.HealthHandler
	JWTSecret     string
	WebhookSecret string
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	registrationHandler := handlers.NewRegistrationHandler(deps.Payments, deps.Allocator, deps.JWTSecret)
	paymentHandler := handlers.NewPaymentHandler(deps.Payments)
	friendHandler := handlers.NewFriendHandler(deps.Referrals, deps.JWTSecret)
	ticketHandler := handlers.NewTicketHandler(deps.Admission)
	adminHandler := handlers.NewAdminHandler(deps.Payments)

	app.Get("/health", deps.Health.Check)

	// API routes
	api := app.Group("/api")

	// Registration routes
	registrations := api.Group("/registrations")
	registrations.Post("/quote", registrationHandler.Quote)
	registrations.Post("/", registrationHandler.CreateRegistration)
	registrations.Get("/:id", registrationHandler.GetRegistration)
	registrations.Put("/:id/members", registrationHandler.UpdateMembers)
	registrations.Post("/:id/submit-payment", registrationHandler.SubmitPayment)
	registrations.Post("/:id/orders", registrationHandler.CreateOrder)
	registrations.Patch("/:id/payment-status",
		middleware.RequireRole(deps.JWTSecret, auth.RoleRegistrant, auth.RoleAdmin),
		registrationHandler.UpdatePaymentStatus)
	registrations.Patch("/:id/verify",
		middleware.RequireRole(deps.JWTSecret, auth.RoleAdmin),
		adminHandler.VerifyPayment)

	// Payment routes
	payments := api.Group("/payments")
	payments.Post("/callback", paymentHandler.Callback)
	payments.Get("/orders/:orderId/status", paymentHandler.OrderStatus)

	// Friend referral routes
	friend := api.Group("/friend")
	friend.Post("/check-eligibility", friendHandler.CheckEligibility)
	friend.Post("/verify-otp", friendHandler.VerifyOTP)
	friend.Post("/register", friendHandler.Register)

	// Gate routes
	tickets := api.Group("/tickets", middleware.RequireRole(deps.JWTSecret, auth.RoleScanner, auth.RoleAdmin))
	tickets.Post("/verify-multi-day", ticketHandler.VerifyMultiDay)
	tickets.Post("/confirm-entry-multi-day", ticketHandler.ConfirmEntryMultiDay)

	// ========== ADMIN ROUTES ==========
	admin := api.Group("/admin", middleware.RequireRole(deps.JWTSecret, auth.RoleAdmin))
	admin.Get("/registrations", adminHandler.ListRegistrations)
	admin.Post("/registrations/:id/resend-ticket", adminHandler.ResendTicket)
	admin.Get("/stats", adminHandler.GetStats)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	webhooks.Post("/razorpay", middleware.ValidatePaymentSignature(deps.WebhookSecret), paymentHandler.HandleWebhook)
}
