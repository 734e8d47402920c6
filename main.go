package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Ananth-NQI/eventpass-backend/database"
	"github.com/Ananth-NQI/eventpass-backend/internal/config"
	"github.com/Ananth-NQI/eventpass-backend/internal/handlers"
	"github.com/Ananth-NQI/eventpass-backend/internal/jobs"
	"github.com/Ananth-NQI/eventpass-backend/internal/routes"
	"github.com/Ananth-NQI/eventpass-backend/internal/services"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	// Initialize storage
	var store storage.Store
	storageType := "PostgreSQL Database"

	if cfg.UseMemoryStore {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
		storageType = "In-Memory (Testing)"
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		db, err := database.Connect(cfg)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}

		log.Println("🔄 Running database migrations...")
		if err := database.Migrate(db); err != nil {
			log.Fatal(err)
		}

		store = storage.NewDatabaseStore(db)
		log.Println("✅ Using PostgreSQL database storage")
	}

	// Notification channels
	var mail services.Notifier
	if cfg.SMTPConfigured() {
		mail = services.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
		log.Println("✅ SMTP email configured")
	} else {
		log.Println("⚠️  SMTP not configured - emails will be logged only")
		mail = services.NewLogSender()
	}

	ticketNotifier := &services.TicketNotifier{Required: mail}
	if cfg.TwilioConfigured() {
		whatsapp, err := services.NewWhatsAppSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
		if err != nil {
			log.Printf("⚠️  WhatsApp disabled: %v", err)
		} else {
			ticketNotifier.BestEffort = append(ticketNotifier.BestEffort, whatsapp)
			log.Println("✅ Twilio WhatsApp ticket copies enabled")
		}
	} else {
		log.Println("⚠️  Twilio credentials not found - tickets go by email only")
	}
	mailer := services.NewMailer(cfg.EventName, ticketNotifier, mail)

	// Screenshot storage
	var screenshots services.ScreenshotStore = services.InlineScreenshotStore{}
	if cfg.R2Configured() {
		r2, err := services.NewR2ScreenshotStore(context.Background(),
			cfg.CloudflareAccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2BucketName, cfg.CDNBaseURL)
		if err != nil {
			log.Printf("⚠️  R2 unavailable, storing screenshots inline: %v", err)
		} else {
			screenshots = r2
			log.Println("✅ Cloudflare R2 screenshot storage configured")
		}
	} else {
		log.Println("⚠️  R2 not configured - screenshots stored inline")
	}

	// Payment gateway
	var gateway services.Gateway
	var verifier services.SignatureVerifier
	if cfg.RazorpayConfigured() {
		gateway = services.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
		verifier = services.NewHMACSignatureVerifier(cfg.RazorpayKeySecret)
		log.Println("✅ Razorpay gateway configured")
	} else {
		log.Println("⚠️  Razorpay keys not set - online payments disabled, UPI only")
	}

	// Initialize all services
	allocator := services.NewAllocator(store, services.Pricing{
		BasePrice:   cfg.BaseTicketPrice,
		FriendPrice: cfg.FriendTicketPrice,
		Currency:    cfg.Currency,
		MaxQuantity: cfg.MaxTicketQuantity,
	}, cfg.TicketPrefix, cfg.TicketAllocationAttempts)

	paymentService := services.NewPaymentService(services.PaymentDeps{
		Store:       store,
		Allocator:   allocator,
		Mailer:      mailer,
		Gateway:     gateway,
		Verifier:    verifier,
		Screenshots: screenshots,
	})
	otpService := services.NewOTPService(store, mailer, cfg.OTPTTL, cfg.OTPMaxAttempts)
	referralService := services.NewReferralService(store, otpService, allocator, cfg.ReferralWindow)
	admissionService := services.NewAdmissionService(store, cfg.EventDays)

	// Retry tickets stuck at "payment confirmed, ticket pending"
	dispatchJob := jobs.NewTicketDispatchJob(store, paymentService, cfg.TicketRetryInterval)
	if err := dispatchJob.Start(); err != nil {
		log.Fatal("Failed to start ticket dispatch job:", err)
	}

	log.Println("✅ All services initialized and scheduled jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName:     "EventPass Backend v" + version,
		BodyLimit:   services.MaxScreenshotBytes * 2,
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.TrimSpace(cfg.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, routes.Dependencies{
		Payments:      paymentService,
		Allocator:     allocator,
		Referrals:     referralService,
		Admission:     admissionService,
		Health:        handlers.NewHealthHandler(version, cfg.EventName, storageType),
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.RazorpayWebhookSecret,
	})

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping ticket dispatch job...")
		dispatchJob.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 EventPass Backend starting on port %s", cfg.Port)
	log.Printf("🎪 Event: %s (%d day(s), prefix %s)", cfg.EventName, cfg.EventDays, cfg.TicketPrefix)
	log.Printf("📊 Storage: %s", storageType)
	log.Println("========================================")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
