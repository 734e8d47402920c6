package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port           string
	AllowedOrigins string

	// Storage
	UseMemoryStore bool
	DatabaseURL    string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPass         string
	DBName         string
	DBSSLMode      string

	// Event
	EventName         string
	EventDays         int
	TicketPrefix      string
	Currency          string
	BaseTicketPrice   int64
	FriendTicketPrice int64
	MaxTicketQuantity int

	// Workflow tuning
	OTPTTL                   time.Duration
	OTPMaxAttempts           int
	ReferralWindow           time.Duration
	TicketAllocationAttempts int
	TicketRetryInterval      time.Duration

	// Auth
	JWTSecret string

	// Razorpay
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	// Email
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	// Twilio (WhatsApp ticket copy)
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string

	// Cloudflare R2 (payment screenshots)
	CloudflareAccountID string
	R2AccessKeyID       string
	R2AccessKeySecret   string
	R2BucketName        string
	CDNBaseURL          string
}

// Load loads configuration from environment variables
func Load() *Config {
	// .env is optional outside local development
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found - checking environment variables")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		UseMemoryStore: getEnvBool("USE_MEMORY_STORE", false),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPass:         os.Getenv("DB_PASS"),
		DBName:         getEnv("DB_NAME", "eventpass"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),

		EventName:         getEnv("EVENT_NAME", "ACD 2026"),
		EventDays:         getEnvInt("EVENT_DAYS", 2),
		TicketPrefix:      getEnv("TICKET_PREFIX", "ACD2026"),
		Currency:          getEnv("CURRENCY", "INR"),
		BaseTicketPrice:   int64(getEnvInt("BASE_TICKET_PRICE", 49900)),
		FriendTicketPrice: int64(getEnvInt("FRIEND_TICKET_PRICE", 39900)),
		MaxTicketQuantity: getEnvInt("MAX_TICKET_QUANTITY", 40),

		OTPTTL:                   getEnvDuration("OTP_TTL", 5*time.Minute),
		OTPMaxAttempts:           getEnvInt("OTP_MAX_ATTEMPTS", 5),
		ReferralWindow:           getEnvDuration("REFERRAL_WINDOW", 15*time.Minute),
		TicketAllocationAttempts: getEnvInt("TICKET_ALLOCATION_ATTEMPTS", 5),
		TicketRetryInterval:      getEnvDuration("TICKET_RETRY_INTERVAL", 10*time.Minute),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: getEnvInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: getEnv("MAIL_FROM", "tickets@localhost"),

		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),

		CloudflareAccountID: os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:       os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret:   os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2BucketName:        os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:          os.Getenv("CDN_BASE_URL"),
	}

	if cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET not set - admin and scanner routes will reject every token")
	}
	if cfg.FriendTicketPrice > cfg.BaseTicketPrice {
		log.Printf("WARNING: FRIEND_TICKET_PRICE (%d) exceeds BASE_TICKET_PRICE (%d); using base price", cfg.FriendTicketPrice, cfg.BaseTicketPrice)
		cfg.FriendTicketPrice = cfg.BaseTicketPrice
	}
	if cfg.EventDays < 1 {
		cfg.EventDays = 1
	}

	return cfg
}

// SMTPConfigured reports whether outbound email can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

// TwilioConfigured reports whether WhatsApp copies can be sent.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppFrom != ""
}

// R2Configured reports whether screenshots go to object storage.
func (c *Config) R2Configured() bool {
	return c.CloudflareAccountID != "" && c.R2AccessKeyID != "" && c.R2BucketName != ""
}

// RazorpayConfigured reports whether gateway orders can be created.
func (c *Config) RazorpayConfigured() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("WARNING: %s=%q is not an integer, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "":
		return defaultValue
	case "1", "true", "yes":
		return true
	}
	return false
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: %s=%q is not a duration, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
