package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName   string
	MongoURI      string
	JaegerAddress string

	GatewayBaseURL       string
	RazorpayKeyID        string
	RazorpayKeySecret    string
	RazorpayWebhookSecret string

	AuthServiceURL string

	EmailFrom string
	SMTPHost  string
	SMTPPass  string
	SMTPPort  int
	SMTPUser  string

	ReconcileIntervalMinutes int
	ReconcileThrottleMillis  int
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("couldn't load .env file, relying on environment")
	}

	smtpPort, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		smtpPort = 587
	}
	interval, err := strconv.Atoi(os.Getenv("RECONCILE_INTERVAL_MINUTES"))
	if err != nil || interval <= 0 {
		interval = 30
	}
	throttle, err := strconv.Atoi(os.Getenv("RECONCILE_THROTTLE_MILLIS"))
	if err != nil || throttle < 0 {
		throttle = 500
	}

	gatewayBase := os.Getenv("GATEWAY_BASE_URL")
	if gatewayBase == "" {
		gatewayBase = "https://api.razorpay.com/v1"
	}
	authURL := os.Getenv("AUTH_SERVICE_URL")
	if authURL == "" {
		authURL = "https://auth-server:8080"
	}

	return &Config{
		ServiceName:   "payments-service",
		MongoURI:      os.Getenv("MONGO_DB_URI"),
		JaegerAddress: os.Getenv("JAEGER_ADDRESS"),

		GatewayBaseURL:        gatewayBase,
		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		AuthServiceURL: authURL,

		EmailFrom: os.Getenv("EMAIL_FROM"),
		SMTPHost:  os.Getenv("SMTP_HOST"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		SMTPPort:  smtpPort,
		SMTPUser:  os.Getenv("SMTP_USER"),

		ReconcileIntervalMinutes: interval,
		ReconcileThrottleMillis:  throttle,
	}
}
