package utils

import (
	"log"
	"os"

	"github.com/getsentry/sentry-go"
)

// InitSentry initializes Sentry for error tracking. Without a DSN the SDK
// runs in no-op mode, which is what we want for local development.
func InitSentry() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		log.Println("SENTRY_DSN not set, error tracking disabled")
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      os.Getenv("APP_ENV"),
		EnableTracing:    true,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}

	log.Println("Sentry initialized")
}
