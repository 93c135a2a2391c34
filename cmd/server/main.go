package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/database"
	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/queue"
	"github.com/outreachly/outreachly-backend/internal/router"
	"github.com/outreachly/outreachly-backend/internal/services/composer"
	"github.com/outreachly/outreachly-backend/internal/services/dispatch"
	"github.com/outreachly/outreachly-backend/internal/utils"

	// Import Swagger docs
	_ "github.com/outreachly/outreachly-backend/docs"
)

// @title Outreachly Campaign API
// @version 1.0
// @description Campaign dispatch engine: AI-personalized email and WhatsApp outreach
// @BasePath /

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	configureLogging()
	utils.InitSentry()

	db, err := database.InitDB()
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	smtpCfg := config.LoadSMTPConfig()
	waCfg := config.LoadWhatsAppConfig()
	aiCfg := config.LoadAIConfig()

	// Job queue: RabbitMQ when reachable, in-memory otherwise so the
	// single-binary setup still dispatches campaigns.
	var jobs queue.JobQueue
	rabbit, err := queue.NewRabbitMQQueue()
	if err != nil {
		logrus.Warnf("Failed to initialize RabbitMQ, falling back to in-memory queue: %v", err)
		jobs = queue.NewMemoryQueue(config.GetEnvAsInt("JOB_QUEUE_SIZE", 64))
	} else {
		jobs = rabbit
	}
	defer jobs.Close()

	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	linkRepo := repository.NewCampaignContactRepository(db)

	generator := composer.NewGenerator(campaignRepo, contactRepo, aiCfg)
	engine := dispatch.NewEngine(campaignRepo, contactRepo, linkRepo, generator, jobs, smtpCfg, waCfg)

	if err := jobs.StartConsumer(engine.HandleJob); err != nil {
		logrus.Fatalf("Failed to start job consumer: %v", err)
	}
	logrus.Info("Campaign job consumer started")

	r := router.SetupRouter(db, engine, smtpCfg, waCfg, aiCfg)

	port := config.GetEnv("PORT", "8080")
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: r,
	}

	go func() {
		logrus.Infof("Server starting on port %s", port)
		logrus.Infof("API Health Check: http://localhost:%s/health", port)
		logrus.Infof("Swagger UI: http://localhost:%s/swagger/index.html", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited properly")
}

func configureLogging() {
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
