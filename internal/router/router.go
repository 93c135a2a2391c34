package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/handlers"
	"github.com/outreachly/outreachly-backend/internal/middleware"
	"github.com/outreachly/outreachly-backend/internal/services/dispatch"
)

// SetupRouter configures the Gin router. The dispatch engine is built by
// the caller because it shares the job queue with the consumer side.
func SetupRouter(db *gorm.DB, engine *dispatch.Engine, smtpCfg config.SMTPConfig, waCfg config.WhatsAppConfig, aiCfg config.AIConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.UserIDHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	campaignHandler := handlers.NewCampaignHandler(db, engine)
	contactHandler := handlers.NewContactHandler(db)
	webhookHandler := handlers.NewWebhookHandler(db, waCfg)
	whatsappHandler := handlers.NewWhatsAppHandler(waCfg)
	aiHandler := handlers.NewAIHandler(aiCfg)
	healthHandler := handlers.NewHealthHandler(smtpCfg, waCfg, aiCfg)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/health", healthHandler.Health)

	// Provider callbacks and tracking endpoints are unauthenticated by
	// nature; webhooks carry their own verification.
	r.GET("/webhooks/whatsapp", webhookHandler.VerifyWhatsAppWebhook)
	r.POST("/webhooks/whatsapp", webhookHandler.HandleWhatsAppWebhook)
	r.POST("/webhooks/email", webhookHandler.HandleEmailWebhook)
	r.GET("/t/open/:linkID", webhookHandler.TrackOpen)
	r.GET("/t/click/:linkID", webhookHandler.TrackClick)

	api := r.Group("/api/v1")
	api.Use(middleware.UserContext())
	{
		campaigns := api.Group("/campaigns")
		{
			campaigns.POST("", campaignHandler.CreateCampaign)
			campaigns.GET("", campaignHandler.ListCampaigns)
			campaigns.GET("/:id", campaignHandler.GetCampaign)
			campaigns.PUT("/:id", campaignHandler.UpdateCampaign)
			campaigns.DELETE("/:id", campaignHandler.DeleteCampaign)
			campaigns.POST("/:id/contacts", campaignHandler.AddContacts)
			campaigns.POST("/:id/generate", campaignHandler.GenerateCampaign)
			campaigns.POST("/:id/send", campaignHandler.SendCampaign)
			campaigns.GET("/:id/analytics", campaignHandler.GetCampaignAnalytics)
		}

		contacts := api.Group("/contacts")
		{
			contacts.POST("", contactHandler.CreateContact)
			contacts.GET("", contactHandler.ListContacts)
			contacts.GET("/:id", contactHandler.GetContact)
			contacts.PUT("/:id", contactHandler.UpdateContact)
			contacts.DELETE("/:id", contactHandler.DeleteContact)
			contacts.POST("/:id/interactions", contactHandler.AddInteraction)
			contacts.GET("/:id/interactions", contactHandler.ListInteractions)
		}

		whatsapp := api.Group("/whatsapp")
		{
			whatsapp.GET("/status", whatsappHandler.GetProviderStatus)
			whatsapp.POST("/templates", whatsappHandler.CreateTemplate)
			whatsapp.GET("/templates/:name", whatsappHandler.GetTemplateStatus)
		}

		aiGroup := api.Group("/ai")
		{
			aiGroup.GET("/status", aiHandler.GetBackendStatus)
			aiGroup.GET("/models", aiHandler.ListModels)
		}
	}

	return r
}
