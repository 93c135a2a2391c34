// Package docs provides Swagger documentation for the API.
package docs

// @title Outreachly Campaign API
// @version 1.0
// @description Campaign dispatch engine: AI-personalized email and WhatsApp outreach
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@outreachly.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
