package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SMTPConfig carries the transactional email submission settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Configured reports whether the minimum SMTP credentials are present.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.Password != ""
}

// LoadSMTPConfig reads SMTP settings from the environment.
func LoadSMTPConfig() SMTPConfig {
	from := GetEnv("SMTP_FROM", "")
	user := GetEnv("SMTP_USER", "")
	if from == "" {
		from = user
	}
	return SMTPConfig{
		Host:     GetEnv("SMTP_HOST", ""),
		Port:     GetEnvAsInt("SMTP_PORT", 587),
		User:     user,
		Password: GetEnv("SMTP_PASSWORD", ""),
		From:     from,
	}
}

// WhatsAppProvider identifies which upstream carries WhatsApp traffic.
type WhatsAppProvider string

const (
	ProviderMetaCloud WhatsAppProvider = "META_CLOUD_API"
	ProviderTwilio    WhatsAppProvider = "TWILIO"
	ProviderNone      WhatsAppProvider = ""
)

// WhatsAppConfig selects and configures a WhatsApp Business upstream.
// Meta Cloud API wins when both providers are configured, matching how
// stored per-user configuration resolves.
type WhatsAppConfig struct {
	Provider WhatsAppProvider

	// Meta Cloud API
	PhoneNumberID     string
	BusinessAccountID string
	AccessToken       string
	APIVersion        string
	AppSecret         string
	VerifyToken       string

	// Twilio
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string
}

// Configured reports whether any WhatsApp upstream has credentials.
func (c WhatsAppConfig) Configured() bool {
	return c.Provider != ProviderNone
}

// LoadWhatsAppConfig reads WhatsApp provider settings from the environment.
func LoadWhatsAppConfig() WhatsAppConfig {
	cfg := WhatsAppConfig{
		PhoneNumberID:     GetEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		BusinessAccountID: GetEnv("WHATSAPP_BUSINESS_ACCOUNT_ID", ""),
		AccessToken:       GetEnv("WHATSAPP_ACCESS_TOKEN", ""),
		APIVersion:        GetEnv("WHATSAPP_API_VERSION", "v18.0"),
		AppSecret:         GetEnv("WHATSAPP_APP_SECRET", ""),
		VerifyToken:       GetEnv("WHATSAPP_VERIFY_TOKEN", ""),
		AccountSID:        GetEnv("TWILIO_ACCOUNT_SID", ""),
		AuthToken:         GetEnv("TWILIO_AUTH_TOKEN", ""),
		WhatsAppFrom:      GetEnv("TWILIO_WHATSAPP_NUMBER", ""),
	}
	if cfg.PhoneNumberID != "" && cfg.AccessToken != "" {
		cfg.Provider = ProviderMetaCloud
	} else if cfg.AccountSID != "" && cfg.AuthToken != "" {
		cfg.Provider = ProviderTwilio
	}
	return cfg
}

// AIConfig carries credentials and endpoints for the text backends.
type AIConfig struct {
	OllamaBaseURL   string
	OllamaTimeout   time.Duration
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// LoadAIConfig reads AI backend settings from the environment.
func LoadAIConfig() AIConfig {
	return AIConfig{
		OllamaBaseURL:   GetEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		OllamaTimeout:   time.Duration(GetEnvAsInt("OLLAMA_TIMEOUT_SECONDS", 60)) * time.Second,
		OpenAIAPIKey:    GetEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: GetEnv("ANTHROPIC_API_KEY", ""),
	}
}

// GetEnv gets an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt gets an environment variable as int or returns a default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, fmt.Sprintf("%d", defaultValue))
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
