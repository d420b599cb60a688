package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup. Secrets are normally resolved from SSM under
// ParamPrefix; the *Token/*Key fields exist for local runs only.
type Config struct {
	Env         string
	LogLevel    string
	ListenAddr  string
	StateTable  string
	ParamPrefix string

	// TranscriptLimit caps GET /transcript; 0 keeps the service default.
	TranscriptLimit int

	CRM        CRMConfig
	Chat       LLMConfig
	Transcribe LLMConfig
	Format     FormatConfig
}

type CRMConfig struct {
	BaseURL   string
	RateLimit float64 // requests per second, 0 disables the limiter
	Burst     int
	APIToken  string
}

type LLMConfig struct {
	BaseURL    string
	Model      string
	APIVersion string
	Azure      bool
	APIKey     string
}

type FormatConfig struct {
	DateLayout string
	Timezone   string
}

// Load reads the named env files, if any, then the process environment. With
// no files only the environment is read.
func Load(files ...string) (*Config, error) {
	if len(files) > 0 {
		// A missing file is normal outside local development.
		_ = godotenv.Load(files...)
	}

	azure := getEnvAsBool("OPENAI_AZURE", false)
	cfg := &Config{
		Env:             getEnv("APP_ENV", "production"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		StateTable:      getEnv("STATE_TABLE", ""),
		ParamPrefix:     strings.TrimRight(getEnv("PARAM_PREFIX", "/pipedrive-agent"), "/"),
		TranscriptLimit: getEnvAsInt("TRANSCRIPT_LIMIT", 0),
		CRM: CRMConfig{
			BaseURL:   getEnv("CRM_BASE_URL", "https://api.pipedrive.com/v1"),
			RateLimit: getEnvAsFloat("CRM_RATE_LIMIT", 0),
			Burst:     getEnvAsInt("CRM_RATE_BURST", 1),
			APIToken:  getEnv("CRM_API_TOKEN", ""),
		},
		Chat: LLMConfig{
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIVersion: getEnv("OPENAI_API_VERSION", ""),
			Azure:      azure,
			APIKey:     getEnv("OPENAI_API_KEY", ""),
		},
		Transcribe: LLMConfig{
			BaseURL:    getEnv("TRANSCRIBE_BASE_URL", getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")),
			Model:      getEnv("TRANSCRIBE_MODEL", "whisper-1"),
			APIVersion: getEnv("TRANSCRIBE_API_VERSION", getEnv("OPENAI_API_VERSION", "")),
			Azure:      azure,
			APIKey:     getEnv("TRANSCRIBE_API_KEY", getEnv("OPENAI_API_KEY", "")),
		},
		Format: FormatConfig{
			DateLayout: getEnv("DATE_LAYOUT", "1/2/2006"),
			Timezone:   getEnv("TIMEZONE", "UTC"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ParamPrefix == "" && !c.StaticSecrets() {
		return errors.New("config: PARAM_PREFIX is required when secrets are not set in the environment")
	}
	if c.TranscriptLimit < 0 {
		return fmt.Errorf("config: TRANSCRIPT_LIMIT must not be negative, got %d", c.TranscriptLimit)
	}
	if c.CRM.RateLimit < 0 {
		return fmt.Errorf("config: CRM_RATE_LIMIT must not be negative, got %v", c.CRM.RateLimit)
	}
	if c.CRM.Burst < 1 {
		return fmt.Errorf("config: CRM_RATE_BURST must be at least 1, got %d", c.CRM.Burst)
	}
	if _, err := time.LoadLocation(c.Format.Timezone); err != nil {
		return fmt.Errorf("config: TIMEZONE: %w", err)
	}
	return nil
}

// Production reports whether APP_ENV selects production logging.
func (c *Config) Production() bool {
	return !strings.EqualFold(c.Env, "development") && !strings.EqualFold(c.Env, "local")
}

// StaticSecrets reports whether every API credential was supplied directly,
// in which case SSM is not consulted.
func (c *Config) StaticSecrets() bool {
	return c.CRM.APIToken != "" && c.Chat.APIKey != "" && c.Transcribe.APIKey != ""
}

// Location returns the time zone for rendered dates. validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Format.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
