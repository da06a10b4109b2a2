// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN,required,notEmpty"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	AIProvider   string  `env:"AI_PROVIDER" envDefault:"gemini"`
	GoogleAPIKey string  `env:"GOOGLE_API_KEY"`
	GeminiModel  string  `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	PersonaPath  string  `env:"PERSONA_PATH"`
	ModelRPS     float64 `env:"MODEL_RPS" envDefault:"2"`
	ModelRPSMax  float64 `env:"MODEL_RPS_MAX" envDefault:"5"`

	StorageBackend      string        `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	DatabasePath        string        `env:"DATABASE_PATH" envDefault:"data/companion.db"`
	StoragePath         string        `env:"STORAGE_PATH" envDefault:"data/companion.json"`
	MaintenanceInterval time.Duration `env:"MAINTENANCE_INTERVAL" envDefault:"15m"`

	BatchDelay       time.Duration `env:"MESSAGE_BATCH_DELAY" envDefault:"8s"`
	MaxBatchMessages int           `env:"MAX_BATCH_MESSAGES" envDefault:"0"`

	ProactiveEnabled  bool          `env:"PROACTIVE_ENABLED" envDefault:"true"`
	ProactiveInterval time.Duration `env:"PROACTIVE_INTERVAL" envDefault:"30m"`

	MaxTurns                  int `env:"MAX_TURNS" envDefault:"10"`
	DefaultAffinity           int `env:"DEFAULT_AFFINITY" envDefault:"30"`
	MinAffinity               int `env:"MIN_AFFINITY" envDefault:"0"`
	MaxAffinity               int `env:"MAX_AFFINITY" envDefault:"100"`
	AffinityIncrease          int `env:"AFFINITY_INCREASE" envDefault:"2"`
	AffinityDecrease          int `env:"AFFINITY_DECREASE" envDefault:"1"`
	ChatSummaryThreshold      int `env:"CHAT_SUMMARY_THRESHOLD" envDefault:"3"`
	ProactiveSummaryThreshold int `env:"PROACTIVE_SUMMARY_THRESHOLD" envDefault:"5"`

	PaceMin time.Duration `env:"PACE_MIN" envDefault:"1s"`
	PaceMax time.Duration `env:"PACE_MAX" envDefault:"2s"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"20"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// LoadDotEnv reads .env into the process environment when present.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Info().Msg("no .env file found, falling back to system environment variables")
	}
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.AIProvider = strings.TrimSpace(cfg.AIProvider)
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.MinAffinity >= c.MaxAffinity {
		errs = append(errs, fmt.Errorf("MIN_AFFINITY (%d) must be below MAX_AFFINITY (%d)", c.MinAffinity, c.MaxAffinity))
	}
	if c.DefaultAffinity < c.MinAffinity || c.DefaultAffinity > c.MaxAffinity {
		errs = append(errs, fmt.Errorf("DEFAULT_AFFINITY (%d) out of range", c.DefaultAffinity))
	}
	if c.ChatSummaryThreshold < 1 || c.ProactiveSummaryThreshold < 1 {
		errs = append(errs, errors.New("summary thresholds must be at least 1"))
	}
	if c.MaxTurns < 1 {
		errs = append(errs, errors.New("MAX_TURNS must be at least 1"))
	}
	if c.PaceMin < 0 || c.PaceMax < c.PaceMin {
		errs = append(errs, fmt.Errorf("PACE_MIN (%s) must not exceed PACE_MAX (%s)", c.PaceMin, c.PaceMax))
	}
	if c.BatchDelay <= 0 {
		errs = append(errs, errors.New("MESSAGE_BATCH_DELAY must be positive"))
	}
	if c.MaxBatchMessages < 0 {
		errs = append(errs, errors.New("MAX_BATCH_MESSAGES must not be negative"))
	}
	if c.ProactiveEnabled && c.ProactiveInterval <= 0 {
		errs = append(errs, errors.New("PROACTIVE_INTERVAL must be positive"))
	}
	if c.ModelRPS <= 0 || c.ModelRPSMax < c.ModelRPS {
		errs = append(errs, errors.New("MODEL_RPS must be positive and not exceed MODEL_RPS_MAX"))
	}
	switch c.StorageBackend {
	case "sqlite", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	provider := strings.ToLower(c.AIProvider)
	switch {
	case provider == "gemini":
		if c.GoogleAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_API_KEY is required for the gemini provider"))
		}
	case provider == "pollinations", provider == "g4f", strings.HasPrefix(provider, "g4f:"):
	default:
		errs = append(errs, fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider))
	}
	return errors.Join(errs...)
}

// Persona returns the system instruction from PersonaPath, or "" when unset.
func (c *Config) Persona() (string, error) {
	if c.PersonaPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.PersonaPath)
	if err != nil {
		return "", fmt.Errorf("read persona: %w", err)
	}
	return string(data), nil
}
