package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port int `yaml:"port" env:"PORT, overwrite"`
	// PublicURL: адрес фронтенда, на который ведут ссылки из писем.
	PublicURL       string        `yaml:"public_url" env:"PUBLIC_URL, overwrite"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT, overwrite"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"url" env:"DATABASE_URL, overwrite"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE, overwrite"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host" env:"SMTP_HOST, overwrite"`
	SMTPPort     int    `yaml:"smtp_port" env:"SMTP_PORT, overwrite"`
	SMTPUser     string `yaml:"smtp_user" env:"SMTP_USER, overwrite"`
	SMTPPassword string `yaml:"smtp_password" env:"SMTP_PASSWORD, overwrite"`
	FromEmail    string `yaml:"from_email" env:"SMTP_FROM, overwrite"`
	DryRun       bool   `yaml:"dry_run" env:"EMAIL_DRY_RUN, overwrite"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret" env:"JWT_SECRET, overwrite"`
	AccessTTL time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL, overwrite"`
}

// ChallengePolicy: лимиты выдачи одноразовых кодов.
type ChallengePolicy struct {
	TTL          time.Duration `yaml:"ttl"`
	Cooldown     time.Duration `yaml:"cooldown"`
	Window       time.Duration `yaml:"window"`
	MaxPerWindow int           `yaml:"max_per_window"`
}

type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED, overwrite"`
	Requests      int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS, overwrite"`
	Window        time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW, overwrite"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR, overwrite"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD, overwrite"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB, overwrite"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS, overwrite"`
}

type Config struct {
	Env      string `yaml:"env" env:"VIBE_ENV, overwrite"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL, overwrite"`

	Server       ServerConfig    `yaml:"server"`
	Database     DatabaseConfig  `yaml:"database"`
	Email        EmailConfig     `yaml:"email"`
	JWT          JWTConfig       `yaml:"jwt"`
	Verification ChallengePolicy `yaml:"verification"`
	Recovery     ChallengePolicy `yaml:"password_recovery"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	CORS         CORSConfig      `yaml:"cors"`
}

// Load читает YAML (если файл есть), затем .env и переменные окружения
// поверх него, и заполняет значения по умолчанию.
func Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// только окружение
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	_ = godotenv.Load()
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:5173"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 30 * time.Minute
	}

	c.Verification.fill(ChallengePolicy{
		TTL:          5 * time.Minute,
		Cooldown:     time.Minute,
		Window:       time.Hour,
		MaxPerWindow: 5,
	})
	c.Recovery.fill(ChallengePolicy{
		TTL:          15 * time.Minute,
		Cooldown:     5 * time.Minute,
		Window:       time.Hour,
		MaxPerWindow: 3,
	})

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 10
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
}

func (p *ChallengePolicy) fill(def ChallengePolicy) {
	if p.TTL == 0 {
		p.TTL = def.TTL
	}
	if p.Cooldown == 0 {
		p.Cooldown = def.Cooldown
	}
	if p.Window == 0 {
		p.Window = def.Window
	}
	if p.MaxPerWindow == 0 {
		p.MaxPerWindow = def.MaxPerWindow
	}
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("config: jwt.secret (JWT_SECRET) is required")
	}
	if c.Verification.Cooldown < 0 || c.Recovery.Cooldown < 0 {
		return errors.New("config: cooldown must not be negative")
	}
	return nil
}

// IsProduction: JSON-логи и gin.ReleaseMode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
