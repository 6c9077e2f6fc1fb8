package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NoCompanyID marks identities that are not bound to a tenant.
const NoCompanyID = "00000000-0000-0000-0000-000000000000"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Mail      MailConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Sweep     SweepConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	Env        string
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP. Enable only behind a
	// proxy that overwrites those headers.
	TrustProxy bool
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type AuthConfig struct {
	// ForgotPasswordMinutes is the lifetime of password-reset tokens.
	ForgotPasswordMinutes int
	BcryptCost            int
	DefaultCompanyID      string
	// EncryptionKey is an age identity used to seal stored tokens. Empty disables sealing.
	EncryptionKey string
}

type MailConfig struct {
	ServiceURL string
	// StartWorkingHost is the link placed in invitation emails.
	StartWorkingHost string
}

type CORSConfig struct {
	Origins []string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type SweepConfig struct {
	Cron string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (a *AuthConfig) ForgotPasswordExpiry() time.Duration {
	return time.Duration(a.ForgotPasswordMinutes) * time.Minute
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 3000)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "identity")
	v.SetDefault("DATABASE_PASSWORD", "identity_secret")
	v.SetDefault("DATABASE_NAME", "identity")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("FORGOT_PASSWORD_EXPIRES_IN", 15)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("DEFAULT_COMPANY_ID", NoCompanyID)
	v.SetDefault("ENCRYPTION_KEY", "")
	v.SetDefault("MAIL_SERVICE_URL", "")
	v.SetDefault("EMAIL_START_WORKING_HOST", "")
	v.SetDefault("CORS_ORIGIN_HOST", "")
	v.SetDefault("RATE_LIMIT_REQUESTS", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("TOKEN_SWEEP_CRON", "0 * * * *")

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:       v.GetString("SERVER_HOST"),
			Port:       v.GetInt("SERVER_PORT"),
			Env:        v.GetString("SERVER_ENV"),
			TrustProxy: v.GetBool("TRUST_PROXY"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DATABASE_HOST"),
			Port:        v.GetInt("DATABASE_PORT"),
			User:        v.GetString("DATABASE_USER"),
			Password:    v.GetString("DATABASE_PASSWORD"),
			Name:        v.GetString("DATABASE_NAME"),
			SSLMode:     v.GetString("DATABASE_SSLMODE"),
			AutoMigrate: v.GetBool("DATABASE_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Auth: AuthConfig{
			ForgotPasswordMinutes: v.GetInt("FORGOT_PASSWORD_EXPIRES_IN"),
			BcryptCost:            v.GetInt("BCRYPT_COST"),
			DefaultCompanyID:      v.GetString("DEFAULT_COMPANY_ID"),
			EncryptionKey:         v.GetString("ENCRYPTION_KEY"),
		},
		Mail: MailConfig{
			ServiceURL:       v.GetString("MAIL_SERVICE_URL"),
			StartWorkingHost: v.GetString("EMAIL_START_WORKING_HOST"),
		},
		CORS: CORSConfig{
			Origins: SplitOrigins(v.GetString("CORS_ORIGIN_HOST")),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Sweep: SweepConfig{
			Cron: v.GetString("TOKEN_SWEEP_CRON"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET must not be empty")
	}
	if cfg.Auth.ForgotPasswordMinutes <= 0 {
		cfg.Auth.ForgotPasswordMinutes = 15
	}
	if cfg.RateLimit.Requests <= 0 {
		cfg.RateLimit.Requests = 20
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = 60
	}

	return cfg, nil
}

// SplitOrigins splits a comma-separated origin list, dropping blanks.
func SplitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
