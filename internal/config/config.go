// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	Env            string `mapstructure:"APP_ENV"`

	DBType          string `mapstructure:"DB_TYPE"`
	DBHost          string `mapstructure:"DB_HOST"`
	DBPort          string `mapstructure:"DB_PORT"`
	DBUser          string `mapstructure:"DB_USER"`
	DBPassword      string `mapstructure:"DB_PASSWORD"`
	DBName          string `mapstructure:"DB_NAME"`
	DBSSLMode       string `mapstructure:"DB_SSLMODE"`
	DBPath          string `mapstructure:"DB_PATH"`
	DBSchemaMode    string `mapstructure:"DB_SCHEMA_MODE"`
	DBProbeTimeout  int    `mapstructure:"DB_PROBE_TIMEOUT_MS"`
	DBMaxOpenConns  int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns  int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DataDir         string `mapstructure:"DATA_DIR"`
	UploadDir       string `mapstructure:"UPLOAD_DIR"`
	MaxUploadMB     int    `mapstructure:"MAX_UPLOAD_MB"`
	MaxPhotoMB      int    `mapstructure:"MAX_PHOTO_MB"`
	AllowedExts     string `mapstructure:"ALLOWED_EXTENSIONS"`
	AllowedPhotoExt string `mapstructure:"ALLOWED_PHOTO_EXTENSIONS"`

	AdminUsername         string `mapstructure:"ADMIN_USERNAME"`
	AdminEmail            string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword         string `mapstructure:"ADMIN_PASSWORD"`
	SeedDefaultCategories bool   `mapstructure:"SEED_DEFAULT_CATEGORIES"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

var defaults = map[string]interface{}{
	"PORT":                     "8375",
	"APP_ENV":                  "development",
	"JWT_SECRET":               defaultJWTSecret,
	"ALLOWED_ORIGINS":          "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173",
	"REDIS_URL":                "",
	"FEATURE_FLAGS":            "",
	"DB_TYPE":                  "",
	"DB_HOST":                  "localhost",
	"DB_PORT":                  "",
	"DB_USER":                  "user",
	"DB_PASSWORD":              "password",
	"DB_NAME":                  "fecstl",
	"DB_SSLMODE":               "disable",
	"DB_PATH":                  "data/fecstl.db",
	"DB_SCHEMA_MODE":           "hybrid",
	"DB_PROBE_TIMEOUT_MS":      2000,
	"DB_MAX_OPEN_CONNS":        25,
	"DB_MAX_IDLE_CONNS":        5,
	"DATA_DIR":                 "data",
	"UPLOAD_DIR":               "uploads",
	"MAX_UPLOAD_MB":            50,
	"MAX_PHOTO_MB":             10,
	"ALLOWED_EXTENSIONS":       "stl,obj",
	"ALLOWED_PHOTO_EXTENSIONS": "jpg,jpeg,png,gif,webp",
	"ADMIN_USERNAME":           "admin",
	"ADMIN_EMAIL":              "admin@example.com",
	"ADMIN_PASSWORD":           "",
	"SEED_DEFAULT_CATEGORIES":  true,
	"TRACING_ENABLED":          false,
	"TRACING_EXPORTER":         "stdout",
	"OTLP_ENDPOINT":            "localhost:4318",
	"TRACING_SAMPLE_RATIO":     1.0,
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env != "development" && env != "" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			log.Printf("No profile-specific configuration config.%s.yml found, using environment only", env)
		} else {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBType = strings.ToLower(strings.TrimSpace(c.DBType))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	if c.DBPort == "" {
		switch c.DBType {
		case "postgres", "postgresql":
			c.DBPort = "5432"
		case "mysql":
			c.DBPort = "3306"
		}
	}
	if c.DBType == "postgresql" {
		c.DBType = "postgres"
	}
}

// IsProduction reports whether the process runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if c.MaxPhotoMB <= 0 {
		return errors.New("MAX_PHOTO_MB must be positive")
	}
	if len(SplitList(c.AllowedExts)) == 0 {
		return errors.New("ALLOWED_EXTENSIONS must list at least one extension")
	}
	if c.DataDir == "" || c.UploadDir == "" {
		return errors.New("DATA_DIR and UPLOAD_DIR are required")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBType != "" && c.DBType != "json" && c.DBType != "sqlite" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// BootstrapAdminPassword returns the password for the first admin account.
// Production has no default.
func (c *Config) BootstrapAdminPassword() string {
	if c.AdminPassword != "" || c.IsProduction() {
		return c.AdminPassword
	}
	return "admin123"
}

// SplitList splits a comma separated value into trimmed, lowercased, non-empty items.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), ".")))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
