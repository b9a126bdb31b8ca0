package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Geo      GeoConfig
	Booking  BookingConfig
	Mapping  MappingConfig
	Rating   RatingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT validation configuration. Tokens are issued by
// the external identity service; this backend only validates them.
type JWTConfig struct {
	Secret        string
	RefreshSecret string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// GeoConfig holds geospatial search configuration
type GeoConfig struct {
	DefaultRadiusKm float64
	MaxRadiusKm     float64
}

// BookingConfig holds seat-allocation configuration
type BookingConfig struct {
	MaxSeatsPerRequest int
	ReserveRetries     int
	DefaultCurrency    string
}

// MappingConfig holds the external mapping provider configuration.
// When BaseURL is empty, distance and duration estimates fall back to
// straight-line haversine math.
type MappingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RatingConfig holds the external driver-rating service configuration.
// An empty BaseURL disables rating enrichment on search results.
type RatingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Geo: GeoConfig{
			DefaultRadiusKm: getEnvAsFloat("GEO_DEFAULT_RADIUS_KM", 5),
			MaxRadiusKm:     getEnvAsFloat("GEO_MAX_RADIUS_KM", 100),
		},
		Booking: BookingConfig{
			MaxSeatsPerRequest: getEnvAsInt("BOOKING_MAX_SEATS_PER_REQUEST", 8),
			ReserveRetries:     getEnvAsInt("BOOKING_RESERVE_RETRIES", 3),
			DefaultCurrency:    getEnv("BOOKING_DEFAULT_CURRENCY", "KES"),
		},
		Mapping: MappingConfig{
			BaseURL: getEnv("MAPPING_PROVIDER_URL", ""),
			APIKey:  getEnv("MAPPING_PROVIDER_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("MAPPING_PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Rating: RatingConfig{
			BaseURL: getEnv("RATING_SERVICE_URL", ""),
			APIKey:  getEnv("RATING_SERVICE_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("RATING_SERVICE_TIMEOUT_SECONDS", 5)) * time.Second,
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Geo.DefaultRadiusKm <= 0 || c.Geo.DefaultRadiusKm > c.Geo.MaxRadiusKm {
		return fmt.Errorf("GEO_DEFAULT_RADIUS_KM must be positive and within GEO_MAX_RADIUS_KM")
	}

	if c.Booking.MaxSeatsPerRequest < 1 {
		return fmt.Errorf("BOOKING_MAX_SEATS_PER_REQUEST must be at least 1")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
