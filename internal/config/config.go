package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Gemini    GeminiConfig
	Catalog   CatalogConfig
	Odoo      OdooConfig
	Shoper    ShoperConfig
	Pricing   PricingConfig
	Publish   PublishConfig
	Admin     AdminConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// GeminiConfig holds recognition provider configuration
type GeminiConfig struct {
	APIKey string
	Model  string
}

// CatalogConfig holds the primary catalog-search provider configuration
type CatalogConfig struct {
	BaseURL string
	APIKey  string
}

// OdooConfig holds the fallback catalog-search provider configuration.
// The fallback searches the shop's own Odoo product catalog over XML-RPC.
type OdooConfig struct {
	URL      string
	Database string
	Username string
	Password string
	Currency string
}

// ShoperConfig holds marketplace API configuration
type ShoperConfig struct {
	BaseURL string
	Token   string
}

// PricingConfig supplies the FX rate and multiplier consumed by the
// pricing engine. Rate sourcing itself is an external concern.
type PricingConfig struct {
	FxRate        float64
	Multiplier    float64
	LocalCurrency string
}

// PublishConfig holds product-code and category assignment settings
type PublishConfig struct {
	CodePrefix        string
	DefaultCategoryID int64
	// CategoryOverrides maps a lowercased card name to a category id,
	// parsed from a "Pikachu=12,Charizard=15" style env value.
	CategoryOverrides map[string]int64
}

// AdminConfig seeds the initial operator account
type AdminConfig struct {
	Email    string
	Password string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	fxRate, err := getEnvFloat("PRICING_FX_RATE", 4.3)
	if err != nil {
		return nil, err
	}
	multiplier, err := getEnvFloat("PRICING_MULTIPLIER", 1.24)
	if err != nil {
		return nil, err
	}

	defaultCategory, err := strconv.ParseInt(getEnv("PUBLISH_DEFAULT_CATEGORY_ID", "1"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("PUBLISH_DEFAULT_CATEGORY_ID must be an integer: %w", err)
	}

	overrides, err := parseCategoryOverrides(os.Getenv("PUBLISH_CATEGORY_OVERRIDES"))
	if err != nil {
		return nil, err
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3210"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "kartoteka"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_API_URL", "https://api.cardbase.io/v1"),
			APIKey:  os.Getenv("CATALOG_API_KEY"),
		},
		Odoo: OdooConfig{
			URL:      os.Getenv("ODOO_URL"),
			Database: os.Getenv("ODOO_DATABASE"),
			Username: os.Getenv("ODOO_USERNAME"),
			Password: os.Getenv("ODOO_PASSWORD"),
			Currency: getEnv("ODOO_CURRENCY", "EUR"),
		},
		Shoper: ShoperConfig{
			BaseURL: os.Getenv("SHOPER_BASE_URL"),
			Token:   os.Getenv("SHOPER_API_TOKEN"),
		},
		Pricing: PricingConfig{
			FxRate:        fxRate,
			Multiplier:    multiplier,
			LocalCurrency: getEnv("PRICING_LOCAL_CURRENCY", "PLN"),
		},
		Publish: PublishConfig{
			CodePrefix:        getEnv("PUBLISH_CODE_PREFIX", "KRT"),
			DefaultCategoryID: defaultCategory,
			CategoryOverrides: overrides,
		},
		Admin: AdminConfig{
			Email:    os.Getenv("ADMIN_EMAIL"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
	}, nil
}

// parseCategoryOverrides parses "name=id,name=id" pairs
func parseCategoryOverrides(raw string) (map[string]int64, error) {
	overrides := make(map[string]int64)
	if raw == "" {
		return overrides, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid PUBLISH_CATEGORY_OVERRIDES entry: %q", pair)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid category id in %q: %w", pair, err)
		}
		overrides[strings.ToLower(parts[0])] = id
	}
	return overrides, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}
