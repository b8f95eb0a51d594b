package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds the application configuration
type Config struct {
	// Environment
	Environment string
	Port        string

	// Database
	UseMemoryDB bool
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string

	// JWT
	JWTSecret string

	// Marketplace moderation: emails allowed to feature/remove items
	AdminEmails []string

	// CORS
	AllowedOrigins []string

	// Debug
	Debug bool
}

// LoadConfig loads configuration from env vars and .env files
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	switch env {
	case "production":
		loadEnvFile(".env.production")
	case "development":
		loadEnvFile(".env.local")
	default:
		loadEnvFile(".env.local")
	}

	config := &Config{
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		Port:        getEnvWithDefault("PORT", "3000"),
		UseMemoryDB: getEnvBool("USE_MEMORY_DB", true),
		JWTSecret:   getEnvWithDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		Debug:       getEnvBool("DEBUG", false),
	}

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.SupabaseURL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY"))

	// Moderation allow-list: comma-separated admin emails
	if admins := strings.TrimSpace(os.Getenv("ADMIN_EMAILS")); admins != "" {
		for _, a := range strings.Split(admins, ",") {
			if a = strings.TrimSpace(a); a != "" {
				config.AdminEmails = append(config.AdminEmails, a)
			}
		}
	}

	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	if config.Environment == "production" {
		// Production requires an external database
		if config.PostgresDSN != "" || (config.SupabaseURL != "" && config.SupabaseKey != "") {
			config.UseMemoryDB = false
		} else {
			fmt.Println("⚠️  WARNING: Production environment using in-memory database. Please configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
		}
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config. On serverless it
// initializes once per cold start and reuses it across warm invocations.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate checks the configuration for fatal problems
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == "your-secret-key-change-in-production" {
		if c.Environment == "production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Environment == "development" {
			fmt.Println("⚠️  Using default JWT secret (not recommended for production)")
		}
	}

	if c.UseMemoryDB {
		// In-memory database needs no further validation
	} else if c.PostgresDSN != "" {
		// Direct PostgreSQL, nothing further to check
	} else if c.SupabaseURL != "" && c.SupabaseKey != "" {
		// Supabase REST, nothing further to check
	} else {
		return fmt.Errorf("incomplete database configuration: set POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
	}

	return nil
}

// IsAdminEmail reports whether the email is on the moderation allow-list
func (c *Config) IsAdminEmail(email string) bool {
	for _, a := range c.AdminEmails {
		if strings.EqualFold(a, email) {
			return true
		}
	}
	return false
}

// IsProduction checks for the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment checks for the development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault returns an env var or a default when unset
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool parses a boolean env var
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadEnvFile loads a .env file into the process environment
func loadEnvFile(filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return
	}

	file, err := os.Open(filename)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
				(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
				value = value[1 : len(value)-1]
			}
		}

		// Only set when the variable is not already present
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
