package database

import (
	"encoding/json"
	"fmt"

	"plugin-hub-backend/pkg/models"
)

// DatabaseInterface defines the persistence backend for the marketplace.
//
// Lookup methods return the typed sentinels from pkg/models when the target
// row is absent (ErrItemNotFound, ErrNotInstalled); CreateInstalledPlugin
// returns ErrAlreadyInstalled when the (user_id, plugin_id) uniqueness
// constraint is violated. GetStorageEntry returns (nil, nil) for a missing
// key: storage not-found is a valid outcome, not an error. Every other
// failure is a backend fault and is returned as-is for the service layer
// to wrap.
type DatabaseInterface interface {
	// Users (caller identity)
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)

	// Marketplace items
	CreateMarketplaceItem(item *models.MarketplaceItem) error
	GetMarketplaceItem(id string) (*models.MarketplaceItem, error)
	ListMarketplaceItems(filter models.ItemFilter) ([]models.MarketplaceItem, error)
	SetMarketplaceItemFeatured(id string, featured bool) error
	DeleteMarketplaceItem(id string) error
	IncrementItemDownloads(id string) error

	// Installed plugins. The at-most-one-install-per-(user,plugin)
	// invariant is enforced here, atomically at the storage layer.
	CreateInstalledPlugin(p *models.InstalledPlugin) error
	GetInstalledPlugin(userID, pluginID string) (*models.InstalledPlugin, error)
	ListInstalledPlugins(userID string) ([]models.InstalledPlugin, error)
	SetInstalledPluginEnabled(userID, pluginID string, enabled bool) error
	UpdateInstalledPluginConfiguration(userID, pluginID string, configuration map[string]interface{}) error
	DeleteInstalledPlugin(userID, pluginID string) error

	// Plugin storage, keyed on (plugin_id, user_id, workspace_id, key)
	GetStorageEntry(scope models.StorageScope, key string) (*models.PluginStorageEntry, error)
	SetStorageEntry(scope models.StorageScope, key string, value json.RawMessage) error
	DeleteStorageEntry(scope models.StorageScope, key string) error
	ListStorageKeys(scope models.StorageScope) ([]string, error)
	ClearStorage(scope models.StorageScope) error
	ClearStorageAllWorkspaces(pluginID, userID string) error

	// Health check
	HealthCheck() error

	// Close the underlying connection
	Close() error
}

// DatabaseConfig selects and configures the backend implementation
type DatabaseConfig struct {
	UseMemoryDB bool
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string
	Debug       bool
}

// NewDatabase picks a backend based on environment and configuration
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	isServerless := IsServerlessEnvironment()

	if isServerless {
		fmt.Printf("🧭 Detected serverless production environment\n")

		// Serverless prefers Supabase REST (avoids IPv6 dial issues)
		if config.SupabaseURL != "" && config.SupabaseKey != "" {
			fmt.Printf("🚀  Using Supabase REST API (serverless optimized)\n")
			return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey)
		}

		if config.PostgresDSN != "" {
			fmt.Printf("🌐  Using PostgreSQL in serverless (may have IPv6 issues)\n")
			return NewPostgresDatabase(config.PostgresDSN)
		}

		panic("No valid database configured for serverless environment. Please set SUPABASE_URL+SUPABASE_SERVICE_KEY or POSTGRES_DSN")
	}

	// Outside serverless: PostgreSQL > Supabase > in-memory
	if config.PostgresDSN != "" {
		fmt.Printf("🗄️  Using PostgreSQL database\n")
		return NewPostgresDatabase(config.PostgresDSN)
	}

	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		fmt.Printf("🧰  Using Supabase REST API\n")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey)
	}

	if config.UseMemoryDB {
		fmt.Printf("🧪  Using in-memory database (development only)\n")
		return NewMemoryDatabase()
	}

	panic("No valid database configuration found. Please configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
}
