package database

import (
	"fmt"
	"sync"
	"time"
)

// Process-wide connection pool. Serverless platforms reuse warm instances,
// so keeping one database handle alive between invocations avoids paying
// the connection handshake on every request.
var (
	globalDB       DatabaseInterface
	globalDBConfig DatabaseConfig
	dbMutex        sync.Mutex
	lastUsed       time.Time
)

// GetDatabase returns the shared database handle, creating it on first use
// and recreating it when the config changes or the handle has gone stale
func GetDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if globalDB != nil && configEquals(globalDBConfig, config) {
		if shouldRecreateConnection() {
			fmt.Printf("🔄 Database connection is stale, recreating...\n")
			globalDB.Close()
			globalDB = nil
		} else {
			lastUsed = time.Now()
			return globalDB, nil
		}
	}

	if globalDB != nil {
		fmt.Printf("🔄 Database config changed, closing old connection\n")
		globalDB.Close()
		globalDB = nil
	}

	fmt.Printf("🆕 Creating new database connection\n")
	db := NewDatabase(config)

	globalDB = db
	globalDBConfig = config
	lastUsed = time.Now()

	return globalDB, nil
}

// shouldRecreateConnection reports whether the cached handle is unhealthy
// or has sat idle long enough that the server side likely dropped it
func shouldRecreateConnection() bool {
	if globalDB == nil {
		return true
	}

	// Postgres idle timeouts on hosted plans tend to be a few minutes
	if time.Since(lastUsed) > 4*time.Minute {
		return true
	}

	if err := globalDB.HealthCheck(); err != nil {
		fmt.Printf("⚠️ Cached connection failed health check: %v\n", err)
		return true
	}

	return false
}

func configEquals(a, b DatabaseConfig) bool {
	return a.UseMemoryDB == b.UseMemoryDB &&
		a.PostgresDSN == b.PostgresDSN &&
		a.SupabaseURL == b.SupabaseURL &&
		a.SupabaseKey == b.SupabaseKey
}

// CleanupIdleConnections closes the shared handle if it has been idle too
// long. Intended for callers with long-lived processes; serverless
// platforms tear the whole instance down instead.
func CleanupIdleConnections() {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if globalDB != nil && time.Since(lastUsed) > 10*time.Minute {
		fmt.Printf("🧹 Closing idle database connection\n")
		globalDB.Close()
		globalDB = nil
	}
}

// GetConnectionStats exposes pool state for the health endpoint
func GetConnectionStats() map[string]interface{} {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	stats := map[string]interface{}{
		"has_connection": globalDB != nil,
	}
	if globalDB != nil {
		stats["idle_seconds"] = int(time.Since(lastUsed).Seconds())
	}
	return stats
}
