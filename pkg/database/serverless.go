package database

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// ServerlessOptimizer caches database handles per config so that warm
// serverless instances skip connection setup entirely. Unlike the plain
// pool it tracks usage counts and prunes handles in the background.
type ServerlessOptimizer struct {
	connections map[string]*optimizedConnection
	mutex       sync.RWMutex
}

type optimizedConnection struct {
	db        DatabaseInterface
	config    DatabaseConfig
	createdAt time.Time
	lastUsed  time.Time
	useCount  int64
}

var (
	optimizer     *ServerlessOptimizer
	optimizerOnce sync.Once
)

// GetOptimizedDatabase returns a cached handle for the given config,
// creating one when necessary
func GetOptimizedDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	optimizerOnce.Do(func() {
		optimizer = &ServerlessOptimizer{
			connections: make(map[string]*optimizedConnection),
		}
		go optimizer.backgroundCleanup()
	})

	return optimizer.getConnection(config)
}

func (o *ServerlessOptimizer) getConnection(config DatabaseConfig) (DatabaseInterface, error) {
	key := generateConfigKey(config)

	// the whole lookup runs under the write lock so that staleness checks
	// never read lastUsed while a concurrent caller updates it
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if conn, exists := o.connections[key]; exists {
		if !conn.isStale() {
			conn.lastUsed = time.Now()
			conn.useCount++
			return conn.db, nil
		}
		fmt.Printf("🔄 Replacing stale connection for config %s\n", key)
		conn.db.Close()
		delete(o.connections, key)
	}

	fmt.Printf("🆕 Creating optimized connection for config %s\n", key)
	db := NewDatabase(config)

	o.connections[key] = &optimizedConnection{
		db:        db,
		config:    config,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
		useCount:  1,
	}

	return db, nil
}

func (c *optimizedConnection) isStale() bool {
	if time.Since(c.lastUsed) > 4*time.Minute {
		return true
	}
	if time.Since(c.createdAt) > 30*time.Minute {
		return true
	}
	return c.db.HealthCheck() != nil
}

// backgroundCleanup prunes idle handles every few minutes
func (o *ServerlessOptimizer) backgroundCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		o.mutex.Lock()
		for key, conn := range o.connections {
			if time.Since(conn.lastUsed) > 10*time.Minute {
				fmt.Printf("🧹 Pruning idle connection %s (used %d times)\n", key, conn.useCount)
				conn.db.Close()
				delete(o.connections, key)
			}
		}
		o.mutex.Unlock()
	}
}

// GetStats exposes optimizer state for diagnostics
func (o *ServerlessOptimizer) GetStats() map[string]interface{} {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	connections := make([]map[string]interface{}, 0, len(o.connections))
	for key, conn := range o.connections {
		connections = append(connections, map[string]interface{}{
			"key":          key,
			"use_count":    conn.useCount,
			"age_seconds":  int(time.Since(conn.createdAt).Seconds()),
			"idle_seconds": int(time.Since(conn.lastUsed).Seconds()),
		})
	}
	return map[string]interface{}{
		"connection_count": len(o.connections),
		"connections":      connections,
	}
}

// GetOptimizerStats returns optimizer diagnostics, or nil before first use
func GetOptimizerStats() map[string]interface{} {
	if optimizer == nil {
		return nil
	}
	return optimizer.GetStats()
}

func generateConfigKey(config DatabaseConfig) string {
	return fmt.Sprintf("mem=%t|pg=%d|sb=%d", config.UseMemoryDB, len(config.PostgresDSN), len(config.SupabaseURL))
}

// IsServerlessEnvironment reports whether we are running inside a
// serverless platform
func IsServerlessEnvironment() bool {
	return os.Getenv("VERCEL_ENV") != "" ||
		os.Getenv("VERCEL_URL") != "" ||
		os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
