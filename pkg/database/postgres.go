package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"plugin-hub-backend/pkg/models"

	"github.com/lib/pq"
)

// PostgresDatabase is the PostgreSQL implementation
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase opens a PostgreSQL connection
func NewPostgresDatabase(dsn string) DatabaseInterface {
	// Sanitize DSN to avoid stray CR/LF from env values, then try several
	// connection strategies (serverless platforms have IPv6 quirks)
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "prefer_simple_protocol=true"),
		addConnectionParams(dsn, "prefer_simple_protocol=true&connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&prefer_simple_protocol=true"),
		dsn,
	}

	var db *sql.DB
	var err error

	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		db, err = sql.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			continue
		}

		// Pool limits suited to serverless environments
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err = db.Ping(); err != nil {
			fmt.Printf("❌ Strategy %d failed to ping: %v\n", i+1, err)
			db.Close()
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)
		return &PostgresDatabase{db: db}
	}

	panic(fmt.Sprintf("Failed to connect to PostgreSQL with all strategies. Last error: %v", err))
}

// addConnectionParams appends params to a DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// isUniqueViolation detects the 23505 unique_violation error class
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ================= Users =================

// CreateUser inserts a user row
func (db *PostgresDatabase) CreateUser(user *models.User) error {
	query := `
        INSERT INTO users (email, password_hash, name, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	err := db.db.QueryRow(query, user.Email, user.Password, user.Name).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail finds a user by email
func (db *PostgresDatabase) GetUserByEmail(email string) (*models.User, error) {
	query := `
        SELECT id, email, COALESCE(name,''), COALESCE(password_hash,''), created_at, updated_at
        FROM users
        WHERE email = $1
    `
	var u models.User
	err := db.db.QueryRow(query, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.Password, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID finds a user by id
func (db *PostgresDatabase) GetUserByID(id string) (*models.User, error) {
	query := `
        SELECT id, email, COALESCE(name,''), created_at, updated_at
        FROM users
        WHERE id = $1
    `
	var u models.User
	err := db.db.QueryRow(query, id).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ================= Marketplace items =================

// CreateMarketplaceItem inserts a catalog row
func (db *PostgresDatabase) CreateMarketplaceItem(item *models.MarketplaceItem) error {
	meta := item.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	query := `
        INSERT INTO marketplace_items (name, description, type, category, version, author_id, tags, metadata, featured, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9,false), NOW())
        RETURNING id, created_at
    `
	err := db.db.QueryRow(query, item.Name, item.Description, item.Type, item.Category,
		item.Version, item.AuthorID, pq.Array(item.Tags), []byte(meta), item.Featured).
		Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create marketplace item: %w", err)
	}
	return nil
}

// GetMarketplaceItem fetches one catalog row
func (db *PostgresDatabase) GetMarketplaceItem(id string) (*models.MarketplaceItem, error) {
	query := `
        SELECT id, name, COALESCE(description,''), type, COALESCE(category,''), version,
               author_id, tags, COALESCE(metadata,'{}'), downloads, rating, featured, created_at
        FROM marketplace_items
        WHERE id = $1
    `
	var it models.MarketplaceItem
	var meta []byte
	err := db.db.QueryRow(query, id).Scan(&it.ID, &it.Name, &it.Description, &it.Type, &it.Category,
		&it.Version, &it.AuthorID, pq.Array(&it.Tags), &meta, &it.Downloads, &it.Rating, &it.Featured, &it.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get marketplace item: %w", err)
	}
	it.Metadata = meta
	return &it, nil
}

// ListMarketplaceItems lists catalog rows matching the filter, newest first
func (db *PostgresDatabase) ListMarketplaceItems(filter models.ItemFilter) ([]models.MarketplaceItem, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	idx := 1

	if filter.Type != "" && filter.Type != models.FilterTypeInstalled {
		where = append(where, fmt.Sprintf("type = $%d", idx))
		args = append(args, filter.Type)
		idx++
	}
	if filter.Category != "" && filter.Category != models.FilterCategoryAll {
		where = append(where, fmt.Sprintf("category = $%d", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.Query != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", idx, idx))
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		idx++
	}

	query := `
        SELECT id, name, COALESCE(description,''), type, COALESCE(category,''), version,
               author_id, tags, COALESCE(metadata,'{}'), downloads, rating, featured, created_at
        FROM marketplace_items
    `
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list marketplace items: %w", err)
	}
	defer rows.Close()

	var list []models.MarketplaceItem
	for rows.Next() {
		var it models.MarketplaceItem
		var meta []byte
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Type, &it.Category, &it.Version,
			&it.AuthorID, pq.Array(&it.Tags), &meta, &it.Downloads, &it.Rating, &it.Featured, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Metadata = meta
		list = append(list, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating marketplace items: %w", err)
	}
	return list, nil
}

// escapeLike escapes LIKE metacharacters in user-supplied search text
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// SetMarketplaceItemFeatured flips the moderation flag
func (db *PostgresDatabase) SetMarketplaceItemFeatured(id string, featured bool) error {
	res, err := db.db.Exec(`UPDATE marketplace_items SET featured=$1 WHERE id=$2`, featured, id)
	if err != nil {
		return fmt.Errorf("failed to update featured flag: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// DeleteMarketplaceItem removes a catalog row
func (db *PostgresDatabase) DeleteMarketplaceItem(id string) error {
	res, err := db.db.Exec(`DELETE FROM marketplace_items WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete marketplace item: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// IncrementItemDownloads bumps the download counter
func (db *PostgresDatabase) IncrementItemDownloads(id string) error {
	_, err := db.db.Exec(`UPDATE marketplace_items SET downloads = downloads + 1 WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}
	return nil
}

// ================= Installed plugins =================

// CreateInstalledPlugin inserts an installation row. The unique index on
// (user_id, plugin_id) makes a losing concurrent install observe
// ErrAlreadyInstalled, never a duplicate row.
func (db *PostgresDatabase) CreateInstalledPlugin(p *models.InstalledPlugin) error {
	configJSON, err := json.Marshal(p.Configuration)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	meta := p.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	query := `
        INSERT INTO installed_plugins (user_id, plugin_id, name, version, description, metadata, enabled, configuration, installed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        RETURNING id, installed_at
    `
	err = db.db.QueryRow(query, p.UserID, p.PluginID, p.Name, p.Version, p.Description,
		[]byte(meta), p.Enabled, configJSON).
		Scan(&p.ID, &p.InstalledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyInstalled
		}
		return fmt.Errorf("failed to create installed plugin: %w", err)
	}
	return nil
}

// GetInstalledPlugin fetches one installation row
func (db *PostgresDatabase) GetInstalledPlugin(userID, pluginID string) (*models.InstalledPlugin, error) {
	query := `
        SELECT id, user_id, plugin_id, name, version, COALESCE(description,''),
               COALESCE(metadata,'{}'), enabled, COALESCE(configuration,'{}'), installed_at
        FROM installed_plugins
        WHERE user_id = $1 AND plugin_id = $2
    `
	var p models.InstalledPlugin
	var meta, configJSON []byte
	err := db.db.QueryRow(query, userID, pluginID).Scan(&p.ID, &p.UserID, &p.PluginID, &p.Name,
		&p.Version, &p.Description, &meta, &p.Enabled, &configJSON, &p.InstalledAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotInstalled
		}
		return nil, fmt.Errorf("failed to get installed plugin: %w", err)
	}
	p.Metadata = meta
	if err := json.Unmarshal(configJSON, &p.Configuration); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &p, nil
}

// ListInstalledPlugins lists a user's installations, newest first
func (db *PostgresDatabase) ListInstalledPlugins(userID string) ([]models.InstalledPlugin, error) {
	query := `
        SELECT id, user_id, plugin_id, name, version, COALESCE(description,''),
               COALESCE(metadata,'{}'), enabled, COALESCE(configuration,'{}'), installed_at
        FROM installed_plugins
        WHERE user_id = $1
        ORDER BY installed_at DESC
    `
	rows, err := db.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed plugins: %w", err)
	}
	defer rows.Close()

	var list []models.InstalledPlugin
	for rows.Next() {
		var p models.InstalledPlugin
		var meta, configJSON []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.PluginID, &p.Name, &p.Version, &p.Description,
			&meta, &p.Enabled, &configJSON, &p.InstalledAt); err != nil {
			return nil, err
		}
		p.Metadata = meta
		if err := json.Unmarshal(configJSON, &p.Configuration); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installed plugins: %w", err)
	}
	return list, nil
}

// SetInstalledPluginEnabled toggles the enabled flag
func (db *PostgresDatabase) SetInstalledPluginEnabled(userID, pluginID string, enabled bool) error {
	res, err := db.db.Exec(`UPDATE installed_plugins SET enabled=$1 WHERE user_id=$2 AND plugin_id=$3`,
		enabled, userID, pluginID)
	if err != nil {
		return fmt.Errorf("failed to set enabled flag: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return models.ErrNotInstalled
	}
	return nil
}

// UpdateInstalledPluginConfiguration replaces the stored configuration with
// the already-merged mapping. The merge itself happens in the install
// manager; this write is atomic at the row level.
func (db *PostgresDatabase) UpdateInstalledPluginConfiguration(userID, pluginID string, configuration map[string]interface{}) error {
	configJSON, err := json.Marshal(configuration)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	res, err := db.db.Exec(`UPDATE installed_plugins SET configuration=$1 WHERE user_id=$2 AND plugin_id=$3`,
		configJSON, userID, pluginID)
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return models.ErrNotInstalled
	}
	return nil
}

// DeleteInstalledPlugin hard-deletes an installation row
func (db *PostgresDatabase) DeleteInstalledPlugin(userID, pluginID string) error {
	res, err := db.db.Exec(`DELETE FROM installed_plugins WHERE user_id=$1 AND plugin_id=$2`, userID, pluginID)
	if err != nil {
		return fmt.Errorf("failed to delete installed plugin: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return models.ErrNotInstalled
	}
	return nil
}

// ================= Plugin storage =================

// GetStorageEntry reads a single scoped entry; a missing key is (nil, nil)
func (db *PostgresDatabase) GetStorageEntry(scope models.StorageScope, key string) (*models.PluginStorageEntry, error) {
	query := `
        SELECT plugin_id, user_id, workspace_id, key, value, updated_at
        FROM plugin_storage
        WHERE plugin_id=$1 AND user_id=$2 AND workspace_id=$3 AND key=$4
    `
	var e models.PluginStorageEntry
	var value []byte
	err := db.db.QueryRow(query, scope.PluginID, scope.UserID, scope.WorkspaceID, key).
		Scan(&e.PluginID, &e.UserID, &e.WorkspaceID, &e.Key, &value, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get storage entry: %w", err)
	}
	e.Value = value
	return &e, nil
}

// SetStorageEntry upserts a scoped entry and bumps updated_at
func (db *PostgresDatabase) SetStorageEntry(scope models.StorageScope, key string, value json.RawMessage) error {
	query := `
        INSERT INTO plugin_storage (plugin_id, user_id, workspace_id, key, value, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (plugin_id, user_id, workspace_id, key)
        DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
    `
	_, err := db.db.Exec(query, scope.PluginID, scope.UserID, scope.WorkspaceID, key, []byte(value))
	if err != nil {
		return fmt.Errorf("failed to set storage entry: %w", err)
	}
	return nil
}

// DeleteStorageEntry removes a scoped entry; removing a missing key is fine
func (db *PostgresDatabase) DeleteStorageEntry(scope models.StorageScope, key string) error {
	_, err := db.db.Exec(`DELETE FROM plugin_storage WHERE plugin_id=$1 AND user_id=$2 AND workspace_id=$3 AND key=$4`,
		scope.PluginID, scope.UserID, scope.WorkspaceID, key)
	if err != nil {
		return fmt.Errorf("failed to delete storage entry: %w", err)
	}
	return nil
}

// ListStorageKeys lists the keys in a single scope
func (db *PostgresDatabase) ListStorageKeys(scope models.StorageScope) ([]string, error) {
	rows, err := db.db.Query(`SELECT key FROM plugin_storage WHERE plugin_id=$1 AND user_id=$2 AND workspace_id=$3`,
		scope.PluginID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage keys: %w", err)
	}
	return keys, nil
}

// ClearStorage removes every entry in one exact scope
func (db *PostgresDatabase) ClearStorage(scope models.StorageScope) error {
	_, err := db.db.Exec(`DELETE FROM plugin_storage WHERE plugin_id=$1 AND user_id=$2 AND workspace_id=$3`,
		scope.PluginID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return fmt.Errorf("failed to clear storage scope: %w", err)
	}
	return nil
}

// ClearStorageAllWorkspaces removes a plugin's entries for a user across
// every workspace. Used by uninstall cleanup.
func (db *PostgresDatabase) ClearStorageAllWorkspaces(pluginID, userID string) error {
	_, err := db.db.Exec(`DELETE FROM plugin_storage WHERE plugin_id=$1 AND user_id=$2`, pluginID, userID)
	if err != nil {
		return fmt.Errorf("failed to clear plugin storage: %w", err)
	}
	return nil
}

// HealthCheck pings the connection
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close closes the connection
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
