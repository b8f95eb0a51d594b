package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"plugin-hub-backend/pkg/models"

	"github.com/google/uuid"
)

// storageKey is the physical composite key for one scoped entry
type storageKey struct {
	pluginID    string
	userID      string
	workspaceID string
	key         string
}

// MemoryDatabase is an in-memory implementation used for development and
// tests. The mutex plays the role the unique index plays in PostgreSQL:
// a losing concurrent install observes ErrAlreadyInstalled.
type MemoryDatabase struct {
	mu        sync.RWMutex
	users     map[string]*models.User
	items     map[string]*models.MarketplaceItem
	installs  map[string]*models.InstalledPlugin // keyed by userID + "\x00" + pluginID
	storage   map[storageKey]*models.PluginStorageEntry
	itemOrder []string // creation order of item IDs
}

// NewMemoryDatabase creates an empty in-memory database
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		users:    make(map[string]*models.User),
		items:    make(map[string]*models.MarketplaceItem),
		installs: make(map[string]*models.InstalledPlugin),
		storage:  make(map[storageKey]*models.PluginStorageEntry),
	}
}

func installKey(userID, pluginID string) string {
	return userID + "\x00" + pluginID
}

// ================= Users =================

// CreateUser stores a user
func (db *MemoryDatabase) CreateUser(user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	cp := *user
	db.users[user.ID] = &cp
	return nil
}

// GetUserByEmail finds a user by email
func (db *MemoryDatabase) GetUserByEmail(email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

// GetUserByID finds a user by id
func (db *MemoryDatabase) GetUserByID(id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	cp := *u
	return &cp, nil
}

// ================= Marketplace items =================

// CreateMarketplaceItem stores a catalog entry
func (db *MemoryDatabase) CreateMarketplaceItem(item *models.MarketplaceItem) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	cp := *item
	db.items[item.ID] = &cp
	db.itemOrder = append(db.itemOrder, item.ID)
	return nil
}

// GetMarketplaceItem fetches one catalog entry
func (db *MemoryDatabase) GetMarketplaceItem(id string) (*models.MarketplaceItem, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	it, ok := db.items[id]
	if !ok {
		return nil, models.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

// ListMarketplaceItems applies the filter in memory, newest first
func (db *MemoryDatabase) ListMarketplaceItems(filter models.ItemFilter) ([]models.MarketplaceItem, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	q := strings.ToLower(filter.Query)
	var list []models.MarketplaceItem
	for _, id := range db.itemOrder {
		it, ok := db.items[id]
		if !ok {
			continue
		}
		if filter.Type != "" && filter.Type != models.FilterTypeInstalled && it.Type != filter.Type {
			continue
		}
		if filter.Category != "" && filter.Category != models.FilterCategoryAll && it.Category != filter.Category {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Name), q) &&
			!strings.Contains(strings.ToLower(it.Description), q) {
			continue
		}
		list = append(list, *it)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// SetMarketplaceItemFeatured flips the moderation flag
func (db *MemoryDatabase) SetMarketplaceItemFeatured(id string, featured bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	it, ok := db.items[id]
	if !ok {
		return models.ErrItemNotFound
	}
	it.Featured = featured
	return nil
}

// DeleteMarketplaceItem removes a catalog entry
func (db *MemoryDatabase) DeleteMarketplaceItem(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.items[id]; !ok {
		return models.ErrItemNotFound
	}
	delete(db.items, id)
	for i, oid := range db.itemOrder {
		if oid == id {
			db.itemOrder = append(db.itemOrder[:i], db.itemOrder[i+1:]...)
			break
		}
	}
	return nil
}

// IncrementItemDownloads bumps the download counter
func (db *MemoryDatabase) IncrementItemDownloads(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	it, ok := db.items[id]
	if !ok {
		return models.ErrItemNotFound
	}
	it.Downloads++
	return nil
}

// ================= Installed plugins =================

// CreateInstalledPlugin stores an installation, enforcing the uniqueness
// invariant under the write lock
func (db *MemoryDatabase) CreateInstalledPlugin(p *models.InstalledPlugin) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := installKey(p.UserID, p.PluginID)
	if _, exists := db.installs[key]; exists {
		return models.ErrAlreadyInstalled
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.InstalledAt = time.Now()

	cp := *p
	cp.Configuration = copyConfig(p.Configuration)
	db.installs[key] = &cp
	return nil
}

// GetInstalledPlugin fetches one installation
func (db *MemoryDatabase) GetInstalledPlugin(userID, pluginID string) (*models.InstalledPlugin, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	p, ok := db.installs[installKey(userID, pluginID)]
	if !ok {
		return nil, models.ErrNotInstalled
	}
	cp := *p
	cp.Configuration = copyConfig(p.Configuration)
	return &cp, nil
}

// ListInstalledPlugins lists a user's installations, newest first
func (db *MemoryDatabase) ListInstalledPlugins(userID string) ([]models.InstalledPlugin, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var list []models.InstalledPlugin
	for _, p := range db.installs {
		if p.UserID != userID {
			continue
		}
		cp := *p
		cp.Configuration = copyConfig(p.Configuration)
		list = append(list, cp)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].InstalledAt.After(list[j].InstalledAt)
	})
	return list, nil
}

// SetInstalledPluginEnabled toggles the enabled flag
func (db *MemoryDatabase) SetInstalledPluginEnabled(userID, pluginID string, enabled bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.installs[installKey(userID, pluginID)]
	if !ok {
		return models.ErrNotInstalled
	}
	p.Enabled = enabled
	return nil
}

// UpdateInstalledPluginConfiguration replaces the stored configuration
func (db *MemoryDatabase) UpdateInstalledPluginConfiguration(userID, pluginID string, configuration map[string]interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.installs[installKey(userID, pluginID)]
	if !ok {
		return models.ErrNotInstalled
	}
	p.Configuration = copyConfig(configuration)
	return nil
}

// DeleteInstalledPlugin hard-deletes an installation
func (db *MemoryDatabase) DeleteInstalledPlugin(userID, pluginID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := installKey(userID, pluginID)
	if _, ok := db.installs[key]; !ok {
		return models.ErrNotInstalled
	}
	delete(db.installs, key)
	return nil
}

// ================= Plugin storage =================

// GetStorageEntry reads one scoped entry; a missing key is (nil, nil)
func (db *MemoryDatabase) GetStorageEntry(scope models.StorageScope, key string) (*models.PluginStorageEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, ok := db.storage[storageKey{scope.PluginID, scope.UserID, scope.WorkspaceID, key}]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// SetStorageEntry upserts one scoped entry
func (db *MemoryDatabase) SetStorageEntry(scope models.StorageScope, key string, value json.RawMessage) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.storage[storageKey{scope.PluginID, scope.UserID, scope.WorkspaceID, key}] = &models.PluginStorageEntry{
		PluginID:    scope.PluginID,
		UserID:      scope.UserID,
		WorkspaceID: scope.WorkspaceID,
		Key:         key,
		Value:       append(json.RawMessage(nil), value...),
		UpdatedAt:   time.Now(),
	}
	return nil
}

// DeleteStorageEntry removes one scoped entry; missing keys are a no-op
func (db *MemoryDatabase) DeleteStorageEntry(scope models.StorageScope, key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.storage, storageKey{scope.PluginID, scope.UserID, scope.WorkspaceID, key})
	return nil
}

// ListStorageKeys lists the keys in one scope
func (db *MemoryDatabase) ListStorageKeys(scope models.StorageScope) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var keys []string
	for k := range db.storage {
		if k.pluginID == scope.PluginID && k.userID == scope.UserID && k.workspaceID == scope.WorkspaceID {
			keys = append(keys, k.key)
		}
	}
	return keys, nil
}

// ClearStorage removes every entry in one exact scope
func (db *MemoryDatabase) ClearStorage(scope models.StorageScope) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for k := range db.storage {
		if k.pluginID == scope.PluginID && k.userID == scope.UserID && k.workspaceID == scope.WorkspaceID {
			delete(db.storage, k)
		}
	}
	return nil
}

// ClearStorageAllWorkspaces removes a plugin's entries for a user across
// every workspace
func (db *MemoryDatabase) ClearStorageAllWorkspaces(pluginID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for k := range db.storage {
		if k.pluginID == pluginID && k.userID == userID {
			delete(db.storage, k)
		}
	}
	return nil
}

// HealthCheck always succeeds for the in-memory database
func (db *MemoryDatabase) HealthCheck() error {
	return nil
}

// Close is a no-op
func (db *MemoryDatabase) Close() error {
	return nil
}

func copyConfig(cfg map[string]interface{}) map[string]interface{} {
	if cfg == nil {
		return nil
	}
	out := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
