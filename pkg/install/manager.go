// Package install manages the lifecycle of a user's plugin installations:
// installing, enabling and disabling, configuration, and removal.
package install

import (
	"fmt"

	"github.com/tidwall/gjson"

	"plugin-hub-backend/pkg/catalog"
	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/permissions"
)

// Manager runs installation lifecycle operations for authenticated users
type Manager struct {
	db      database.DatabaseInterface
	catalog *catalog.Service
}

// NewManager creates an installation manager backed by db and the catalog
func NewManager(db database.DatabaseInterface, cat *catalog.Service) *Manager {
	return &Manager{db: db, catalog: cat}
}

// Install installs a plugin-type marketplace item for the user.
//
// The item must exist and be a plugin, and its manifest permissions must
// all be recognized; both checks run before anything is written. The new
// installation starts enabled, with its configuration seeded from the
// schema defaults in the item's metadata. At most one installation per
// (user, plugin) exists; the storage layer enforces this atomically, so
// two racing installs yield one row and one ErrAlreadyInstalled.
func (m *Manager) Install(user *models.User, pluginID string) (*models.InstalledPlugin, error) {
	if user == nil {
		return nil, models.ErrUnauthenticated
	}

	item, err := m.catalog.GetPlugin(pluginID)
	if err != nil {
		return nil, err
	}

	if err := permissions.Validate(catalog.ManifestPermissions(item.Metadata)); err != nil {
		return nil, err
	}

	installed := &models.InstalledPlugin{
		UserID:        user.ID,
		PluginID:      item.ID,
		Name:          item.Name,
		Version:       item.Version,
		Description:   item.Description,
		Metadata:      item.Metadata,
		Enabled:       true,
		Configuration: seedConfiguration(item.Metadata),
	}

	if err := m.db.CreateInstalledPlugin(installed); err != nil {
		if err == models.ErrAlreadyInstalled {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}

	// download count is best effort; the install already succeeded
	if err := m.catalog.RecordDownload(item.ID); err != nil {
		fmt.Printf("⚠️ Failed to record download for %s: %v\n", item.ID, err)
	}

	return installed, nil
}

// Uninstall removes the user's installation and purges the plugin's scoped
// storage for that user across every workspace. A later reinstall starts
// from a clean slate.
//
// The storage purge runs before the row delete: if the purge fails the
// installation stays fully intact and the caller can retry, so a reported
// failure never leaves a half-removed installation behind.
func (m *Manager) Uninstall(user *models.User, pluginID string) error {
	if user == nil {
		return models.ErrUnauthenticated
	}

	if _, err := m.db.GetInstalledPlugin(user.ID, pluginID); err != nil {
		if err == models.ErrNotInstalled {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}

	if err := m.db.ClearStorageAllWorkspaces(pluginID, user.ID); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	if err := m.db.DeleteInstalledPlugin(user.ID, pluginID); err != nil {
		if err == models.ErrNotInstalled {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return nil
}

// SetEnabled activates or deactivates an installation. Setting the flag to
// its current value is a no-op, not an error.
func (m *Manager) SetEnabled(user *models.User, pluginID string, enabled bool) error {
	if user == nil {
		return models.ErrUnauthenticated
	}

	if err := m.db.SetInstalledPluginEnabled(user.ID, pluginID, enabled); err != nil {
		if err == models.ErrNotInstalled {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return nil
}

// UpdateConfiguration merges the patch into the installation's stored
// configuration, key by key. Keys absent from the patch keep their current
// value; patch values are stored as given, without schema validation.
func (m *Manager) UpdateConfiguration(user *models.User, pluginID string, patch models.ConfigPatch) (*models.InstalledPlugin, error) {
	if user == nil {
		return nil, models.ErrUnauthenticated
	}

	current, err := m.db.GetInstalledPlugin(user.ID, pluginID)
	if err != nil {
		if err == models.ErrNotInstalled {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}

	merged := make(map[string]interface{}, len(current.Configuration)+len(patch))
	for k, v := range current.Configuration {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	if err := m.db.UpdateInstalledPluginConfiguration(user.ID, pluginID, merged); err != nil {
		if err == models.ErrNotInstalled {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}

	current.Configuration = merged
	return current, nil
}

// Get fetches one of the user's installations
func (m *Manager) Get(user *models.User, pluginID string) (*models.InstalledPlugin, error) {
	if user == nil {
		return nil, models.ErrUnauthenticated
	}

	installed, err := m.db.GetInstalledPlugin(user.ID, pluginID)
	if err != nil {
		if err == models.ErrNotInstalled {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return installed, nil
}

// List returns the user's installations, newest first
func (m *Manager) List(user *models.User) ([]models.InstalledPlugin, error) {
	if user == nil {
		return nil, models.ErrUnauthenticated
	}

	installed, err := m.db.ListInstalledPlugins(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendFault, err)
	}
	return installed, nil
}

// seedConfiguration builds the initial configuration from the manifest's
// configSchema: each property with a default contributes that default,
// properties without one are left unset.
func seedConfiguration(metadata []byte) map[string]interface{} {
	config := map[string]interface{}{}
	if len(metadata) == 0 {
		return config
	}

	props := gjson.GetBytes(metadata, "configSchema.properties")
	if !props.IsObject() {
		return config
	}

	props.ForEach(func(name, prop gjson.Result) bool {
		def := prop.Get("default")
		if def.Exists() {
			config[name.String()] = def.Value()
		}
		return true
	})
	return config
}
