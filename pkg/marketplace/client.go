// Package marketplace is the single entry point the plugin host talks to.
// It composes the catalog, the installation manager and scoped plugin
// storage behind one facade, so callers never wire the services
// themselves.
package marketplace

import (
	"plugin-hub-backend/pkg/catalog"
	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/install"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/pluginstore"
)

// Client bundles the marketplace services for one backend
type Client struct {
	db       database.DatabaseInterface
	catalog  *catalog.Service
	installs *install.Manager
}

// NewClient builds a client over db, with auth deciding moderation rights
func NewClient(db database.DatabaseInterface, auth catalog.Authorizer) *Client {
	cat := catalog.NewService(db, auth)
	return &Client{
		db:       db,
		catalog:  cat,
		installs: install.NewManager(db, cat),
	}
}

// Catalog exposes the underlying catalog service
func (c *Client) Catalog() *catalog.Service {
	return c.catalog
}

// Installs exposes the underlying installation manager
func (c *Client) Installs() *install.Manager {
	return c.installs
}

// Browse searches the catalog
func (c *Client) Browse(filter models.ItemFilter) ([]models.MarketplaceItem, error) {
	return c.catalog.Search(filter)
}

// Item fetches one catalog item
func (c *Client) Item(id string) (*models.MarketplaceItem, error) {
	return c.catalog.Get(id)
}

// Categories lists the catalog's categories
func (c *Client) Categories() ([]string, error) {
	return c.catalog.Categories()
}

// Featured lists the moderation-flagged items
func (c *Client) Featured() ([]models.MarketplaceItem, error) {
	return c.catalog.Featured()
}

// Publish adds a new item to the catalog
func (c *Client) Publish(user *models.User, req *models.PublishItemRequest) (*models.MarketplaceItem, error) {
	return c.catalog.Publish(user, req)
}

// Install installs a plugin for the user
func (c *Client) Install(user *models.User, pluginID string) (*models.InstalledPlugin, error) {
	return c.installs.Install(user, pluginID)
}

// Uninstall removes the user's installation and its storage
func (c *Client) Uninstall(user *models.User, pluginID string) error {
	return c.installs.Uninstall(user, pluginID)
}

// SetEnabled toggles an installation's enabled flag
func (c *Client) SetEnabled(user *models.User, pluginID string, enabled bool) error {
	return c.installs.SetEnabled(user, pluginID, enabled)
}

// UpdateConfig merges a configuration patch into an installation
func (c *Client) UpdateConfig(user *models.User, pluginID string, patch models.ConfigPatch) (*models.InstalledPlugin, error) {
	return c.installs.UpdateConfiguration(user, pluginID, patch)
}

// ListInstalled returns the user's installations
func (c *Client) ListInstalled(user *models.User) ([]models.InstalledPlugin, error) {
	return c.installs.List(user)
}

// Storage returns a key-value store scoped to the user's installation of
// pluginID within workspaceID (empty for the user-global area). The plugin
// must be installed.
func (c *Client) Storage(user *models.User, pluginID, workspaceID string) (*pluginstore.Store, error) {
	if user == nil {
		return nil, models.ErrUnauthenticated
	}
	if _, err := c.installs.Get(user, pluginID); err != nil {
		return nil, err
	}
	return pluginstore.New(c.db, models.StorageScope{
		PluginID:    pluginID,
		UserID:      user.ID,
		WorkspaceID: workspaceID,
	}), nil
}
