package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugin-hub-backend/pkg/catalog"
	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/pluginstore"
)

type allowAll struct{}

func (allowAll) CanModerate(*models.User) bool { return true }

func testUser() *models.User {
	return &models.User{ID: "user-1", Email: "dev@example.com"}
}

func newTestManager(t *testing.T) (*Manager, *catalog.Service, database.DatabaseInterface) {
	t.Helper()
	db := database.NewMemoryDatabase()
	cat := catalog.NewService(db, allowAll{})
	return NewManager(db, cat), cat, db
}

func publishPlugin(t *testing.T, cat *catalog.Service, name string, metadata string) *models.MarketplaceItem {
	t.Helper()
	req := &models.PublishItemRequest{
		Name:    name,
		Type:    models.ItemTypePlugin,
		Version: "1.0.0",
	}
	if metadata != "" {
		req.Metadata = json.RawMessage(metadata)
	}
	item, err := cat.Publish(testUser(), req)
	require.NoError(t, err)
	return item
}

func TestInstallRequiresUser(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(nil, item.ID)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))
}

func TestInstallUnknownPlugin(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Install(testUser(), "no-such-plugin")
	assert.True(t, errors.Is(err, models.ErrPluginNotFound))
}

func TestInstallThemeRejected(t *testing.T) {
	m, cat, _ := newTestManager(t)

	theme, err := cat.Publish(testUser(), &models.PublishItemRequest{
		Name: "Nord", Type: models.ItemTypeTheme, Version: "1.0.0",
	})
	require.NoError(t, err)

	_, err = m.Install(testUser(), theme.ID)
	assert.True(t, errors.Is(err, models.ErrPluginNotFound))
}

func TestInstallPinsItemAndStartsEnabled(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "Word Counter", `{"permissions":["document:read"]}`)

	installed, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	assert.Equal(t, item.ID, installed.PluginID)
	assert.Equal(t, "Word Counter", installed.Name)
	assert.Equal(t, "1.0.0", installed.Version)
	assert.True(t, installed.Enabled)
}

func TestInstallRejectsBadManifestPermissions(t *testing.T) {
	m, cat, db := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	// a manifest can go bad after publication; installs re-check it
	bad := *item
	bad.Metadata = json.RawMessage(`{"permissions":["document:read","fs:write","net:all"]}`)
	require.NoError(t, db.DeleteMarketplaceItem(item.ID))
	require.NoError(t, db.CreateMarketplaceItem(&bad))

	_, err := m.Install(testUser(), bad.ID)
	var permErr *models.InvalidPermissionSetError
	require.True(t, errors.As(err, &permErr))
	assert.Equal(t, []string{"fs:write", "net:all"}, permErr.Unknown)

	// precondition failure must not leave a partial installation behind
	list, err := m.List(testUser())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDoubleInstall(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	_, err = m.Install(testUser(), item.ID)
	assert.True(t, errors.Is(err, models.ErrAlreadyInstalled))

	list, err := m.List(testUser())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInstallIsPerUser(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	other := &models.User{ID: "user-2", Email: "other@example.com"}
	_, err = m.Install(other, item.ID)
	require.NoError(t, err)
}

func TestConfigurationSeeding(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", `{
		"permissions": ["storage:read"],
		"configSchema": {
			"properties": {
				"fontSize": {"type": "number", "default": 14},
				"theme":    {"type": "string"}
			}
		}
	}`)

	installed, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	// only properties with a default are seeded
	require.Len(t, installed.Configuration, 1)
	assert.EqualValues(t, 14, installed.Configuration["fontSize"])
	_, present := installed.Configuration["theme"]
	assert.False(t, present)
}

func TestConfigurationSeedingWithoutSchema(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	installed, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)
	assert.Empty(t, installed.Configuration)
	assert.NotNil(t, installed.Configuration)
}

func TestUpdateConfigurationMerges(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", `{
		"configSchema": {"properties": {
			"fontSize": {"default": 14},
			"showLine": {"default": true}
		}}
	}`)

	_, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	updated, err := m.UpdateConfiguration(testUser(), item.ID, models.ConfigPatch{"fontSize": 18})
	require.NoError(t, err)

	assert.EqualValues(t, 18, updated.Configuration["fontSize"])
	assert.Equal(t, true, updated.Configuration["showLine"], "untouched keys survive the patch")

	// values outside the schema are stored as given
	updated, err = m.UpdateConfiguration(testUser(), item.ID, models.ConfigPatch{"custom": "value"})
	require.NoError(t, err)
	assert.Equal(t, "value", updated.Configuration["custom"])
	assert.EqualValues(t, 18, updated.Configuration["fontSize"])
}

func TestUpdateConfigurationNotInstalled(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.UpdateConfiguration(testUser(), "no-such-plugin", models.ConfigPatch{"a": 1})
	assert.True(t, errors.Is(err, models.ErrNotInstalled))
}

func TestSetEnabledIdempotent(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	require.NoError(t, m.SetEnabled(testUser(), item.ID, false))
	require.NoError(t, m.SetEnabled(testUser(), item.ID, false))

	installed, err := m.Get(testUser(), item.ID)
	require.NoError(t, err)
	assert.False(t, installed.Enabled)

	require.NoError(t, m.SetEnabled(testUser(), item.ID, true))
	installed, err = m.Get(testUser(), item.ID)
	require.NoError(t, err)
	assert.True(t, installed.Enabled)

	err = m.SetEnabled(testUser(), "no-such-plugin", true)
	assert.True(t, errors.Is(err, models.ErrNotInstalled))
}

func TestUninstallPurgesStorage(t *testing.T) {
	m, cat, db := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	global := pluginstore.New(db, models.StorageScope{PluginID: item.ID, UserID: "user-1"})
	ws := pluginstore.New(db, models.StorageScope{PluginID: item.ID, UserID: "user-1", WorkspaceID: "ws-1"})
	require.NoError(t, global.Set("k", json.RawMessage(`1`)))
	require.NoError(t, ws.Set("k", json.RawMessage(`2`)))

	// another user's data for the same plugin must survive
	otherStore := pluginstore.New(db, models.StorageScope{PluginID: item.ID, UserID: "user-2"})
	require.NoError(t, otherStore.Set("k", json.RawMessage(`3`)))

	require.NoError(t, m.Uninstall(testUser(), item.ID))

	_, found, err := global.Get("k")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = ws.Get("k")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = otherStore.Get("k")
	require.NoError(t, err)
	assert.True(t, found)

	err = m.Uninstall(testUser(), item.ID)
	assert.True(t, errors.Is(err, models.ErrNotInstalled))
}

// Full lifecycle: install, configure, deactivate, uninstall, reinstall.
// The reinstall starts fresh, with reseeded configuration and no storage.
func TestLifecycleRoundTrip(t *testing.T) {
	m, cat, db := newTestManager(t)
	item := publishPlugin(t, cat, "Word Counter", `{
		"permissions": ["document:read", "storage:write"],
		"configSchema": {"properties": {"fontSize": {"default": 14}}}
	}`)

	installed, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 14, installed.Configuration["fontSize"])

	_, err = m.UpdateConfiguration(testUser(), item.ID, models.ConfigPatch{"fontSize": 20})
	require.NoError(t, err)

	store := pluginstore.New(db, models.StorageScope{PluginID: item.ID, UserID: "user-1"})
	require.NoError(t, store.Set("counts", json.RawMessage(`{"total":42}`)))

	require.NoError(t, m.SetEnabled(testUser(), item.ID, false))
	require.NoError(t, m.Uninstall(testUser(), item.ID))

	fresh, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Enabled)
	assert.EqualValues(t, 14, fresh.Configuration["fontSize"], "configuration is reseeded from defaults")

	_, found, err := store.Get("counts")
	require.NoError(t, err)
	assert.False(t, found, "storage does not survive reinstall")
}

func TestInstallBumpsDownloads(t *testing.T) {
	m, cat, _ := newTestManager(t)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	got, err := cat.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Downloads)
}

// flakyDB wraps a healthy backend and fails selected operations, standing in
// for a database that drops out mid-request.
type flakyDB struct {
	database.DatabaseInterface
	failCreate       bool
	failClearStorage bool
}

func (f *flakyDB) CreateInstalledPlugin(p *models.InstalledPlugin) error {
	if f.failCreate {
		return fmt.Errorf("connection refused")
	}
	return f.DatabaseInterface.CreateInstalledPlugin(p)
}

func (f *flakyDB) ClearStorageAllWorkspaces(pluginID, userID string) error {
	if f.failClearStorage {
		return fmt.Errorf("connection refused")
	}
	return f.DatabaseInterface.ClearStorageAllWorkspaces(pluginID, userID)
}

func TestInstallWrapsBackendFault(t *testing.T) {
	db := &flakyDB{DatabaseInterface: database.NewMemoryDatabase(), failCreate: true}
	cat := catalog.NewService(db, allowAll{})
	m := NewManager(db, cat)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(testUser(), item.ID)
	assert.True(t, errors.Is(err, models.ErrBackendFault))

	_, err = m.Get(testUser(), item.ID)
	assert.True(t, errors.Is(err, models.ErrNotInstalled), "failed install leaves nothing behind")
}

func TestUninstallAbortsWhenStoragePurgeFails(t *testing.T) {
	db := &flakyDB{DatabaseInterface: database.NewMemoryDatabase()}
	cat := catalog.NewService(db, allowAll{})
	m := NewManager(db, cat)
	item := publishPlugin(t, cat, "A", "")

	_, err := m.Install(testUser(), item.ID)
	require.NoError(t, err)

	store := pluginstore.New(db, models.StorageScope{PluginID: item.ID, UserID: "user-1"})
	require.NoError(t, store.Set("draft", json.RawMessage(`"v"`)))

	db.failClearStorage = true
	err = m.Uninstall(testUser(), item.ID)
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	// the failed attempt must not leave a half-removed installation: the
	// row and the plugin's storage are both still there
	installed, err := m.Get(testUser(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, installed.PluginID)

	value, found, err := store.Get("draft")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `"v"`, string(value))

	// a retry after the backend recovers completes the removal
	db.failClearStorage = false
	require.NoError(t, m.Uninstall(testUser(), item.ID))
	_, err = m.Get(testUser(), item.ID)
	assert.True(t, errors.Is(err, models.ErrNotInstalled))
}
