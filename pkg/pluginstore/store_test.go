package pluginstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/models"
)

func newTestStore(t *testing.T, scope models.StorageScope) *Store {
	t.Helper()
	return New(database.NewMemoryDatabase(), scope)
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t, models.StorageScope{PluginID: "p1", UserID: "u1"})

	value, found, err := s.Get("never-set")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t, models.StorageScope{PluginID: "p1", UserID: "u1"})

	require.NoError(t, s.Set("theme", json.RawMessage(`{"dark":true}`)))

	value, found, err := s.Get("theme")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"dark":true}`, string(value))
}

func TestSetOverwrites(t *testing.T) {
	s := newTestStore(t, models.StorageScope{PluginID: "p1", UserID: "u1"})

	require.NoError(t, s.Set("counter", json.RawMessage(`1`)))
	require.NoError(t, s.Set("counter", json.RawMessage(`2`)))

	value, found, err := s.Get("counter")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", string(value))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t, models.StorageScope{PluginID: "p1", UserID: "u1"})

	require.NoError(t, s.Set("k", json.RawMessage(`"v"`)))
	require.NoError(t, s.Remove("k"))
	require.NoError(t, s.Remove("k"))

	_, found, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmptyKeyRejected(t *testing.T) {
	s := newTestStore(t, models.StorageScope{PluginID: "p1", UserID: "u1"})

	err := s.Set("  ", json.RawMessage(`1`))
	assert.Error(t, err)

	_, _, err = s.Get("")
	assert.Error(t, err)
}

func TestInvalidJSONRejected(t *testing.T) {
	s := newTestStore(t, models.StorageScope{PluginID: "p1", UserID: "u1"})

	err := s.Set("k", json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestClearOnlyAffectsOwnScope(t *testing.T) {
	db := database.NewMemoryDatabase()
	wsA := New(db, models.StorageScope{PluginID: "p1", UserID: "u1", WorkspaceID: "ws-a"})
	wsB := New(db, models.StorageScope{PluginID: "p1", UserID: "u1", WorkspaceID: "ws-b"})
	global := New(db, models.StorageScope{PluginID: "p1", UserID: "u1"})

	require.NoError(t, wsA.Set("k", json.RawMessage(`"a"`)))
	require.NoError(t, wsB.Set("k", json.RawMessage(`"b"`)))
	require.NoError(t, global.Set("k", json.RawMessage(`"g"`)))

	require.NoError(t, wsA.Clear())

	_, found, err := wsA.Get("k")
	require.NoError(t, err)
	assert.False(t, found)

	value, found, err := wsB.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `"b"`, string(value))

	value, found, err = global.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `"g"`, string(value))
}

func TestUserGlobalDisjointFromWorkspaces(t *testing.T) {
	db := database.NewMemoryDatabase()
	global := New(db, models.StorageScope{PluginID: "p1", UserID: "u1"})
	ws := New(db, models.StorageScope{PluginID: "p1", UserID: "u1", WorkspaceID: "ws-1"})

	require.NoError(t, global.Set("shared-name", json.RawMessage(`"global"`)))

	_, found, err := ws.Get("shared-name")
	require.NoError(t, err)
	assert.False(t, found, "workspace scope must not see user-global entries")
}

// Writes in any one scope must be invisible to every differing scope,
// whichever of the three dimensions differs.
func TestScopeIsolationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		db := database.NewMemoryDatabase()

		plugins := []string{"p1", "p2"}
		users := []string{"u1", "u2"}
		workspaces := []string{"", "ws-1", "ws-2"}

		type write struct {
			scope models.StorageScope
			key   string
			value string
		}
		var writes []write

		n := rapid.IntRange(1, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			w := write{
				scope: models.StorageScope{
					PluginID:    rapid.SampledFrom(plugins).Draw(t, "plugin"),
					UserID:      rapid.SampledFrom(users).Draw(t, "user"),
					WorkspaceID: rapid.SampledFrom(workspaces).Draw(t, "workspace"),
				},
				key:   rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "key"),
				value: fmt.Sprintf(`"v%d"`, i),
			}
			require.NoError(t, New(db, w.scope).Set(w.key, json.RawMessage(w.value)))
			writes = append(writes, w)
		}

		// last write per (scope, key) wins; all other scopes see nothing
		expect := map[models.StorageScope]map[string]string{}
		for _, w := range writes {
			if expect[w.scope] == nil {
				expect[w.scope] = map[string]string{}
			}
			expect[w.scope][w.key] = w.value
		}

		for _, p := range plugins {
			for _, u := range users {
				for _, ws := range workspaces {
					scope := models.StorageScope{PluginID: p, UserID: u, WorkspaceID: ws}
					store := New(db, scope)
					for _, key := range []string{"a", "b", "c"} {
						value, found, err := store.Get(key)
						require.NoError(t, err)
						want, ok := expect[scope][key]
						if !ok {
							require.False(t, found, "scope %+v key %s should be empty", scope, key)
							continue
						}
						require.True(t, found)
						require.Equal(t, want, string(value))
					}
				}
			}
		}
	})
}

// downDB fails every storage operation, standing in for an unreachable
// backend.
type downDB struct {
	database.DatabaseInterface
}

func (downDB) GetStorageEntry(models.StorageScope, string) (*models.PluginStorageEntry, error) {
	return nil, fmt.Errorf("connection refused")
}

func (downDB) SetStorageEntry(models.StorageScope, string, json.RawMessage) error {
	return fmt.Errorf("connection refused")
}

func (downDB) DeleteStorageEntry(models.StorageScope, string) error {
	return fmt.Errorf("connection refused")
}

func (downDB) ListStorageKeys(models.StorageScope) ([]string, error) {
	return nil, fmt.Errorf("connection refused")
}

func (downDB) ClearStorage(models.StorageScope) error {
	return fmt.Errorf("connection refused")
}

func TestBackendFaultsReportStorageUnavailable(t *testing.T) {
	s := New(downDB{}, models.StorageScope{PluginID: "p1", UserID: "u1"})

	_, _, err := s.Get("k")
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	err = s.Set("k", json.RawMessage(`1`))
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	err = s.Remove("k")
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	_, err = s.Keys()
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	err = s.Clear()
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))
}
