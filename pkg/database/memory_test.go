package database

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugin-hub-backend/pkg/models"
)

func TestInstallUniquenessUnderConcurrency(t *testing.T) {
	db := NewMemoryDatabase()

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.CreateInstalledPlugin(&models.InstalledPlugin{
				UserID:   "user-1",
				PluginID: "plugin-1",
				Name:     "Racy",
				Version:  "1.0.0",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	conflicted := 0
	for _, err := range errs {
		switch err {
		case nil:
			succeeded++
		case models.ErrAlreadyInstalled:
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one install wins")
	assert.Equal(t, attempts-1, conflicted)

	list, err := db.ListInstalledPlugins("user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdatesOnMissingRows(t *testing.T) {
	db := NewMemoryDatabase()

	assert.Equal(t, models.ErrNotInstalled, db.SetInstalledPluginEnabled("u", "p", true))
	assert.Equal(t, models.ErrNotInstalled, db.DeleteInstalledPlugin("u", "p"))
	assert.Equal(t, models.ErrItemNotFound, db.SetMarketplaceItemFeatured("no-id", true))
	assert.Equal(t, models.ErrItemNotFound, db.DeleteMarketplaceItem("no-id"))

	_, err := db.GetInstalledPlugin("u", "p")
	assert.Equal(t, models.ErrNotInstalled, err)
}

func TestCopyOnReadIsolation(t *testing.T) {
	db := NewMemoryDatabase()

	require.NoError(t, db.CreateInstalledPlugin(&models.InstalledPlugin{
		UserID:        "u",
		PluginID:      "p",
		Name:          "A",
		Version:       "1.0.0",
		Configuration: map[string]interface{}{"fontSize": 14},
	}))

	first, err := db.GetInstalledPlugin("u", "p")
	require.NoError(t, err)

	// mutating a returned copy must not leak into the store
	first.Configuration["fontSize"] = 99

	second, err := db.GetInstalledPlugin("u", "p")
	require.NoError(t, err)
	assert.EqualValues(t, 14, second.Configuration["fontSize"])
}
