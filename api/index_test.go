package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugin-hub-backend/pkg/config"
	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/utils"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		UseMemoryDB: true,
		JWTSecret:   "test-secret-key-for-router-tests",
		AdminEmails: []string{"admin@example.com"},
	}

	router := chi.NewRouter()
	setupRoutes(router, cfg, database.NewMemoryDatabase())
	return router
}

func accessToken(t *testing.T, email string) string {
	t.Helper()
	jwtService := utils.NewJWTService("test-secret-key-for-router-tests")
	token, _, _, err := jwtService.GenerateTokenPair("user-"+email, email)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router *chi.Mux, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	if envelope.Error != nil {
		t.Logf("error envelope: %s %s", envelope.Error.Code, envelope.Error.Message)
	}
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func publishTestPlugin(t *testing.T, router *chi.Mux, token string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/marketplace", token, map[string]interface{}{
		"name":     "Word Counter",
		"type":     "plugin",
		"category": "productivity",
		"version":  "1.0.0",
		"metadata": map[string]interface{}{
			"permissions": []string{"document:read"},
			"configSchema": map[string]interface{}{
				"properties": map[string]interface{}{
					"fontSize": map[string]interface{}{"default": 14},
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.ID)
	return envelope.Data.ID
}

func TestBrowseIsPublic(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/marketplace", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/marketplace/categories", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInstallRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/plugins/some-id/install", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, rec))
}

func TestInstallLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := accessToken(t, "dev@example.com")

	id := publishTestPlugin(t, router, token)

	// install
	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/plugins/%s/install", id), token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeEnvelope(t, rec)
	assert.Equal(t, true, data["enabled"])

	// second install conflicts
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/plugins/%s/install", id), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_INSTALLED", errorCode(t, rec))

	// configuration patch
	rec = doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/plugins/%s/config", id), token,
		map[string]interface{}{"fontSize": 18})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeEnvelope(t, rec)
	cfg, ok := data["configuration"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 18, cfg["fontSize"])

	// disable
	rec = doJSON(t, router, http.MethodPut, fmt.Sprintf("/api/plugins/%s/enabled", id), token,
		map[string]interface{}{"enabled": false})
	assert.Equal(t, http.StatusOK, rec.Code)

	// storage round trip
	rec = doJSON(t, router, http.MethodPut, fmt.Sprintf("/api/plugins/%s/storage/counts", id), token,
		map[string]interface{}{"total": 42})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/plugins/%s/storage/counts", id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// uninstall clears everything
	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/plugins/%s", id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/plugins/%s/storage/counts", id), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_INSTALLED", errorCode(t, rec))
}

func TestInstallUnknownPluginOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := accessToken(t, "dev@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/plugins/no-such-id/install", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PLUGIN_NOT_FOUND", errorCode(t, rec))
}

func TestPublishInvalidPermissions(t *testing.T) {
	router := newTestRouter(t)
	token := accessToken(t, "dev@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/marketplace", token, map[string]interface{}{
		"name":     "Bad Plugin",
		"type":     "plugin",
		"version":  "1.0.0",
		"metadata": map[string]interface{}{"permissions": []string{"fs:write"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PERMISSION_SET", errorCode(t, rec))
}

func TestModerationRequiresAdmin(t *testing.T) {
	router := newTestRouter(t)
	devToken := accessToken(t, "dev@example.com")
	adminToken := accessToken(t, "admin@example.com")

	id := publishTestPlugin(t, router, devToken)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/marketplace/%s/feature", id), devToken,
		map[string]interface{}{"featured": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/marketplace/%s/feature", id), adminToken,
		map[string]interface{}{"featured": true})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/marketplace/featured", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)
	assert.EqualValues(t, 1, data["total"])
}

func TestPermissionsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/permissions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)
	assert.EqualValues(t, 11, data["total"])
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
