package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"plugin-hub-backend/pkg/marketplace"
	"plugin-hub-backend/pkg/middleware"
	"plugin-hub-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// StorageHandler serves the scoped key-value endpoints. The workspace is
// selected with ?workspace_id=; omitting it addresses the user-global area.
type StorageHandler struct {
	client *marketplace.Client
}

func NewStorageHandler(client *marketplace.Client) *StorageHandler {
	return &StorageHandler{client: client}
}

// GET /api/plugins/{id}/storage?workspace_id=
func (h *StorageHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	store, err := h.client.Storage(user, chiRoute.URLParam(r, "id"), utils.GetQueryParam(r, "workspace_id", ""))
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	keys, err := store.Keys()
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"keys":  keys,
		"total": len(keys),
	})
}

// GET /api/plugins/{id}/storage/{key}?workspace_id=
func (h *StorageHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	store, err := h.client.Storage(user, chiRoute.URLParam(r, "id"), utils.GetQueryParam(r, "workspace_id", ""))
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	key := chiRoute.URLParam(r, "key")
	value, found, err := store.Get(key)
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}
	if !found {
		utils.WriteNotFoundResponse(w, "No value stored under this key")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"key":   key,
		"value": json.RawMessage(value),
	})
}

// PUT /api/plugins/{id}/storage/{key}?workspace_id=
//
// The request body is the raw JSON value to store.
func (h *StorageHandler) SetValue(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	store, err := h.client.Storage(user, chiRoute.URLParam(r, "id"), utils.GetQueryParam(r, "workspace_id", ""))
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteBadRequestResponse(w, "Failed to read request body")
		return
	}
	defer r.Body.Close()
	if !json.Valid(body) {
		utils.WriteBadRequestResponse(w, "Request body must be a JSON value")
		return
	}

	key := chiRoute.URLParam(r, "key")
	if err := store.Set(key, json.RawMessage(body)); err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"key":   key,
		"saved": true,
	})
}

// DELETE /api/plugins/{id}/storage/{key}?workspace_id=
func (h *StorageHandler) DeleteValue(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	store, err := h.client.Storage(user, chiRoute.URLParam(r, "id"), utils.GetQueryParam(r, "workspace_id", ""))
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	key := chiRoute.URLParam(r, "key")
	if err := store.Remove(key); err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"key":     key,
		"deleted": true,
	})
}

// DELETE /api/plugins/{id}/storage?workspace_id=
func (h *StorageHandler) Clear(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	store, err := h.client.Storage(user, chiRoute.URLParam(r, "id"), utils.GetQueryParam(r, "workspace_id", ""))
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	if err := store.Clear(); err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"cleared": true,
	})
}
