package handlers

import (
	"net/http"

	"plugin-hub-backend/pkg/marketplace"
	"plugin-hub-backend/pkg/middleware"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// PluginsHandler serves the installation lifecycle endpoints
type PluginsHandler struct {
	client *marketplace.Client
}

func NewPluginsHandler(client *marketplace.Client) *PluginsHandler {
	return &PluginsHandler{client: client}
}

// GET /api/plugins
func (h *PluginsHandler) ListInstalled(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	installed, err := h.client.ListInstalled(user)
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"plugins": installed,
		"total":   len(installed),
	})
}

// POST /api/plugins/{id}/install
func (h *PluginsHandler) Install(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	pluginID := chiRoute.URLParam(r, "id")
	installed, err := h.client.Install(user, pluginID)
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteCreatedResponse(w, installed)
}

// DELETE /api/plugins/{id}
func (h *PluginsHandler) Uninstall(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	pluginID := chiRoute.URLParam(r, "id")
	if err := h.client.Uninstall(user, pluginID); err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"plugin_id":   pluginID,
		"uninstalled": true,
	})
}

// PUT /api/plugins/{id}/enabled
func (h *PluginsHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	pluginID := chiRoute.URLParam(r, "id")
	if err := h.client.SetEnabled(user, pluginID, req.Enabled); err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"plugin_id": pluginID,
		"enabled":   req.Enabled,
	})
}

// PATCH /api/plugins/{id}/config
func (h *PluginsHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	var patch models.ConfigPatch
	if err := utils.ParseJSONBody(r, &patch); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	pluginID := chiRoute.URLParam(r, "id")
	updated, err := h.client.UpdateConfig(user, pluginID, patch)
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, updated)
}
