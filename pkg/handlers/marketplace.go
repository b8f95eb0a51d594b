package handlers

import (
	"errors"
	"net/http"

	"plugin-hub-backend/pkg/marketplace"
	"plugin-hub-backend/pkg/middleware"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// MarketplaceHandler serves the catalog endpoints
type MarketplaceHandler struct {
	client *marketplace.Client
}

func NewMarketplaceHandler(client *marketplace.Client) *MarketplaceHandler {
	return &MarketplaceHandler{client: client}
}

// GET /api/marketplace?type=&category=&q=
func (h *MarketplaceHandler) Browse(w http.ResponseWriter, r *http.Request) {
	filter := models.ItemFilter{
		Type:     r.URL.Query().Get("type"),
		Category: r.URL.Query().Get("category"),
		Query:    r.URL.Query().Get("q"),
	}

	// the "installed" pseudo-type is resolved against the caller's
	// installations, not the catalog
	if filter.Type == models.FilterTypeInstalled {
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
			"items": installed,
			"total": len(installed),
		})
		return
	}

	items, err := h.client.Browse(filter)
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// GET /api/marketplace/categories
func (h *MarketplaceHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.client.Categories()
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"categories": categories,
	})
}

// GET /api/marketplace/featured
func (h *MarketplaceHandler) Featured(w http.ResponseWriter, r *http.Request) {
	items, err := h.client.Featured()
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// GET /api/marketplace/{id}
func (h *MarketplaceHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chiRoute.URLParam(r, "id")

	item, err := h.client.Item(id)
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}
	utils.WriteSuccessResponse(w, item)
}

// POST /api/marketplace
func (h *MarketplaceHandler) Publish(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	var req models.PublishItemRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	item, err := h.client.Publish(user, &req)
	if err != nil {
		// plain validation failures (name, type, version) become a 400
		// with the message as-is; typed failures keep their code
		var permErr *models.InvalidPermissionSetError
		if errors.As(err, &permErr) || errors.Is(err, models.ErrBackendFault) || errors.Is(err, models.ErrUnauthenticated) {
			utils.WriteDomainErrorResponse(w, err)
		} else {
			utils.WriteBadRequestResponse(w, err.Error())
		}
		return
	}

	utils.WriteCreatedResponse(w, item)
}

// POST /api/marketplace/{id}/feature
func (h *MarketplaceHandler) SetFeatured(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	var req struct {
		Featured bool `json:"featured"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	id := chiRoute.URLParam(r, "id")
	if err := h.client.Catalog().SetFeatured(user, id, req.Featured); err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"id":       id,
		"featured": req.Featured,
	})
}

// DELETE /api/marketplace/{id}
func (h *MarketplaceHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	id := chiRoute.URLParam(r, "id")
	if err := h.client.Catalog().Delete(user, id); err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"id":      id,
		"deleted": true,
	})
}
