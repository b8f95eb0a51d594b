package handlers

import (
	"net/http"

	"plugin-hub-backend/pkg/permissions"
	"plugin-hub-backend/pkg/utils"
)

// PermissionsHandler exposes the capability registry to marketplace UIs,
// which render the descriptions on install confirmation screens
type PermissionsHandler struct{}

func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// GET /api/permissions
func (h *PermissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	type permissionInfo struct {
		Token       string `json:"token"`
		Description string `json:"description"`
	}

	list := permissions.List()
	out := make([]permissionInfo, 0, len(list))
	for _, p := range list {
		desc, err := permissions.Describe(p)
		if err != nil {
			continue
		}
		out = append(out, permissionInfo{Token: string(p), Description: desc})
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"permissions": out,
		"total":       len(out),
	})
}
