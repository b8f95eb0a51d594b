package handlers

import (
	"net/http"
	"strings"
	"time"

	"plugin-hub-backend/pkg/config"
	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/middleware"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/utils"
)

// AuthHandler owns the token endpoints and the health check. Sign-in
// itself happens in an external identity service; this backend only
// verifies and refreshes the tokens it is handed.
type AuthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface) *AuthHandler {
	return &AuthHandler{config: cfg, db: db}
}

// POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, expiresIn, err := jwtService.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token")
		return
	}

	utils.WriteSuccessResponse(w, models.TokenPairResponse{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteDomainErrorResponse(w, err)
		return
	}
	utils.WriteSuccessResponse(w, user)
}

// GET /api/health
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	if err := h.db.HealthCheck(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "plugin-hub-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.getDatabaseType(),
		"db_status":   dbStatus,
		"connections": database.GetConnectionStats(),
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	})
}

func (h *AuthHandler) getDatabaseType() string {
	if h.config.UseMemoryDB {
		return "memory"
	} else if h.config.PostgresDSN != "" {
		return "postgresql"
	} else if h.config.SupabaseURL != "" && h.config.SupabaseKey != "" {
		return "supabase"
	}
	return "unknown"
}
