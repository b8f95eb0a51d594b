package handler

import (
	"fmt"
	"net/http"
	"time"

	"plugin-hub-backend/pkg/config"
	"plugin-hub-backend/pkg/database"
	"plugin-hub-backend/pkg/handlers"
	"plugin-hub-backend/pkg/marketplace"
	customMiddleware "plugin-hub-backend/pkg/middleware"
	"plugin-hub-backend/pkg/models"
	"plugin-hub-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler is the serverless entry point. All API endpoints live in one
// Chi router so the platform deploys a single function.
func Handler(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetCached()

	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// the optimizer keeps handles warm between invocations; no Close here
	db, err := database.GetOptimizedDatabase(database.DatabaseConfig{
		UseMemoryDB: cfg.UseMemoryDB,
		PostgresDSN: cfg.PostgresDSN,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseKey,
		Debug:       cfg.Debug,
	})
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Database error: "+err.Error())
		return
	}

	router := chi.NewRouter()

	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db)

	router.ServeHTTP(w, r)
}

// adminAuthorizer grants moderation rights to the configured admin emails
type adminAuthorizer struct {
	cfg *config.Config
}

func (a adminAuthorizer) CanModerate(user *models.User) bool {
	return user != nil && a.cfg.IsAdminEmail(user.Email)
}

func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(middleware.Recoverer)

	router.Use(customMiddleware.CORS(cfg))

	// serverless functions get killed at 30s; leave a buffer
	router.Use(middleware.Timeout(25 * time.Second))

	router.Use(middleware.Compress(5))

	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	client := marketplace.NewClient(db, adminAuthorizer{cfg: cfg})

	authHandler := handlers.NewAuthHandler(cfg, db)
	marketplaceHandler := handlers.NewMarketplaceHandler(client)
	pluginsHandler := handlers.NewPluginsHandler(client)
	storageHandler := handlers.NewStorageHandler(client)
	permissionsHandler := handlers.NewPermissionsHandler()

	router.Get("/", authHandler.HealthCheck)

	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			var stats map[string]interface{}

			if database.IsServerlessEnvironment() {
				stats = database.GetOptimizerStats()
				if stats == nil {
					stats = map[string]interface{}{}
				}
				stats["optimizer_type"] = "serverless"
			} else {
				stats = database.GetConnectionStats()
				stats["optimizer_type"] = "standard"
			}

			utils.WriteSuccessResponse(w, stats)
		})
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", authHandler.HealthCheck)

		// public routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/refresh", authHandler.RefreshToken)
		})

		r.Get("/permissions", permissionsHandler.List)

		// browsing is public; a valid token still resolves the caller so
		// the "installed" pseudo-type works
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.OptionalAuthMiddleware(cfg))

			r.Get("/marketplace", marketplaceHandler.Browse)
			r.Get("/marketplace/categories", marketplaceHandler.Categories)
			r.Get("/marketplace/featured", marketplaceHandler.Featured)
			r.Get("/marketplace/{id}", marketplaceHandler.GetItem)
		})

		// authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(cfg))
			r.Use(customMiddleware.ContentTypeJSON)
			r.Use(customMiddleware.MaxBodySize(1 << 20))

			r.Get("/auth/me", authHandler.Me)

			r.Post("/marketplace", marketplaceHandler.Publish)
			r.Post("/marketplace/{id}/feature", marketplaceHandler.SetFeatured)
			r.Delete("/marketplace/{id}", marketplaceHandler.DeleteItem)

			r.Route("/plugins", func(r chi.Router) {
				r.Get("/", pluginsHandler.ListInstalled)
				r.Post("/{id}/install", pluginsHandler.Install)
				r.Delete("/{id}", pluginsHandler.Uninstall)
				r.Put("/{id}/enabled", pluginsHandler.SetEnabled)
				r.Patch("/{id}/config", pluginsHandler.UpdateConfig)

				r.Get("/{id}/storage", storageHandler.ListKeys)
				r.Delete("/{id}/storage", storageHandler.Clear)
				r.Get("/{id}/storage/{key}", storageHandler.GetValue)
				r.Put("/{id}/storage/{key}", storageHandler.SetValue)
				r.Delete("/{id}/storage/{key}", storageHandler.DeleteValue)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
