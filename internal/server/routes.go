package server

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"wikimod/internal/db"
	"wikimod/internal/handlers"
	"wikimod/internal/handlers/api"
	"wikimod/internal/intake"
	"wikimod/internal/middleware"
	"wikimod/internal/moderation"
	"wikimod/internal/notify"
	"wikimod/internal/preload"
	"wikimod/internal/stash"
	"wikimod/internal/validation"
)

// Components are the services the routes are served by.
type Components struct {
	DB         *db.DB
	Engine     *moderation.Engine
	Gate       *intake.Gate
	Correlator *preload.Correlator
	Pending    *notify.Cache
	Files      *stash.Stash
	Titles     *validation.TitleParser
	Redis      redis.UniversalClient // optional
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(ctx context.Context, c Components) error {
	authMiddleware := middleware.NewAuthMiddleware(c.DB)
	s.App.Use(authMiddleware.LoadActor)

	moderationHandler := api.NewModerationHandler(c.Engine, c.DB, c.Pending, c.Files)
	editorHandler := api.NewEditorHandler(c.Gate, c.Correlator, c.Files, c.Titles)
	pagesHandler := api.NewPagesHandler(c.DB, c.Titles)
	userHandler := api.NewUserHandler(c.DB)

	checks := map[string]api.Pinger{"database": c.DB}
	if c.Redis != nil {
		checks["redis"] = api.PingFunc(func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		})
	}
	healthHandler := api.NewHealthHandler(checks)

	// Auth routes - without OIDC everybody edits anonymously
	if s.Cfg.OIDCIssuer != "" {
		authHandler, err := handlers.NewAuthHandler(ctx, s.Cfg, c.DB, c.Correlator)
		if err != nil {
			return err
		}
		s.App.Get("/auth/login", authHandler.Login)
		s.App.Get("/auth/callback", authHandler.Callback)
		s.App.Get("/auth/logout", authHandler.Logout)
	} else {
		log.Println("OIDC authentication is disabled. Set OIDC_ISSUER to enable.")
	}

	s.App.Get("/healthz", healthHandler.Check)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Moderation routes (moderators only)
	mod := s.App.Group("/moderation", middleware.RequireModerator)
	mod.Get("/", moderationHandler.List)
	mod.Get("/notify", moderationHandler.Notify)
	mod.Get("/:id/file", moderationHandler.File)
	mod.Post("/:id/approve", moderationHandler.Approve)
	mod.Post("/:id/approveall", moderationHandler.ApproveAll)
	mod.Post("/:id/reject", moderationHandler.Reject)
	mod.Post("/:id/rejectall", moderationHandler.RejectAll)
	mod.Post("/:id/merged", moderationHandler.Merged)

	// Edit surface - open to anonymous visitors
	s.App.Get("/edit/:ns/:title", editorHandler.Show)
	s.App.Post("/edit/:ns/:title", editorHandler.Save)
	s.App.Post("/upload/:title", editorHandler.Upload)
	s.App.Get("/files/:name", editorHandler.File)

	// Read-only views of the live wiki
	s.App.Get("/history/:ns/:title", pagesHandler.History)
	s.App.Get("/recentchanges", pagesHandler.RecentChanges)
	s.App.Get("/files/:name/info", pagesHandler.FileInfo)

	// Admin routes (admin only)
	s.App.Put("/api/users/:id/role", middleware.RequireAuth, userHandler.UpdateRole)

	return nil
}
