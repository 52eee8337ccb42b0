package api

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"github.com/go-chi/chi/v5"

	"github.com/pvboard/pvboard/internal/api/handler"
	"github.com/pvboard/pvboard/internal/api/middleware"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger    handler.DBPinger
	Driver      string
	Version     string
	OpenAPISpec []byte

	Projects    handler.ProjectService
	TeamMembers handler.TeamMemberService

	// TempDir receives uploaded logos until the workflow hands them to the
	// media store. MaxLogoBytes bounds a single logo.
	TempDir      string
	MaxLogoBytes int64

	// Media, when set, serves locally stored assets under /media.
	Media http.Handler

	// APIKeyHash guards the write endpoints when non-empty.
	APIKeyHash string
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)
	r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Driver, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec, deps.Version)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	requireKey := middleware.APIKey(deps.APIKeyHash)

	if deps.Projects != nil {
		projectHandler := handler.NewProjectHandler(deps.Projects, deps.TempDir, deps.MaxLogoBytes)
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projectHandler.List)
			r.Get("/{id}", projectHandler.GetByID)
			r.With(requireKey).Post("/", projectHandler.Create)
			r.With(requireKey).Delete("/{id}", projectHandler.Delete)
			r.With(requireKey).Post("/{id}/team-members/{memberId}", projectHandler.AddMember)
			r.With(requireKey).Delete("/{id}/team-members/{memberId}", projectHandler.RemoveMember)
		})
	}

	if deps.TeamMembers != nil {
		memberHandler := handler.NewTeamMemberHandler(deps.TeamMembers)
		r.Route("/team-members", func(r chi.Router) {
			r.Get("/", memberHandler.List)
			r.Get("/{id}", memberHandler.GetByID)
			r.With(requireKey).Post("/", memberHandler.Create)
			r.With(requireKey).Post("/batch", memberHandler.CreateBatch)
		})
	}

	if deps.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", deps.Media))
	}

	return r
}
