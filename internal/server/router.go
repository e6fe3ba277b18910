package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studium-labs/studium/internal/api"
	"github.com/studium-labs/studium/internal/api/handlers"
	"github.com/studium-labs/studium/internal/api/middleware"
)

type RouterConfig struct {
	APIToken      string
	ChatHandler   *handlers.ChatHandler
	RAGHandler    *handlers.RAGHandler
	ConfigHandler *handlers.ConfigHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(cfg.APIToken))

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", cfg.ChatHandler.Create)
			r.Get("/", cfg.ChatHandler.List)
			r.Get("/{id}", cfg.ChatHandler.Get)
			r.Post("/{id}/complete", cfg.ChatHandler.Complete)
			r.Delete("/{id}", cfg.ChatHandler.Delete)
			r.Post("/{id}/messages/stream", cfg.ChatHandler.Stream)
		})

		r.Post("/search", cfg.RAGHandler.Search)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.RAGHandler.CreateDocument)
			r.Get("/", cfg.RAGHandler.ListDocuments)
			r.Get("/{id}", cfg.RAGHandler.GetDocument)
			r.Delete("/{id}", cfg.RAGHandler.DeleteDocument)
			r.Get("/{id}/download", cfg.RAGHandler.DownloadDocument)
		})

		r.Get("/rag/health", cfg.RAGHandler.Health)

		r.Route("/config", func(r chi.Router) {
			r.Get("/", cfg.ConfigHandler.Get)
			r.Put("/", cfg.ConfigHandler.Update)
		})
	})

	return r
}
