package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the API router. The events handler is mounted under the
// same auth guard as the rest of the API.
func NewRouter(h *Handler, events http.Handler, authEnabled bool, authToken string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware(authEnabled, authToken))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.GetNotes)
		r.Post("/", h.SaveNote)
		r.Get("/all", h.ListAllNotes)
		r.Patch("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
	})

	r.Put("/pages/title", h.UpdatePageTitle)
	r.Post("/pages/capture", h.CapturePage)

	r.Get("/tags", h.GetAllTags)
	r.Get("/export", h.Export)

	r.Route("/folder", func(r chi.Router) {
		r.Get("/", h.FolderStatus)
		r.Post("/access", h.RequestFolderAccess)
		r.Post("/revoke", h.RevokeFolderAccess)
	})

	r.Get("/markdown", h.GetPageMarkdown)
	r.Post("/markdown", h.SavePageMarkdown)

	r.Post("/chat", h.Chat)

	if events != nil {
		r.Handle("/events", events)
	}

	return r
}
