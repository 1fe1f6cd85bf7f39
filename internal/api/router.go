package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/attic/internal/attachservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *attachservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Settings document.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	// Organize and folder moves.
	r.Get("/organize/plan", h.PlanOrganize)
	r.Post("/organize", h.Organize)
	r.Post("/move", h.MoveFolder)

	// Unlinked attachments.
	r.Get("/unlinked", h.ListUnlinked)
	r.Post("/unlinked/purge", h.PurgeUnlinked)

	// OCR pipeline.
	r.Post("/ocr/run", h.RunOCR)
	r.Post("/ocr/file", h.ProcessOCRFile)
	r.Post("/ocr/stop", h.StopOCR)
	r.Get("/ocr/status", h.OCRStatus)

	// Journal.
	r.Get("/history", h.History)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
