package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the public health check and the token-protected admin
// routes.
func NewRouter(h *Handler, token string) *chi.Mux {
	log := h.d.Log
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoveryMiddleware(log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, r, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, r, http.StatusMethodNotAllowed, r.Method+" not allowed")
	})

	r.Get("/healthz", h.Health)
	if dir := h.d.ImagesDir; dir != "" {
		mountImages(r, dir, h.d.ImagesPath)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(AuthMiddleware(token, log))

		r.Post("/trigger/daily-verses", h.TriggerDailyVerses)
		r.Post("/trigger/morning-prayer", h.TriggerMorningPrayer)
		r.Post("/trigger/evening-prayer", h.TriggerEveningPrayer)

		r.Get("/scheduler/status", h.SchedulerStatus)
		r.Post("/scheduler/start", h.SchedulerStart)
		r.Post("/scheduler/stop", h.SchedulerStop)
		r.Get("/scheduler/history", h.SchedulerHistory)

		r.Get("/occasion", h.Occasion)
		r.Get("/scripture/search", h.ScriptureSearch)
		r.Get("/scripture/{book}/{chapter}/{verse}", h.ScriptureLookup)
		r.Get("/notifier", h.NotifierHistory)
	})
	return r
}

// mountImages serves generated images. Directory listings are not exposed.
func mountImages(r chi.Router, dir, prefix string) {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = "/images"
	}
	files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(dir)))
	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/") {
			WriteProblem(w, req, http.StatusNotFound, "no such image")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, req)
	})
}
