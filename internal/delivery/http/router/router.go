package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/enrich-service/internal/delivery/http/handler"
	"github.com/user/enrich-service/internal/delivery/http/middleware"
)

func New(h *handler.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/health", h.HandleHealthCheck)

	r.Route("/api/datasets", func(r chi.Router) {
		r.Post("/", h.HandleUploadDataset)
		r.Post("/sheets", h.HandleImportSheet)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetDataset)
			r.Delete("/", h.HandleDeleteDataset)
			r.Get("/histogram", h.HandleHistogram)
			r.Get("/unique", h.HandleUnique)
			r.Post("/filter", h.HandleFilter)
			r.Post("/queries", h.HandlePreviewQueries)
		})
	})

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", h.HandleStartRun)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetRun)
			r.Delete("/", h.HandleCancelRun)
			r.Get("/rows", h.HandleRunRows)
			r.Get("/export", h.HandleExportRun)
			r.Post("/sheet", h.HandleWriteSheet)
		})
	})

	return r
}
