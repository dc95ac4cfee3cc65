package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cverrors "github.com/cephview/cephview/internal/errors"
	"github.com/cephview/cephview/pkg/middleware"
	"github.com/cephview/cephview/pkg/upload"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if s.config.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.recoverer)
	if s.traced {
		r.Use(middleware.OpenTelemetry(s.tracing...))
	}
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, s.metricsHandler())
	}

	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			e := cverrors.Newf(cverrors.CategoryServer, "No route for %s %s", r.Method, r.URL.Path)
			e.Status = http.StatusNotFound
			writeError(w, e)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, cverrors.New("E142").WithDetail(r.Method+" is not supported on "+r.URL.Path))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)

			r.Route("/{"+middleware.SessionParam+"}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleEndSession)
				r.Post("/images", s.handleAddImage)
				r.Delete("/images/{iid}", s.handleRemoveImage)
				r.Patch("/images/{iid}", s.handlePatchImage)
				r.Put("/active-image", s.handleSetActiveImage)
				r.Post("/mode/toggle", s.handleToggleMode)
				r.Post("/active/toggle", s.handleToggleActive)
				r.Post("/commands", s.handleCommands)
				r.Get("/ws", s.handleWebSocket)
			})
		})

		if s.uploads != nil {
			r.Route("/uploads", func(r chi.Router) {
				r.Post("/", s.handleUpload)
				r.Get("/{id}", upload.ServeHandler(s.uploads, func(r *http.Request) string {
					return chi.URLParam(r, "id")
				}).ServeHTTP)
			})
		}
	})

	if s.config.StaticDir != "" {
		r.Handle("/*", newStaticHandler(s.config.StaticDir, s.logger))
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

// handleUpload wraps the upload handler to record its outcome.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	upload.Handler(s.uploads, s.config.Upload).ServeHTTP(ww, r)

	switch ww.Status() {
	case http.StatusCreated:
		s.metrics.RecordUpload("ok")
	case http.StatusRequestEntityTooLarge:
		s.metrics.RecordUpload("too_large")
	case http.StatusUnsupportedMediaType:
		s.metrics.RecordUpload("rejected_type")
	default:
		s.metrics.RecordUpload("error")
	}
}

// recoverer turns handler panics into a logged E140 response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panic",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", chimw.GetReqID(r.Context()))
				writeError(w, cverrors.New("E140"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
