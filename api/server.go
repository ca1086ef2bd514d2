// Package api exposes the asset store and the recipe catalog over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ErmitaVulpe/cookbook/catalog"
	"github.com/ErmitaVulpe/cookbook/cdn"
	"github.com/ErmitaVulpe/cookbook/log"
	"github.com/gorilla/mux"
)

// DefaultMaxImageSize is the upload limit of a single image.
const DefaultMaxImageSize = 10 << 20

type Server struct {
	cdn     *cdn.Cdn
	catalog catalog.Catalog

	auth         Authorizer
	log          *log.Logger
	metrics      *Metrics
	maxImageSize int64

	router *mux.Router
}

type Option func(*Server) error

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("api: logger cannot be nil")
		}
		s.log = logger
		return nil
	}
}

func WithAuthorizer(auth Authorizer) Option {
	return func(s *Server) error {
		if auth == nil {
			return fmt.Errorf("api: authorizer cannot be nil")
		}
		s.auth = auth
		return nil
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Server) error {
		if metrics == nil {
			return fmt.Errorf("api: metrics cannot be nil")
		}
		s.metrics = metrics
		return nil
	}
}

func WithMaxImageSize(size int64) Option {
	return func(s *Server) error {
		if size <= 0 {
			return fmt.Errorf("api: max image size must be positive, got %d", size)
		}
		s.maxImageSize = size
		return nil
	}
}

// NewServer routes requests to store and recipes. Without WithAuthorizer
// every mutating request is denied.
func NewServer(store *cdn.Cdn, recipes catalog.Catalog, opts ...Option) (*Server, error) {
	if store == nil || recipes == nil {
		return nil, fmt.Errorf("api: store and catalog are required")
	}

	s := &Server{
		cdn:          store,
		catalog:      recipes,
		auth:         denyAll{},
		log:          log.Nop(),
		maxImageSize: DefaultMaxImageSize,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.instrument)

	// Subrouters answer a method mismatch with 404, keep routes flat.
	router.HandleFunc("/cdn/img/get/{recipe}/{image}", s.handleGetImage).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/cdn/img/list/{recipe}", s.handleListImages).Methods(http.MethodGet)
	router.Handle("/cdn/img/upload_icon", s.authorized(s.handleUploadIcon)).Methods(http.MethodPut)
	router.Handle("/cdn/img/upload_images", s.authorized(s.handleUploadImages)).Methods(http.MethodPut)
	router.Handle("/cdn/img/delete_images", s.authorized(s.handleDeleteImages)).Methods(http.MethodPost)

	router.HandleFunc("/api/recipes", s.handleListRecipes).Methods(http.MethodGet)
	router.Handle("/api/recipes", s.authorized(s.handleCreateRecipe)).Methods(http.MethodPost)
	router.Handle("/api/recipes/{name}", s.authorized(s.handleDeleteRecipe)).Methods(http.MethodDelete)

	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// authorized rejects requests the authorizer denies with 403.
func (s *Server) authorized(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Authorize(r); err != nil {
			s.log.Debug("Denied %s %s: %v", r.Method, r.URL.Path, err)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// instrument records status and duration of every routed request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)

		s.metrics.observeRequest(route, r.Method, recorder.status, elapsed)
		s.log.Debug("%s %s %d %s", r.Method, r.URL.Path, recorder.status, elapsed)
	})
}

// transaction runs fn against the store and records its outcome.
func (s *Server) transaction(ctx context.Context, fn func(tx *cdn.Tx) error) error {
	err := s.cdn.Transaction(ctx, fn)
	s.metrics.observeTransaction(err)
	return err
}

// fail writes the status of err without a body. Causes stay in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := cdn.StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		s.log.Debug("%s %s rejected: %v", r.Method, r.URL.Path, err)
	}

	w.WriteHeader(status)
}

type denyAll struct{}

func (denyAll) Authorize(*http.Request) error {
	return ErrUnauthorized
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}
