package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/eventbus"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/runcontext"
	"github.com/vk/calcgrid/internal/snapshotstore"
)

// Documents is the document lifecycle the server drives. session.Manager
// implements it.
type Documents interface {
	Open(ctx context.Context, id string) (*runcontext.Document, error)
	Create(ctx context.Context, id string, doc *model.ModelJSON) (*runcontext.Document, error)
	Save(ctx context.Context, id string) (snapshotstore.Info, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]snapshotstore.Info, error)
}

// Subscriber hands out per-document event streams. eventbus.Hub implements
// it.
type Subscriber interface {
	Subscribe(documentID string, buffer int) (<-chan eventbus.Message, func())
}

// Server routes the HTTP API.
type Server struct {
	ctx      context.Context
	docs     Documents
	events   Subscriber
	router   *mux.Router
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// New builds a server. ctx carries the logger and bounds the websocket
// streams.
func New(ctx context.Context, docs Documents, events Subscriber) *Server {
	s := &Server{
		ctx:    ctx,
		docs:   docs,
		events: events,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.withLogger)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/documents", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/documents/{id}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/documents/{id}/actions", s.handleAction).Methods(http.MethodPost)
	r.HandleFunc("/documents/{id}/save", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/documents/{id}/members/{path}", s.handleMember).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}/events", s.handleEvents).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) {
	logger := ctxlog.FromContext(s.ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	go func() {
		logger.Info("🌐 API server starting", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed unexpectedly", "error", err)
		}
	}()
}

// Shutdown stops a started server, waiting up to five seconds for requests
// in flight.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctxlog.FromContext(s.ctx).Info("🌐 Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// withLogger puts the server logger, tagged with the request, in the request
// context.
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxlog.With(ctxlog.WithLogger(r.Context(), ctxlog.FromContext(s.ctx)),
			"method", r.Method, "path", r.URL.Path)
		ctxlog.FromContext(ctx).Debug("Request received.", "remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
