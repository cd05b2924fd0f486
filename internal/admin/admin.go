// Package admin serves a small read-only HTTP API over the service's
// configuration tables.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

// Server exposes monitored subs and meme templates
type Server struct {
	store  storage.Manager
	logger *zap.Logger
}

// New creates an admin server
func New(store storage.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, logger: logger}
}

// Handler returns the HTTP handler for the admin endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/monitored-subs", s.handleMonitoredSubs)
	mux.HandleFunc("/meme-templates", s.handleMemeTemplates)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		headerAllow(w, http.MethodGet)
		return
	}
	err := storage.ReadOnly(r.Context(), s.store, func(uow storage.UnitOfWork) error {
		_, err := uow.Summons().Count(r.Context())
		return err
	})
	if err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMonitoredSubs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		headerAllow(w, http.MethodGet)
		return
	}
	var subs []*types.MonitoredSub
	err := storage.ReadOnly(r.Context(), s.store, func(uow storage.UnitOfWork) error {
		var err error
		subs, err = uow.MonitoredSubs().GetAll(r.Context())
		return err
	})
	if err != nil {
		s.internalError(w, "failed to list monitored subs", err)
		return
	}
	if subs == nil {
		subs = []*types.MonitoredSub{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleMemeTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		headerAllow(w, http.MethodGet)
		return
	}
	var templates []*types.MemeTemplate
	err := storage.ReadOnly(r.Context(), s.store, func(uow storage.UnitOfWork) error {
		var err error
		templates, err = uow.MemeTemplates().GetAll(r.Context())
		return err
	})
	if err != nil {
		s.internalError(w, "failed to list meme templates", err)
		return
	}
	if templates == nil {
		templates = []*types.MemeTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}

// Run serves srv until ctx is cancelled, then shuts down within
// shutdownTimeout
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func headerAllow(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
