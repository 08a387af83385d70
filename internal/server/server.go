// Package server is the HTTP and MCP façade. It maps requests onto the
// notes service, the index, the oracle and the tool dispatcher, and
// owns nothing but routing, auth extraction and serialisation.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/untoldecay/LoreVault/internal/auth"
	"github.com/untoldecay/LoreVault/internal/config"
	"github.com/untoldecay/LoreVault/internal/logging"
	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/oracle"
	"github.com/untoldecay/LoreVault/internal/storage"
	"github.com/untoldecay/LoreVault/internal/tools"
)

// maxBodyBytes caps request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

// Server wires the façade. Construct with New, serve with Run or mount
// Handler in a test server.
type Server struct {
	cfg        config.Config
	auth       *auth.Service
	notes      *notes.Service
	index      storage.Store
	oracle     *oracle.Service
	dispatcher *tools.Dispatcher
	states     *stateStore
	log        *logging.Logger
	mux        *http.ServeMux
}

// New builds the server and registers every route.
func New(cfg config.Config, authSvc *auth.Service, notesSvc *notes.Service, index storage.Store, oracleSvc *oracle.Service, dispatcher *tools.Dispatcher) *Server {
	s := &Server{
		cfg:        cfg,
		auth:       authSvc,
		notes:      notesSvc,
		index:      index,
		oracle:     oracleSvc,
		dispatcher: dispatcher,
		states:     newStateStore(),
		log:        logging.Get(logging.CategoryServer),
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Public surface.
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /api/auth/state", s.handleAuthState)
	s.mux.HandleFunc("POST /api/tokens", s.handleIssueToken)
	s.mux.HandleFunc("POST /api/demo/token", s.handleDemoToken)

	// Authenticated surface.
	s.mux.Handle("GET /api/me", s.authed(s.handleMe))

	s.mux.Handle("GET /api/notes", s.authed(s.handleListNotes))
	s.mux.Handle("POST /api/notes", s.authed(s.handleCreateNote))
	s.mux.Handle("GET /api/notes/{path...}", s.authed(s.handleReadNote))
	s.mux.Handle("PUT /api/notes/{path...}", s.authed(s.handleUpdateNote))
	s.mux.Handle("PATCH /api/notes/{path...}", s.authed(s.handleRenameNote))
	s.mux.Handle("DELETE /api/notes/{path...}", s.authed(s.handleDeleteNote))

	s.mux.Handle("GET /api/search", s.authed(s.handleSearch))
	s.mux.Handle("GET /api/backlinks/{path...}", s.authed(s.handleBacklinks))
	s.mux.Handle("GET /api/tags", s.authed(s.handleTags))
	s.mux.Handle("GET /api/graph", s.authed(s.handleGraph))

	s.mux.Handle("GET /api/index/health", s.authed(s.handleIndexHealth))
	s.mux.Handle("POST /api/index/rebuild", s.authed(s.handleRebuild))

	s.mux.Handle("POST /api/oracle", s.authed(s.handleOracle))
	s.mux.Handle("POST /api/oracle/stream", s.authed(s.handleOracleStream))
	s.mux.Handle("POST /api/oracle/cancel", s.authed(s.handleOracleCancel))
	s.mux.Handle("GET /api/oracle/history", s.authed(s.handleHistory))
	s.mux.Handle("DELETE /api/oracle/history", s.authed(s.handleClearHistory))

	s.mux.Handle("GET /api/context/trees", s.authed(s.handleListTrees))
	s.mux.Handle("POST /api/context/trees", s.authed(s.handleCreateTree))
	s.mux.Handle("GET /api/context/trees/{rootID}", s.authed(s.handleGetTree))
	s.mux.Handle("DELETE /api/context/trees/{rootID}", s.authed(s.handleDeleteTree))
	s.mux.Handle("POST /api/context/trees/{rootID}/checkout", s.authed(s.handleCheckout))
	s.mux.Handle("POST /api/context/trees/{rootID}/activate", s.authed(s.handleActivateTree))
	s.mux.Handle("POST /api/context/trees/{rootID}/prune", s.authed(s.handlePrune))
	s.mux.Handle("PATCH /api/context/nodes/{nodeID}", s.authed(s.handleUpdateNode))

	s.mux.Handle("POST /mcp", s.authed(s.mcpHTTPHandler().ServeHTTP))
}

// Handler returns the full middleware chain. Tests mount this in an
// httptest server.
func (s *Server) Handler() http.Handler {
	return s.withCommon(s.mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
