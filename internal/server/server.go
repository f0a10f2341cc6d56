// Package server exposes the orchestrator and store as HTTP endpoints. It
// is a thin adapter: route parsing, request validation and CORS live here,
// nothing else.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/voss/testflow/internal/logging"
	"github.com/voss/testflow/internal/metrics"
	"github.com/voss/testflow/internal/orchestrator"
	"github.com/voss/testflow/internal/report"
	"github.com/voss/testflow/internal/store"
)

// Server routes the public API and the agent callback endpoints.
type Server struct {
	orch     *orchestrator.Orchestrator
	store    *store.Store
	reporter *report.Reporter
	mux      *http.ServeMux
	addr     string
	log      *logging.Logger
}

// New creates a Server.
func New(orch *orchestrator.Orchestrator, st *store.Store, rep *report.Reporter, addr string) *Server {
	s := &Server{
		orch:     orch,
		store:    st,
		reporter: rep,
		mux:      http.NewServeMux(),
		addr:     addr,
		log:      logging.New("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", metrics.Global().Handler())

	s.mux.HandleFunc("POST /api/generate-testcases", s.handleGenerate)
	s.mux.HandleFunc("POST /api/execute-session/{id}", s.handleExecute)
	s.mux.HandleFunc("GET /api/GetSession/{id}", s.handleGetSession)
	s.mux.HandleFunc("GET /api/GetAllSessions", s.handleGetAllSessions)
	s.mux.HandleFunc("GET /api/test-sessions", s.handleTestSessions)
	s.mux.HandleFunc("GET /api/allure-results", s.handleAllureResults)
	s.mux.HandleFunc("POST /api/generate-allure-report", s.handleGenerateReport)
	s.mux.HandleFunc("GET /api/work-units", s.handleWorkUnits)

	// Callback operations for the external agent. These are the only
	// channel through which the agent communicates results.
	s.mux.HandleFunc("POST /api/agent/create-session", s.handleAgentCreateSession)
	s.mux.HandleFunc("POST /api/agent/save-test-cases", s.handleAgentSaveTestCases)
	s.mux.HandleFunc("POST /api/agent/update-status", s.handleAgentUpdateStatus)
}

// Handler returns the full middleware-wrapped handler (for tests).
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	s.log.Info("listening", map[string]interface{}{"addr": s.addr})
	return srv.ListenAndServe()
}

// corsMiddleware mirrors the permissive policy of the original API: the
// dashboard frontend may be served from anywhere.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}
