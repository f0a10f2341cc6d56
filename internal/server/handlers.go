package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/voss/testflow/internal/domain"
	"github.com/voss/testflow/internal/metrics"
	"github.com/voss/testflow/internal/store"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Test Automation API running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	err := s.store.Ping(r.Context())
	metrics.Global().RecordHealthCheck(err == nil)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL          string `json:"url"`
		NumTestCases int    `json:"num_test_cases"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.NumTestCases <= 0 {
		writeError(w, http.StatusBadRequest, "num_test_cases must be positive")
		return
	}

	sessionID, _ := s.orch.RequestGeneration(req.URL, req.NumTestCases)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Test case generation started",
		"session_id":     sessionID,
		"url":            req.URL,
		"num_test_cases": req.NumTestCases,
		"status":         string(domain.SessionInProgress),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if _, err := s.orch.RequestExecution(r.Context(), sessionID); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Execution started",
		"session_id": sessionID,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orch.GetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetAllSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.orch.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []domain.SessionWithCases{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleTestSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.orch.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	bare := make([]domain.Session, 0, len(sessions))
	for _, sess := range sessions {
		bare = append(bare, sess.Session)
	}
	writeJSON(w, http.StatusOK, bare)
}

func (s *Server) handleAllureResults(w http.ResponseWriter, r *http.Request) {
	files, err := s.reporter.ListResults()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allure_results": files,
		"count":          len(files),
	})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	if s.orch.TriggerReport(r.Context()) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message":     "Report generated",
			"report_path": s.reporter.ReportsDir() + "/index.html",
			"status":      "success",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Failed", "status": "error"})
}

func (s *Server) handleWorkUnits(w http.ResponseWriter, r *http.Request) {
	type unitView struct {
		ID        string    `json:"id"`
		Kind      string    `json:"kind"`
		SessionID string    `json:"session_id"`
		StartedAt time.Time `json:"started_at"`
		Running   bool      `json:"running"`
		Error     string    `json:"error,omitempty"`
	}

	units := s.orch.Units()
	views := make([]unitView, 0, len(units))
	for _, u := range units {
		v := unitView{
			ID:        u.ID,
			Kind:      string(u.Kind),
			SessionID: u.SessionID,
			StartedAt: u.StartedAt,
			Running:   u.Running(),
		}
		if err := u.Err(); err != nil {
			v.Error = err.Error()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// Agent callbacks.

func (s *Server) handleAgentCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID    string `json:"session_id"`
		URL          string `json:"url"`
		NumTestCases int    `json:"num_test_cases"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "session_id and url are required")
		return
	}

	if err := s.store.CreateSession(r.Context(), req.SessionID, req.URL, req.NumTestCases); err != nil {
		if store.IsConflict(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": req.SessionID})
}

func (s *Server) handleAgentSaveTestCases(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string               `json:"session_id"`
		TestCases []domain.NewTestCase `json:"test_cases"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := s.store.SaveTestCases(r.Context(), req.SessionID, req.TestCases); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if store.IsConflict(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"saved": len(req.TestCases)})
}

func (s *Server) handleAgentUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		TestID    int    `json:"test_id"`
		Status    string `json:"status"`
		Comment   string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "session_id and status are required")
		return
	}

	title, err := s.store.UpdateTestCaseStatus(r.Context(), req.SessionID, req.TestID,
		domain.CaseStatus(req.Status), req.Comment)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title, "status": req.Status})
}
