package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"adsposter/internal/poster"
	"adsposter/internal/storage"
	logx "adsposter/pkg/logx"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type startResponse struct {
	Accepted bool               `json:"accepted"`
	Error    string             `json:"error,omitempty"`
	RunID    string             `json:"run_id,omitempty"`
	Pending  bool               `json:"pending,omitempty"`
	Run      *poster.RunSummary `json:"run,omitempty"`
	Jobs     []poster.JobResult `json:"jobs,omitempty"`
}

type stopResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := s.deps.Runner.Status()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": st.State})
	}
}

// handleStart admits a run. Without ?async=1 it answers when the run ends
// (or after SyncTimeout with 202 and pending=true).
func (s *Server) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		var req poster.Request
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, startResponse{Error: "invalid request: " + err.Error()})
			return
		}
		req.Source = "http"
		if s.deps.Prepare != nil {
			req = s.deps.Prepare(req)
		}

		h, err := s.deps.Runner.Submit(req)
		if err != nil {
			s.audit(r.Context(), "run.submit", "", began, err)
			code := http.StatusInternalServerError
			if errors.Is(err, poster.ErrRunAlreadyActive) {
				code = http.StatusConflict
			}
			writeJSON(w, code, startResponse{Error: err.Error()})
			return
		}
		s.audit(r.Context(), "run.submit", h.Info.ID, began, nil)

		if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
			writeJSON(w, http.StatusAccepted, startResponse{Accepted: true, RunID: h.Info.ID, Pending: true})
			return
		}

		var timeout <-chan time.Time
		if s.cfg.SyncTimeout > 0 {
			t := time.NewTimer(s.cfg.SyncTimeout)
			defer t.Stop()
			timeout = t.C
		}
		select {
		case <-h.Done():
		case <-timeout:
			writeJSON(w, http.StatusAccepted, startResponse{Accepted: true, RunID: h.Info.ID, Pending: true})
			return
		case <-r.Context().Done():
			// Client went away; the run continues.
			return
		}

		rep, runErr := h.Result()
		sum := h.Summary()
		resp := startResponse{Accepted: runErr == nil, RunID: h.Info.ID, Run: &sum, Jobs: rep.Jobs}
		if runErr != nil {
			resp.Error = runErr.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.deps.Runner.Stop()
		s.audit(r.Context(), "run.stop", res.RunID, time.Now(), nil)
		writeJSON(w, http.StatusOK, stopResponse{Success: res.Success, RunID: res.RunID, Message: res.Message})
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.deps.Runner.Status())
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.History == nil {
			writeJSON(w, http.StatusOK, []storage.RunRecord{})
			return
		}
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxHistoryLimit)
		}
		runs, err := s.deps.History.RecentRuns(r.Context(), limit)
		if err != nil {
			s.log.Warn("history query failed", logx.Err(err))
			http.Error(w, "history unavailable", http.StatusServiceUnavailable)
			return
		}
		if runs == nil {
			runs = []storage.RunRecord{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func (s *Server) handleAutorun() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if s.deps.Autorun == nil {
			writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
			return
		}
		writeJSON(w, http.StatusOK, s.deps.Autorun())
	}
}

func (s *Server) audit(ctx context.Context, action, runID string, began time.Time, err error) {
	if s.deps.Audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:     began,
		Source: "http",
		Action: action,
		RunID:  runID,
		OK:     err == nil,
		TookMS: time.Since(began).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := s.deps.Audit.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
		s.log.Debug("audit append failed", logx.Err(aerr))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
