package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/reconcile"
	"github.com/klimkalender/klimkalender-cms/pkg/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleTrigger runs the pipeline and answers once it is done. Every failure,
// a held run lock included, is reported as 400.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, errors.New("too many requests"))
		return
	}
	if s.Trigger == nil {
		writeError(w, http.StatusBadRequest, errors.New("no pipeline configured"))
		return
	}
	// A dropped connection must not abort a run halfway.
	if err := s.Trigger(context.WithoutCancel(r.Context())); err != nil {
		utils.Log.Warnf("Triggered run failed: %v", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.Store.ListRuns(r.Context(), s.runType, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.LastRun(r.Context(), s.runType)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logs, err := s.Store.ListLogs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if logs == nil {
		logs = []storage.LogLine{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleWasmEvents lists wasm events, optionally only those with ?status=.
func (s *Server) handleWasmEvents(w http.ResponseWriter, r *http.Request) {
	var want event.Status
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := event.ParseStatus(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		want = st
	}
	all, err := s.Store.ListWasmEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := []event.WasmEvent{}
	for _, we := range all {
		if want == "" || we.Status == want {
			out = append(out, we)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type ActionRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	action, err := reconcile.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := s.Actions.Apply(r.Context(), id, action)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reconcile.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrNotLinked), errors.Is(err, reconcile.ErrAlreadyLinked):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
