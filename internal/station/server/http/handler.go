package http

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/pkg/errdefs"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

const (
	defaultLogLines     = 50
	defaultJournalLimit = 100
)

type handler struct {
	ctx context.Context
	b   *Backend
}

// Port is one candidate device and its owning role, if claimed.
type Port struct {
	Device string `json:"device"`
	Owner  string `json:"owner,omitempty"`
}

// ActionResponse acknowledges an accepted action.
type ActionResponse struct {
	Role     string `json:"role"`
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if h.b.Ready != nil && !h.b.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) listPorts(w http.ResponseWriter, _ *http.Request) {
	devices, err := h.b.Enumerator.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	claimed := h.b.State.Claimed()
	out := make([]Port, 0, len(devices))
	for _, d := range devices {
		out = append(out, Port{Device: d, Owner: claimed[d]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.b.Coordinator.Status())
}

func (h *handler) submitAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	role, err := h.b.Coordinator.ParseRole(vars["role"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	action, err := coordinator.ParseAction(vars["action"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.b.Coordinator.Submit(h.ctx, role, action); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ActionResponse{Role: string(role), Action: string(action), Accepted: true})
}

func (h *handler) getMission(w http.ResponseWriter, r *http.Request) {
	role, err := h.b.Coordinator.ParseRole(mux.Vars(r)["role"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	m, err := waypoint.Read(h.b.Coordinator.MissionFile(role))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, m)
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, errdefs.ErrFormat):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) listLogs(w http.ResponseWriter, r *http.Request) {
	n, err := intQuery(r, "n", defaultLogLines)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.b.Sink.Recent(n))
}

func (h *handler) listJournal(w http.ResponseWriter, r *http.Request) {
	if h.b.Journal == nil {
		writeError(w, http.StatusNotFound, errors.New("journal disabled"))
		return
	}
	limit, err := intQuery(r, "limit", defaultJournalLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.b.Journal.List(r.Context(), r.URL.Query().Get("role"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
