package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/processor"
)

// defaultHistoryLimit is the page size of history endpoints when the
// request gives none.
const defaultHistoryLimit = 50

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	Formula string `json:"formula"`
}

// EvaluateResponse is the result of an ad-hoc evaluation.
type EvaluateResponse struct {
	Formula string `json:"formula"`
	Kind    string `json:"kind"`
	Value   any    `json:"value"`
	Text    string `json:"text"`
}

// InputRequest is the body of PUT /inputs/{name}.
type InputRequest struct {
	Value any `json:"value"`
}

// StateResponse is the published state of the device.
type StateResponse struct {
	Device string `json:"device"`
	State  string `json:"state"`
	Status string `json:"status"`
}

// ─── Device ─────────────────────────────────────────────────────────

func (s *Server) handleDevice(w http.ResponseWriter, _ *http.Request) {
	state, status := s.device.State()
	resp := map[string]any{
		"name":           s.device.Name(),
		"state":          state,
		"status":         status,
		"attributes":     len(s.device.Attributes()),
		"state_formulas": s.device.StateFormulas(),
	}
	if props, err := s.device.Properties(); err == nil {
		resp["properties"] = props
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSymbols(w http.ResponseWriter, _ *http.Request) {
	symbols := s.device.Symbols()
	writeJSON(w, http.StatusOK, map[string]any{
		"symbols": nonNil(symbols),
		"count":   len(symbols),
	})
}

// ─── Attributes ─────────────────────────────────────────────────────

func (s *Server) handleListAttributes(w http.ResponseWriter, _ *http.Request) {
	attrs := s.device.Attributes()
	writeJSON(w, http.StatusOK, map[string]any{
		"attributes": nonNil(attrs),
		"count":      len(attrs),
	})
}

// handleReadAttribute evaluates one attribute now. Evaluation failures are
// part of the reading (INVALID quality), so only unknown names fail.
func (s *Server) handleReadAttribute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, err := s.device.ReadAttribute(r.Context(), name)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleLastValues(w http.ResponseWriter, _ *http.Request) {
	values := s.device.LastValues()
	writeJSON(w, http.StatusOK, map[string]any{
		"values": nonNil(values),
		"count":  len(values),
	})
}

// ─── State ──────────────────────────────────────────────────────────

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	state, status := s.device.State()
	writeJSON(w, http.StatusOK, StateResponse{
		Device: s.device.Name(),
		State:  state,
		Status: status,
	})
}

func (s *Server) handleStateHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	entries, err := s.device.StateHistory(r.Context(), limit)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": nonNil(entries),
		"count":   len(entries),
	})
}

// ─── Cycle and evaluation ───────────────────────────────────────────

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.device.ReadCycle(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Formula) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "formula is required")
		return
	}

	v, err := s.device.Evaluate(r.Context(), req.Formula)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{
		Formula: req.Formula,
		Kind:    v.Kind().String(),
		Value:   v.Native(),
		Text:    v.String(),
	})
}

// ─── Inputs ─────────────────────────────────────────────────────────

func (s *Server) handleListInputs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"inputs": s.device.Inputs(),
	})
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	v, err := formula.FromNative(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err := s.device.SetInput(name, v); err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  name,
		"value": v.Native(),
	})
}

// ─── Properties and reloads ─────────────────────────────────────────

func (s *Server) handleGetProperties(w http.ResponseWriter, _ *http.Request) {
	props, err := s.device.Properties()
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

func (s *Server) handleSaveProperties(w http.ResponseWriter, r *http.Request) {
	var props processor.Properties
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	rec, err := s.device.SaveProperties(r.Context(), props)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleClearProperties(w http.ResponseWriter, r *http.Request) {
	rec, err := s.device.ClearProperties(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	rec, err := s.device.Reload(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReloadHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	records, err := s.device.ReloadHistory(r.Context(), limit)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloads": nonNil(records),
		"count":   len(records),
	})
}

// parseLimit reads the optional ?limit= query parameter. It writes a 400
// response and reports false when the value is not a positive integer.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
