package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/probeline/probeline/internal/measure"
	"github.com/probeline/probeline/internal/plugin"
	"github.com/probeline/probeline/internal/probe"
)

// ProbeInspector exposes the probe engine state.
type ProbeInspector interface {
	Dummy() bool
	Probes() []*probe.Probe
	Probe(id string) (*probe.Probe, bool)
	Rejected() []*probe.DefinitionError
	Measure(id string) (measure.Snapshot, bool)
	Scheduled(id string) bool
	Flush(ctx context.Context, id string) error
}

// ProbesHandler serves probe inspection and manual flushes.
type ProbesHandler struct {
	engine ProbeInspector
	logger *slog.Logger
}

// NewProbesHandler creates a new ProbesHandler.
func NewProbesHandler(engine ProbeInspector, logger *slog.Logger) *ProbesHandler {
	return &ProbesHandler{engine: engine, logger: logger.With("component", "handler.probes")}
}

// ProbeView is the JSON shape of a probe.
type ProbeView struct {
	ID          string            `json:"id"`
	Type        probe.Type        `json:"type"`
	Hooks       []string          `json:"hooks,omitempty"`
	Increasers  []string          `json:"increasers,omitempty"`
	Decreasers  []string          `json:"decreasers,omitempty"`
	Index       string            `json:"index,omitempty"`
	Collection  string            `json:"collection,omitempty"`
	Filter      any               `json:"filter,omitempty"`
	CollectMode string            `json:"collect_mode,omitempty"`
	Collects    []string          `json:"collects,omitempty"`
	Interval    string            `json:"interval"`
	Immediate   bool              `json:"immediate"`
	Scheduled   bool              `json:"scheduled"`
	Measure     *measure.Snapshot `json:"measure,omitempty"`
}

// RejectedView describes a probe dropped at validation.
type RejectedView struct {
	ProbeID string `json:"probe_id"`
	Reason  string `json:"reason"`
}

// ListResponse is the body of GET /v1/probes.
type ListResponse struct {
	Dummy    bool           `json:"dummy"`
	Probes   []ProbeView    `json:"probes"`
	Rejected []RejectedView `json:"rejected"`
}

// List returns every active probe and every rejected definition.
//
// GET /v1/probes
func (h *ProbesHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := ListResponse{
		Dummy:    h.engine.Dummy(),
		Probes:   []ProbeView{},
		Rejected: []RejectedView{},
	}
	for _, p := range h.engine.Probes() {
		resp.Probes = append(resp.Probes, h.view(p, false))
	}
	for _, rej := range h.engine.Rejected() {
		resp.Rejected = append(resp.Rejected, RejectedView{ProbeID: rej.ProbeID, Reason: rej.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one probe with its current measure.
//
// GET /v1/probes/{id}
func (h *ProbesHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine.Probe(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "probe not found")
		return
	}
	writeJSON(w, http.StatusOK, h.view(p, true))
}

// Flush persists the measure of a probe now.
//
// POST /v1/probes/{id}/flush
func (h *ProbesHandler) Flush(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.engine.Flush(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"flushed": id})
	case errors.Is(err, plugin.ErrUnknownProbe):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "probe not found")
	case errors.Is(err, plugin.ErrDummy):
		writeError(w, http.StatusConflict, "DUMMY_MODE", "storage is disabled in dummy mode")
	default:
		h.logger.Error("manual flush failed", "probe_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "STORAGE_ERROR", "flush failed")
	}
}

func (h *ProbesHandler) view(p *probe.Probe, withMeasure bool) ProbeView {
	v := ProbeView{
		ID:         p.ID,
		Type:       p.Type,
		Hooks:      p.Hooks,
		Increasers: p.Increasers,
		Decreasers: p.Decreasers,
		Index:      p.Index,
		Collection: p.Collection,
		Filter:     p.Filter,
		Collects:   p.Collects,
		Interval:   intervalString(p),
		Immediate:  p.Immediate(),
		Scheduled:  h.engine.Scheduled(p.ID),
	}
	if p.Type == probe.TypeWatcher {
		v.CollectMode = collectModeString(p.CollectMode)
	}
	if withMeasure {
		if snap, ok := h.engine.Measure(p.ID); ok {
			v.Measure = &snap
		}
	}
	return v
}

func intervalString(p *probe.Probe) string {
	if p.Interval == probe.NoInterval {
		return probe.IntervalNone
	}
	return p.Interval.String()
}

func collectModeString(m probe.CollectMode) string {
	switch m {
	case probe.CollectAll:
		return "all"
	case probe.CollectPaths:
		return "paths"
	default:
		return "count"
	}
}
