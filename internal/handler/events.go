package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/probeline/probeline/internal/events"
	"github.com/probeline/probeline/internal/metrics"
	"github.com/probeline/probeline/internal/plugin"
	"github.com/probeline/probeline/internal/probe"
)

// EventSink consumes lifecycle events.
type EventSink interface {
	Dispatch(ctx context.Context, ev plugin.Event)
	Routes(event string) []probe.Type
}

// EventsHandler ingests lifecycle events over HTTP.
type EventsHandler struct {
	sink    EventSink
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(sink EventSink, logger *slog.Logger, recorder metrics.Recorder) *EventsHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &EventsHandler{
		sink:    sink,
		logger:  logger.With("component", "handler.events"),
		metrics: recorder,
	}
}

// IngestRequest is the body of POST /v1/events/{hook}.
type IngestRequest struct {
	Index      string          `json:"index,omitempty"`
	Collection string          `json:"collection,omitempty"`
	ID         string          `json:"id,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// IngestResponse reports which probe types received the event.
type IngestResponse struct {
	Event    string       `json:"event"`
	RoutedTo []probe.Type `json:"routed_to"`
}

// Ingest dispatches one event to the probe engine. Events no probe listens
// to are accepted and ignored.
//
// POST /v1/events/{hook}
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON object")
		return
	}

	payload := events.EventPayload{
		Event:      chi.URLParam(r, "hook"),
		Index:      req.Index,
		Collection: req.Collection,
		ID:         req.ID,
		Body:       req.Body,
	}
	if err := events.ValidateEventPayload(payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	ev, err := payload.ToEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	h.metrics.IncEventReceived("http")
	h.sink.Dispatch(r.Context(), ev)

	routed := h.sink.Routes(ev.Name)
	if routed == nil {
		routed = []probe.Type{}
	}
	h.logger.Debug("event ingested", "hook", ev.Name, "routed_to", routed)
	writeJSON(w, http.StatusAccepted, IngestResponse{Event: ev.Name, RoutedTo: routed})
}
