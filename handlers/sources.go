package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"streamgate/models"
	"streamgate/services/aggregate"
)

type sourceAggregator interface {
	Start(ctx context.Context, req models.ContentRequest, addons []models.Addon) (*aggregate.Lookup, error)
	Aggregate(ctx context.Context, req models.ContentRequest, addons []models.Addon) (aggregate.Result, error)
}

var _ sourceAggregator = (*aggregate.Service)(nil)

// SourcesHandler serves merged stream sources for a piece of content.
type SourcesHandler struct {
	Service sourceAggregator
	Store   addonStore
}

func NewSourcesHandler(svc sourceAggregator, store addonStore) *SourcesHandler {
	return &SourcesHandler{Service: svc, Store: store}
}

// Get runs a lookup to completion and returns the final merged result.
func (h *SourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := parseContentRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	addons, err := h.Store.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.Service.Aggregate(r.Context(), req, addons)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Events streams progressive lookup snapshots as server-sent events, one event
// per addon settle. The final event carries loading=false; clients that only
// want the end state can simply read until the stream closes.
func (h *SourcesHandler) Events(w http.ResponseWriter, r *http.Request) {
	req, err := parseContentRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	addons, err := h.Store.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	lookup, err := h.Service.Start(r.Context(), req, addons)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer lookup.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-lookup.Updates():
			if !open {
				return
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (h *SourcesHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// parseContentRequest builds a lookup request from query parameters. The
// "series" alias is accepted alongside the canonical media kinds.
func parseContentRequest(r *http.Request) (models.ContentRequest, error) {
	q := r.URL.Query()

	req := models.ContentRequest{
		ExternalID: strings.TrimSpace(q.Get("id")),
	}

	switch kind := strings.TrimSpace(q.Get("type")); kind {
	case "movie":
		req.Kind = models.MediaKindMovie
	case "show", "series":
		req.Kind = models.MediaKindShow
	default:
		return models.ContentRequest{}, fmt.Errorf("unknown media type %q", kind)
	}

	if req.Kind == models.MediaKindShow {
		season, err := strconv.Atoi(q.Get("season"))
		if err != nil {
			return models.ContentRequest{}, fmt.Errorf("invalid season %q", q.Get("season"))
		}
		episode, err := strconv.Atoi(q.Get("episode"))
		if err != nil {
			return models.ContentRequest{}, fmt.Errorf("invalid episode %q", q.Get("episode"))
		}
		req.Season = season
		req.Episode = episode
	}
	return req, nil
}
