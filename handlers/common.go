package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"streamgate/services/addon"
	"streamgate/services/addonstore"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service-layer errors onto HTTP responses: caller
// mistakes are 4xx, addon misbehavior is a gateway problem.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		configErr     *addon.ConfigError
		validationErr *addon.ValidationError
		timeoutErr    *addon.TimeoutError
		protoErr      *addon.ProtocolError
	)
	switch {
	case errors.As(err, &configErr), errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &timeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	case errors.As(err, &protoErr):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.Is(err, addonstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, addonstore.ErrURLRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
