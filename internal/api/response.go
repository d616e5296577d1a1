package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/amirk1998/stocktalk/pkg/errors"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 10 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a client-safe message. The cause of an
// internal failure is logged here and never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: errors.PublicMessage(err)})
}

// decodeJSON reads a JSON body into dst. Malformed or oversized input is a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewValidationError("invalid JSON body")
	}
	return nil
}
