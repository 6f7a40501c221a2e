package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"voicejournal/internal/checkin"
	"voicejournal/internal/entry"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string        `json:"error"`
	Session *checkin.View `json:"session,omitempty"`
}

// statusFor maps pipeline and store errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, checkin.ErrSafetyHalt):
		return http.StatusConflict
	case errors.Is(err, checkin.ErrSessionNotFound), errors.Is(err, entry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkin.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkin.ErrCapture):
		return http.StatusBadRequest
	case errors.Is(err, checkin.ErrPersistence), errors.Is(err, checkin.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, entry.ErrStaleDashboard):
		// the write itself went through
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, view *checkin.View) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("unhandled error")
		msg = "server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Session: view})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func idParam(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
