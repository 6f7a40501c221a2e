package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"voicejournal/internal/auth"
	"voicejournal/internal/capture"
	"voicejournal/internal/checkin"
	"voicejournal/internal/crisis"
	"voicejournal/internal/mood"
	"voicejournal/internal/response"
)

type CheckinHandler struct {
	Sessions  *checkin.Registry
	Pipeline  *checkin.Pipeline
	Resources crisis.ResourceDirectory
}

// session resolves the {id} session owned by the caller, writing a 404
// when there is none.
func (h *CheckinHandler) session(w http.ResponseWriter, r *http.Request) (*checkin.Session, bool) {
	uid, _ := auth.UserIDFromContext(r.Context())
	s, err := h.Sessions.Get(uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return nil, false
	}
	return s, true
}

func (h *CheckinHandler) respond(w http.ResponseWriter, r *http.Request, v checkin.View, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}

	var halt *checkin.HaltError
	if errors.As(err, &halt) {
		h.writeHalt(w, r, halt, v)
		return
	}
	writeError(w, r, err, &v)
}

type haltBody struct {
	Error     string            `json:"error"`
	Decision  crisis.Decision   `json:"decision"`
	Resources []crisis.Resource `json:"resources"`
	Session   checkin.View      `json:"session"`
}

func (h *CheckinHandler) writeHalt(w http.ResponseWriter, r *http.Request, halt *checkin.HaltError, v checkin.View) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var resources []crisis.Resource
	if h.Resources != nil {
		res, err := h.Resources.Resources(r.Context(), uid)
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("crisis resources unavailable")
		}
		resources = res
	}
	if resources == nil {
		resources = []crisis.Resource(crisis.DefaultResources)
	}
	writeJSON(w, http.StatusConflict, haltBody{
		Error:     halt.Error(),
		Decision:  halt.Decision,
		Resources: resources,
		Session:   v,
	})
}

func (h *CheckinHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	s := h.Sessions.Create(uid)
	writeJSON(w, http.StatusCreated, s.View())
}

func (h *CheckinHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

type toggleReq struct {
	MimeType string `json:"mime_type"`
}

// Toggle starts or stops recording. Stopping transcribes inline and ignores
// client cancellation.
func (h *CheckinHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req toggleReq
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.MimeType == "" {
		req.MimeType = "audio/webm"
	}
	v, err := h.Pipeline.Toggle(context.WithoutCancel(r.Context()), s, req.MimeType)
	h.respond(w, r, v, err)
}

// Audio appends the raw request body to the recording.
func (h *CheckinHandler) Audio(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, capture.DefaultMaxBytes))
	if err != nil {
		http.Error(w, "audio chunk too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty audio chunk", http.StatusBadRequest)
		return
	}
	if _, err := h.Pipeline.WriteAudio(s, body); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *CheckinHandler) Abort(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Pipeline.Abort(s)
	h.respond(w, r, v, err)
}

type moodReq struct {
	Mood string `json:"mood"`
	Tone string `json:"tone"`
}

func (h *CheckinHandler) SelectMood(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req moodReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	m := mood.Tag(strings.ToLower(strings.TrimSpace(req.Mood)))
	v, err := h.Pipeline.SelectMood(s, m, response.Tone(req.Tone))
	h.respond(w, r, v, err)
}

func (h *CheckinHandler) Generate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Pipeline.Generate(context.WithoutCancel(r.Context()), s)
	h.respond(w, r, v, err)
}

func (h *CheckinHandler) Consent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Pipeline.Consent(s)
	h.respond(w, r, v, err)
}

func (h *CheckinHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Pipeline.Reset(s)
	h.respond(w, r, v, err)
}

func (h *CheckinHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	if err := h.Sessions.Delete(uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckinHandler) CrisisResources(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	dir := h.Resources
	if dir == nil {
		dir = crisis.DefaultResources
	}
	res, err := dir.Resources(r.Context(), uid)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
