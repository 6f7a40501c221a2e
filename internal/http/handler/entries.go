package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"voicejournal/internal/auth"
	"voicejournal/internal/entry"
)

const (
	defaultEntryLimit = 50
	maxEntryLimit     = 200
)

type EntryHandler struct {
	Entries *entry.Service

	parser *when.Parser
	now    func() time.Time
}

func NewEntryHandler(entries *entry.Service) *EntryHandler {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &EntryHandler{Entries: entries, parser: w, now: time.Now}
}

type entryDTO struct {
	entry.Entry
	CreatedAgo string `json:"created_ago"`
}

func toDTO(e entry.Entry) entryDTO {
	return entryDTO{Entry: e, CreatedAgo: humanize.Time(e.CreatedAt)}
}

// List supports mood, tag, q (transcript or summary text), limit, and
// since/until given as RFC3339, a plain date, or natural language such as
// "last week".
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	f := entry.Filter{
		Mood:  strings.ToLower(strings.TrimSpace(q.Get("mood"))),
		Tag:   strings.ToLower(strings.TrimSpace(q.Get("tag"))),
		Text:  strings.TrimSpace(q.Get("q")),
		Limit: defaultEntryLimit,
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxEntryLimit {
			http.Error(w, fmt.Sprintf("limit must be 1..%d", maxEntryLimit), http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		t, ok := h.parseTime(v)
		if !ok {
			http.Error(w, "invalid "+p.name, http.StatusBadRequest)
			return
		}
		*p.dst = &t
	}

	rows, err := h.Entries.List(r.Context(), uid, f)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]entryDTO, 0, len(rows))
	for _, e := range rows {
		out = append(out, toDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *EntryHandler) parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	res, err := h.parser.Parse(s, h.now())
	if err != nil || res == nil {
		return time.Time{}, false
	}
	return res.Time, true
}

func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	e, err := h.Entries.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*e))
}

func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.Entries.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
