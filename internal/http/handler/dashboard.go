package handler

import (
	"net/http"

	"github.com/dustin/go-humanize"

	"voicejournal/internal/analytics"
	"voicejournal/internal/auth"
)

type DashboardHandler struct {
	Analytics *analytics.Service
}

type dashboardDTO struct {
	*analytics.Dashboard
	LastCheckInAgo string `json:"last_check_in_ago,omitempty"`
}

func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	d, err := h.Analytics.GetDashboardData(r.Context(), uid)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := dashboardDTO{Dashboard: d}
	if d.Streak.LastCheckIn != nil {
		out.LastCheckInAgo = humanize.Time(*d.Streak.LastCheckIn)
	}
	writeJSON(w, http.StatusOK, out)
}
