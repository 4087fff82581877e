package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TUM-Dev/VMP/internal/broker"
	"github.com/TUM-Dev/VMP/internal/channel"
	"github.com/TUM-Dev/VMP/internal/control"
)

type handlers struct {
	adapter *control.Adapter
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if !h.adapter.Ready() {
		writeError(w, r, http.StatusServiceUnavailable, "not_ready", "profile not resolved or channels not started")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.adapter.Configuration())
}

func (h *handlers) listChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, channelResponses(h.adapter.Channels()))
}

type channelResponse struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	State            string `json:"state"`
	NumberOfRestarts int    `json:"numberOfRestarts"`
}

func channelResponses(statuses []channel.Status) []channelResponse {
	out := make([]channelResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, channelResponse{
			Name:             s.Name,
			Type:             s.Type,
			State:            string(s.State),
			NumberOfRestarts: s.RestartCount,
		})
	}
	return out
}

func (h *handlers) channelGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	graph := h.adapter.ChannelGraph(name)
	if graph == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "channel unknown or has no live pipeline")
		return
	}
	writeDot(w, graph)
}

func (h *handlers) mountpointGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	graph := h.adapter.MountpointGraph(name)
	if graph == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "mountpoint unknown or not yet materialised")
		return
	}
	writeDot(w, graph)
}

func (h *handlers) profileDiagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := h.adapter.ProfileDiagnostics(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "profile_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) listRecordings(w http.ResponseWriter, r *http.Request) {
	entries := h.adapter.Recordings()

	if r.URL.Query().Get("includeHistory") == "" {
		writeJSON(w, http.StatusOK, entries)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("historyLimit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	history, err := h.adapter.RecordingHistory(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "history_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Active  []broker.Entry      `json:"active"`
		History []broker.HistoryRow `json:"history"`
	}{Active: entries, History: history})
}

// recordingRequest is the POST /api/v1/recordings request body.
type recordingRequest struct {
	// UID is optional; it ties the recording to a calendar event and is
	// what the 409-on-duplicate contract keys on. Absent, the broker
	// assigns a fresh one.
	UID          string    `json:"uid"`
	VideoChannel string    `json:"videoChannel"`
	AudioChannel string    `json:"audioChannel"`
	VideoBitrate int       `json:"videoBitrate"`
	AudioBitrate int       `json:"audioBitrate"`
	ScaledWidth  int       `json:"scaledWidth"`
	ScaledHeight int       `json:"scaledHeight"`
	Deadline     time.Time `json:"deadline"`
	Path         string    `json:"path"`
}

func (h *handlers) scheduleRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	entry, err := h.adapter.ScheduleRecording(r.Context(), broker.StartRequest{
		UID:          req.UID,
		VideoChannel: req.VideoChannel,
		AudioChannel: req.AudioChannel,
		VideoBitrate: req.VideoBitrate,
		AudioBitrate: req.AudioBitrate,
		ScaledWidth:  req.ScaledWidth,
		ScaledHeight: req.ScaledHeight,
		Deadline:     req.Deadline,
		Path:         req.Path,
	})
	if err != nil {
		writeScheduleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func writeScheduleError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *broker.ScheduleRejectedError
	if !errors.As(err, &rejected) {
		writeError(w, r, http.StatusInternalServerError, "schedule_failed", err.Error())
		return
	}

	status := http.StatusBadRequest
	if rejected.Reason == broker.ReasonUIDActive {
		status = http.StatusConflict
	} else if rejected.Reason == broker.ReasonStartFailed {
		status = http.StatusInternalServerError
	}
	writeError(w, r, status, string(rejected.Reason), rejected.Error())
}

func writeDot(w http.ResponseWriter, graph []byte) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(graph)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
