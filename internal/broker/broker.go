// Package broker converts a calendar event (or an ad hoc operator
// request) into a recording.Recording, tracks active recordings
// thread-safely, and enforces per-UID uniqueness.
package broker

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TUM-Dev/VMP/internal/calendar"
	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/logging"
	"github.com/TUM-Dev/VMP/internal/metrics"
	"github.com/TUM-Dev/VMP/internal/profile"
	"github.com/TUM-Dev/VMP/internal/recording"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

const defaultRecordingExt = ".mp4"

// extForTemplate derives the recording file extension from the muxer the
// recording template names, falling back to mp4.
func extForTemplate(tmpl string) string {
	switch {
	case strings.Contains(tmpl, "matroskamux"):
		return ".mkv"
	case strings.Contains(tmpl, "oggmux"):
		return ".ogg"
	case strings.Contains(tmpl, "mpegtsmux"):
		return ".ts"
	default:
		return defaultRecordingExt
	}
}

// RecordingChannels names the channels a calendar-triggered recording
// binds as its video/audio source, configured once at start-up.
type RecordingChannels struct {
	Video string
	Audio string
}

// StartRequest describes one recording to start, whether it originated
// from a calendar event or an operator's POST /api/v1/recordings call.
type StartRequest struct {
	// UID ties the recording back to a calendar event. Empty for ad hoc
	// operator-scheduled recordings; a UUID is generated internally in
	// that case so the uniqueness invariant still has a key to guard.
	UID string

	Summary   string
	Location  string
	StartDate time.Time

	VideoChannel string
	AudioChannel string
	VideoBitrate int
	AudioBitrate int
	ScaledWidth  int
	ScaledHeight int

	// Deadline must be strictly after the current time at the moment of
	// scheduling; otherwise Start rejects the request with
	// ReasonDeadlinePast.
	Deadline time.Time

	// Path is the absolute destination file. If empty, Start derives
	// scratchDirectory/{UID} plus an extension chosen from the muxer the
	// recording template names (.mp4 when none is recognised).
	Path string

	// ProfileType selects profile.recordings[ProfileType]; defaults to
	// "default".
	ProfileType string
}

// Entry is a read-only snapshot of one tracked recording.
type Entry struct {
	UID         string
	Path        string
	Deadline    time.Time
	State       supervisor.State
	Status      recording.Status
	ProfileType string
}

type tracked struct {
	rec *recording.Recording
	req StartRequest
}

// Broker owns every active recording for the process lifetime.
type Broker struct {
	profiles   *profile.Registry
	runtime    supervisor.Runtime
	clk        clock.Clock
	scratchDir string
	history    *History
	logger     zerolog.Logger

	mu     sync.Mutex
	active map[string]*tracked
}

// New constructs a Broker. history may be nil, in which case start/end
// transitions are simply not audited.
func New(profiles *profile.Registry, runtime supervisor.Runtime, clk clock.Clock, scratchDir string, history *History) *Broker {
	return &Broker{
		profiles:   profiles,
		runtime:    runtime,
		clk:        clk,
		scratchDir: scratchDir,
		history:    history,
		logger:     logging.WithComponent("broker"),
		active:     make(map[string]*tracked),
	}
}

// NotifyFunc returns a calendar.NotifyFunc that starts a default-profile
// recording bound to channels for every calendar event the scheduler
// arms — the integration point between the scheduler and the broker.
func (b *Broker) NotifyFunc(channels RecordingChannels) calendar.NotifyFunc {
	return func(e calendar.Event) {
		req := StartRequest{
			UID:          e.UID,
			Summary:      e.Summary,
			Location:     e.Location,
			StartDate:    e.StartDate,
			Deadline:     e.EndDate,
			VideoChannel: channels.Video,
			AudioChannel: channels.Audio,
		}
		if _, err := b.Start(context.Background(), req); err != nil {
			b.logger.Warn().Err(err).Str("uid", e.UID).Msg("calendar-triggered recording rejected")
		}
	}
}

// Start builds a recording from req and starts it. It returns
// *ScheduleRejectedError for every rejection path: ReasonUIDActive,
// ReasonDeadlinePast, ReasonTemplateError, and ReasonStartFailed.
func (b *Broker) Start(ctx context.Context, req StartRequest) (*Entry, error) {
	uid := req.UID
	if uid == "" {
		uid = uuid.New().String()
	}
	if req.ProfileType == "" {
		req.ProfileType = "default"
	}
	if req.Path == "" {
		ext := defaultRecordingExt
		if tmpl, ok := b.profiles.Active().Recordings[req.ProfileType]; ok {
			ext = extForTemplate(tmpl)
		}
		req.Path = filepath.Join(b.scratchDir, uid+ext)
	}

	if !req.Deadline.After(b.clk.Now()) {
		metrics.ScheduleRejections.WithLabelValues(string(ReasonDeadlinePast)).Inc()
		return nil, &ScheduleRejectedError{UID: uid, Reason: ReasonDeadlinePast}
	}

	if err := b.reserve(uid); err != nil {
		return nil, err
	}

	description, err := b.profiles.PipelineFor(profile.KindRecordings, req.ProfileType, templateVariables(uid, req))
	if err != nil {
		b.release(uid)
		metrics.ScheduleRejections.WithLabelValues(string(ReasonTemplateError)).Inc()
		return nil, &ScheduleRejectedError{UID: uid, Reason: ReasonTemplateError, Detail: err.Error()}
	}

	rec := recording.New(uid, description, b.runtime, req.Path, req.Deadline, b.clk, &delegate{broker: b, uid: uid})

	b.mu.Lock()
	b.active[uid] = &tracked{rec: rec, req: req}
	metrics.ActiveRecordings.Set(float64(len(b.active)))
	b.mu.Unlock()

	if !rec.Start() {
		b.release(uid)
		metrics.ScheduleRejections.WithLabelValues(string(ReasonStartFailed)).Inc()
		return nil, &ScheduleRejectedError{UID: uid, Reason: ReasonStartFailed}
	}

	if err := b.history.RecordStart(ctx, uid, req.Path, req.ProfileType); err != nil {
		b.logger.Warn().Err(err).Str("uid", uid).Msg("failed to record history")
	}
	if err := writeSidecar(req.Path, uid, req.ProfileType, req.Deadline); err != nil {
		b.logger.Warn().Err(err).Str("uid", uid).Msg("failed to write recording sidecar")
	}

	b.logger.Info().Str("uid", uid).Str("path", req.Path).Time("deadline", req.Deadline).Msg("recording started")

	return &Entry{UID: uid, Path: req.Path, Deadline: req.Deadline, State: rec.State(), Status: rec.Status(), ProfileType: req.ProfileType}, nil
}

// reserve claims uid in the active map before the (possibly slow)
// template expansion and supervisor construction run, so two concurrent
// Start calls for the same uid cannot both proceed past this point.
func (b *Broker) reserve(uid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.active[uid]; exists {
		metrics.ScheduleRejections.WithLabelValues(string(ReasonUIDActive)).Inc()
		return &ScheduleRejectedError{UID: uid, Reason: ReasonUIDActive}
	}
	b.active[uid] = &tracked{}
	return nil
}

func (b *Broker) release(uid string) {
	b.mu.Lock()
	delete(b.active, uid)
	metrics.ActiveRecordings.Set(float64(len(b.active)))
	b.mu.Unlock()
}

// finish removes uid from the active set once its supervisor reaches
// EndOfStream or Error, and appends the terminal status to History.
func (b *Broker) finish(uid string) {
	b.mu.Lock()
	tr, ok := b.active[uid]
	if ok {
		delete(b.active, uid)
	}
	metrics.ActiveRecordings.Set(float64(len(b.active)))
	b.mu.Unlock()

	if !ok || tr.rec == nil {
		return
	}

	if err := b.history.RecordEnd(context.Background(), uid, string(tr.rec.Status())); err != nil {
		b.logger.Warn().Err(err).Str("uid", uid).Msg("failed to record history end")
	}
}

// List returns an MT-safe snapshot of every active recording.
func (b *Broker) List() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.active))
	for uid, tr := range b.active {
		if tr.rec == nil {
			continue // reservation placeholder mid-construction
		}
		out = append(out, Entry{
			UID:         uid,
			Path:        tr.rec.Path(),
			Deadline:    tr.rec.Deadline(),
			State:       tr.rec.State(),
			Status:      tr.rec.Status(),
			ProfileType: tr.req.ProfileType,
		})
	}
	return out
}

// StopAll stops every active recording without waiting for EOS, as part
// of daemon shutdown, so no recording file is left held open.
func (b *Broker) StopAll() {
	b.mu.Lock()
	recs := make([]*recording.Recording, 0, len(b.active))
	for _, tr := range b.active {
		if tr.rec != nil {
			recs = append(recs, tr.rec)
		}
	}
	b.mu.Unlock()

	for _, rec := range recs {
		rec.Stop()
	}
}

// History exposes the broker's audit log for the control plane's
// includeHistory query parameter.
func (b *Broker) History() *History { return b.history }

func templateVariables(uid string, req StartRequest) map[string]string {
	vars := map[string]string{
		"uid":          uid,
		"path":         req.Path,
		"summary":      req.Summary,
		"location":     req.Location,
		"startDate":    req.StartDate.Format(time.RFC3339),
		"endDate":      req.Deadline.Format(time.RFC3339),
		"videoChannel": req.VideoChannel,
		"audioChannel": req.AudioChannel,
	}
	if req.VideoBitrate > 0 {
		vars["videoBitrate"] = strconv.Itoa(req.VideoBitrate)
	}
	if req.AudioBitrate > 0 {
		vars["audioBitrate"] = strconv.Itoa(req.AudioBitrate)
	}
	if req.ScaledWidth > 0 {
		vars["scaledWidth"] = strconv.Itoa(req.ScaledWidth)
	}
	if req.ScaledHeight > 0 {
		vars["scaledHeight"] = strconv.Itoa(req.ScaledHeight)
	}
	return vars
}

// delegate implements supervisor.Delegate (via recording.Recording's own
// wrapped-delegate seam) to notice terminal states and release the
// broker's bookkeeping.
type delegate struct {
	broker *Broker
	uid    string
}

func (d *delegate) OnStateChanged(_ string, state supervisor.State) {
	if state == supervisor.StateEndOfStream || state == supervisor.StateError {
		d.broker.finish(d.uid)
	}
}

func (d *delegate) OnBusEvent(string, supervisor.BusMessage) {}
