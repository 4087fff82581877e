// Package metrics is the process-wide Prometheus registry for every
// component that is not the pipeline core itself (internal/supervisor
// registers its own restart/state metrics directly, per its package
// doc). Everything here is exposed at GET /api/v1/metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ActiveRecordings is the current number of recordings the broker
	// considers active.
	ActiveRecordings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vmp_active_recordings",
		Help: "Number of recordings currently tracked as active by the broker.",
	})

	// ScheduleRejections counts RecordingBroker.Start calls rejected by
	// reason (UIDActive, DeadlinePast, TemplateError, StartFailed).
	ScheduleRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vmp_schedule_rejections_total",
		Help: "Recording schedule requests rejected, by reason.",
	}, []string{"reason"})

	// CalendarBackoffSeconds reports the scheduler's current poll
	// interval, including backoff.
	CalendarBackoffSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vmp_calendar_poll_interval_seconds",
		Help: "Current calendar feed poll interval, including backoff.",
	})

	// CalendarKnownUIDs reports the size of the in-process KnownUIDs set.
	CalendarKnownUIDs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vmp_calendar_known_uids",
		Help: "Number of calendar event UIDs already scheduled in this process.",
	})

	// ProfileDrift increments once per detected profile-directory change
	// after start-up (the active profile never hot-swaps).
	ProfileDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vmp_profile_drift_total",
		Help: "Number of profile-directory changes observed after the active profile was selected.",
	})
)

func init() {
	prometheus.MustRegister(
		ActiveRecordings,
		ScheduleRejections,
		CalendarBackoffSeconds,
		CalendarKnownUIDs,
		ProfileDrift,
	)
}
