package netwalker

import (
	"fmt"
	"log/slog"
	"time"
)

// EventKind enumerates the structured events the Discovery Engine emits.
// A sink (out of scope per §1) turns these into log lines or a banner;
// the core never formats text itself.
type EventKind string

const (
	EventDeviceStatus   EventKind = "device_status"   // a device reached a final disposition
	EventProgress       EventKind = "progress"        // §4.6 progress event after each worker completes
	EventDeadlineReset  EventKind = "deadline_reset"   // §4.6 deadline reset accounting
	EventDrainMode      EventKind = "drain_mode"       // engine entered drain mode
	EventLeakPurge      EventKind = "leak_purge"       // §4.1 leak-surveillance close_all safety purge
	EventStoreError     EventKind = "store_error"      // §7 store-error, non-fatal
)

// Event is one structured occurrence during a crawl. Fields not relevant to
// Kind are left zero-valued.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// Device-status fields.
	Hostname string
	Status   DeviceStatusKind
	Reason   string

	// Progress fields (spec.md §4.6).
	Completed         int
	TotalSeenSoFar    int
	PercentComplete   float64
	RemainingInFrontier int

	// Deadline-reset fields.
	DeadlineResets int
	MaxResets      int

	// Free-form detail, e.g. a leak-purge count or a store error message.
	Detail string
}

// EventSink receives Events as the crawl progresses. Implementations must
// not block the Discovery Engine for long; a slow sink should buffer.
type EventSink interface {
	Emit(Event)
}

// NopEventSink discards every event. Used by components under test that do
// not care about observability.
type NopEventSink struct{}

// Emit implements EventSink.
func (NopEventSink) Emit(Event) {}

// SlogEventSink formats Events through log/slog, the natural next step in
// the teacher's own idiom (it has no logging dependency beyond stdlib log;
// see DESIGN.md). It is the default sink a CLI entry point would wire up.
type SlogEventSink struct {
	Logger *slog.Logger
}

// NewSlogEventSink wraps logger, or the default slog logger if nil.
func NewSlogEventSink(logger *slog.Logger) *SlogEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEventSink{Logger: logger}
}

// Emit implements EventSink.
func (s *SlogEventSink) Emit(e Event) {
	switch e.Kind {
	case EventDeviceStatus:
		s.Logger.Info("device status", "hostname", e.Hostname, "status", string(e.Status), "reason", e.Reason)
	case EventProgress:
		s.Logger.Info("progress", "completed", e.Completed, "total_seen", e.TotalSeenSoFar,
			"percent", fmt.Sprintf("%.1f", e.PercentComplete), "remaining", e.RemainingInFrontier)
	case EventDeadlineReset:
		s.Logger.Warn("deadline reset", "resets", e.DeadlineResets, "max", e.MaxResets)
	case EventDrainMode:
		s.Logger.Warn("engine entering drain mode", "detail", e.Detail)
	case EventLeakPurge:
		s.Logger.Warn("session leak purge triggered", "detail", e.Detail)
	case EventStoreError:
		s.Logger.Error("store error", "detail", e.Detail)
	default:
		s.Logger.Info(string(e.Kind), "detail", e.Detail)
	}
}

// emit is a nil-safe convenience used throughout the engine/collector so a
// caller that passes a nil sink doesn't need to be checked everywhere.
func emit(sink EventSink, e Event) {
	if sink == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	sink.Emit(e)
}
