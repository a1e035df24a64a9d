package extract

// EventKind enumerates the ordered progress events an extraction emits
// (spec §6). Transport (how an event reaches caller code) is an external
// collaborator; this package only defines the event vocabulary and the
// points at which it fires.
type EventKind int

const (
	EventExtractTreeBegin EventKind = iota
	EventExtractImageBegin
	EventExtractDirStructureBegin
	EventExtractDirStructureEnd
	EventExtractDentry
	EventExtractStreams
	EventApplyTimestamps
	EventExtractTreeEnd
	EventExtractImageEnd
)

// Event is the payload delivered to a Progress callback.
type Event struct {
	Kind EventKind

	// DentryPath is set for EventExtractDentry: the wim-relative path just
	// queued for extraction (only emitted when VERBOSE is set).
	DentryPath string

	// CompletedBytes/TotalBytes are set for EventExtractStreams and are
	// non-decreasing across one extract call (spec §8 progress
	// monotonicity), terminating at TotalBytes.
	CompletedBytes int64
	TotalBytes     int64
	NumStreams     int
}

// Progress receives extraction events. Implementations must not mutate
// engine state they observe (spec §5) — the only reentrant callback in
// the engine.
type Progress interface {
	OnProgress(Event) error
}

// ProgressFunc adapts a plain function to the Progress interface.
type ProgressFunc func(Event) error

func (f ProgressFunc) OnProgress(e Event) error { return f(e) }

// NoProgress discards every event.
var NoProgress Progress = ProgressFunc(func(Event) error { return nil })

// progressTracker accumulates completed/total bytes and fires
// EventExtractStreams at each whole-percent boundary and once more at
// completion, per spec §4.5 Phase B and §8's monotonicity invariant.
type progressTracker struct {
	progress           Progress
	totalBytes         int64
	numStreams         int
	completedBytes     int64
	granularityPercent int
	lastFiredPercent   int
}

func newProgressTracker(p Progress, totalBytes int64, numStreams int, granularityPercent int) *progressTracker {
	if granularityPercent <= 0 {
		granularityPercent = 1
	}
	return &progressTracker{progress: p, totalBytes: totalBytes, numStreams: numStreams, granularityPercent: granularityPercent}
}

// add advances completedBytes and fires EventExtractStreams if a new
// granularity boundary (or final completion) has been crossed.
func (pt *progressTracker) add(n int64) error {
	pt.completedBytes += n
	if pt.totalBytes <= 0 {
		return nil
	}
	percent := int(pt.completedBytes * 100 / pt.totalBytes)
	done := pt.completedBytes >= pt.totalBytes
	if percent-pt.lastFiredPercent >= pt.granularityPercent || (done && pt.completedBytes > 0) {
		pt.lastFiredPercent = percent
		return pt.progress.OnProgress(Event{
			Kind:           EventExtractStreams,
			CompletedBytes: pt.completedBytes,
			TotalBytes:     pt.totalBytes,
			NumStreams:     pt.numStreams,
		})
	}
	return nil
}
