package alert

import (
	"context"
	"sync"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"go.uber.org/zap"
)

type RecordStore interface {
	SaveEvent(ctx context.Context, rec models.EventRecord) error
}

// Archiver persists one record per event once both halves are known: the
// dispatch report and the event's terminal state from the camera's machine.
// Whichever arrives first waits for the other.
type Archiver struct {
	store  RecordStore
	logger *zap.Logger

	mu       sync.Mutex
	reports  map[string]Report
	finished map[string]*models.AccidentEvent
}

func NewArchiver(store RecordStore, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:    store,
		logger:   logger,
		reports:  make(map[string]Report),
		finished: make(map[string]*models.AccidentEvent),
	}
}

func (a *Archiver) AlertAttempted(models.AlertAttempt) {}

func (a *Archiver) RedispatchSuppressed(string, string, models.DispatchStatus) {}

func (a *Archiver) DispatchCompleted(ctx context.Context, report Report) {
	id := report.Event.ID
	a.mu.Lock()
	ev, ok := a.finished[id]
	if ok {
		delete(a.finished, id)
	} else {
		a.reports[id] = report
	}
	a.mu.Unlock()

	if ok {
		a.save(ctx, finalRecord(report.Record(), ev))
	}
}

// EventFinished takes an event that reached RESOLVED, or EXPIRED because its
// dispatch was refused. A refused event never gets a report and is saved
// straight away.
func (a *Archiver) EventFinished(ev *models.AccidentEvent) {
	if ev == nil {
		return
	}
	ctx := context.Background()

	if ev.State == models.StateExpired {
		a.mu.Lock()
		report, ok := a.reports[ev.ID]
		delete(a.reports, ev.ID)
		a.mu.Unlock()

		rec := Report{Event: ev, Status: models.DispatchFailed}.Record()
		if ok {
			rec = report.Record()
		}
		a.save(ctx, finalRecord(rec, ev))
		return
	}

	a.mu.Lock()
	report, ok := a.reports[ev.ID]
	if ok {
		delete(a.reports, ev.ID)
	} else {
		a.finished[ev.ID] = ev.Clone()
	}
	a.mu.Unlock()

	if ok {
		a.save(ctx, finalRecord(report.Record(), ev))
	}
}

// Flush saves every half-finished record as it stands. It is called on
// shutdown, when no further reports or resolutions will arrive.
func (a *Archiver) Flush(ctx context.Context) {
	a.mu.Lock()
	reports, finished := a.reports, a.finished
	a.reports = make(map[string]Report)
	a.finished = make(map[string]*models.AccidentEvent)
	a.mu.Unlock()

	for _, report := range reports {
		a.save(ctx, report.Record())
	}
	for _, ev := range finished {
		a.save(ctx, finalRecord(Report{Event: ev, Status: models.DispatchPending}.Record(), ev))
	}
	if n := len(reports) + len(finished); n > 0 {
		a.logger.Info("Flushed unfinished accident records", zap.Int("records", n))
	}
}

// Pending reports how many events are waiting for their other half.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reports) + len(a.finished)
}

func (a *Archiver) save(ctx context.Context, rec models.EventRecord) {
	if err := a.store.SaveEvent(ctx, rec); err != nil {
		a.logger.Error("Failed to persist accident record",
			zap.String("event_id", rec.EventID),
			zap.Error(err))
	}
}

// finalRecord overlays the machine's final view of the event on a record
// built from the dispatch report.
func finalRecord(rec models.EventRecord, ev *models.AccidentEvent) models.EventRecord {
	rec.State = ev.State
	rec.MergedTriggers = ev.MergedTriggers
	if ev.PeakConfidence > rec.PeakConfidence {
		rec.PeakConfidence = ev.PeakConfidence
	}
	if ev.VehicleCount > rec.VehicleCount {
		rec.VehicleCount = ev.VehicleCount
	}
	if t := resolvedAt(ev.ResolvedAt); t != nil {
		rec.ResolvedAt = t
	}
	return rec
}

var _ Observer = (*Archiver)(nil)

func resolvedAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
