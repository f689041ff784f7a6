package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/cache"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/location"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/queue"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = queue.ErrQueueFull
	ErrStopped   = queue.ErrStopped
)

// Observer is told about every attempt and every finished event.
type Observer interface {
	AlertAttempted(attempt models.AlertAttempt)
	RedispatchSuppressed(eventID, channel string, status models.DispatchStatus)
	DispatchCompleted(ctx context.Context, report Report)
}

// Report is the outcome of dispatching one event on all its channels.
type Report struct {
	Event       *models.AccidentEvent
	Address     string
	Status      models.DispatchStatus
	Channels    map[string]models.DispatchStatus
	Attempts    []models.AlertAttempt
	CompletedAt time.Time
}

// Record converts the report into its persisted form.
func (r Report) Record() models.EventRecord {
	ev := r.Event
	channels := make(map[string]models.DispatchStatus, len(r.Channels))
	for k, v := range r.Channels {
		channels[k] = v
	}
	return models.EventRecord{
		EventID:           ev.ID,
		CameraID:          ev.CameraID,
		CreatedAt:         ev.CreatedAt,
		PeakConfidence:    ev.PeakConfidence,
		Classification:    ev.Classification,
		State:             ev.State,
		MergedTriggers:    ev.MergedTriggers,
		ResolvedAt:        resolvedAt(ev.ResolvedAt),
		VehicleCount:      ev.VehicleCount,
		Location:          ev.Location,
		LocationAvailable: ev.LocationAvailable,
		Address:           r.Address,
		Status:            r.Status,
		Channels:          channels,
		Attempts:          append([]models.AlertAttempt(nil), r.Attempts...),
	}
}

type job struct {
	route Route
	batch *batch
}

// batch tracks one event across its channel jobs.
type batch struct {
	event       *models.AccidentEvent
	addressOnce sync.Once
	address     string

	mu        sync.Mutex
	remaining int
	channels  map[string]models.DispatchStatus
	attempts  []models.AlertAttempt
}

type Dispatcher struct {
	routes    []Route
	cfg       config.AlertsConfig
	queue     *queue.Queue[job]
	ledger    *Ledger
	geocoder  location.Geocoder
	observers []Observer
	logger    *zap.Logger

	mu    sync.Mutex
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewDispatcher(cfg config.AlertsConfig, routes []Route, ledgerStore cache.Cache, geocoder location.Geocoder, logger *zap.Logger, observers ...Observer) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	d := &Dispatcher{
		routes:    routes,
		cfg:       cfg,
		ledger:    NewLedger(ledgerStore, cfg.LedgerRetention),
		geocoder:  geocoder,
		observers: observers,
		logger:    logger,
		now:       time.Now,
		sleep:     BackoffSleep,
	}
	d.queue = queue.New("alerts", cfg.QueueSize, cfg.Workers, d.run, logger)
	return d
}

// Dispatch hands the event to the worker pool, one job per channel, and
// returns immediately. Channels already dispatched for this event are
// skipped.
func (d *Dispatcher) Dispatch(ev *models.AccidentEvent) error {
	if ev == nil || ev.ID == "" {
		return errors.New("dispatch requires an event with an id")
	}
	ctx := context.Background()

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.queue.IsRunning() {
		return ErrStopped
	}

	var fresh []Route
	for _, route := range d.routes {
		if entry, exists := d.ledger.Get(ctx, ev.ID, route.Channel); exists {
			d.logger.Info("Alert already dispatched, ignoring",
				zap.String("event_id", ev.ID),
				zap.String("channel", route.Channel),
				zap.String("status", string(entry.Status)))
			for _, o := range d.observers {
				o.RedispatchSuppressed(ev.ID, route.Channel, entry.Status)
			}
			continue
		}
		fresh = append(fresh, route)
	}
	if len(fresh) == 0 {
		return nil
	}

	if free := d.queue.Capacity() - d.queue.Size(); free < len(fresh) {
		return ErrQueueFull
	}

	b := &batch{
		event:     ev.Clone(),
		remaining: len(fresh),
		channels:  make(map[string]models.DispatchStatus, len(fresh)),
	}
	for _, route := range fresh {
		b.channels[route.Channel] = models.DispatchPending
		if err := d.ledger.Put(ctx, LedgerEntry{EventID: ev.ID, Channel: route.Channel, Status: models.DispatchPending, UpdatedAt: d.now()}); err != nil {
			d.logger.Warn("Failed to record dispatch", zap.Error(err))
		}
	}

	for i, route := range fresh {
		if err := d.queue.Enqueue(job{route: route, batch: b}); err != nil {
			if i == 0 {
				for _, r := range fresh {
					_ = d.ledger.Delete(ctx, ev.ID, r.Channel)
				}
				return err
			}
			for _, skipped := range fresh[i:] {
				d.finishChannel(ctx, b, skipped.Channel, models.DispatchFailed, 0)
			}
			d.logger.Error("Alert partially enqueued", zap.String("event_id", ev.ID), zap.Error(err))
			return nil
		}
	}

	d.logger.Info("Alert dispatch queued",
		zap.String("event_id", ev.ID),
		zap.Int("channels", len(fresh)))
	return nil
}

func (d *Dispatcher) run(ctx context.Context, j job) {
	ev := j.batch.event
	route := j.route
	message := FormatMessage(ev, d.address(ctx, j.batch))

	delivered := make(map[string]bool)
	dropped := make(map[string]bool)
	status := models.DispatchFailed
	attempts := 0

	for n := 1; n <= d.cfg.MaxAttempts; n++ {
		if n > 1 && !d.sleep(ctx, d.Backoff(n-1)) {
			break
		}
		attempts = n

		attempt := models.AlertAttempt{
			EventID:   ev.ID,
			Channel:   route.Channel,
			Attempt:   n,
			Timestamp: d.now(),
			Outcome:   models.OutcomePending,
		}
		_ = d.ledger.Put(ctx, LedgerEntry{EventID: ev.ID, Channel: route.Channel, Status: models.DispatchPending, Attempts: n, UpdatedAt: attempt.Timestamp})

		err := d.sendAll(ctx, route, message, ev.ID, delivered, dropped)
		if err == nil {
			attempt.Outcome = models.OutcomeSuccess
		} else {
			attempt.Outcome = models.OutcomeFailed
			attempt.Error = err.Error()
		}
		d.recordAttempt(j.batch, attempt)

		pending := len(route.destinations()) - len(delivered) - len(dropped)
		if pending == 0 {
			if len(delivered) > 0 {
				status = models.DispatchSent
			}
			break
		}
		d.logger.Warn("Alert attempt failed",
			zap.String("event_id", ev.ID),
			zap.String("channel", route.Channel),
			zap.Int("attempt", n),
			zap.Error(err))
	}

	d.finishChannel(ctx, j.batch, route.Channel, status, attempts)
}

// sendAll tries every destination not yet delivered or permanently failed.
func (d *Dispatcher) sendAll(ctx context.Context, route Route, message, eventID string, delivered, dropped map[string]bool) error {
	var errs []error
	for _, dest := range route.destinations() {
		if delivered[dest] || dropped[dest] {
			continue
		}
		err := d.send(ctx, route.Gateway, dest, message, eventID)
		switch {
		case err == nil:
			delivered[dest] = true
		case IsPermanent(err):
			dropped[dest] = true
			errs = append(errs, fmt.Errorf("%s: %w", dest, err))
		default:
			errs = append(errs, fmt.Errorf("%s: %w", dest, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, gw Gateway, dest, message, eventID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gateway %s panic: %v", gw.Name(), r)
		}
	}()
	if d.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
	}
	return gw.Send(ctx, dest, message, eventID)
}

func (d *Dispatcher) recordAttempt(b *batch, attempt models.AlertAttempt) {
	b.mu.Lock()
	b.attempts = append(b.attempts, attempt)
	b.mu.Unlock()
	for _, o := range d.observers {
		o.AlertAttempted(attempt)
	}
}

func (d *Dispatcher) finishChannel(ctx context.Context, b *batch, channel string, status models.DispatchStatus, attempts int) {
	_ = d.ledger.Put(ctx, LedgerEntry{EventID: b.event.ID, Channel: channel, Status: status, Attempts: attempts, UpdatedAt: d.now()})

	b.mu.Lock()
	b.channels[channel] = status
	b.remaining--
	done := b.remaining == 0
	var report Report
	if done {
		report = d.report(b)
	}
	b.mu.Unlock()

	d.logger.Info("Alert channel finished",
		zap.String("event_id", b.event.ID),
		zap.String("channel", channel),
		zap.String("status", string(status)),
		zap.Int("attempts", attempts))

	if done {
		for _, o := range d.observers {
			o.DispatchCompleted(ctx, report)
		}
	}
}

// report builds the final report. Caller holds b.mu.
func (d *Dispatcher) report(b *batch) Report {
	status := models.DispatchFailed
	channels := make(map[string]models.DispatchStatus, len(b.channels))
	for ch, s := range b.channels {
		channels[ch] = s
		if s == models.DispatchSent {
			status = models.DispatchSent
		}
	}
	ev := b.event.Clone()
	ev.Attempts = append([]models.AlertAttempt(nil), b.attempts...)
	return Report{
		Event:       ev,
		Address:     b.address,
		Status:      status,
		Channels:    channels,
		Attempts:    append([]models.AlertAttempt(nil), b.attempts...),
		CompletedAt: d.now(),
	}
}

func (d *Dispatcher) address(ctx context.Context, b *batch) string {
	b.addressOnce.Do(func() {
		b.address = location.Describe(ctx, d.geocoder, b.event.Location)
	})
	return b.address
}

// Backoff returns the wait before the retry that follows failed attempt n:
// base*2^(n-1), capped at the configured maximum.
func (d *Dispatcher) Backoff(n int) time.Duration {
	wait := d.cfg.BaseBackoff
	for i := 1; i < n; i++ {
		wait *= 2
		if d.cfg.MaxBackoff > 0 && wait >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	if d.cfg.MaxBackoff > 0 && wait > d.cfg.MaxBackoff {
		return d.cfg.MaxBackoff
	}
	return wait
}

// Status reports the dispatch state of one channel of an event.
func (d *Dispatcher) Status(eventID, channel string) (models.DispatchStatus, bool) {
	entry, ok := d.ledger.Get(context.Background(), eventID, channel)
	return entry.Status, ok
}

func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		out = append(out, r.Channel)
	}
	return out
}

func (d *Dispatcher) QueueStats() queue.Stats {
	return d.queue.GetQueueStats()
}

func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	return d.queue.Shutdown(timeout)
}

// destinations returns the unique destinations of the route. A route with
// none still gets one empty destination so the gateway is called once.
func (r Route) destinations() []string {
	if len(r.Destinations) == 0 {
		return []string{""}
	}
	seen := make(map[string]bool, len(r.Destinations))
	out := make([]string, 0, len(r.Destinations))
	for _, dest := range r.Destinations {
		if !seen[dest] {
			seen[dest] = true
			out = append(out, dest)
		}
	}
	return out
}

// BackoffSleep waits for d or until ctx is done, reporting whether the full
// wait elapsed.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
