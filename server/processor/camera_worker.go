package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/events"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/motion"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CameraWorker analyzes one camera's frames in arrival order. Only its own
// goroutine touches the state machine and the per-camera references.
type CameraWorker struct {
	cameraID string
	p        *Pipeline
	machine  *events.Machine
	queue    *frameQueue
	logger   *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	// closing is guarded by the pipeline's mutex.
	closing bool

	prevGrid       *motion.Grid
	prevDetections models.DetectionResult

	// frame clock, advanced between frames by wall time
	lastFrame time.Time
	lastWall  time.Time
	lastSeen  time.Time
}

// newCameraWorker starts a worker on machine, or on a fresh machine when
// machine is nil.
func newCameraWorker(p *Pipeline, cameraID string, machine *events.Machine) *CameraWorker {
	ctx, cancel := context.WithCancel(p.ctx)
	logger := p.logger.With(zap.String("camera_id", cameraID))
	if machine == nil {
		machine = events.NewMachine(cameraID, p.eventsCfg, logger)
	}
	return &CameraWorker{
		cameraID: cameraID,
		p:        p,
		machine:  machine,
		queue:    newFrameQueue(p.cfg.QueueDepth),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
		lastSeen: p.now(),
	}
}

func (w *CameraWorker) stop() {
	w.cancel()
}

func (w *CameraWorker) run() {
	ticker := time.NewTicker(w.p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.finish()
			return
		case <-w.queue.ready:
			for {
				if w.ctx.Err() != nil {
					break
				}
				item, ok := w.queue.pop()
				if !ok {
					break
				}
				w.process(item)
			}
		case <-ticker.C:
			now := w.p.now()
			w.record(events.Outcome{Transitions: w.machine.Tick(w.clock(now))})
			if w.idle(now) {
				w.p.reap(w)
			}
		}
	}
}

// idle reports whether the worker has nothing queued, no event and no
// frame for longer than the idle timeout.
func (w *CameraWorker) idle(now time.Time) bool {
	return now.Sub(w.lastSeen) >= w.p.cfg.IdleTimeout &&
		w.machine.State() == models.StateIdle &&
		w.queue.len() == 0
}

// finish answers queued frames, cancels the machine and parks it with the
// pipeline if its event is still cooling down.
func (w *CameraWorker) finish() {
	for _, item := range w.queue.close() {
		item.reply(models.FusedScore{}, ErrStopped)
	}
	w.record(events.Outcome{Transitions: w.machine.Cancel()})

	if resolveAt, pending := w.machine.ResolveAt(); pending {
		w.p.park(w, resolveAt)
	}
	close(w.stopped)
}

func (w *CameraWorker) process(item queuedFrame) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Frame processing panic",
				zap.Uint64("seq", item.frame.Seq),
				zap.Any("panic", r))
			item.reply(models.FusedScore{}, fmt.Errorf("processing failed: %v", r))
		}
	}()

	frame := item.frame
	frame.Timestamp = w.frameTime(frame.Timestamp)
	ctx := w.ctx
	if w.p.cfg.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.p.cfg.DetectTimeout)
		defer cancel()
	}

	var (
		motionScore models.MotionScore
		grid        *motion.Grid
		motionErr   error
		detections  models.DetectionResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				motionScore = models.MotionScore{CameraID: frame.CameraID, Timestamp: frame.Timestamp}
				grid = w.prevGrid
				motionErr = fmt.Errorf("motion analysis panic: %v", r)
			}
		}()
		motionScore, grid, motionErr = w.p.deps.Analyzer.Analyze(w.prevGrid, frame)
		return nil
	})
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Classifier panic", zap.Uint64("seq", frame.Seq), zap.Any("panic", r))
				detections = models.DetectionResult{Degraded: true}
			}
		}()
		if w.p.deps.Classifier == nil {
			detections = models.DetectionResult{Degraded: true}
			return nil
		}
		detections = w.p.deps.Classifier.Classify(gctx, frame)
		return nil
	})
	_ = g.Wait()

	if motionErr != nil {
		w.p.deps.Recorder.FrameMalformed()
	}
	w.prevGrid = grid

	score := w.p.deps.Fuser.Fuse(motionScore, detections, w.prevDetections)
	score.CameraID = w.cameraID
	score.Timestamp = frame.Timestamp
	score.Seq = frame.Seq
	w.prevDetections = detections
	w.lastFrame, w.lastWall = frame.Timestamp, w.p.now()
	w.lastSeen = w.lastWall
	w.p.deps.Recorder.FrameProcessed(score)

	out := w.machine.Observe(score)
	w.record(out)
	if ev := out.Confirmed(); ev != nil {
		w.dispatch(ev, frame.Timestamp)
	}

	item.reply(score, nil)
}

// dispatch hands a freshly confirmed event to the alert dispatcher. A refused
// hand-off expires the event so the camera can raise a new one.
func (w *CameraWorker) dispatch(ev *models.AccidentEvent, now time.Time) {
	enriched := ev
	if w.p.deps.Locator != nil {
		enriched = w.p.deps.Locator.Attach(w.ctx, ev, now)
	}
	if !enriched.LocationAvailable {
		w.p.deps.Recorder.LocationUnavailable()
	}

	if w.p.deps.Dispatcher == nil {
		w.reject(enriched, fmt.Errorf("no dispatcher configured"))
		return
	}
	if err := w.p.deps.Dispatcher.Dispatch(enriched); err != nil {
		w.reject(enriched, err)
		return
	}

	dispatched, err := w.machine.MarkDispatched(ev.ID, now)
	if err != nil {
		w.p.deps.Recorder.InvariantViolation()
		w.logger.Error("Failed to mark event dispatched",
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return
	}
	w.record(events.Outcome{Transitions: []events.Transition{
		{From: models.StateConfirmed, To: models.StateDispatched, Event: dispatched},
	}})
}

func (w *CameraWorker) reject(ev *models.AccidentEvent, cause error) {
	w.logger.Error("Alert dispatch refused",
		zap.String("event_id", ev.ID),
		zap.Error(cause))
	w.p.deps.Recorder.DispatchRejected(ev)

	expired, err := w.machine.RejectDispatch(ev.ID)
	if err != nil {
		w.p.deps.Recorder.InvariantViolation()
		w.logger.Error("Failed to expire refused event",
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return
	}
	w.record(events.Outcome{Transitions: []events.Transition{
		{From: models.StateConfirmed, To: models.StateExpired, Event: expired},
	}})
}

func (w *CameraWorker) record(out events.Outcome) {
	w.p.record(out)
}

// frameTime keeps the camera's frame clock monotonic and no further ahead
// of the server than MaxClockSkew.
func (w *CameraWorker) frameTime(ts time.Time) time.Time {
	if limit := w.p.now().Add(w.p.cfg.MaxClockSkew); ts.After(limit) {
		w.logger.Debug("Frame timestamp ahead of server clock, clamped",
			zap.Time("timestamp", ts),
			zap.Time("limit", limit))
		ts = limit
	}
	if ts.Before(w.lastFrame) {
		ts = w.lastFrame
	}
	return ts
}

// clock maps wall time onto the camera's frame timeline.
func (w *CameraWorker) clock(wall time.Time) time.Time {
	if w.lastFrame.IsZero() {
		return wall
	}
	return w.lastFrame.Add(wall.Sub(w.lastWall))
}
