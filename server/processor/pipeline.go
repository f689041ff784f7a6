package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/events"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/fusion"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/motion"
	"go.uber.org/zap"
)

type Classifier interface {
	Classify(ctx context.Context, frame models.Frame) models.DetectionResult
}

// Locator stamps a confirmed event with the best known location.
type Locator interface {
	Attach(ctx context.Context, ev *models.AccidentEvent, now time.Time) *models.AccidentEvent
}

type Dispatcher interface {
	Dispatch(ev *models.AccidentEvent) error
}

// Recorder receives pipeline counters. *stats.Aggregator implements it.
type Recorder interface {
	FrameReceived(cameraID string)
	FrameProcessed(score models.FusedScore)
	FrameDropped()
	FrameMalformed()
	InvariantViolation()
	EventMerged()
	LocationUnavailable()
	Transition(t events.Transition)
	DispatchRejected(ev *models.AccidentEvent)
}

// Archive receives events that finished after confirmation: resolved, or
// expired because dispatch was refused.
type Archive interface {
	EventFinished(ev *models.AccidentEvent)
}

type Deps struct {
	Analyzer   *motion.Analyzer
	Fuser      *fusion.Fuser
	Classifier Classifier
	Locator    Locator
	Dispatcher Dispatcher
	Recorder   Recorder
	Archive    Archive
}

type CameraStatus struct {
	CameraID    string            `json:"camera_id"`
	State       models.EventState `json:"state"`
	ActiveEvent string            `json:"active_event,omitempty"`
	QueuedFrame int               `json:"queued_frames"`
}

// Pipeline fans frames out to one worker per camera. Workers are created on
// a camera's first frame and live until the camera is stopped or sits idle
// past IdleTimeout. A stopped camera whose event is still cooling down parks
// its machine; a restarted stream takes it back.
type Pipeline struct {
	cfg       config.PipelineConfig
	eventsCfg config.EventsConfig
	deps      Deps
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*CameraWorker
	parked  map[string]*parkedMachine
	stopped bool

	now func() time.Time
}

func NewPipeline(cfg config.PipelineConfig, eventsCfg config.EventsConfig, deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 4
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaxCameras < 1 {
		cfg.MaxCameras = 256
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = 5 * time.Second
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:       cfg,
		eventsCfg: eventsCfg,
		deps:      deps,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		workers:   make(map[string]*CameraWorker),
		parked:    make(map[string]*parkedMachine),
		now:       time.Now,
	}
}

// Submit queues a frame without waiting for its result.
func (p *Pipeline) Submit(frame models.Frame) error {
	return p.enqueue(queuedFrame{frame: frame})
}

// Detect queues a frame and waits for its fused score. A newer frame may
// push it out of the queue first, in which case ErrFrameDropped is returned.
func (p *Pipeline) Detect(ctx context.Context, frame models.Frame) (models.FusedScore, error) {
	result := make(chan frameResult, 1)
	if err := p.enqueue(queuedFrame{frame: frame, result: result}); err != nil {
		return models.FusedScore{}, err
	}

	select {
	case r := <-result:
		return r.score, r.err
	case <-ctx.Done():
		return models.FusedScore{}, ctx.Err()
	}
}

func (p *Pipeline) enqueue(item queuedFrame) error {
	if item.frame.CameraID == "" {
		return errors.New("frame has no camera id")
	}
	if item.frame.Timestamp.IsZero() {
		item.frame.Timestamp = p.now()
	}

	// Lookup and push share p.mu so a reaped worker never receives a frame.
	p.mu.Lock()
	w, err := p.worker(item.frame.CameraID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	evicted, err := w.queue.push(item)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.deps.Recorder.FrameReceived(item.frame.CameraID)

	if evicted != nil {
		p.deps.Recorder.FrameDropped()
		p.logger.Debug("Frame dropped, camera is behind",
			zap.String("camera_id", item.frame.CameraID),
			zap.Uint64("seq", evicted.frame.Seq))
		evicted.reply(models.FusedScore{}, ErrFrameDropped)
	}
	return nil
}

// worker returns the camera's worker, starting one if needed. Caller holds p.mu.
func (p *Pipeline) worker(cameraID string) (*CameraWorker, error) {
	if p.stopped {
		return nil, ErrStopped
	}
	if w, ok := p.workers[cameraID]; ok {
		return w, nil
	}
	if len(p.workers) >= p.cfg.MaxCameras {
		return nil, ErrTooManyCameras
	}

	var w *CameraWorker
	if pm, ok := p.parked[cameraID]; ok {
		pm.timer.Stop()
		delete(p.parked, cameraID)
		pm.machine.Resume()
		w = newCameraWorker(p, cameraID, pm.machine)
		w.lastFrame, w.lastWall = pm.lastFrame, pm.lastWall
		p.logger.Info("Camera stream resumed during cooldown", zap.String("camera_id", cameraID))
	} else {
		w = newCameraWorker(p, cameraID, nil)
	}
	p.workers[cameraID] = w
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.run()
	}()

	p.logger.Info("Camera stream started", zap.String("camera_id", cameraID))
	return w, nil
}

// StopCamera ends a camera's stream. Queued frames are answered with
// ErrStopped and an open candidate expires; a dispatched event is parked
// until its cooldown ends or the camera's stream restarts.
func (p *Pipeline) StopCamera(cameraID string) bool {
	p.mu.Lock()
	w, ok := p.workers[cameraID]
	if !ok || w.closing {
		p.mu.Unlock()
		return false
	}
	w.closing = true
	p.mu.Unlock()

	w.stop()
	<-w.stopped

	p.mu.Lock()
	if p.workers[cameraID] == w {
		delete(p.workers, cameraID)
	}
	p.mu.Unlock()

	p.logger.Info("Camera stream stopped", zap.String("camera_id", cameraID))
	return true
}

// reap retires an idle worker. It runs on the worker's own goroutine.
func (p *Pipeline) reap(w *CameraWorker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w.closing || p.workers[w.cameraID] != w || w.queue.len() > 0 {
		return false
	}
	w.closing = true
	delete(p.workers, w.cameraID)
	w.stop()
	p.logger.Info("Idle camera stream retired", zap.String("camera_id", w.cameraID))
	return true
}

// parkedMachine holds a stopped camera's machine while its dispatched event
// cools down.
type parkedMachine struct {
	machine   *events.Machine
	timer     *time.Timer
	lastFrame time.Time
	lastWall  time.Time
}

// park keeps the machine of a stopped worker until resolveAt on the
// worker's frame clock. A pipeline that is shutting down drops it.
func (p *Pipeline) park(w *CameraWorker, resolveAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	wait := resolveAt.Sub(w.clock(p.now()))
	if wait < 0 {
		wait = 0
	}
	pm := &parkedMachine{machine: w.machine, lastFrame: w.lastFrame, lastWall: w.lastWall}
	pm.timer = time.AfterFunc(wait, func() { p.resolveParked(w.cameraID, pm, resolveAt) })
	p.parked[w.cameraID] = pm
}

func (p *Pipeline) resolveParked(cameraID string, pm *parkedMachine, resolveAt time.Time) {
	p.mu.Lock()
	if p.parked[cameraID] != pm {
		p.mu.Unlock()
		return
	}
	delete(p.parked, cameraID)
	p.mu.Unlock()

	p.record(events.Outcome{Transitions: pm.machine.Tick(resolveAt)})
}

// record forwards a machine outcome to the recorder and hands events that
// finished after confirmation to the archive.
func (p *Pipeline) record(out events.Outcome) {
	for _, t := range out.Transitions {
		p.deps.Recorder.Transition(t)
		if p.deps.Archive != nil && t.To.Terminal() && t.From != models.StateCandidate {
			p.deps.Archive.EventFinished(t.Event)
		}
	}
	if out.Merged {
		p.deps.Recorder.EventMerged()
	}
	if out.Violation != nil {
		p.deps.Recorder.InvariantViolation()
	}
}

func (p *Pipeline) Cameras() []CameraStatus {
	p.mu.Lock()
	workers := make([]*CameraWorker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	out := make([]CameraStatus, 0, len(workers))
	for _, w := range workers {
		status := CameraStatus{
			CameraID:    w.cameraID,
			State:       w.machine.State(),
			QueuedFrame: w.queue.len(),
		}
		if ev := w.machine.Active(); ev != nil {
			status.ActiveEvent = ev.ID
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// Shutdown stops every camera and waits for the workers to exit.
func (p *Pipeline) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	workers := p.workers
	p.workers = make(map[string]*CameraWorker)
	for id, pm := range p.parked {
		pm.timer.Stop()
		delete(p.parked, id)
	}
	p.mu.Unlock()

	p.logger.Info("Shutting down pipeline", zap.Int("cameras", len(workers)))
	for _, w := range workers {
		w.stop()
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Pipeline shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pipeline shutdown timed out after %s", timeout)
	}
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(string)                    {}
func (nopRecorder) FrameProcessed(models.FusedScore)        {}
func (nopRecorder) FrameDropped()                           {}
func (nopRecorder) FrameMalformed()                         {}
func (nopRecorder) InvariantViolation()                     {}
func (nopRecorder) EventMerged()                            {}
func (nopRecorder) LocationUnavailable()                    {}
func (nopRecorder) Transition(events.Transition)            {}
func (nopRecorder) DispatchRejected(*models.AccidentEvent) {}
