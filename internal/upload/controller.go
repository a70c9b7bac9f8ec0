package upload

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/metrics"
)

// FailureMessage is what an operator sees for any failed analysis.
const FailureMessage = "Failed to process video. Please try again."

const component = "upload"

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseUploading Phase = "uploading"
	PhaseAnalyzing Phase = "analyzing"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Session is a point-in-time copy of the upload state.
type Session struct {
	Generation uint64    `json:"generation"`
	Phase      Phase     `json:"phase"`
	FileName   string    `json:"file_name,omitempty"`
	Result     *Report   `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Options configures a Controller. Both hooks run with the controller lock
// held, in transition order; they must not call back into the controller.
type Options struct {
	Logger    *zap.Logger
	OnChange  func(Session)
	OnAnomaly func(Session, AnomalyDetected)
	Now       func() time.Time
}

// Controller drives one file at a time through transmission and analysis.
// Each SelectFile supersedes the previous one; responses from superseded
// requests are discarded.
type Controller struct {
	analyzer Analyzer
	log      *zap.Logger
	now      func() time.Time

	onChange  func(Session)
	onAnomaly func(Session, AnomalyDetected)

	mu    sync.Mutex
	gen    uint64
	state  Session
	file   File
	closed bool

	wg sync.WaitGroup
}

func NewController(a Analyzer, opts Options) *Controller {
	c := &Controller{
		analyzer:  a,
		log:       opts.Logger,
		now:       opts.Now,
		onChange:  opts.OnChange,
		onAnomaly: opts.OnAnomaly,
		state:     Session{Phase: PhaseIdle},
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// SelectFile resets the session, takes ownership of f and starts the
// analysis request. It returns immediately; a nil file is ignored. After
// Close, f is released and nothing is sent.
func (c *Controller) SelectFile(f File) {
	if f == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err := f.Release(); err != nil {
			c.log.Warn("failed to release upload file", zap.String("file", f.Name()), zap.Error(err))
		}
		return
	}
	c.releaseLocked()
	c.gen++
	gen := c.gen
	c.file = f
	c.state = Session{
		Generation: gen,
		Phase:      PhaseUploading,
		FileName:   f.Name(),
		StartedAt:  c.now(),
	}
	c.notifyLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	go c.transmit(gen, f)
}

// Reset returns to idle and releases the held file. In-flight requests are
// left to finish and their responses are ignored.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	c.gen++
	c.state = Session{Generation: c.gen, Phase: PhaseIdle}
	c.notifyLocked()
}

// Close resets to idle and makes every later SelectFile release its file
// without sending it.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.releaseLocked()
	c.gen++
	c.state = Session{Generation: c.gen, Phase: PhaseIdle}
	c.notifyLocked()
}

func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until every request issued so far has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) transmit(gen uint64, f File) {
	defer c.wg.Done()

	body, err := f.Open()
	if err != nil {
		c.finish(gen, nil, err)
		return
	}
	defer body.Close()

	res, err := c.analyzer.Analyze(context.Background(), Upload{
		FileName: f.Name(),
		Body:     body,
		OnSent:   func() { c.markSent(gen) },
	})
	c.finish(gen, res, err)
}

func (c *Controller) markSent(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state.Phase != PhaseUploading {
		return
	}
	c.state.Phase = PhaseAnalyzing
	c.notifyLocked()
}

func (c *Controller) finish(gen uint64, res Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		metrics.RecordStale(component)
		c.log.Debug("discarding superseded analysis response",
			zap.Uint64("generation", gen), zap.Uint64("current", c.gen))
		return
	}

	c.state.FinishedAt = c.now()
	if err == nil && res == nil {
		err = errMissingScene
	}
	if err != nil {
		c.log.Error("video analysis failed",
			zap.String("file", c.state.FileName),
			zap.Uint64("generation", gen),
			zap.Error(err))
		c.state.Phase = PhaseFailed
		c.state.Result = nil
		c.state.Error = FailureMessage
		metrics.RecordOutcome(component, string(PhaseFailed))
		c.notifyLocked()
		return
	}

	c.state.Phase = PhaseSucceeded
	c.state.Error = ""
	c.state.Result = newReport(res)
	metrics.RecordOutcome(component, string(PhaseSucceeded))
	c.notifyLocked()

	if a, ok := res.(AnomalyDetected); ok && c.onAnomaly != nil {
		c.onAnomaly(c.snapshotLocked(), a)
	}
}

func (c *Controller) releaseLocked() {
	if c.file == nil {
		return
	}
	if err := c.file.Release(); err != nil {
		c.log.Warn("failed to release upload file", zap.String("file", c.file.Name()), zap.Error(err))
	}
	c.file = nil
}

func (c *Controller) snapshotLocked() Session {
	s := c.state
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	return s
}

func (c *Controller) notifyLocked() {
	if c.onChange != nil {
		c.onChange(c.snapshotLocked())
	}
}
