package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/metrics"
	"github.com/technosupport/ts-console/internal/transport"
)

// FallbackMessage is shown when a failure carries no description of its own.
const FallbackMessage = "Something went wrong"

const component = "search"

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Session is a point-in-time copy of the shared search state.
type Session struct {
	Generation uint64    `json:"generation"`
	Phase      Phase     `json:"phase"`
	Facet      Facet     `json:"facet,omitempty"`
	Query      string    `json:"query,omitempty"`
	Results    []Record  `json:"results"`
	Error      string    `json:"error,omitempty"`
	Dropped    int       `json:"dropped,omitempty"`
	IssuedAt   time.Time `json:"issued_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type Options struct {
	Logger *zap.Logger
	// MediaBaseURL prefixes every playback link.
	MediaBaseURL string
	// OnChange runs with the dispatcher lock held after every applied
	// transition. It must not call back into the dispatcher.
	OnChange func(Session)
	Now      func() time.Time
}

// Dispatcher routes submissions from all four facets into one session.
// Only the response to the most recent submission is applied.
type Dispatcher struct {
	searcher  Searcher
	log       *zap.Logger
	mediaBase string
	onChange  func(Session)
	now       func() time.Time

	mu    sync.Mutex
	gen   uint64
	state Session

	wg sync.WaitGroup
}

func NewDispatcher(s Searcher, opts Options) *Dispatcher {
	d := &Dispatcher{
		searcher:  s,
		log:       opts.Logger,
		mediaBase: opts.MediaBaseURL,
		onChange:  opts.OnChange,
		now:       opts.Now,
		state:     Session{Phase: PhaseIdle, Results: []Record{}},
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Submit starts a search for value under facet. Blank values are ignored and
// Submit reports false; otherwise the request runs in the background.
func (d *Dispatcher) Submit(facet Facet, value string) bool {
	query := strings.TrimSpace(value)
	if query == "" {
		return false
	}

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.state = Session{
		Generation: gen,
		Phase:      PhaseLoading,
		Facet:      facet,
		Query:      query,
		Results:    []Record{},
		IssuedAt:   d.now(),
	}
	d.notifyLocked()
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(gen, query)
	return true
}

func (d *Dispatcher) Snapshot() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Wait blocks until every request issued so far has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(gen uint64, query string) {
	defer d.wg.Done()
	res, err := d.searcher.Search(context.Background(), query)
	d.finish(gen, res, err)
}

func (d *Dispatcher) finish(gen uint64, res Results, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		metrics.RecordStale(component)
		d.log.Debug("discarding superseded search response",
			zap.Uint64("generation", gen), zap.Uint64("current", d.gen))
		return
	}

	d.state.FinishedAt = d.now()
	if err != nil {
		d.log.Warn("search failed",
			zap.String("facet", string(d.state.Facet)),
			zap.String("query", d.state.Query),
			zap.Error(err))
		d.state.Phase = PhaseFailed
		d.state.Error = transport.Describe(err, FallbackMessage)
		metrics.RecordOutcome(component, string(PhaseFailed))
		d.notifyLocked()
		return
	}

	if res.Dropped > 0 {
		metrics.RecordDroppedRecords(res.Dropped)
		d.log.Warn("dropped malformed search records",
			zap.String("query", d.state.Query), zap.Int("dropped", res.Dropped))
	}

	records := make([]Record, len(res.Records))
	for i, r := range res.Records {
		r.PlaybackURL = PlaybackURL(d.mediaBase, r.ClipPath)
		records[i] = r
	}
	d.state.Phase = PhaseSucceeded
	d.state.Results = records
	d.state.Dropped = res.Dropped
	metrics.RecordOutcome(component, string(PhaseSucceeded))
	d.notifyLocked()
}

func (d *Dispatcher) snapshotLocked() Session {
	s := d.state
	s.Results = append([]Record(nil), d.state.Results...)
	if s.Results == nil {
		s.Results = []Record{}
	}
	return s
}

func (d *Dispatcher) notifyLocked() {
	if d.onChange != nil {
		d.onChange(d.snapshotLocked())
	}
}
