package console

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/alerts"
	"github.com/technosupport/ts-console/internal/events"
	"github.com/technosupport/ts-console/internal/metrics"
	"github.com/technosupport/ts-console/internal/search"
	"github.com/technosupport/ts-console/internal/upload"
)

// AlertsState is the alert page as last left by the operator.
type AlertsState struct {
	Cards    []alerts.Card `json:"cards"`
	Expanded *alerts.Card  `json:"expanded,omitempty"`
}

// State is everything a browser needs to render one console.
type State struct {
	ConsoleID string         `json:"console_id"`
	CreatedAt time.Time      `json:"created_at"`
	Upload    upload.Session `json:"upload"`
	Search    search.Session `json:"search"`
	Alerts    AlertsState    `json:"alerts"`
}

// Deps are the collaborators shared by every console.
type Deps struct {
	Analyzer     upload.Analyzer
	Searcher     search.Searcher
	MediaBaseURL string
	// Cards is called once per console; the result is fixed for its lifetime.
	Cards  func() []alerts.Card
	Events events.Sink
	Logger *zap.Logger
	Now    func() time.Time
}

// Console composes one operator's upload session, search session and alert
// view. Component hooks take the console lock after their own, never the
// reverse.
type Console struct {
	id        string
	createdAt time.Time
	log       *zap.Logger
	sink      events.Sink

	upload *upload.Controller
	search *search.Dispatcher

	mu      sync.Mutex
	up      upload.Session
	sr      search.Session
	alerts  *alerts.View
	subs    map[int]chan State
	nextSub int
	closed  bool

	publishing sync.WaitGroup
}

func New(id string, deps Deps) *Console {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sink := deps.Events
	if sink == nil {
		sink = events.Discard{}
	}
	cards := alerts.DefaultCards()
	if deps.Cards != nil {
		cards = deps.Cards()
	}

	c := &Console{
		id:        id,
		createdAt: now(),
		log:       log.With(zap.String("console_id", id)),
		sink:      sink,
		alerts:    alerts.NewView(cards),
		subs:      make(map[int]chan State),
	}

	c.upload = upload.NewController(deps.Analyzer, upload.Options{
		Logger:    c.log,
		Now:       now,
		OnChange:  c.uploadChanged,
		OnAnomaly: c.anomalyDetected,
	})
	c.search = search.NewDispatcher(deps.Searcher, search.Options{
		Logger:       c.log,
		Now:          now,
		MediaBaseURL: deps.MediaBaseURL,
		OnChange:     c.searchChanged,
	})
	c.up = c.upload.Snapshot()
	c.sr = c.search.Snapshot()
	return c
}

func (c *Console) ID() string { return c.id }

// SelectFile hands f to the upload session, which owns it from here on.
// On a closed console the file is released at once.
func (c *Console) SelectFile(f upload.File) upload.Session {
	c.upload.SelectFile(f)
	return c.upload.Snapshot()
}

func (c *Console) ResetUpload() upload.Session {
	c.upload.Reset()
	return c.upload.Snapshot()
}

// Search submits value from facet. It reports false for blank input.
func (c *Console) Search(facet search.Facet, value string) (search.Session, bool) {
	if c.isClosed() {
		return c.search.Snapshot(), false
	}
	ok := c.search.Submit(facet, value)
	return c.search.Snapshot(), ok
}

func (c *Console) Alerts(r alerts.Range, criticalOnly bool) []alerts.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alerts.Cards(r, criticalOnly)
}

func (c *Console) ExpandAlert(id int) (alerts.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	card, err := c.alerts.Expand(id)
	if err != nil {
		return alerts.Card{}, err
	}
	c.broadcastLocked()
	return card, nil
}

func (c *Console) CollapseAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts.Collapse()
	c.broadcastLocked()
}

func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe returns a channel carrying the current state and then every
// change. A slow reader skips intermediate states but always receives the
// latest. The channel is closed by cancel or when the console closes.
func (c *Console) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.stateLocked()
	metrics.SubscribersActive.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
				metrics.SubscribersActive.Dec()
			}
		})
	}
}

// Close releases the held upload file and ends all subscriptions. Requests
// already in flight finish in the background.
func (c *Console) Close() {
	c.upload.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
		metrics.SubscribersActive.Dec()
	}
	c.log.Debug("console closed")
}

// Wait blocks until in-flight requests and event publishes have returned.
func (c *Console) Wait() {
	c.upload.Wait()
	c.search.Wait()
	c.publishing.Wait()
}

func (c *Console) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Console) uploadChanged(s upload.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = s
	c.broadcastLocked()
}

func (c *Console) searchChanged(s search.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sr = s
	c.broadcastLocked()
}

// anomalyDetected runs under the upload lock, so the publish is detached.
func (c *Console) anomalyDetected(s upload.Session, a upload.AnomalyDetected) {
	e := events.NewAnomalyEvent(c.id, s.FileName, a.Message, a.SceneDescription, s.FinishedAt)
	c.publishing.Add(1)
	go func() {
		defer c.publishing.Done()
		if err := c.sink.PublishAnomaly(e); err != nil && !errors.Is(err, events.ErrDuplicate) {
			c.log.Error("failed to publish anomaly event", zap.String("event_id", e.EventID.String()), zap.Error(err))
		}
	}()
}

func (c *Console) stateLocked() State {
	st := State{
		ConsoleID: c.id,
		CreatedAt: c.createdAt,
		Upload:    c.up,
		Search:    c.sr,
		Alerts:    AlertsState{Cards: c.alerts.Cards(alerts.RangeMonth, false)},
	}
	if card, ok := c.alerts.Expanded(); ok {
		st.Alerts.Expanded = &card
	}
	return st
}

func (c *Console) broadcastLocked() {
	if c.closed || len(c.subs) == 0 {
		return
	}
	st := c.stateLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
