package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/metrics"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Sink receives anomaly events.
type Sink interface {
	PublishAnomaly(e AnomalyEvent) error
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) PublishAnomaly(AnomalyEvent) error { return nil }

var ErrDuplicate = errors.New("duplicate anomaly event")

type Publisher struct {
	conn       Conn
	subject    string
	maxRetries int
	backoff    time.Duration
	dedup      *Dedup
	log        *zap.Logger
}

type PublisherOptions struct {
	Subject    string
	MaxRetries int
	Backoff    time.Duration
	// Dedup may be nil to publish every event.
	Dedup  *Dedup
	Logger *zap.Logger
}

func NewPublisher(conn Conn, opts PublisherOptions) *Publisher {
	p := &Publisher{
		conn:       conn,
		subject:    opts.Subject,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		dedup:      opts.Dedup,
		log:        opts.Logger,
	}
	if p.subject == "" {
		p.subject = DefaultSubject
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// PublishAnomaly sends e, retrying with linear backoff. Events already seen
// inside the dedup window return ErrDuplicate without publishing. An event
// that could not be published leaves the window so a later repeat is sent.
func (p *Publisher) PublishAnomaly(e AnomalyEvent) error {
	key := Key(e)
	if p.dedup != nil && p.dedup.Seen(key) {
		metrics.RecordAnomalyEvent("duplicate")
		return ErrDuplicate
	}

	if err := p.publish(e); err != nil {
		if p.dedup != nil {
			p.dedup.Forget(key)
		}
		metrics.RecordAnomalyEvent("failed")
		return err
	}
	metrics.RecordAnomalyEvent("published")
	return nil
}

func (p *Publisher) publish(e AnomalyEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal anomaly event: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * p.backoff)
		}
		if err = p.conn.Publish(p.subject, data); err == nil {
			p.log.Info("anomaly event published",
				zap.String("subject", p.subject),
				zap.String("event_id", e.EventID.String()),
				zap.String("console_id", e.ConsoleID))
			return nil
		}
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

// Connect dials the broker with reconnect logging.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	return nats.Connect(url,
		nats.Name("ts-console"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}
