package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dialTimeout  = 5 * time.Second
	redialPeriod = 30 * time.Second
)

// ErrBrokerUnavailable is returned while a failed connection waits out its
// redial period.
var ErrBrokerUnavailable = errors.New("amqp broker unavailable")

// AMQP publishes events as persistent JSON messages on a durable topic
// exchange, keyed by event type. A broken connection is redialled on a
// later publish, at most once per redial period.
type AMQP struct {
	url      string
	exchange string
	lg       *zap.SugaredLogger
	dial     func(url string) (*amqp.Connection, error)
	now      func() time.Time

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

func dialWithTimeout(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
}

// NewAMQP dials url and declares exchange.
func NewAMQP(url, exchange string, lg *zap.SugaredLogger) (*AMQP, error) {
	p := &AMQP{url: url, exchange: exchange, lg: lg, dial: dialWithTimeout, now: time.Now}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with mu held.
func (p *AMQP) connect() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if p.now().Before(p.retryAt) {
		return ErrBrokerUnavailable
	}
	if err := p.open(); err != nil {
		if p.retryAt.IsZero() {
			p.lg.Warnw("amqp connection lost", "retry_in", redialPeriod, "err", err)
		}
		p.retryAt = p.now().Add(redialPeriod)
		return err
	}
	if !p.retryAt.IsZero() {
		p.lg.Infow("amqp connection restored")
		p.retryAt = time.Time{}
	}
	return nil
}

func (p *AMQP) open() error {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return fmt.Errorf("amqp dial: %w", err)
		}
		p.conn = conn
		p.ch = nil
	}
	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp channel: %w", err)
		}
		if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("amqp exchange declare: %w", err)
		}
		p.ch = ch
	}
	return nil
}

// Publish sends e. Failures are returned, not logged; the caller decides.
func (p *AMQP) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
}

func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
