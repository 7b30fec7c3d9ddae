package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"coursehub/internal/logger"
)

const (
	dialTimeout    = 2 * time.Second
	publishTimeout = 2 * time.Second
	// reconnectPause throttles dial attempts while the broker is down so
	// callers fail fast instead of queueing behind the mutex.
	reconnectPause = 5 * time.Second
)

var errBrokerDown = errors.New("rabbitmq: broker unavailable, reconnect pending")

type amqpConn interface {
	IsClosed() bool
	Close() error
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func(url string) (amqpConn, amqpChannel, error)

// RabbitPublisher publishes JSON events to durable queues through the default
// exchange, using the queue name as routing key.
type RabbitPublisher struct {
	url  string
	dial dialFunc
	now  func() time.Time

	mu          sync.Mutex
	conn        amqpConn
	ch          amqpChannel
	nextAttempt time.Time
}

func NewRabbitPublisher(url string) (*RabbitPublisher, error) {
	p := &RabbitPublisher{url: url, dial: dialRabbit, now: time.Now}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialRabbit(url string) (amqpConn, amqpChannel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	for _, q := range []string{QueueLedgerTransaction, QueueSubscriptionChange} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("rabbitmq: declare %s: %w", q, err)
		}
	}
	return conn, ch, nil
}

// connect must be called with mu held, or before the publisher is shared.
func (p *RabbitPublisher) connect() error {
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	conn, ch, err := p.dial(p.url)
	if err != nil {
		p.conn, p.ch = nil, nil
		p.nextAttempt = p.now().Add(reconnectPause)
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *RabbitPublisher) healthy() bool {
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed()
}

func (p *RabbitPublisher) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.healthy() {
		if p.now().Before(p.nextAttempt) {
			return errBrokerDown
		}
		logger.Warn("rabbitmq connection lost, reconnecting", "queue", queue)
		if err := p.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", queue, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
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

// New returns a RabbitMQ publisher for url, or Noop when url is empty or the
// broker is unreachable at startup.
func New(url string) Publisher {
	if url == "" {
		logger.Info("RABBITMQ_URL not set, domain events disabled")
		return Noop{}
	}
	p, err := NewRabbitPublisher(url)
	if err != nil {
		logger.Error("rabbitmq unavailable, domain events disabled", "error", err)
		return Noop{}
	}
	return p
}
