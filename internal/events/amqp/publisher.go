// Package amqp forwards feed events to a durable RabbitMQ queue so that
// out-of-process consumers (thumbnail workers, notification senders) can
// follow photo activity.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/sakif/photosphere/internal/events"
)

const (
	DefaultQueue = "photosphere.events"
	outboxSize   = 256
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements events.Publisher. Publish enqueues; a single worker
// goroutine performs the broker writes so request handlers never wait on
// the network.
type Publisher struct {
	conn   *amqp.Connection
	ch     channel
	queue  string
	outbox chan events.Event
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ events.Publisher = (*Publisher)(nil)

// Dial connects to the broker and declares the queue as durable.
func Dial(url, queue string, logger *slog.Logger) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", queue, err)
	}

	p := newPublisher(ch, queue, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queue string, logger *slog.Logger) *Publisher {
	p := &Publisher{
		ch:     ch,
		queue:  queue,
		outbox: make(chan events.Event, outboxSize),
		logger: logger,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish queues the event for delivery. When the outbox is full or the
// publisher is closed the event is dropped and logged.
func (p *Publisher) Publish(_ context.Context, e events.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.outbox <- e:
	default:
		p.logger.Warn("amqp outbox full, event dropped", slog.String("type", e.Type), slog.String("photo_id", e.PhotoID))
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()

	for e := range p.outbox {
		if err := p.send(e); err != nil {
			p.logger.Error("failed to publish event",
				slog.String("type", e.Type),
				slog.String("photo_id", e.PhotoID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Publisher) send(e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return p.ch.Publish(
		"",      // default exchange routes by queue name
		p.queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         e.Type,
			Timestamp:    ts,
			Body:         body,
		},
	)
}

// Close flushes queued events, then closes the channel and connection.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.outbox)
		p.mu.Unlock()

		p.wg.Wait()

		if cerr := p.ch.Close(); cerr != nil {
			err = cerr
		}
		if p.conn != nil {
			if cerr := p.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
