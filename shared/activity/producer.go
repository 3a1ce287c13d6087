// Package activity streams audit events to Kafka for downstream consumers.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/julis-sh/intranet/shared/metrics"
)

// Topic receives every activity event
const Topic = "intranet-activity"

// Event is one recorded write
type Event struct {
	ID         uuid.UUID  `json:"id"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Details    string     `json:"details,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Publisher accepts events without blocking the caller
type Publisher interface {
	Publish(event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events through a worker pool
type Producer struct {
	writer       messageWriter
	events       chan Event
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// NewPublisher returns a Kafka producer, or a no-op publisher when no
// broker is configured
func NewPublisher(broker string) Publisher {
	if broker == "" {
		logrus.Info("KAFKA_BROKER not set, activity stream disabled")
		return Noop{}
	}
	return NewProducer(&kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}, 4, 1000)
}

// NewProducer starts workers draining a queue of the given size into w
func NewProducer(w messageWriter, workers, queueSize int) *Producer {
	p := &Producer{
		writer:       w,
		events:       make(chan Event, queueSize),
		workerCount:  workers,
		shutdownChan: make(chan struct{}),
	}
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logrus.Infof("Activity producer started %d workers", p.workerCount)
	return p
}

func (p *Producer) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.events:
			p.write(id, event)
		case <-p.shutdownChan:
			// flush what is already queued
			for {
				select {
				case event := <-p.events:
					p.write(id, event)
				default:
					return
				}
			}
		}
	}
}

func (p *Producer) write(id int, event Event) {
	if err := p.send(event); err != nil {
		logrus.WithFields(logrus.Fields{
			"worker": id,
			"action": event.Action,
			"entity": event.EntityType,
		}).WithError(err).Warn("Failed to publish activity event")
	}
}

// Publish queues an event; it is dropped when the queue is full
func (p *Producer) Publish(event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case p.events <- event:
		return nil
	default:
		metrics.IncActivityDropped()
		return fmt.Errorf("activity queue full, event dropped")
	}
}

func (p *Producer) send(event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.EntityType),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "entity_type", Value: []byte(event.EntityType)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write activity event to Kafka: %w", err)
	}
	return nil
}

// Close stops the workers after draining the queue and closes the writer
func (p *Producer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.shutdownChan)
		p.wg.Wait()
		if cerr := p.writer.Close(); cerr != nil {
			err = fmt.Errorf("failed to close Kafka writer: %w", cerr)
		}
		logrus.Info("Activity producer stopped")
	})
	return err
}

// Noop discards events
type Noop struct{}

func (Noop) Publish(Event) error { return nil }

func (Noop) Close() error { return nil }
