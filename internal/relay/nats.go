package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/ports"
)

const (
	streamName     = "SPLITLAB_EVENTS"
	eventSubject   = "splitlab.events"
	consumerName   = "splitlab-ingestor"
	maxDeliveries  = 3
	ingestDeadline = 5 * time.Second
)

type eventMessage struct {
	TaskID     string         `json:"task_id"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher is the NATS-backed EventRelay for multi-process deployments:
// events are published to a JetStream stream and inserted by a separate
// Ingestor.
type Publisher struct {
	js      jetstream.JetStream
	metrics ports.AssignmentMetrics
	log     zerolog.Logger
}

func NewPublisher(ctx context.Context, js jetstream.JetStream, metrics ports.AssignmentMetrics, log zerolog.Logger) (*Publisher, error) {
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{eventSubject},
	}); err != nil {
		return nil, fmt.Errorf("ensure event stream: %w", err)
	}
	return &Publisher{js: js, metrics: metrics, log: log}, nil
}

func (p *Publisher) Record(ctx context.Context, event *domain.Event) (string, error) {
	msg := eventMessage{
		TaskID:     uuid.NewString(),
		UserID:     event.UserID,
		Type:       event.Type,
		Timestamp:  event.Timestamp,
		Properties: event.Properties,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.js.Publish(ctx, eventSubject, data); err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	p.metrics.EventEnqueued(ctx, event.Type)
	p.log.Debug().Str("task_id", msg.TaskID).Str("type", event.Type).Msg("event published")
	return msg.TaskID, nil
}

// Ingestor consumes published events and inserts them into the store.
// Failed inserts are NAKed and redelivered up to maxDeliveries times.
type Ingestor struct {
	events   ports.EventRepository
	consumer jetstream.Consumer
	log      zerolog.Logger
	cc       jetstream.ConsumeContext
}

func NewIngestor(ctx context.Context, js jetstream.JetStream, events ports.EventRepository, log zerolog.Logger) (*Ingestor, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{eventSubject},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure event stream: %w", err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    consumerName,
		AckPolicy:  jetstream.AckExplicitPolicy,
		MaxDeliver: maxDeliveries,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure event consumer: %w", err)
	}
	return &Ingestor{events: events, consumer: consumer, log: log}, nil
}

// Start begins consuming in the background until Stop is called.
func (i *Ingestor) Start() error {
	cc, err := i.consumer.Consume(i.handle)
	if err != nil {
		return fmt.Errorf("start event consumer: %w", err)
	}
	i.cc = cc
	return nil
}

func (i *Ingestor) Stop() {
	if i.cc != nil {
		i.cc.Stop()
	}
}

func (i *Ingestor) handle(msg jetstream.Msg) {
	var m eventMessage
	if err := json.Unmarshal(msg.Data(), &m); err != nil {
		// Malformed payloads can never succeed on redelivery.
		i.log.Error().Err(err).Msg("discarding undecodable event message")
		_ = msg.Term()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestDeadline)
	defer cancel()

	err := i.events.Insert(ctx, &domain.Event{
		UserID:     m.UserID,
		Type:       m.Type,
		Timestamp:  m.Timestamp,
		Properties: m.Properties,
	})
	if err != nil {
		i.log.Warn().Err(err).Str("task_id", m.TaskID).Msg("event insert failed, requesting redelivery")
		_ = msg.Nak()
		return
	}
	i.log.Debug().Str("task_id", m.TaskID).Str("type", m.Type).Msg("event inserted")
	_ = msg.Ack()
}
