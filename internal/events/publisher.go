package events

import (
	"context"
	"os"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/bundle"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// BinaryProducer is the subset of the Kafka producer the publisher needs
type BinaryProducer interface {
	PublishBinary(ctx context.Context, topic string, key []byte, data []byte) error
}

// Publisher publishes model lifecycle events to Kafka
type Publisher struct {
	producer BinaryProducer
	topic    string
	hostname string
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer BinaryProducer, topic string, log *logger.Logger) *Publisher {
	host, _ := os.Hostname()
	return &Publisher{
		producer: producer,
		topic:    topic,
		hostname: host,
		log:      log.Component("model_events"),
	}
}

// Hostname returns the name written into published events
func (p *Publisher) Hostname() string {
	return p.hostname
}

// PublishModelRetrained announces a freshly persisted bundle, keyed by bundle id
func (p *Publisher) PublishModelRetrained(ctx context.Context, b *bundle.Bundle, run *irrigation.TrainingRun) error {
	if b == nil {
		return errors.Wrap(errors.ErrInvalidInput, "bundle is required")
	}

	event := &ModelRetrained{
		EventID:    newEventID(),
		Source:     SourceService,
		Hostname:   p.hostname,
		BundleID:   b.ID(),
		Classifier: b.Classifier().Kind(),
		Encoding:   string(b.Schema().Encoding),
		Features:   sanitizeAll(b.Order()),
		OccurredAt: now(),
	}
	if run != nil {
		event.RunID = run.ID
		event.Examples = run.Examples
		event.ValidationAccuracy = run.ValidationAccuracy
	}

	data, err := event.Marshal()
	if err != nil {
		return err
	}

	if err := p.producer.PublishBinary(ctx, p.topic, []byte(b.ID().String()), data); err != nil {
		p.log.Errorw("Failed to publish model event",
			"topic", p.topic,
			"bundle_id", b.ID(),
			"error", err,
		)
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debugw("Model event published",
		"topic", p.topic,
		"bundle_id", b.ID(),
		"size_bytes", len(data),
	)
	return nil
}
