package consumers

import (
	"context"

	"github.com/segmentio/kafka-go"

	"irrigation/internal/events"
	"irrigation/internal/ml/bundle"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
	"irrigation/pkg/reconnect"
)

// MessageReader is the subset of the Kafka consumer used here
type MessageReader interface {
	ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error)
	Close() error
}

// BundleReloader swaps in the bundle currently held by a store
type BundleReloader interface {
	Reload(ctx context.Context, store bundle.Store, source string) (bool, error)
}

// ModelEventsConsumer reloads the active bundle when any replica publishes a retrain
type ModelEventsConsumer struct {
	reader   MessageReader
	reloader BundleReloader
	store    bundle.Store
	source   string
	backoff  *reconnect.Manager
	log      *logger.Logger
}

// NewModelEventsConsumer creates a consumer; source is the swap label passed to Reload
func NewModelEventsConsumer(reader MessageReader, reloader BundleReloader, store bundle.Store, source string, log *logger.Logger) *ModelEventsConsumer {
	return &ModelEventsConsumer{
		reader:   reader,
		reloader: reloader,
		store:    store,
		source:   source,
		backoff:  reconnect.NewManager("model_events", reconnect.Config{}, log),
		log:      log.Component("model_events_consumer"),
	}
}

// Start consumes until ctx is cancelled
func (c *ModelEventsConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting model events consumer...")

	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Errorw("Failed to close model events consumer", "error", err)
		}
	}()

	for {
		msg, err := c.reader.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Model events consumer stopped")
				return nil
			}
			if c.backoff.Backoff(ctx, err) != nil {
				c.log.Info("Model events consumer stopped")
				return nil
			}
			continue
		}
		c.backoff.RecordSuccess()

		if err := c.handle(ctx, msg.Value); err != nil {
			c.log.Errorw("Failed to process model event",
				"error", err,
				"offset", msg.Offset,
			)
		}
	}
}

func (c *ModelEventsConsumer) handle(ctx context.Context, data []byte) error {
	event, err := events.ParseModelEvent(data)
	if errors.Is(err, errors.ErrNotFound) {
		c.log.Debugw("Unknown model event type, skipping", "data_size", len(data))
		return nil
	}
	if err != nil {
		return err
	}

	swapped, err := c.reloader.Reload(ctx, c.store, c.source)
	if err != nil {
		return errors.Wrapf(err, "reload after bundle %s", event.BundleID)
	}

	c.log.Infow("Processed model event",
		"bundle_id", event.BundleID,
		"origin", event.Hostname,
		"swapped", swapped,
	)
	return nil
}
