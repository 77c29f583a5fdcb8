package redis

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"irrigation/internal/metrics"
	"irrigation/internal/ml/bundle"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// Compile-time check
var _ bundle.Store = (*BundleStore)(nil)

// BundleStore keeps the active bundle in Redis so every replica serves the same model.
// The artifact and its id live under two keys written in one MULTI block.
type BundleStore struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

// NewBundleStore creates a store rooted at key
func NewBundleStore(client *redis.Client, key string) *BundleStore {
	return &BundleStore{
		client: client,
		key:    key,
		log:    logger.Get().Component("bundle_store").With("key", key),
	}
}

func (s *BundleStore) idKey() string {
	return s.key + ":id"
}

// Load fetches and validates the stored bundle
func (s *BundleStore) Load(ctx context.Context) (*bundle.Bundle, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, s.key).Bytes()
	metrics.RecordDBQuery("redis", "bundle_get", time.Since(start), ignoreNil(err))
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "no bundle at redis key %s", s.key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get bundle from redis: key=%s", s.key)
	}

	b, err := bundle.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load bundle from redis: key=%s", s.key)
	}

	s.log.Infow("Loaded model bundle",
		"bundle_id", b.ID(),
		"size", humanize.Bytes(uint64(len(data))),
		"created", humanize.Time(b.CreatedAt()),
	)
	return b, nil
}

// Save replaces the artifact and its id atomically
func (s *BundleStore) Save(ctx context.Context, b *bundle.Bundle) error {
	data, err := bundle.Marshal(b)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, data, 0)
		pipe.Set(ctx, s.idKey(), b.ID().String(), 0)
		return nil
	})
	metrics.RecordDBQuery("redis", "bundle_set", time.Since(start), err)
	if err != nil {
		return errors.Wrapf(err, "failed to save bundle to redis: key=%s", s.key)
	}

	s.log.Infow("Saved model bundle",
		"bundle_id", b.ID(),
		"size", humanize.Bytes(uint64(len(data))),
	)
	return nil
}

// CurrentID reads only the id key, so polling replicas never download the artifact
func (s *BundleStore) CurrentID(ctx context.Context) (uuid.UUID, error) {
	raw, err := s.client.Get(ctx, s.idKey()).Result()
	if err == redis.Nil {
		return uuid.Nil, errors.Wrapf(errors.ErrNotFound, "no bundle id at redis key %s", s.idKey())
	}
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to get bundle id from redis: key=%s", s.idKey())
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "corrupt bundle id at %s", s.idKey())
	}
	return id, nil
}

func ignoreNil(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}
