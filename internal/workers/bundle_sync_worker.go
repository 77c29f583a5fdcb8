package workers

import (
	"context"
	"time"

	"irrigation/internal/ml/bundle"
	"irrigation/pkg/errors"
)

// BundleReloader swaps in the bundle held by a store when its id differs
type BundleReloader interface {
	Reload(ctx context.Context, store bundle.Store, source string) (bool, error)
}

// BundleSyncWorker polls the shared store so a replica picks up bundles
// trained elsewhere even when model events are not delivered.
type BundleSyncWorker struct {
	*BaseWorker
	reloader BundleReloader
	store    bundle.Store
	source   string
}

// NewBundleSyncWorker creates the worker; a zero interval disables it
func NewBundleSyncWorker(reloader BundleReloader, store bundle.Store, source string, interval time.Duration) *BundleSyncWorker {
	return &BundleSyncWorker{
		BaseWorker: NewBaseWorker("bundle_sync", interval, interval > 0),
		reloader:   reloader,
		store:      store,
		source:     source,
	}
}

// Run performs one reload check
func (w *BundleSyncWorker) Run(ctx context.Context) error {
	swapped, err := w.reloader.Reload(ctx, w.store, w.source)
	if errors.Is(err, errors.ErrNotFound) {
		w.Log().Debug("No bundle published yet")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reload bundle")
	}

	if swapped {
		w.Log().Info("Picked up bundle published by another replica")
	}
	return nil
}
