package state

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/atomic"

	"github.com/wagnerflo/thincf/interfaces"
)

// Current holds the bundle served to clients. Readers keep the bundle they
// loaded for the whole request, replacing it never affects them.
type Current struct {
	bundle atomic.Pointer[Bundle]
}

// Load returns the current bundle or nil.
func (c *Current) Load() *Bundle {
	return c.bundle.Load()
}

// Replace installs b and returns the previous bundle.
func (c *Current) Replace(b *Bundle) *Bundle {
	return c.bundle.Swap(b)
}

// LoadLatest rebuilds the newest committed bundle of store that is still
// valid. Bundles that fail to load are logged and skipped.
func LoadLatest(ctx context.Context, store interfaces.BundleStore, log *slog.Logger) (*Bundle, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}

	for _, id := range ids {
		files, err := store.Load(ctx, id)
		if err != nil {
			log.Warn("Unable to load bundle", "bundle", id, "err", err)
			continue
		}
		b, err := NewBundle(id, files, log.With("bundle", id))
		if err != nil {
			log.Warn("Unable to build bundle", "bundle", id, "err", err)
			continue
		}
		log.Info("Loaded bundle", "bundle", id, "files", len(files))
		return b, nil
	}
	return nil, interfaces.ErrBundleNotFound
}
