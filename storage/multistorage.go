package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/wagnerflo/thincf/interfaces"
)

// MultiStorageBackend implements interfaces.BundleStore using multiple backends with fallback.
// Bundles are written to every available backend and read from the first one
// that has them.
type MultiStorageBackend struct {
	backends []interfaces.BundleStore
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.BundleStore, logger *slog.Logger) *MultiStorageBackend {
	// If no logger is provided, create a default one
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Stage starts the bundle on every available backend.
func (m *MultiStorageBackend) Stage(ctx context.Context, identifier string) (interfaces.Staging, error) {
	ms := &multiStaging{log: m.log}
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		st, err := backend.Stage(ctx, identifier)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to stage on backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}
		ms.stagings = append(ms.stagings, namedStaging{name: backend.Name(), Staging: st})
	}

	if len(ms.stagings) == 0 {
		return nil, fmt.Errorf("%w: no backend accepted bundle %s: %v", interfaces.ErrBackendUnavailable, identifier, errs)
	}
	return ms, nil
}

// List merges the bundle identifiers of all available backends.
func (m *MultiStorageBackend) List(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var errs []error
	var success bool

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		ids, err := backend.List(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}
		success = true
		for _, id := range ids {
			seen[id] = true
		}
	}

	if !success {
		return nil, fmt.Errorf("%w: all backends failed to list bundles: %v", interfaces.ErrBackendUnavailable, errs)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Load returns the bundle from the first backend that has it.
func (m *MultiStorageBackend) Load(ctx context.Context, identifier string) (map[string]string, error) {
	start := time.Now()
	var errs []error
	notFound := true

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("bundle", identifier))
			continue
		}

		files, err := backend.Load(ctx, identifier)
		if err == nil {
			m.log.Info("Successfully loaded bundle",
				slog.String("backend_name", backend.Name()),
				slog.String("bundle", identifier),
				slog.Duration("duration", time.Since(start)))
			return files, nil
		}

		if !errors.Is(err, interfaces.ErrBundleNotFound) {
			notFound = false
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to load from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("bundle", identifier),
			"err", err)
	}

	if notFound {
		return nil, interfaces.ErrBundleNotFound
	}

	m.log.Error("All backends failed to load bundle",
		slog.String("bundle", identifier),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to load %s: %w", identifier, errors.Join(errs...))
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the URI of this backend
func (m *MultiStorageBackend) LocationURI() string {
	// Build a combined location URI from all backends
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}

type namedStaging struct {
	interfaces.Staging
	name string
}

// multiStaging fans writes out to several stagings. A backend that fails is
// discarded and dropped; the upload fails once none is left.
type multiStaging struct {
	stagings []namedStaging
	log      *slog.Logger
}

func (ms *multiStaging) Write(ctx context.Context, p string, data []byte) error {
	if _, err := interfaces.CleanBundlePath(p); err != nil {
		return err
	}

	var errs []error
	alive := ms.stagings[:0]
	for _, st := range ms.stagings {
		if err := st.Write(ctx, p, data); err != nil {
			ms.log.Warn("Dropping backend from upload",
				slog.String("backend_name", st.name),
				"err", err)
			st.Discard(ctx)
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		alive = append(alive, st)
	}
	ms.stagings = alive

	if len(ms.stagings) == 0 {
		return fmt.Errorf("all backends failed to store %s: %w", p, errors.Join(errs...))
	}
	return nil
}

func (ms *multiStaging) Commit(ctx context.Context) error {
	var errs []error
	var success bool
	for _, st := range ms.stagings {
		if err := st.Commit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			ms.log.Warn("Failed to commit bundle to backend",
				slog.String("backend_name", st.name),
				"err", err)
			continue
		}
		success = true
	}
	if !success {
		return fmt.Errorf("all backends failed to commit: %w", errors.Join(errs...))
	}
	return nil
}

func (ms *multiStaging) Discard(ctx context.Context) error {
	var errs []error
	for _, st := range ms.stagings {
		if err := st.Discard(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
	}
	return errors.Join(errs...)
}
