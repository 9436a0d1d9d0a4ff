package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/wagnerflo/thincf/api/provisioner"
	"github.com/wagnerflo/thincf/cmd/flags"
	"github.com/wagnerflo/thincf/common"
	"github.com/wagnerflo/thincf/httpserver"
	"github.com/wagnerflo/thincf/identity"
	"github.com/wagnerflo/thincf/ingest"
	"github.com/wagnerflo/thincf/interfaces"
	"github.com/wagnerflo/thincf/metrics"
	"github.com/wagnerflo/thincf/script"
	"github.com/wagnerflo/thincf/state"
	"github.com/wagnerflo/thincf/storage"
)

func main() {
	app := &cli.App{
		Name:    "thincf-server",
		Usage:   "Serve host configuration scripts compiled from uploaded bundles",
		Version: common.Version,
		Flags:   flags.ServerFlags,
		Action:  run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	locations, err := storageLocations(cCtx.String(flags.StateDirFlag.Name), cCtx.StringSlice(flags.StorageFlag.Name))
	if err != nil {
		logger.Error("Invalid storage configuration", "err", err)
		return err
	}

	store, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		logger.Error("Failed to create bundle storage", "err", err)
		return err
	}

	renderer, err := script.NewRenderer(cCtx.String(flags.TemplateDirFlag.Name))
	if err != nil {
		logger.Error("Failed to load client script template", "err", err)
		return err
	}

	cfg := flags.ConfigureServer(cCtx, logger)

	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}

	current := &state.Current{}
	if err := loadStoredBundle(cCtx.Context, store, current, metricsSrv.Metrics, logger); err != nil {
		return err
	}

	pipeline := ingest.NewPipeline(ingest.Config{
		MaxFileSize: cCtx.Int64(flags.MaxFileSizeFlag.Name),
	}, logger)
	resolver := identity.New(
		cCtx.String(flags.ClientNameHeaderFlag.Name),
		cCtx.String(flags.ClientCertHeaderFlag.Name),
	)
	handler := provisioner.NewHandler(current, store, pipeline, renderer, resolver, metricsSrv.Metrics, logger)

	server, err := httpserver.New(cfg, metricsSrv, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server", "storage", store.LocationURI())
	server.RunInBackground()

	// Wait for termination signal
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// storageLocations turns the state directory and extra storage URIs into
// backend locations. At least one is required.
func storageLocations(stateDir string, uris []string) ([]interfaces.StorageBackendLocation, error) {
	if stateDir != "" {
		abs, err := filepath.Abs(stateDir)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("statedir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("statedir %s is no directory", abs)
		}
		uris = append([]string{"file://" + filepath.ToSlash(abs)}, uris...)
	}
	if len(uris) == 0 {
		return nil, errors.New("no bundle storage configured, set --statedir or --storage")
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// loadStoredBundle installs the newest stored bundle that still builds. An
// empty store is not an error.
func loadStoredBundle(ctx context.Context, store interfaces.BundleStore, current *state.Current, m *metrics.Metrics, logger *slog.Logger) error {
	bundle, err := state.LoadLatest(ctx, store, logger)
	switch {
	case errors.Is(err, interfaces.ErrBundleNotFound):
		logger.Info("No usable bundle stored, waiting for upload")
		return nil
	case err != nil:
		logger.Error("Failed to load stored bundles", "err", err)
		return err
	}

	current.Replace(bundle)
	m.BundleFiles(len(bundle.Files()))
	return nil
}
