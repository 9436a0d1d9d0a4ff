package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/wagnerflo/thincf/interfaces"
)

// StorageBackendFactory creates bundle stores from location URIs and manages
// multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log: logger,
	}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//
// Returns an error if the scheme is unsupported.
func (sf *StorageBackendFactory) StorageBackendFor(loc interfaces.StorageBackendLocation) (interfaces.BundleStore, error) {
	switch {
	case loc.IsS3():
		return sf.createS3Backend(loc)
	case loc.IsFile():
		return sf.createFileBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location URIs.
// A single location is returned as is.
// Returns an error if no valid backends could be created from the provided URIs.
func (sf *StorageBackendFactory) CreateMultiBackend(locs []interfaces.StorageBackendLocation) (interfaces.BundleStore, error) {
	backends := make([]interfaces.BundleStore, 0, len(locs))

	for _, loc := range locs {
		backend, err := sf.StorageBackendFor(loc)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", loc.String()))
			continue
		}
		backends = append(backends, backend)
	}

	switch len(backends) {
	case 0:
		return nil, fmt.Errorf("no valid storage backends created")
	case 1:
		return backends[0], nil
	default:
		return NewMultiStorageBackend(backends, sf.log), nil
	}
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.BundleStore, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", loc.Host))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1" // Default region
	}

	var accessKey, secretKey string
	if loc.Auth != nil {
		accessKey = loc.Auth.Username()
		secretKey, _ = loc.Auth.Password()
		sf.log.Debug("Using embedded credentials")
	}

	return NewS3Backend(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.BundleStore, error) {
	sf.log.Debug("Creating file backend", slog.String("path", loc.Path))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}

	return NewFileBackend(path, sf.log)
}
