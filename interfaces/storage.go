package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname or bucket
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   *url.Userinfo
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system storage location.
func (loc StorageBackendLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsS3 checks if this is an S3 storage location.
func (loc StorageBackendLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

var (
	// ErrBundleNotFound is returned when a bundle identifier is unknown to the store.
	ErrBundleNotFound = errors.New("bundle not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrInvalidPath is returned when a bundle file path is absolute or leaves the bundle root.
	ErrInvalidPath = errors.New("path points outside of bundle root")

	// ErrStagingClosed is returned by a Staging after Commit or Discard.
	ErrStagingClosed = errors.New("staging already committed or discarded")
)

// Staging collects the files of one bundle until it is committed.
type Staging interface {
	// Write stores one file. path is relative and slash-separated.
	Write(ctx context.Context, path string, data []byte) error

	// Commit makes the bundle visible to List and Load.
	Commit(ctx context.Context) error

	// Discard drops everything written so far.
	Discard(ctx context.Context) error
}

// BundleStore persists uploaded bundles.
type BundleStore interface {
	// Stage starts writing the bundle with the given identifier.
	Stage(ctx context.Context, identifier string) (Staging, error)

	// List returns the committed bundle identifiers, newest first.
	List(ctx context.Context) ([]string, error)

	// Load returns the files of a committed bundle.
	Load(ctx context.Context, identifier string) (map[string]string, error)

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates bundle stores.
type StorageBackendFactory interface {
	// StorageBackendFor creates backend from URI.
	// Supports file:// and s3://
	StorageBackendFor(locationURI StorageBackendLocation) (BundleStore, error)

	// CreateMultiBackend creates aggregated storage backend.
	CreateMultiBackend(locationURIs []StorageBackendLocation) (BundleStore, error)
}
