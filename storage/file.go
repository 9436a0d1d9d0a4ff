package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wagnerflo/thincf/interfaces"
)

// stagingPrefix marks directories of uploads that were not committed yet.
// List skips them.
const stagingPrefix = ".staging-"

// FileBackend implements a bundle store on the local file system.
// Each committed bundle is a directory below baseDir named by its identifier.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// Leftover staging directories of interrupted uploads are removed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	stale, err := filepath.Glob(filepath.Join(baseDir, stagingPrefix+"*"))
	if err != nil {
		return nil, err
	}
	for _, dir := range stale {
		log.Warn("Removing stale staging directory", slog.String("path", dir))
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove staging directory: %w", err)
		}
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Stage creates a hidden staging directory that is renamed into place on
// commit.
func (b *FileBackend) Stage(ctx context.Context, identifier string) (interfaces.Staging, error) {
	if err := validIdentifier(identifier); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(b.baseDir, stagingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	b.log.Debug("Staging bundle", slog.String("bundle", identifier), slog.String("path", dir))

	return &fileStaging{
		dir:   dir,
		final: filepath.Join(b.baseDir, identifier),
		log:   b.log,
	}, nil
}

// List returns the committed bundles, newest first.
func (b *FileBackend) List(ctx context.Context) ([]string, error) {
	dirents, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	var ids []string
	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		ids = append(ids, d.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Load reads every regular file of a committed bundle.
func (b *FileBackend) Load(ctx context.Context, identifier string) (map[string]string, error) {
	if err := validIdentifier(identifier); err != nil {
		return nil, err
	}

	root := filepath.Join(b.baseDir, identifier)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrBundleNotFound
	}

	files := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.log.Debug("Loaded bundle from files",
		slog.String("bundle", identifier),
		slog.Int("files", len(files)))

	return files, nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

type fileStaging struct {
	mu     sync.Mutex
	dir    string
	final  string
	closed bool
	log    *slog.Logger
}

func (s *fileStaging) Write(ctx context.Context, p string, data []byte) error {
	clean, err := interfaces.CleanBundlePath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return interfaces.ErrStagingClosed
	}

	target := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *fileStaging) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return interfaces.ErrStagingClosed
	}
	s.closed = true

	if _, err := os.Stat(s.final); err == nil {
		os.RemoveAll(s.dir)
		return fmt.Errorf("bundle %s already exists", filepath.Base(s.final))
	}
	if err := os.Rename(s.dir, s.final); err != nil {
		os.RemoveAll(s.dir)
		return fmt.Errorf("failed to commit bundle: %w", err)
	}

	s.log.Debug("Committed bundle", slog.String("path", s.final))
	return nil
}

func (s *fileStaging) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}

// validIdentifier rejects identifiers that cannot name a single directory
// or object prefix.
func validIdentifier(id string) error {
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: invalid bundle identifier %q", interfaces.ErrInvalidPath, id)
	}
	return nil
}
