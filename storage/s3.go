package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/wagnerflo/thincf/interfaces"
)

// Object layout below the prefix:
//
//	bundles/<id>/<path>  file content
//	committed/<id>       newline separated list of the bundle's paths
//
// A bundle exists for List and Load only once its committed marker is
// written.
const (
	s3BundlesDir   = "bundles"
	s3CommittedDir = "committed"
)

// S3Backend implements a bundle store using Amazon S3 or compatible services.
type S3Backend struct {
	client      s3iface.S3API
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates a new S3 storage backend.
// Without accessKey and secretKey the default AWS credential chain is used.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	// Format the URI for tracking
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if accessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", accessKey, bucketName, prefix, region)
	}
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return newS3Backend(s3.New(sess), bucketName, prefix, uri, log), nil
}

func newS3Backend(client s3iface.S3API, bucketName, prefix, uri string, log *slog.Logger) *S3Backend {
	return &S3Backend{
		client:      client,
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}
}

// Stage returns a staging that uploads files directly below the bundle's
// key prefix. Discard deletes what was uploaded.
func (b *S3Backend) Stage(ctx context.Context, identifier string) (interfaces.Staging, error) {
	if err := validIdentifier(identifier); err != nil {
		return nil, err
	}
	return &s3Staging{backend: b, id: identifier}, nil
}

// List returns the committed bundles, newest first.
func (b *S3Backend) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	markerPrefix := b.key(s3CommittedDir) + "/"

	var ids []string
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
		Prefix: aws.String(markerPrefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			id := strings.TrimPrefix(aws.StringValue(obj.Key), markerPrefix)
			if id != "" && !strings.Contains(id, "/") {
				ids = append(ids, id)
			}
		}
		return true
	})
	if err != nil {
		b.log.Error("Failed to list bundles in S3",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to list objects in S3: %w", err)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Load fetches the files named by the bundle's committed marker.
func (b *S3Backend) Load(ctx context.Context, identifier string) (map[string]string, error) {
	if err := validIdentifier(identifier); err != nil {
		return nil, err
	}
	start := time.Now()

	index, err := b.get(ctx, b.key(s3CommittedDir, identifier))
	if err != nil {
		return nil, err
	}

	files := map[string]string{}
	for _, p := range strings.Split(string(index), "\n") {
		if p == "" {
			continue
		}
		data, err := b.get(ctx, b.key(s3BundlesDir, identifier, p))
		if err != nil {
			if errors.Is(err, interfaces.ErrBundleNotFound) {
				return nil, fmt.Errorf("bundle %s is missing %s: %w", identifier, p, err)
			}
			return nil, err
		}
		files[p] = string(data)
	}

	b.log.Debug("Loaded bundle from S3",
		slog.String("bucket", b.bucketName),
		slog.String("bundle", identifier),
		slog.Int("files", len(files)),
		slog.Duration("duration", time.Since(start)))

	return files, nil
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	// Try to head the bucket to check if it's accessible
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})

	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) key(parts ...string) string {
	if b.prefix != "" {
		parts = append([]string{b.prefix}, parts...)
	}
	return path.Join(parts...)
}

func (b *S3Backend) get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, interfaces.ErrBundleNotFound
		}
		b.log.Error("Failed to get object from S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err)
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (b *S3Backend) put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return nil
}

type s3Staging struct {
	backend *S3Backend
	id      string

	mu      sync.Mutex
	written []string
	closed  bool
}

func (s *s3Staging) Write(ctx context.Context, p string, data []byte) error {
	clean, err := interfaces.CleanBundlePath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return interfaces.ErrStagingClosed
	}

	if err := s.backend.put(ctx, s.backend.key(s3BundlesDir, s.id, clean), data); err != nil {
		return err
	}
	s.written = append(s.written, clean)
	return nil
}

func (s *s3Staging) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return interfaces.ErrStagingClosed
	}
	s.closed = true

	paths := append([]string(nil), s.written...)
	sort.Strings(paths)
	index := strings.Join(paths, "\n") + "\n"

	if err := s.backend.put(ctx, s.backend.key(s3CommittedDir, s.id), []byte(index)); err != nil {
		s.deleteWritten(ctx)
		return err
	}

	s.backend.log.Debug("Committed bundle to S3",
		slog.String("bucket", s.backend.bucketName),
		slog.String("bundle", s.id),
		slog.Int("files", len(paths)))
	return nil
}

func (s *s3Staging) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.deleteWritten(ctx)
}

func (s *s3Staging) deleteWritten(ctx context.Context) error {
	var errs []error
	for _, p := range s.written {
		_, err := s.backend.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.backend.bucketName),
			Key:    aws.String(s.backend.key(s3BundlesDir, s.id, p)),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.backend.log.Warn("Failed to delete staged objects",
			slog.String("bundle", s.id),
			slog.Int("failed", len(errs)))
		return fmt.Errorf("failed to delete staged objects: %w", errors.Join(errs...))
	}
	return nil
}
