// Package ingest streams an uploaded bundle archive into a staging area.
//
// The request body is read in chunks and handed to a decode worker over a
// bounded channel. The worker decompresses and parses the tar stream and
// hands finished files back over a second bounded channel, where they are
// validated and written to the staging. Neither side ever holds more than a
// few chunks and files in memory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/wagnerflo/thincf/interfaces"
)

// ErrFormat is returned for archives that cannot be decoded or contain
// unsupported entries.
var ErrFormat = errors.New("invalid archive")

// Config tunes the pipeline. Zero values select the defaults.
type Config struct {
	// ChunkSize is the read size on the request body.
	ChunkSize int

	// QueueDepth bounds both hand-off channels.
	QueueDepth int

	// MaxFileSize limits a single archive member. Zero disables the check.
	MaxFileSize int64
}

const (
	DefaultChunkSize  = 64 * 1024
	DefaultQueueDepth = 8
)

type Pipeline struct {
	cfg Config
	log *slog.Logger
}

func NewPipeline(cfg Config, log *slog.Logger) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	return &Pipeline{cfg: cfg, log: log}
}

// file is one decoded archive member.
type file struct {
	name string
	data []byte
}

// Run decodes the archive read from body, writes every file to staging and
// returns the files keyed by their cleaned path. On failure staging is
// discarded.
func (p *Pipeline) Run(ctx context.Context, body io.Reader, staging interfaces.Staging) (map[string]string, error) {
	files, err := p.run(ctx, body, staging)
	if err != nil {
		if derr := staging.Discard(context.WithoutCancel(ctx)); derr != nil {
			p.log.Warn("Failed to discard staged files", "err", derr)
		}
		return nil, err
	}
	return files, nil
}

func (p *Pipeline) run(ctx context.Context, body io.Reader, staging interfaces.Staging) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan []byte, p.cfg.QueueDepth)
	entries := make(chan file, p.cfg.QueueDepth)

	g.Go(func() error {
		defer close(entries)
		return p.decode(gctx, &chunkReader{ctx: gctx, chunks: chunks}, entries)
	})

	files := map[string]string{}
	handle := func(f file) error {
		name, err := interfaces.CleanBundlePath(f.name)
		if err != nil {
			return err
		}
		if !utf8.Valid(f.data) {
			return fmt.Errorf("%w: %s: content is not valid UTF-8", ErrFormat, name)
		}
		if err := staging.Write(gctx, name, f.data); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
		files[name] = string(f.data)
		return nil
	}

	feedErr := p.feed(gctx, body, chunks, entries, handle)
	if feedErr != nil {
		cancel()
	}
	waitErr := g.Wait()

	switch {
	case feedErr != nil && !errors.Is(feedErr, context.Canceled):
		return nil, feedErr
	case waitErr != nil:
		return nil, waitErr
	case feedErr != nil:
		return nil, feedErr
	}

	p.log.Debug("Ingested archive", slog.Int("files", len(files)))
	return files, nil
}

// feed forwards the body to the worker chunk by chunk, handling files as
// they become ready, and consumes the remaining files once the body is
// exhausted. It always closes chunks.
func (p *Pipeline) feed(ctx context.Context, body io.Reader, chunks chan<- []byte, entries <-chan file, handle func(file) error) error {
	closed := false
	endOfInput := func() {
		if !closed {
			close(chunks)
			closed = true
		}
	}
	defer endOfInput()

	// set once the worker finished; the rest of the body is not needed
	workerDone := false
	buf := make([]byte, p.cfg.ChunkSize)

	for !workerDone {
		n, rerr := body.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
		forward:
			for {
				select {
				case chunks <- chunk:
					break forward
				case f, ok := <-entries:
					if !ok {
						workerDone = true
						break forward
					}
					if err := handle(f); err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("failed to read archive: %w", rerr)
		}
	}

	if workerDone {
		return nil
	}

	// take whatever the worker still produces
	endOfInput()
	for {
		select {
		case f, ok := <-entries:
			if !ok {
				return nil
			}
			if err := handle(f); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
