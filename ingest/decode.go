package ingest

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Leading bytes of the supported compression formats.
var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4   = []byte{0x04, 0x22, 0x4d, 0x18}
	magicBzip2 = []byte("BZh")
)

// chunkReader turns the chunk channel back into a byte stream. A closed
// channel is end of input.
type chunkReader struct {
	ctx    context.Context
	chunks <-chan []byte
	buf    []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		select {
		case c, ok := <-r.chunks:
			if !ok {
				return 0, io.EOF
			}
			r.buf = c
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// decompress sniffs the compression format. Anything unrecognised is
// passed through as plain tar.
func decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(magicZstd))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}

	switch {
	case bytes.HasPrefix(head, magicGzip):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return zr, func() { zr.Close() }, nil

	case bytes.HasPrefix(head, magicZstd):
		dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return dec, dec.Close, nil

	case bytes.HasPrefix(head, magicLZ4):
		return lz4.NewReader(br), func() {}, nil

	case bytes.HasPrefix(head, magicBzip2):
		return bzip2.NewReader(br), func() {}, nil
	}
	return br, func() {}, nil
}

// decode runs on the worker goroutine. It emits every regular file of the
// archive and fails on entries that cannot be represented in a bundle.
func (p *Pipeline) decode(ctx context.Context, r io.Reader, out chan<- file) error {
	zr, done, err := decompress(r)
	if err != nil {
		return err
	}
	defer done()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
		case tar.TypeDir, tar.TypeXGlobalHeader:
			continue
		default:
			return fmt.Errorf("%w: %s: unsupported entry type %q", ErrFormat, hdr.Name, string(hdr.Typeflag))
		}

		if p.cfg.MaxFileSize > 0 && hdr.Size > p.cfg.MaxFileSize {
			return fmt.Errorf("%w: %s: %d bytes exceed the limit of %d", ErrFormat, hdr.Name, hdr.Size, p.cfg.MaxFileSize)
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %v", ErrFormat, hdr.Name, err)
		}

		select {
		case out <- file{name: hdr.Name, data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
