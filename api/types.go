package api

import (
	"context"
	"io"
)

// ScriptRequest is what a client sends when asking for its script.
type ScriptRequest struct {
	// Args is the client command line, program name first.
	Args []string

	// States are fingerprints of states the client already applied.
	States []string

	// Env holds client facts, e.g. operating system and release.
	Env map[string][]string
}

// BundleUploader publishes bundles to a thincf server.
type BundleUploader interface {
	// Upload sends an archive as is.
	Upload(ctx context.Context, archive io.Reader) error

	// UploadDir packs a directory and sends it.
	UploadDir(ctx context.Context, dir string) error
}

// ScriptProvider fetches client scripts from a thincf server.
type ScriptProvider interface {
	Script(ctx context.Context, req ScriptRequest) (string, error)
}
