package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wagnerflo/thincf/api"
	"github.com/wagnerflo/thincf/identity"
	"github.com/wagnerflo/thincf/ingest"
	"github.com/wagnerflo/thincf/interfaces"
	"github.com/wagnerflo/thincf/metrics"
	"github.com/wagnerflo/thincf/script"
	"github.com/wagnerflo/thincf/state"
)

// MaxUploadSize is the maximum accepted size of an uploaded archive.
const MaxUploadSize = 256 << 20

// Handler serves client scripts from the current bundle and accepts new
// bundles.
type Handler struct {
	current  *state.Current
	store    interfaces.BundleStore
	pipeline *ingest.Pipeline
	renderer *script.Renderer
	identity identity.Resolver
	metrics  *metrics.Metrics
	log      *slog.Logger

	now func() time.Time
}

// NewHandler creates a new HTTP request handler with the specified dependencies.
//
// Parameters:
//   - current: Holder of the bundle served to clients, may already be populated
//   - store: Persistent storage receiving uploaded bundles
//   - pipeline: Archive decoder used for uploads
//   - renderer: Client script renderer
//   - resolver: Derives the client name from a request
//   - m: Collectors to update, may be nil
//   - log: Structured logger for operational insights
func NewHandler(current *state.Current, store interfaces.BundleStore, pipeline *ingest.Pipeline, renderer *script.Renderer, resolver identity.Resolver, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		current:  current,
		store:    store,
		pipeline: pipeline,
		renderer: renderer,
		identity: resolver,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleScript)
	r.Post("/", h.HandleUpload)
}

// HandleScript renders the script for the requesting client.
//
// URL format: GET /
// Headers: see api.ArgsHeader, api.StatesHeader and api.EnvHeaderPrefix
//
// Response: text/plain shell script, interpreter named in api.ShellHeader.
func (h *Handler) HandleScript(w http.ResponseWriter, r *http.Request) {
	client, err := h.identity.ClientName(r)
	if err != nil {
		h.log.Warn("Refused unidentified client", "err", err, "remote", r.RemoteAddr)
		h.metrics.Script(metrics.ScriptRefused)
		http.Error(w, "Cannot identify client.", http.StatusForbidden)
		return
	}

	req, err := api.ParseScriptRequest(r.Header)
	if err != nil {
		h.metrics.Script(metrics.ScriptRefused)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// keep the bundle for the whole request, uploads may replace it
	bundle := h.current.Load()
	if bundle == nil {
		h.metrics.Script(metrics.ScriptRefused)
		http.Error(w, "No bundle installed.", http.StatusServiceUnavailable)
		return
	}

	host, ok := bundle.Host(client)
	if !ok {
		h.log.Warn("Unknown client", "client", client, "bundle", bundle.Identifier())
		h.metrics.Script(metrics.ScriptRefused)
		http.Error(w, fmt.Sprintf("Client '%s' unknown.", client), http.StatusServiceUnavailable)
		return
	}

	env := state.Env(req.Env)
	body, changed, err := h.generate(bundle, host, req, env)
	if err != nil {
		h.log.Warn("Error generating script", "err", err, "client", client, "bundle", bundle.Identifier())
		h.metrics.Script(metrics.ScriptFailed)
		http.Error(w, fmt.Sprintf("Error generating script.\n  %v", err), http.StatusInternalServerError)
		return
	}

	if changed {
		h.metrics.Script(metrics.ScriptChanged)
	} else {
		h.metrics.Script(metrics.ScriptUnchanged)
	}
	h.log.Debug("Generated script", "client", client, "bundle", bundle.Identifier(), "changed", changed)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(api.ShellHeader, "sh")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		h.log.Debug("Failed to write script", "err", err, "client", client)
	}
}

func (h *Handler) generate(bundle *state.Bundle, host *state.Host, req *api.ScriptRequest, env state.Env) (string, bool, error) {
	start := time.Now()
	res, err := bundle.Evaluate(host, req.States, env)
	h.metrics.Evaluation(time.Since(start))
	if err != nil {
		return "", false, err
	}

	body, err := h.renderer.Render(script.Request{
		Client: host.Name(),
		Args:   req.Args,
		Env:    env,
		Result: res,
	})
	if err != nil {
		return "", false, err
	}
	return body, res != nil, nil
}

// HandleUpload installs the bundle in the request body.
//
// URL format: POST /
// Request body: tar archive, optionally gzip, zstd, lz4 or bzip2 compressed
//
// Response: 201 Created without body. The current bundle is only replaced
// after the new one is built and committed to storage.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	client, err := h.identity.ClientName(r)
	if err != nil {
		h.log.Warn("Refused unidentified upload", "err", err, "remote", r.RemoteAddr)
		h.metrics.Upload(metrics.UploadRejected)
		http.Error(w, "Cannot identify client.", http.StatusForbidden)
		return
	}

	log := h.log.With("upload", uuid.NewString(), "client", client)
	body := http.MaxBytesReader(w, r.Body, MaxUploadSize)

	bundle, err := h.install(r.Context(), body, log)
	if err != nil {
		log.Warn("Error importing bundle", "err", err)
		h.metrics.Upload(metrics.UploadRejected)

		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			http.Error(w, reqErr.Error(), reqErr.StatusCode)
		} else {
			http.Error(w, fmt.Sprintf("Submitted bundle is invalid: %v", err), http.StatusBadRequest)
		}
		return
	}

	prev := h.current.Replace(bundle)
	h.metrics.Upload(metrics.UploadAccepted)
	h.metrics.BundleFiles(len(bundle.Files()))

	attrs := []any{"bundle", bundle.Identifier(), "files", len(bundle.Files())}
	if prev != nil {
		attrs = append(attrs, "previous", prev.Identifier())
	}
	log.Info("Installed bundle", attrs...)

	w.WriteHeader(http.StatusCreated)
}

// install stages, builds and commits one bundle.
func (h *Handler) install(ctx context.Context, body io.Reader, log *slog.Logger) (*state.Bundle, error) {
	id := state.NewIdentifier(h.now())

	staging, err := h.store.Stage(ctx, id)
	if err != nil {
		return nil, &RequestError{
			StatusCode: http.StatusServiceUnavailable,
			Err:        fmt.Errorf("failed to stage bundle: %w", err),
		}
	}

	files, err := h.pipeline.Run(ctx, body, staging)
	if err != nil {
		return nil, err
	}

	discard := func() {
		if derr := staging.Discard(context.WithoutCancel(ctx)); derr != nil {
			log.Warn("Failed to discard staged bundle", "err", derr, "bundle", id)
		}
	}

	bundle, err := state.NewBundle(id, files, h.log.With("bundle", id))
	if err != nil {
		discard()
		return nil, err
	}

	if err := staging.Commit(ctx); err != nil {
		discard()
		return nil, &RequestError{
			StatusCode: http.StatusInternalServerError,
			Err:        fmt.Errorf("failed to commit bundle: %w", err),
		}
	}
	return bundle, nil
}

// RequestError carries the status code for failures that are not the
// client's fault.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
