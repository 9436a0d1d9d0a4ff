package provisioner

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/mock"

	"github.com/wagnerflo/thincf/api"
)

// ProvisioningClient implements api.BundleUploader and api.ScriptProvider
// against a remote thincf server.
type ProvisioningClient struct {
	// ServerAddr is the base URL of the thincf server
	ServerAddr string

	// HTTPClient is used for all requests, http.DefaultClient if nil.
	// Configure its transport for client certificates.
	HTTPClient *http.Client

	// ClientName is sent in ClientNameHeader when both are set, for
	// servers identifying clients by header.
	ClientName       string
	ClientNameHeader string
}

func (p *ProvisioningClient) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *ProvisioningClient) newRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(p.ServerAddr, "/")+"/", body)
	if err != nil {
		return nil, err
	}
	if p.ClientName != "" && p.ClientNameHeader != "" {
		req.Header.Set(p.ClientNameHeader, p.ClientName)
	}
	return req, nil
}

// Upload sends an archive to the server, which installs it as the current
// bundle.
func (p *ProvisioningClient) Upload(ctx context.Context, archive io.Reader) error {
	req, err := p.newRequest(ctx, http.MethodPost, archive)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-tar")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("could not request upload endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return responseError("upload", resp)
	}
	return nil
}

// UploadDir streams dir as a gzip compressed tar archive. Only regular files
// and directories are packed.
func (p *ProvisioningClient) UploadDir(ctx context.Context, dir string) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteArchive(pw, dir))
	}()

	err := p.Upload(ctx, pr)
	// unblocks the writer if the request ended early
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}

// WriteArchive writes the regular files below dir to w as a gzip
// compressed tar archive with slash-separated relative names.
func WriteArchive(w io.Writer, dir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return fmt.Errorf("%s: not a regular file", path)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// Script fetches the script for this client.
func (p *ProvisioningClient) Script(ctx context.Context, sreq api.ScriptRequest) (string, error) {
	req, err := p.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return "", err
	}
	sreq.SetHeaders(req.Header)

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("could not request script endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError("script", resp)
	}
	if shell := resp.Header.Get(api.ShellHeader); shell != "" && shell != "sh" {
		return "", fmt.Errorf("script endpoint returned unsupported shell %q", shell)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("could not read script: %w", err)
	}
	return string(body), nil
}

func responseError(endpoint string, resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s endpoint returned unexpected response: %d", endpoint, resp.StatusCode)
	}
	return fmt.Errorf("%s endpoint returned error %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

// MockProvider implements api.BundleUploader and api.ScriptProvider for testing.
// The behavior is determined by how the mock is configured in tests.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Upload(ctx context.Context, archive io.Reader) error {
	args := m.Called(ctx, archive)
	return args.Error(0)
}

func (m *MockProvider) UploadDir(ctx context.Context, dir string) error {
	args := m.Called(ctx, dir)
	return args.Error(0)
}

func (m *MockProvider) Script(ctx context.Context, req api.ScriptRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
