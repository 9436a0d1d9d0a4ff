package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/wagnerflo/thincf/api"
	"github.com/wagnerflo/thincf/api/provisioner"
	"github.com/wagnerflo/thincf/common"
)

// Program is sent as the first script argument, client scripts name
// themselves after it in usage and error messages.
const Program = "thincf"

var flagServer = &cli.StringFlag{
	Name:     "server",
	Aliases:  []string{"s"},
	EnvVars:  []string{"THINCF_SERVER"},
	Required: true,
	Usage:    "base `URL` of the thincf server",
}
var flagClientName = &cli.StringFlag{
	Name:    "client-name",
	EnvVars: []string{"THINCF_CLIENT_NAME"},
	Usage:   "client name sent in --client-name-header",
}
var flagClientNameHeader = &cli.StringFlag{
	Name:    "client-name-header",
	Value:   "X-Thincf-Client",
	EnvVars: []string{"THINCF_CLIENT_NAME_HEADER"},
	Usage:   "request header the server reads the client name from",
}
var flagCACert = &cli.StringFlag{
	Name:    "cacert",
	EnvVars: []string{"THINCF_CACERT"},
	Usage:   "PEM bundle to verify the server certificate against",
}
var flagCert = &cli.StringFlag{
	Name:    "cert",
	EnvVars: []string{"THINCF_CERT"},
	Usage:   "PEM client certificate",
}
var flagKey = &cli.StringFlag{
	Name:    "key",
	EnvVars: []string{"THINCF_KEY"},
	Usage:   "PEM private key of the client certificate",
}
var flagInsecureTLS = &cli.BoolFlag{
	Name:  "insecure-tls",
	Value: false,
	Usage: "Skip TLS verification (not recommended for production)",
}

var flagState = &cli.StringSliceFlag{
	Name:  "state",
	Usage: "fingerprint of an applied configuration, may be repeated",
}
var flagEnv = &cli.StringSliceFlag{
	Name:  "env",
	Usage: "`KEY=VALUE` passed to templates, may be repeated",
}

func main() {
	app := &cli.App{
		Name:    Program,
		Usage:   "Upload bundles to a thincf server and fetch client scripts",
		Version: common.Version,
		Flags: []cli.Flag{
			flagServer,
			flagClientName,
			flagClientNameHeader,
			flagCACert,
			flagCert,
			flagKey,
			flagInsecureTLS,
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "install a bundle directory or archive (- for stdin)",
				ArgsUsage: "PATH",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return cli.Exit("upload expects exactly one PATH", 2)
					}
					client, err := newProvisioningClient(cCtx)
					if err != nil {
						return err
					}
					return uploadBundle(cCtx.Context, client, cCtx.Args().First(), os.Stdin)
				},
			},
			{
				Name:      "script",
				Usage:     "print the script the server generates for this client",
				ArgsUsage: "[-- SCRIPT ARGS...]",
				Flags:     []cli.Flag{flagState, flagEnv},
				Action: func(cCtx *cli.Context) error {
					env, err := parseEnv(cCtx.StringSlice(flagEnv.Name))
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					client, err := newProvisioningClient(cCtx)
					if err != nil {
						return err
					}
					req := api.ScriptRequest{
						Args:   append([]string{Program}, cCtx.Args().Slice()...),
						States: cCtx.StringSlice(flagState.Name),
						Env:    env,
					}
					return printScript(cCtx.Context, client, req, os.Stdout)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newProvisioningClient(cCtx *cli.Context) (*provisioner.ProvisioningClient, error) {
	httpClient, err := newHTTPClient(
		cCtx.String(flagCACert.Name),
		cCtx.String(flagCert.Name),
		cCtx.String(flagKey.Name),
		cCtx.Bool(flagInsecureTLS.Name),
	)
	if err != nil {
		return nil, err
	}
	return &provisioner.ProvisioningClient{
		ServerAddr:       cCtx.String(flagServer.Name),
		HTTPClient:       httpClient,
		ClientName:       cCtx.String(flagClientName.Name),
		ClientNameHeader: cCtx.String(flagClientNameHeader.Name),
	}, nil
}

func newHTTPClient(caFile, certFile, keyFile string, insecure bool) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure,
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificates: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		tlsConfig.RootCAs = pool
	}

	switch {
	case certFile != "" && keyFile != "":
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case certFile != "" || keyFile != "":
		return nil, errors.New("--cert and --key must be given together")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport}, nil
}

// uploadBundle sends a directory as archive, or an archive file as is.
func uploadBundle(ctx context.Context, u api.BundleUploader, path string, stdin io.Reader) error {
	if path == "-" {
		return u.Upload(ctx, stdin)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return u.UploadDir(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return u.Upload(ctx, f)
}

// printScript writes the generated script to out. It is never executed here.
func printScript(ctx context.Context, p api.ScriptProvider, req api.ScriptRequest, out io.Writer) error {
	body, err := p.Script(ctx, req)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, body)
	return err
}

func parseEnv(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := map[string][]string{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", pair)
		}
		key = strings.ToLower(key)
		env[key] = append(env[key], value)
	}
	return env, nil
}
