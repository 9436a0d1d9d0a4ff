package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/wagnerflo/thincf/api"
	"github.com/wagnerflo/thincf/common"
)

// EnvPrefix prefixes the environment variable of every server flag.
const EnvPrefix = "THINCF_SERVER_"

func envVars(name string) []string {
	return []string{EnvPrefix + name}
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		TLSCertFile:              cCtx.String(TLSCertFlag.Name),
		TLSKeyFile:               cCtx.String(TLSKeyFlag.Name),
		ClientCAFile:             cCtx.String(ClientCAFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	EnvVars: envVars("LISTEN_ADDR"),
	Usage:   "address to listen on for API",
}
var StateDirFlag = &cli.StringFlag{
	Name:    "statedir",
	EnvVars: envVars("STATEDIR"),
	Usage:   "directory uploaded bundles are stored in",
}
var StorageFlag = &cli.StringSliceFlag{
	Name:    "storage",
	EnvVars: envVars("STORAGE"),
	Usage:   "additional bundle storage `URI` (file:// or s3://), may be repeated",
}
var TemplateDirFlag = &cli.StringFlag{
	Name:    "templatedir",
	EnvVars: envVars("TEMPLATEDIR"),
	Usage:   "directory with templates overriding the built-in client script",
}
var ClientNameHeaderFlag = &cli.StringFlag{
	Name:    "client-name-header",
	EnvVars: envVars("CLIENT_NAME_HEADER"),
	Usage:   "request header carrying the client name",
}
var ClientCertHeaderFlag = &cli.StringFlag{
	Name:    "client-cert-header",
	EnvVars: envVars("CLIENT_CERT_HEADER"),
	Usage:   "request header carrying the URL-escaped PEM client certificate forwarded by a proxy",
}
var MaxFileSizeFlag = &cli.Int64Flag{
	Name:    "max-file-size",
	Value:   16 << 20,
	EnvVars: envVars("MAX_FILE_SIZE"),
	Usage:   "largest accepted file in an uploaded bundle, in bytes",
}

var TLSCertFlag = &cli.StringFlag{
	Name:    "tls-cert",
	EnvVars: envVars("TLS_CERT"),
	Usage:   "PEM certificate to serve HTTPS with",
}
var TLSKeyFlag = &cli.StringFlag{
	Name:    "tls-key",
	EnvVars: envVars("TLS_KEY"),
	Usage:   "PEM private key of the TLS certificate",
}
var ClientCAFlag = &cli.StringFlag{
	Name:    "tls-client-ca",
	EnvVars: envVars("TLS_CLIENT_CA"),
	Usage:   "PEM bundle to verify client certificates against",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	EnvVars: envVars("LOG_JSON"),
	Usage:   "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	EnvVars: envVars("LOG_DEBUG"),
	Usage:   "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	EnvVars: envVars("LOG_UID"),
	Usage:   "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:    "log-service",
	Value:   "thincf-server",
	EnvVars: envVars("LOG_SERVICE"),
	Usage:   "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	EnvVars: envVars("PPROF"),
	Usage:   "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	EnvVars: envVars("DRAIN_SECONDS"),
	Usage:   "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	EnvVars: envVars("METRICS_ADDR"),
	Usage:   "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var CommonFlags = append([]cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}, LogFlags...)

var ServerFlags = append([]cli.Flag{
	ListenAddrFlag,
	StateDirFlag,
	StorageFlag,
	TemplateDirFlag,
	ClientNameHeaderFlag,
	ClientCertHeaderFlag,
	MaxFileSizeFlag,
	TLSCertFlag,
	TLSKeyFlag,
	ClientCAFlag,
}, CommonFlags...)
