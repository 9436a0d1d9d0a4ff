/*
Package httpserver runs the thincf HTTP API.

It wraps the provisioning routes with access logging and adds the
operational endpoints:

  - /livez: liveness probe, always 200
  - /readyz: readiness probe, 503 while draining
  - /drain and /undrain: toggle readiness ahead of a shutdown
  - /debug: pprof, only when enabled

With a certificate and key configured the server speaks HTTPS. A client CA
bundle additionally makes it request and verify client certificates, whose
common name then identifies the client.

Metrics are published by a separate listener, see package metrics.

# Example Usage

	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	...
	handler := provisioner.NewHandler(current, store, pipeline, renderer, resolver, metricsSrv.Metrics, log)
	srv, err := httpserver.New(cfg, metricsSrv, handler)
	if err != nil {
	    return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
