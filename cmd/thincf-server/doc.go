// Package main (cmd/thincf-server) runs the thincf configuration server.
//
// Clients fetch a shell script compiled from the current bundle with GET /,
// operators replace the bundle by POSTing a tar archive to the same path.
// Uploaded bundles are written to every configured storage location and the
// newest one that still builds is served again after a restart.
//
// Every flag can also be set through a THINCF_SERVER_* environment variable.
//
// Example usage:
//
//	thincf-server --statedir=/var/db/thincf \
//	    --listen-addr=0.0.0.0:8443 \
//	    --tls-cert=server.pem --tls-key=server.key \
//	    --tls-client-ca=clients.pem
//
// With a TLS-terminating proxy in front, identify clients by a forwarded
// certificate or a plain header instead:
//
//	thincf-server --statedir=/var/db/thincf --client-cert-header=X-Client-Cert
package main
