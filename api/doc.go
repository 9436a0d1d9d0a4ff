/*
Package api defines the HTTP protocol spoken between thincf clients and the
server, shared by the server handlers and the client library.

The server exposes a single resource at "/":

  - GET / returns the shell script a client runs. The client identifies
    itself by TLS client certificate or by a configured header, passes its
    command line in Thincf-Args, the fingerprints of states it applied in
    Thincf-States and facts about itself in Thincf-Env-<key> headers. The
    response is text/plain with a Thincf-Shell header naming the
    interpreter.
  - POST / uploads a new bundle as a tar archive, optionally compressed
    with gzip, zstd, lz4 or bzip2. The server answers 201 Created once the
    bundle is built, stored and installed.

# Status Codes

  - 403: the request carries no usable client identity
  - 503: no bundle is installed, or the client is not in hosts.ini
  - 400: missing command line, malformed headers or an invalid bundle
  - 500: the script could not be generated; the body has the diagnostic

See the provisioner subpackage for the handler and the client.
*/
package api
