// Package provisioner implements the thincf HTTP endpoints and the client
// library that talks to them.
//
// # Key Components
//
//   - Handler: Serves client scripts compiled from the current bundle and
//     installs uploaded bundles
//   - ProvisioningClient: Uploads bundles and fetches scripts from a
//     remote server
//
// # Script Requests
//
// When a client asks for its script:
//
//  1. The client name is derived from its certificate or a configured header
//  2. The command line, applied fingerprints and environment facts are read
//     from the request headers
//  3. The current bundle is captured for the rest of the request
//  4. The bundle is compiled for the client's host entry; if the result's
//     fingerprint is among the applied ones the script only reports that
//     nothing changed
//  5. The main template renders the result into a shell script
//
// # Uploads
//
// An upload is decoded while it streams in, staged in the bundle store,
// built, committed and only then installed. A failure at any step leaves
// the previously installed bundle in place and removes the staged files.
//
// # Usage Example
//
//	client := &provisioner.ProvisioningClient{
//		ServerAddr: "https://thincf.example.com:8080",
//	}
//
//	if err := client.UploadDir(ctx, "./bundle"); err != nil {
//		log.Fatalf("Upload failed: %v", err)
//	}
//
//	script, err := client.Script(ctx, api.ScriptRequest{
//		Args: []string{"thincf", "apply", "--dry-run"},
//	})
package provisioner
