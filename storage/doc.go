// Package storage persists uploaded configuration bundles behind pluggable backends.
//
// A bundle is a flat map of relative, slash-separated paths to file contents,
// named by its identifier (the UTC ingestion timestamp). Backends write a bundle
// through a Staging and make it visible atomically on Commit:
//
//   - File system storage renames a hidden staging directory into place
//   - S3-compatible storage uploads the files and then a committed marker
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/thincf/bundles/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - s3://ACCESS_KEY:SECRET_KEY@bucket-name/prefix/?endpoint=minio.local:9000
//
// # Layout
//
// The file backend keeps one directory per bundle:
//
//	<base>/<id>/hosts.ini
//	<base>/<id>/etc/app/config
//	<base>/.staging-*/...        uploads in progress
//
// The S3 backend keeps the files and a marker listing them:
//
//	<prefix>/bundles/<id>/<path>
//	<prefix>/committed/<id>
//
// # Multi-Backend Example
//
//	factory := storage.NewStorageBackendFactory(logger)
//
//	locs := []interfaces.StorageBackendLocation{}
//	for _, uri := range []string{"file:///var/lib/thincf", "s3://thincf-bundles/prod"} {
//	    loc, err := interfaces.NewStorageBackendLocation(uri)
//	    if err != nil {
//	        return err
//	    }
//	    locs = append(locs, loc)
//	}
//
//	store, err := factory.CreateMultiBackend(locs)
//	if err != nil {
//	    return err
//	}
//
//	staging, err := store.Stage(ctx, id)
//	...
//	err = staging.Commit(ctx)
//
// The multi-backend writes to every available backend, drops backends that
// fail mid-upload, and loads from the first backend holding the bundle.
package storage
