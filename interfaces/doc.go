// Package interfaces defines the contracts between the thincf server
// components, separating interface definitions from implementations.
//
// # Storage Interfaces
//
// BundleStore: Persists uploaded bundles. A bundle is written through a
// Staging and only becomes visible to List and Load after Commit, so a failed
// upload never leaves a partial bundle behind.
//
// StorageBackendFactory: Creates bundle stores from location URIs (file://,
// s3://) and aggregates several of them for redundant storage.
//
// # Error Types
//
//   - ErrBundleNotFound: Bundle identifier unknown to the store
//   - ErrBackendUnavailable: Storage backend is not accessible
//   - ErrInvalidLocationURI: Storage location URI is malformed
//   - ErrInvalidPath: Bundle file path escapes the bundle root
package interfaces
