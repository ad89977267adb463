package storage

import (
	"context"
)

// Provider represents the storage backend type.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// Providers returns the supported backends in a stable order.
func Providers() []Provider {
	return []Provider{ProviderAWS, ProviderAzure, ProviderGCP}
}

// ObjectInfo contains information about a storage object. It is produced
// fresh on every list/stat call and never cached.
type ObjectInfo struct {
	Name         string            `json:"name"`
	Size         int64             `json:"size"`
	LastModified string            `json:"last_modified,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// TransferResult is the structured outcome of a transfer operation.
// Exactly one of (Success=true, ErrorMessage="") or (Success=false,
// ErrorMessage set) holds.
type TransferResult struct {
	Success          bool    `json:"success"`
	SourcePath       string  `json:"source"`
	DestinationPath  string  `json:"destination"`
	BytesTransferred int64   `json:"bytes_transferred"`
	DurationSeconds  float64 `json:"duration_seconds"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// Connector is the uniform interface every storage backend implements.
//
// The error/result split mirrors how callers are expected to handle
// failures: operations that cannot even be attempted (bad local file,
// authentication failure, missing object on a metadata read) return a non-nil
// error, while backend-side failures of upload/download/copy are captured
// into a failed TransferResult so that orchestration code stays free of
// error handling on the expected-failure path.
type Connector interface {
	// Provider returns the backend this connector talks to.
	Provider() Provider

	// Authenticate establishes the backend client from statically configured
	// credentials. It is idempotent; calling it when already authenticated
	// re-validates the connection. Missing or invalid credentials yield
	// ErrAuthentication, any other setup failure ErrConnection.
	Authenticate(ctx context.Context) error

	// ListFiles returns the objects under prefix in the backend's native
	// listing order. The container not existing yields ErrNotFound,
	// authorization failures ErrPermissionDenied.
	ListFiles(ctx context.Context, container, prefix string) ([]ObjectInfo, error)

	// UploadFile stores the local file as container/remotePath. A missing
	// local file fails fast with ErrNotFound before any network call; all
	// backend-side failures are captured into a failed result.
	UploadFile(ctx context.Context, localPath, container, remotePath string, opts ...UploadOption) (*TransferResult, error)

	// DownloadFile fetches container/remotePath into localPath, creating
	// parent directories as needed. A missing remote object is captured into
	// a failed result, not returned as an error.
	DownloadFile(ctx context.Context, container, remotePath, localPath string) (*TransferResult, error)

	// CopyFile performs a backend-native copy; no object data leaves the
	// backend. Backends with asynchronous copy block, polling once a second
	// until the copy reaches a terminal state.
	CopyFile(ctx context.Context, srcContainer, srcPath, dstContainer, dstPath string, opts ...UploadOption) (*TransferResult, error)

	// DeleteFile removes an object, returning false after logging on any
	// failure. Callers cannot distinguish "already absent" from "delete
	// failed".
	DeleteFile(ctx context.Context, container, remotePath string) bool

	// FileExists reports whether the object exists, treating any error as
	// false. "Not found" and "access denied" are deliberately conflated.
	FileExists(ctx context.Context, container, remotePath string) bool

	// GetFileInfo returns the object's metadata, ErrNotFound for a missing
	// object, and never a partially populated result.
	GetFileInfo(ctx context.Context, container, remotePath string) (*ObjectInfo, error)
}

// TestConnection reports whether the connector can authenticate.
func TestConnection(ctx context.Context, c Connector) bool {
	return c.Authenticate(ctx) == nil
}
