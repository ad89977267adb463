package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/sgl-project/cloudxfer/pkg/logging"
	"github.com/sgl-project/cloudxfer/pkg/storage"
)

// Config represents Google Cloud Storage connector configuration. When no
// credentials file is given, application default credentials are used.
type Config struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// Configured reports whether the connector has enough configuration to
// build a client.
func (c Config) Configured() bool {
	return c.ProjectID != ""
}

// Connector implements storage.Connector for Google Cloud Storage.
type Connector struct {
	cfg    Config
	retry  storage.RetryConfig
	logger logging.Interface
	client gcsAPI
}

// NewConnector creates an unauthenticated GCS connector.
func NewConnector(cfg Config, retry storage.RetryConfig, logger logging.Interface) *Connector {
	return &Connector{
		cfg:    cfg,
		retry:  retry,
		logger: logger,
	}
}

// NewWithClient creates a connector with a pre-built client (for testing).
func NewWithClient(client gcsAPI, cfg Config, retry storage.RetryConfig, logger logging.Interface) *Connector {
	return &Connector{
		cfg:    cfg,
		retry:  retry,
		logger: logger,
		client: client,
	}
}

// Provider returns the storage provider type.
func (c *Connector) Provider() storage.Provider {
	return storage.ProviderGCP
}

// Authenticate builds the GCS client and validates it by listing buckets in
// the configured project. A failed validation drops the client.
func (c *Connector) Authenticate(ctx context.Context) error {
	if !c.cfg.Configured() {
		return fmt.Errorf("%w: GCP project not configured", storage.ErrAuthentication)
	}

	if c.client == nil {
		client, err := newClientAdapter(ctx, c.cfg)
		if err != nil {
			return fmt.Errorf("%w: building GCS client: %v", storage.ErrAuthentication, err)
		}
		c.client = client
	}

	if err := c.client.Probe(ctx); err != nil {
		c.client = nil
		if code := apiStatusCode(err); code == 401 || code == 403 {
			return fmt.Errorf("%w: %v", storage.ErrAuthentication, err)
		}
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}

	c.logger.Info("Google Cloud Storage authentication successful")
	return nil
}

func (c *Connector) ensureClient(ctx context.Context) error {
	if c.client == nil {
		return c.Authenticate(ctx)
	}
	return nil
}

// ListFiles lists objects in a bucket in the backend's native order.
func (c *Connector) ListFiles(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	var files []storage.ObjectInfo
	err := storage.RetryOperation(ctx, c.retry, c.logger, "gcs_list", func() error {
		attrs, err := c.client.Bucket(container).ListObjects(ctx, prefix)
		if err != nil {
			return c.classify("list", container, err)
		}
		files = files[:0]
		for _, a := range attrs {
			files = append(files, objectInfoFromAttrs(a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("bucket", container).
		WithField("prefix", prefix).
		Infof("Listed %d objects from GCS bucket", len(files))
	return files, nil
}

// UploadFile uploads a local file to GCS. A missing local file fails fast;
// backend failures are captured into a failed result.
func (c *Connector) UploadFile(ctx context.Context, localPath, container, remotePath string, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	stat, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: local file %q", storage.ErrNotFound, localPath)
	}
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	o := storage.ApplyUploadOptions(opts...)
	destination := fmt.Sprintf("gcs://%s/%s", container, remotePath)
	start := time.Now()

	c.logger.WithField("operation", "gcs_upload").
		WithField("local_path", localPath).
		WithField("bucket", container).
		WithField("object", remotePath).
		WithField("size_bytes", stat.Size()).
		Info("Operation started")

	err = storage.RetryOperation(ctx, c.retry, c.logger, "gcs_upload", func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		w := c.client.Bucket(container).Object(remotePath).NewWriter(ctx)
		w.SetAttrs(o.ContentType, o.Properties["storage_class"], o.Metadata)
		if _, err := io.Copy(w, file); err != nil {
			w.Close()
			return c.classify("upload", destination, err)
		}
		if err := w.Close(); err != nil {
			return c.classify("upload", destination, err)
		}
		return nil
	})
	if err != nil {
		c.logOperationError("gcs_upload", err)
		return failedResult(localPath, destination, fmt.Sprintf("GCS upload failed: %v", err)), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("gcs_upload", duration, stat.Size())
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       localPath,
		DestinationPath:  destination,
		BytesTransferred: stat.Size(),
		DurationSeconds:  duration,
	}, nil
}

// DownloadFile downloads an object into a local file, creating parent
// directories as needed. A missing object is captured, not raised.
func (c *Connector) DownloadFile(ctx context.Context, container, remotePath, localPath string) (*storage.TransferResult, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	source := fmt.Sprintf("gcs://%s/%s", container, remotePath)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return failedResult(source, localPath, fmt.Sprintf("GCS download failed: %v", err)), nil
	}

	start := time.Now()
	c.logger.WithField("operation", "gcs_download").
		WithField("bucket", container).
		WithField("object", remotePath).
		WithField("local_path", localPath).
		Info("Operation started")

	var size int64
	err := storage.RetryOperation(ctx, c.retry, c.logger, "gcs_download", func() error {
		r, err := c.client.Bucket(container).Object(remotePath).NewReader(ctx)
		if err != nil {
			return c.classify("download", source, err)
		}
		defer r.Close()

		file, err := os.Create(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		n, err := io.Copy(file, r)
		if err != nil {
			return c.classify("download", source, err)
		}
		size = n
		return nil
	})
	if err != nil {
		var msg string
		if storage.IsNotFound(err) {
			msg = fmt.Sprintf("File '%s' not found", source)
		} else {
			msg = fmt.Sprintf("GCS download failed: %v", err)
		}
		c.logOperationError("gcs_download", err)
		return failedResult(source, localPath, msg), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("gcs_download", duration, size)
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       source,
		DestinationPath:  localPath,
		BytesTransferred: size,
		DurationSeconds:  duration,
	}, nil
}

// CopyFile performs a server-side copy within GCS. The rewrite completes
// before the call returns.
func (c *Connector) CopyFile(ctx context.Context, srcContainer, srcPath, dstContainer, dstPath string, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	o := storage.ApplyUploadOptions(opts...)
	source := fmt.Sprintf("gcs://%s/%s", srcContainer, srcPath)
	destination := fmt.Sprintf("gcs://%s/%s", dstContainer, dstPath)
	start := time.Now()

	c.logger.WithField("operation", "gcs_copy").
		WithField("source", source).
		WithField("destination", destination).
		Info("Operation started")

	var size int64
	err := storage.RetryOperation(ctx, c.retry, c.logger, "gcs_copy", func() error {
		src := c.client.Bucket(srcContainer).Object(srcPath)
		dst := c.client.Bucket(dstContainer).Object(dstPath)
		attrs, err := dst.CopyFrom(ctx, src, o.Metadata)
		if err != nil {
			return c.classify("copy", destination, err)
		}
		size = attrs.Size
		return nil
	})
	if err != nil {
		c.logOperationError("gcs_copy", err)
		return failedResult(source, destination, fmt.Sprintf("GCS copy failed: %v", err)), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("gcs_copy", duration, size)
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       source,
		DestinationPath:  destination,
		BytesTransferred: size,
		DurationSeconds:  duration,
	}, nil
}

// DeleteFile deletes an object, returning false after logging on any
// failure.
func (c *Connector) DeleteFile(ctx context.Context, container, remotePath string) bool {
	if err := c.ensureClient(ctx); err != nil {
		c.logger.WithError(err).Error("GCS delete failed")
		return false
	}

	err := storage.RetryOperation(ctx, c.retry, c.logger, "gcs_delete", func() error {
		if err := c.client.Bucket(container).Object(remotePath).Delete(ctx); err != nil {
			return c.classify("delete", fmt.Sprintf("gcs://%s/%s", container, remotePath), err)
		}
		return nil
	})
	if err != nil {
		c.logger.WithError(err).
			WithField("bucket", container).
			WithField("object", remotePath).
			Error("GCS delete failed")
		return false
	}

	c.logger.WithField("bucket", container).
		WithField("object", remotePath).
		Info("Object deleted from GCS")
	return true
}

// FileExists treats any error as absence.
func (c *Connector) FileExists(ctx context.Context, container, remotePath string) bool {
	if err := c.ensureClient(ctx); err != nil {
		return false
	}
	_, err := c.client.Bucket(container).Object(remotePath).Attrs(ctx)
	return err == nil
}

// GetFileInfo returns object metadata, ErrNotFound for a missing object.
func (c *Connector) GetFileInfo(ctx context.Context, container, remotePath string) (*storage.ObjectInfo, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	attrs, err := c.client.Bucket(container).Object(remotePath).Attrs(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: gcs://%s/%s", storage.ErrNotFound, container, remotePath)
		}
		return nil, storage.NewError("stat", fmt.Sprintf("gcs://%s/%s", container, remotePath), storage.ProviderGCP, err)
	}

	info := objectInfoFromAttrs(attrs)
	return &info, nil
}

func objectInfoFromAttrs(a *gcs.ObjectAttrs) storage.ObjectInfo {
	info := storage.ObjectInfo{
		Name:        a.Name,
		Size:        a.Size,
		ETag:        a.Etag,
		ContentType: a.ContentType,
		Metadata:    a.Metadata,
	}
	if info.Metadata == nil {
		info.Metadata = map[string]string{}
	}
	if !a.Updated.IsZero() {
		info.LastModified = a.Updated.Format(time.RFC3339)
	}
	return info
}

func (c *Connector) logOperationSuccess(op string, duration float64, bytes int64) {
	c.logger.WithField("operation", op).
		WithField("status", "success").
		WithField("duration_seconds", duration).
		WithField("bytes_transferred", bytes).
		Info("Operation completed successfully")
}

func (c *Connector) logOperationError(op string, err error) {
	c.logger.WithField("operation", op).
		WithError(err).
		Error("Operation failed")
}

// classify maps SDK errors onto the storage error taxonomy. Errors without
// an HTTP status attached are treated as transport failures and become
// ErrConnection so the retry wrapper picks them up.
func (c *Connector) classify(op, path string, err error) error {
	code := apiStatusCode(err)
	switch {
	case isNotFound(err):
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	case code == 401 || code == 403:
		return fmt.Errorf("%w: %s", storage.ErrPermissionDenied, path)
	case code == 408 || code == 504:
		return fmt.Errorf("%w: %s: %v", storage.ErrTimeout, path, err)
	case code != 0:
		return storage.NewError(op, path, storage.ProviderGCP, err)
	default:
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	return apiStatusCode(err) == 404
}

func apiStatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func failedResult(source, destination, message string) *storage.TransferResult {
	return &storage.TransferResult{
		Success:         false,
		SourcePath:      source,
		DestinationPath: destination,
		ErrorMessage:    message,
	}
}
