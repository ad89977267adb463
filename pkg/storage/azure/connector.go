package azure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/sgl-project/cloudxfer/pkg/logging"
	"github.com/sgl-project/cloudxfer/pkg/storage"
)

// Config represents Azure Blob Storage connector configuration. Either a
// connection string or an account name/key pair must be supplied.
type Config struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
}

// Configured reports whether any usable credential is present.
func (c Config) Configured() bool {
	return c.ConnectionString != "" || (c.AccountName != "" && c.AccountKey != "")
}

// copyPollInterval is how often an in-flight server-side copy is polled.
var copyPollInterval = time.Second

// Connector implements storage.Connector for Azure Blob Storage.
type Connector struct {
	cfg    Config
	retry  storage.RetryConfig
	logger logging.Interface
	client blobServiceClient
}

// NewConnector creates an unauthenticated Azure connector.
func NewConnector(cfg Config, retry storage.RetryConfig, logger logging.Interface) *Connector {
	return &Connector{
		cfg:    cfg,
		retry:  retry,
		logger: logger,
	}
}

// NewWithClient creates a connector with a pre-built service client (for
// testing).
func NewWithClient(client blobServiceClient, cfg Config, retry storage.RetryConfig, logger logging.Interface) *Connector {
	return &Connector{
		cfg:    cfg,
		retry:  retry,
		logger: logger,
		client: client,
	}
}

// Provider returns the storage provider type.
func (c *Connector) Provider() storage.Provider {
	return storage.ProviderAzure
}

// Authenticate builds the blob service client and validates it by listing
// containers. A failed validation drops the client.
func (c *Connector) Authenticate(ctx context.Context) error {
	if !c.cfg.Configured() {
		return fmt.Errorf("%w: Azure credentials not configured", storage.ErrAuthentication)
	}

	if c.client == nil {
		client, err := newServiceAdapter(c.cfg)
		if err != nil {
			return fmt.Errorf("%w: building Azure client: %v", storage.ErrAuthentication, err)
		}
		c.client = client
	}

	if err := c.client.Probe(ctx); err != nil {
		c.client = nil
		if bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.InvalidAuthenticationInfo) {
			return fmt.Errorf("%w: %v", storage.ErrAuthentication, err)
		}
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}

	c.logger.Info("Azure Blob Storage authentication successful")
	return nil
}

func (c *Connector) ensureClient(ctx context.Context) error {
	if c.client == nil {
		return c.Authenticate(ctx)
	}
	return nil
}

// ListFiles lists blobs in a container in the backend's native order.
func (c *Connector) ListFiles(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	var files []storage.ObjectInfo
	err := storage.RetryOperation(ctx, c.retry, c.logger, "azure_list", func() error {
		entries, err := c.client.ListBlobs(ctx, container, prefix)
		if err != nil {
			return c.classify("list", container, err)
		}
		files = files[:0]
		for _, entry := range entries {
			info := storage.ObjectInfo{
				Name:        entry.Name,
				Size:        entry.Size,
				ETag:        entry.ETag,
				ContentType: entry.ContentType,
				Metadata:    flattenMetadata(entry.Metadata),
			}
			if !entry.LastModified.IsZero() {
				info.LastModified = entry.LastModified.Format(time.RFC3339)
			}
			files = append(files, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("container", container).
		WithField("prefix", prefix).
		Infof("Listed %d blobs from Azure container", len(files))
	return files, nil
}

// UploadFile uploads a local file as a block blob. A missing local file
// fails fast; backend failures are captured into a failed result.
func (c *Connector) UploadFile(ctx context.Context, localPath, container, remotePath string, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	stat, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: local file %q", storage.ErrNotFound, localPath)
	}
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	o := storage.ApplyUploadOptions(opts...)
	destination := fmt.Sprintf("azure://%s/%s", container, remotePath)
	start := time.Now()

	c.logger.WithField("operation", "azure_upload").
		WithField("local_path", localPath).
		WithField("container", container).
		WithField("blob", remotePath).
		WithField("size_bytes", stat.Size()).
		Info("Operation started")

	err = storage.RetryOperation(ctx, c.retry, c.logger, "azure_upload", func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		if err := c.client.UploadFile(ctx, container, remotePath, file, o.ContentType, o.Properties["access_tier"], expandMetadata(o.Metadata)); err != nil {
			return c.classify("upload", destination, err)
		}
		return nil
	})
	if err != nil {
		c.logOperationError("azure_upload", err)
		return failedResult(localPath, destination, fmt.Sprintf("Azure upload failed: %v", err)), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("azure_upload", duration, stat.Size())
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       localPath,
		DestinationPath:  destination,
		BytesTransferred: stat.Size(),
		DurationSeconds:  duration,
	}, nil
}

// DownloadFile downloads a blob into a local file, creating parent
// directories as needed. A missing blob is captured, not raised.
func (c *Connector) DownloadFile(ctx context.Context, container, remotePath, localPath string) (*storage.TransferResult, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	source := fmt.Sprintf("azure://%s/%s", container, remotePath)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return failedResult(source, localPath, fmt.Sprintf("Azure download failed: %v", err)), nil
	}

	start := time.Now()
	c.logger.WithField("operation", "azure_download").
		WithField("container", container).
		WithField("blob", remotePath).
		WithField("local_path", localPath).
		Info("Operation started")

	var size int64
	err := storage.RetryOperation(ctx, c.retry, c.logger, "azure_download", func() error {
		file, err := os.Create(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		n, err := c.client.DownloadFile(ctx, container, remotePath, file)
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
			msg = fmt.Sprintf("Azure download failed: %v", err)
		}
		c.logOperationError("azure_download", err)
		return failedResult(source, localPath, msg), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("azure_download", duration, size)
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       source,
		DestinationPath:  localPath,
		BytesTransferred: size,
		DurationSeconds:  duration,
	}, nil
}

// CopyFile performs a server-side copy between containers. Azure copies are
// asynchronous, so the copy status is polled until it leaves pending.
func (c *Connector) CopyFile(ctx context.Context, srcContainer, srcPath, dstContainer, dstPath string, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	o := storage.ApplyUploadOptions(opts...)
	source := fmt.Sprintf("azure://%s/%s", srcContainer, srcPath)
	destination := fmt.Sprintf("azure://%s/%s", dstContainer, dstPath)
	start := time.Now()

	c.logger.WithField("operation", "azure_copy").
		WithField("source", source).
		WithField("destination", destination).
		Info("Operation started")

	var size int64
	err := storage.RetryOperation(ctx, c.retry, c.logger, "azure_copy", func() error {
		props, err := c.client.BlobProperties(ctx, srcContainer, srcPath)
		if err != nil {
			return c.classify("copy", source, err)
		}
		size = props.Size

		if err := c.client.StartCopy(ctx, srcContainer, srcPath, dstContainer, dstPath, expandMetadata(o.Metadata)); err != nil {
			return c.classify("copy", destination, err)
		}
		return c.waitForCopy(ctx, dstContainer, dstPath, destination)
	})
	if err != nil {
		c.logOperationError("azure_copy", err)
		return failedResult(source, destination, fmt.Sprintf("Azure copy failed: %v", err)), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("azure_copy", duration, size)
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       source,
		DestinationPath:  destination,
		BytesTransferred: size,
		DurationSeconds:  duration,
	}, nil
}

func (c *Connector) waitForCopy(ctx context.Context, container, blob, destination string) error {
	for {
		status, err := c.client.CopyStatus(ctx, container, blob)
		if err != nil {
			return c.classify("copy", destination, err)
		}
		switch status {
		case "success":
			return nil
		case "pending":
		default:
			return storage.NewError("copy", destination, storage.ProviderAzure,
				fmt.Errorf("copy finished with status %q", status))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(copyPollInterval):
		}
	}
}

// DeleteFile deletes a blob, returning false after logging on any failure.
func (c *Connector) DeleteFile(ctx context.Context, container, remotePath string) bool {
	if err := c.ensureClient(ctx); err != nil {
		c.logger.WithError(err).Error("Azure delete failed")
		return false
	}

	err := storage.RetryOperation(ctx, c.retry, c.logger, "azure_delete", func() error {
		if err := c.client.DeleteBlob(ctx, container, remotePath); err != nil {
			return c.classify("delete", fmt.Sprintf("azure://%s/%s", container, remotePath), err)
		}
		return nil
	})
	if err != nil {
		c.logger.WithError(err).
			WithField("container", container).
			WithField("blob", remotePath).
			Error("Azure delete failed")
		return false
	}

	c.logger.WithField("container", container).
		WithField("blob", remotePath).
		Info("Blob deleted from Azure")
	return true
}

// FileExists treats any error as absence.
func (c *Connector) FileExists(ctx context.Context, container, remotePath string) bool {
	if err := c.ensureClient(ctx); err != nil {
		return false
	}
	_, err := c.client.BlobProperties(ctx, container, remotePath)
	return err == nil
}

// GetFileInfo returns blob metadata, ErrNotFound for a missing blob.
func (c *Connector) GetFileInfo(ctx context.Context, container, remotePath string) (*storage.ObjectInfo, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	props, err := c.client.BlobProperties(ctx, container, remotePath)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("%w: azure://%s/%s", storage.ErrNotFound, container, remotePath)
		}
		return nil, storage.NewError("stat", fmt.Sprintf("azure://%s/%s", container, remotePath), storage.ProviderAzure, err)
	}

	info := &storage.ObjectInfo{
		Name:        remotePath,
		Size:        props.Size,
		ETag:        props.ETag,
		ContentType: props.ContentType,
		Metadata:    flattenMetadata(props.Metadata),
	}
	if !props.LastModified.IsZero() {
		info.LastModified = props.LastModified.Format(time.RFC3339)
	}
	return info, nil
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

// classify maps SDK errors onto the storage error taxonomy. Errors without a
// service error code are treated as transport failures and become
// ErrConnection so the retry wrapper picks them up.
func (c *Connector) classify(op, path string, err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.InsufficientAccountPermissions):
		return fmt.Errorf("%w: %s", storage.ErrPermissionDenied, path)
	case bloberror.HasCode(err, bloberror.OperationTimedOut):
		return fmt.Errorf("%w: %s: %v", storage.ErrTimeout, path, err)
	case hasServiceCode(err):
		return storage.NewError(op, path, storage.ProviderAzure, err)
	default:
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}
}

func flattenMetadata(md map[string]*string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func expandMetadata(md map[string]string) map[string]*string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]*string, len(md))
	for k, v := range md {
		v := v
		out[k] = &v
	}
	return out
}

func failedResult(source, destination, message string) *storage.TransferResult {
	return &storage.TransferResult{
		Success:         false,
		SourcePath:      source,
		DestinationPath: destination,
		ErrorMessage:    message,
	}
}
