package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sgl-project/cloudxfer/pkg/logging"
	"github.com/sgl-project/cloudxfer/pkg/storage"
)

// Config represents AWS S3 connector configuration.
type Config struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// Configured reports whether static credentials are present.
func (c Config) Configured() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// s3Client is the subset of the S3 API the connector uses. *s3.Client
// satisfies it; tests substitute a fake via NewWithClient.
type s3Client interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// Connector implements storage.Connector for AWS S3. The client handle is
// created lazily on first use and is not safe for concurrent mutation.
type Connector struct {
	cfg        Config
	retry      storage.RetryConfig
	logger     logging.Interface
	client     s3Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewConnector creates an unauthenticated S3 connector.
func NewConnector(cfg Config, retry storage.RetryConfig, logger logging.Interface) *Connector {
	return &Connector{
		cfg:    cfg,
		retry:  retry,
		logger: logger,
	}
}

// NewWithClient creates a connector with a pre-built client (for testing).
func NewWithClient(client s3Client, cfg Config, retry storage.RetryConfig, logger logging.Interface) *Connector {
	return &Connector{
		cfg:        cfg,
		retry:      retry,
		logger:     logger,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}
}

// Provider returns the storage provider type.
func (c *Connector) Provider() storage.Provider {
	return storage.ProviderAWS
}

// Authenticate builds the S3 client from static credentials and validates it
// by listing buckets. A failed validation drops the client so the next call
// starts over.
func (c *Connector) Authenticate(ctx context.Context) error {
	if !c.cfg.Configured() {
		return fmt.Errorf("%w: AWS credentials not configured", storage.ErrAuthentication)
	}

	if c.client == nil {
		region := c.cfg.Region
		if region == "" {
			region = "us-east-1"
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(c.cfg.AccessKeyID, c.cfg.SecretAccessKey, ""),
			),
		)
		if err != nil {
			return fmt.Errorf("%w: loading AWS config: %v", storage.ErrConnection, err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if c.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.cfg.Endpoint)
			}
			o.UsePathStyle = c.cfg.ForcePathStyle
		})
		c.client = client
		c.uploader = manager.NewUploader(client)
		c.downloader = manager.NewDownloader(client)
	}

	if _, err := c.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		c.client = nil
		c.uploader = nil
		c.downloader = nil
		if code := apiErrorCode(err); code == "InvalidAccessKeyId" || code == "SignatureDoesNotMatch" {
			return fmt.Errorf("%w: %v", storage.ErrAuthentication, err)
		}
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}

	c.logger.Info("AWS S3 authentication successful")
	return nil
}

func (c *Connector) ensureClient(ctx context.Context) error {
	if c.client == nil {
		return c.Authenticate(ctx)
	}
	return nil
}

// ListFiles lists objects in a bucket in the backend's native key order.
func (c *Connector) ListFiles(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(container)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var files []storage.ObjectInfo
	err := storage.RetryOperation(ctx, c.retry, c.logger, "s3_list", func() error {
		files = files[:0]
		paginator := s3.NewListObjectsV2Paginator(c.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return c.classify("list", container, err)
			}
			for _, obj := range page.Contents {
				info := storage.ObjectInfo{
					Name:     aws.ToString(obj.Key),
					Size:     aws.ToInt64(obj.Size),
					Metadata: map[string]string{},
				}
				if obj.LastModified != nil {
					info.LastModified = obj.LastModified.Format(time.RFC3339)
				}
				if obj.ETag != nil {
					info.ETag = strings.Trim(*obj.ETag, "\"")
				}
				files = append(files, info)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("bucket", container).
		WithField("prefix", prefix).
		Infof("Listed %d files from S3 bucket", len(files))
	return files, nil
}

// UploadFile uploads a local file to S3. A missing local file fails fast;
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
	destination := fmt.Sprintf("s3://%s/%s", container, remotePath)
	start := time.Now()

	c.logger.WithField("operation", "s3_upload").
		WithField("local_path", localPath).
		WithField("bucket", container).
		WithField("remote_path", remotePath).
		WithField("size_bytes", stat.Size()).
		Info("Operation started")

	err = storage.RetryOperation(ctx, c.retry, c.logger, "s3_upload", func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		input := &s3.PutObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(remotePath),
			Body:   file,
		}
		if o.ContentType != "" {
			input.ContentType = aws.String(o.ContentType)
		}
		if len(o.Metadata) > 0 {
			input.Metadata = o.Metadata
		}
		if class, ok := o.Properties["storage_class"]; ok {
			input.StorageClass = types.StorageClass(class)
		}

		if _, err := c.uploader.Upload(ctx, input); err != nil {
			return c.classify("upload", destination, err)
		}
		return nil
	})
	if err != nil {
		msg := fmt.Sprintf("S3 upload failed: %v", err)
		c.logOperationError("s3_upload", err)
		return failedResult(localPath, destination, msg), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("s3_upload", duration, stat.Size())
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       localPath,
		DestinationPath:  destination,
		BytesTransferred: stat.Size(),
		DurationSeconds:  duration,
	}, nil
}

// DownloadFile downloads an object into a local file, creating parent
// directories as needed. A missing remote object is captured, not raised.
func (c *Connector) DownloadFile(ctx context.Context, container, remotePath, localPath string) (*storage.TransferResult, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	source := fmt.Sprintf("s3://%s/%s", container, remotePath)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return failedResult(source, localPath, fmt.Sprintf("S3 download failed: %v", err)), nil
	}

	start := time.Now()
	c.logger.WithField("operation", "s3_download").
		WithField("bucket", container).
		WithField("remote_path", remotePath).
		WithField("local_path", localPath).
		Info("Operation started")

	var size int64
	err := storage.RetryOperation(ctx, c.retry, c.logger, "s3_download", func() error {
		head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(remotePath),
		})
		if err != nil {
			return c.classify("download", source, err)
		}
		size = aws.ToInt64(head.ContentLength)

		file, err := os.Create(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = c.downloader.Download(ctx, file, &s3.GetObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(remotePath),
		})
		if err != nil {
			return c.classify("download", source, err)
		}
		return nil
	})
	if err != nil {
		var msg string
		if storage.IsNotFound(err) {
			msg = fmt.Sprintf("File '%s' not found", source)
		} else {
			msg = fmt.Sprintf("S3 download failed: %v", err)
		}
		c.logOperationError("s3_download", err)
		return failedResult(source, localPath, msg), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("s3_download", duration, size)
	return &storage.TransferResult{
		Success:          true,
		SourcePath:       source,
		DestinationPath:  localPath,
		BytesTransferred: size,
		DurationSeconds:  duration,
	}, nil
}

// CopyFile performs a server-side copy within S3. S3 copies complete
// synchronously, so there is no status polling here.
func (c *Connector) CopyFile(ctx context.Context, srcContainer, srcPath, dstContainer, dstPath string, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	o := storage.ApplyUploadOptions(opts...)
	source := fmt.Sprintf("s3://%s/%s", srcContainer, srcPath)
	destination := fmt.Sprintf("s3://%s/%s", dstContainer, dstPath)
	start := time.Now()

	c.logger.WithField("operation", "s3_copy").
		WithField("source", source).
		WithField("destination", destination).
		Info("Operation started")

	var size int64
	err := storage.RetryOperation(ctx, c.retry, c.logger, "s3_copy", func() error {
		head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(srcContainer),
			Key:    aws.String(srcPath),
		})
		if err != nil {
			return c.classify("copy", source, err)
		}
		size = aws.ToInt64(head.ContentLength)

		input := &s3.CopyObjectInput{
			Bucket:     aws.String(dstContainer),
			Key:        aws.String(dstPath),
			CopySource: aws.String(fmt.Sprintf("%s/%s", srcContainer, srcPath)),
		}
		if len(o.Metadata) > 0 {
			input.Metadata = o.Metadata
			input.MetadataDirective = types.MetadataDirectiveReplace
		}
		if _, err := c.client.CopyObject(ctx, input); err != nil {
			return c.classify("copy", destination, err)
		}
		return nil
	})
	if err != nil {
		c.logOperationError("s3_copy", err)
		return failedResult(source, destination, fmt.Sprintf("S3 copy failed: %v", err)), nil
	}

	duration := time.Since(start).Seconds()
	c.logOperationSuccess("s3_copy", duration, size)
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
		c.logger.WithError(err).Error("S3 delete failed")
		return false
	}

	err := storage.RetryOperation(ctx, c.retry, c.logger, "s3_delete", func() error {
		_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(remotePath),
		})
		if err != nil {
			return c.classify("delete", fmt.Sprintf("s3://%s/%s", container, remotePath), err)
		}
		return nil
	})
	if err != nil {
		c.logger.WithError(err).
			WithField("bucket", container).
			WithField("key", remotePath).
			Error("S3 delete failed")
		return false
	}

	c.logger.WithField("bucket", container).
		WithField("key", remotePath).
		Info("File deleted from S3")
	return true
}

// FileExists treats any error, including access denied, as absence.
func (c *Connector) FileExists(ctx context.Context, container, remotePath string) bool {
	if err := c.ensureClient(ctx); err != nil {
		return false
	}

	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(remotePath),
	})
	return err == nil
}

// GetFileInfo returns object metadata, ErrNotFound for a missing object.
func (c *Connector) GetFileInfo(ctx context.Context, container, remotePath string) (*storage.ObjectInfo, error) {
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(remotePath),
	})
	if err != nil {
		if isNotFoundCode(apiErrorCode(err)) {
			return nil, fmt.Errorf("%w: s3://%s/%s", storage.ErrNotFound, container, remotePath)
		}
		return nil, storage.NewError("stat", fmt.Sprintf("s3://%s/%s", container, remotePath), storage.ProviderAWS, err)
	}

	info := &storage.ObjectInfo{
		Name:     remotePath,
		Size:     aws.ToInt64(head.ContentLength),
		Metadata: head.Metadata,
	}
	if info.Metadata == nil {
		info.Metadata = map[string]string{}
	}
	if head.LastModified != nil {
		info.LastModified = head.LastModified.Format(time.RFC3339)
	}
	if head.ETag != nil {
		info.ETag = strings.Trim(*head.ETag, "\"")
	}
	if head.ContentType != nil {
		info.ContentType = *head.ContentType
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

// classify maps SDK errors onto the storage error taxonomy. Unknown API
// errors stay non-retriable; transport-level failures become ErrConnection
// so the retry wrapper picks them up.
func (c *Connector) classify(op, path string, err error) error {
	code := apiErrorCode(err)
	switch {
	case isNotFoundCode(code):
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	case code == "AccessDenied":
		return fmt.Errorf("%w: %s", storage.ErrPermissionDenied, path)
	case code == "RequestTimeout":
		return fmt.Errorf("%w: %s: %v", storage.ErrTimeout, path, err)
	case code == "":
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	default:
		return storage.NewError(op, path, storage.ProviderAWS, err)
	}
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFoundCode(code string) bool {
	return code == "NoSuchKey" || code == "NoSuchBucket" || code == "NotFound"
}

func failedResult(source, destination, message string) *storage.TransferResult {
	return &storage.TransferResult{
		Success:         false,
		SourcePath:      source,
		DestinationPath: destination,
		ErrorMessage:    message,
	}
}
