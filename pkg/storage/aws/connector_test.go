package aws

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgl-project/cloudxfer/pkg/logging"
	"github.com/sgl-project/cloudxfer/pkg/storage"
)

type fakeS3 struct {
	putObject     func(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
	getObject     func(*s3.GetObjectInput) (*s3.GetObjectOutput, error)
	headObject    func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	copyObject    func(*s3.CopyObjectInput) (*s3.CopyObjectOutput, error)
	deleteObject  func(*s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	listObjectsV2 func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	listBuckets   func(*s3.ListBucketsInput) (*s3.ListBucketsOutput, error)
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putObject != nil {
		return f.putObject(in)
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getObject != nil {
		return f.getObject(in)
	}
	return &s3.GetObjectOutput{ContentLength: aws.Int64(0)}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headObject != nil {
		return f.headObject(in)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(0)}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	if f.copyObject != nil {
		return f.copyObject(in)
	}
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteObject != nil {
		return f.deleteObject(in)
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listObjectsV2 != nil {
		return f.listObjectsV2(in)
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (f *fakeS3) ListBuckets(_ context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	if f.listBuckets != nil {
		return f.listBuckets(in)
	}
	return &s3.ListBucketsOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, _ *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(_ context.Context, _ *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, _ *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(_ context.Context, _ *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func testConnector(t *testing.T, client *fakeS3) *Connector {
	t.Helper()
	cfg := Config{AccessKeyID: "AKIATEST", SecretAccessKey: "secret", Region: "us-east-1"}
	retry := storage.RetryConfig{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   storage.IsRetryable,
	}
	return NewWithClient(client, cfg, retry, logging.NewNopLogger())
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestConnectorProvider(t *testing.T) {
	c := testConnector(t, &fakeS3{})
	assert.Equal(t, storage.ProviderAWS, c.Provider())
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	c := NewConnector(Config{}, storage.DefaultRetryConfig(), logging.NewNopLogger())
	err := c.Authenticate(context.Background())
	assert.True(t, errors.Is(err, storage.ErrAuthentication))
}

func TestAuthenticateInvalidKey(t *testing.T) {
	client := &fakeS3{
		listBuckets: func(*s3.ListBucketsInput) (*s3.ListBucketsOutput, error) {
			return nil, apiError("InvalidAccessKeyId")
		},
	}
	c := testConnector(t, client)
	err := c.Authenticate(context.Background())
	assert.True(t, errors.Is(err, storage.ErrAuthentication))
}

func TestListFiles(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeS3{
		listObjectsV2: func(in *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			assert.Equal(t, "bucket", aws.ToString(in.Bucket))
			assert.Equal(t, "data/", aws.ToString(in.Prefix))
			return &s3.ListObjectsV2Output{
				Contents: []s3types.Object{
					{Key: aws.String("data/a.bin"), Size: aws.Int64(100), LastModified: &modified, ETag: aws.String(`"abc"`)},
					{Key: aws.String("data/b.bin"), Size: aws.Int64(200)},
				},
			}, nil
		},
	}
	c := testConnector(t, client)

	files, err := c.ListFiles(context.Background(), "bucket", "data/")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "data/a.bin", files[0].Name)
	assert.Equal(t, int64(100), files[0].Size)
	assert.Equal(t, "abc", files[0].ETag)
	assert.Equal(t, "2024-05-01T12:00:00Z", files[0].LastModified)
}

func TestUploadFileMissingLocal(t *testing.T) {
	c := testConnector(t, &fakeS3{})
	result, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), "bucket", "key")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUploadFileSuccess(t *testing.T) {
	local := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello world"), 0o644))

	var gotContentType string
	client := &fakeS3{
		putObject: func(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			gotContentType = aws.ToString(in.ContentType)
			return &s3.PutObjectOutput{}, nil
		},
	}
	c := testConnector(t, client)

	result, err := c.UploadFile(context.Background(), local, "bucket", "dir/payload.txt",
		storage.WithContentType("text/plain"))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, int64(11), result.BytesTransferred)
	assert.Equal(t, "s3://bucket/dir/payload.txt", result.DestinationPath)
	assert.Equal(t, "text/plain", gotContentType)
}

func TestUploadFileBackendFailureCaptured(t *testing.T) {
	local := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	client := &fakeS3{
		putObject: func(*s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, apiError("AccessDenied")
		},
	}
	c := testConnector(t, client)

	result, err := c.UploadFile(context.Background(), local, "bucket", "key")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "S3 upload failed")
}

func TestUploadFileRetriesConnectionErrors(t *testing.T) {
	local := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	attempts := 0
	client := &fakeS3{
		putObject: func(*s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection reset by peer")
			}
			return &s3.PutObjectOutput{}, nil
		},
	}
	c := testConnector(t, client)

	result, err := c.UploadFile(context.Background(), local, "bucket", "key")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, attempts)
}

func TestDownloadFileNotFound(t *testing.T) {
	client := &fakeS3{
		headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, apiError("NoSuchKey")
		},
	}
	c := testConnector(t, client)

	result, err := c.DownloadFile(context.Background(), "bucket", "missing.bin", filepath.Join(t.TempDir(), "out.bin"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "not found")
}

func TestDownloadFileSuccess(t *testing.T) {
	client := &fakeS3{
		headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(5)}, nil
		},
		getObject: func(*s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body:          io.NopCloser(strings.NewReader("hello")),
				ContentLength: aws.Int64(5),
			}, nil
		},
	}
	c := testConnector(t, client)

	local := filepath.Join(t.TempDir(), "nested", "out.bin")
	result, err := c.DownloadFile(context.Background(), "bucket", "data/out.bin", local)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, int64(5), result.BytesTransferred)

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCopyFile(t *testing.T) {
	var copySource string
	client := &fakeS3{
		headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(42)}, nil
		},
		copyObject: func(in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
			copySource = aws.ToString(in.CopySource)
			return &s3.CopyObjectOutput{}, nil
		},
	}
	c := testConnector(t, client)

	result, err := c.CopyFile(context.Background(), "src", "a.bin", "dst", "b.bin")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(42), result.BytesTransferred)
	assert.Equal(t, "src/a.bin", copySource)
}

func TestDeleteFile(t *testing.T) {
	c := testConnector(t, &fakeS3{})
	assert.True(t, c.DeleteFile(context.Background(), "bucket", "key"))

	failing := testConnector(t, &fakeS3{
		deleteObject: func(*s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
			return nil, apiError("AccessDenied")
		},
	})
	assert.False(t, failing.DeleteFile(context.Background(), "bucket", "key"))
}

func TestFileExists(t *testing.T) {
	c := testConnector(t, &fakeS3{})
	assert.True(t, c.FileExists(context.Background(), "bucket", "key"))

	missing := testConnector(t, &fakeS3{
		headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, apiError("NotFound")
		},
	})
	assert.False(t, missing.FileExists(context.Background(), "bucket", "key"))
}

func TestGetFileInfo(t *testing.T) {
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	client := &fakeS3{
		headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{
				ContentLength: aws.Int64(1024),
				LastModified:  &modified,
				ETag:          aws.String(`"deadbeef"`),
				ContentType:   aws.String("application/octet-stream"),
				Metadata:      map[string]string{"owner": "ops"},
			}, nil
		},
	}
	c := testConnector(t, client)

	info, err := c.GetFileInfo(context.Background(), "bucket", "data/model.bin")
	require.NoError(t, err)
	assert.Equal(t, "data/model.bin", info.Name)
	assert.Equal(t, int64(1024), info.Size)
	assert.Equal(t, "deadbeef", info.ETag)
	assert.Equal(t, "application/octet-stream", info.ContentType)
	assert.Equal(t, "ops", info.Metadata["owner"])
}

func TestGetFileInfoNotFound(t *testing.T) {
	client := &fakeS3{
		headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, apiError("NotFound")
		},
	}
	c := testConnector(t, client)

	info, err := c.GetFileInfo(context.Background(), "bucket", "missing")
	assert.Nil(t, info)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
