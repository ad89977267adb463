package azure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// blobEntry is one blob from a flat listing.
type blobEntry struct {
	Name         string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
	Metadata     map[string]*string
}

// blobProperties is the metadata subset returned by a properties call.
type blobProperties struct {
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
	Metadata     map[string]*string
}

// blobServiceClient is the subset of blob service operations the connector
// uses. serviceAdapter satisfies it over *azblob.Client; tests fake it.
type blobServiceClient interface {
	Probe(ctx context.Context) error
	ListBlobs(ctx context.Context, containerName, prefix string) ([]blobEntry, error)
	UploadFile(ctx context.Context, containerName, blobName string, file *os.File, contentType, accessTier string, metadata map[string]*string) error
	DownloadFile(ctx context.Context, containerName, blobName string, file *os.File) (int64, error)
	DeleteBlob(ctx context.Context, containerName, blobName string) error
	BlobProperties(ctx context.Context, containerName, blobName string) (*blobProperties, error)
	StartCopy(ctx context.Context, srcContainer, srcBlob, dstContainer, dstBlob string, metadata map[string]*string) error
	CopyStatus(ctx context.Context, containerName, blobName string) (string, error)
}

type serviceAdapter struct {
	client *azblob.Client
}

func newServiceAdapter(cfg Config) (*serviceAdapter, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, err
		}
		return &serviceAdapter{client: client}, nil
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return &serviceAdapter{client: client}, nil
}

func (a *serviceAdapter) Probe(ctx context.Context) error {
	pager := a.client.NewListContainersPager(&azblob.ListContainersOptions{
		MaxResults: to.Ptr(int32(1)),
	})
	_, err := pager.NextPage(ctx)
	return err
}

func (a *serviceAdapter) ListBlobs(ctx context.Context, containerName, prefix string) ([]blobEntry, error) {
	opts := &azblob.ListBlobsFlatOptions{
		Include: container.ListBlobsInclude{Metadata: true},
	}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var entries []blobEntry
	pager := a.client.NewListBlobsFlatPager(containerName, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			entry := blobEntry{
				Name:     *item.Name,
				Metadata: item.Metadata,
			}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					entry.Size = *props.ContentLength
				}
				if props.LastModified != nil {
					entry.LastModified = *props.LastModified
				}
				if props.ETag != nil {
					entry.ETag = string(*props.ETag)
				}
				if props.ContentType != nil {
					entry.ContentType = *props.ContentType
				}
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (a *serviceAdapter) UploadFile(ctx context.Context, containerName, blobName string, file *os.File, contentType, accessTier string, metadata map[string]*string) error {
	opts := &azblob.UploadFileOptions{Metadata: metadata}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	if accessTier != "" {
		tier := blob.AccessTier(accessTier)
		opts.AccessTier = &tier
	}
	_, err := a.client.UploadFile(ctx, containerName, blobName, file, opts)
	return err
}

func (a *serviceAdapter) DownloadFile(ctx context.Context, containerName, blobName string, file *os.File) (int64, error) {
	return a.client.DownloadFile(ctx, containerName, blobName, file, nil)
}

func (a *serviceAdapter) DeleteBlob(ctx context.Context, containerName, blobName string) error {
	_, err := a.client.DeleteBlob(ctx, containerName, blobName, nil)
	return err
}

func (a *serviceAdapter) blobClient(containerName, blobName string) *blob.Client {
	return a.client.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName)
}

func (a *serviceAdapter) BlobProperties(ctx context.Context, containerName, blobName string) (*blobProperties, error) {
	resp, err := a.blobClient(containerName, blobName).GetProperties(ctx, nil)
	if err != nil {
		return nil, err
	}

	props := &blobProperties{Metadata: resp.Metadata}
	if resp.ContentLength != nil {
		props.Size = *resp.ContentLength
	}
	if resp.LastModified != nil {
		props.LastModified = *resp.LastModified
	}
	if resp.ETag != nil {
		props.ETag = string(*resp.ETag)
	}
	if resp.ContentType != nil {
		props.ContentType = *resp.ContentType
	}
	return props, nil
}

func (a *serviceAdapter) StartCopy(ctx context.Context, srcContainer, srcBlob, dstContainer, dstBlob string, metadata map[string]*string) error {
	srcURL := a.blobClient(srcContainer, srcBlob).URL()
	_, err := a.blobClient(dstContainer, dstBlob).StartCopyFromURL(ctx, srcURL, &blob.StartCopyFromURLOptions{
		Metadata: metadata,
	})
	return err
}

func (a *serviceAdapter) CopyStatus(ctx context.Context, containerName, blobName string) (string, error) {
	resp, err := a.blobClient(containerName, blobName).GetProperties(ctx, nil)
	if err != nil {
		return "", err
	}
	if resp.CopyStatus == nil {
		return string(blob.CopyStatusTypeSuccess), nil
	}
	return string(*resp.CopyStatus), nil
}

func hasServiceCode(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode != ""
}
