package gcp

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsAPI, gcsBucket, gcsObject and gcsWriter wrap the concrete GCS SDK
// handles so the connector can be tested without network access.
type gcsAPI interface {
	Probe(ctx context.Context) error
	Bucket(name string) gcsBucket
	Close() error
}

type gcsBucket interface {
	Object(name string) gcsObject
	ListObjects(ctx context.Context, prefix string) ([]*gcs.ObjectAttrs, error)
}

type gcsObject interface {
	Attrs(ctx context.Context) (*gcs.ObjectAttrs, error)
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) gcsWriter
	Delete(ctx context.Context) error
	CopyFrom(ctx context.Context, src gcsObject, metadata map[string]string) (*gcs.ObjectAttrs, error)
}

type gcsWriter interface {
	io.WriteCloser
	SetAttrs(contentType, storageClass string, metadata map[string]string)
}

type clientAdapter struct {
	client    *gcs.Client
	projectID string
}

func newClientAdapter(ctx context.Context, cfg Config) (*clientAdapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &clientAdapter{client: client, projectID: cfg.ProjectID}, nil
}

func (a *clientAdapter) Probe(ctx context.Context) error {
	it := a.client.Buckets(ctx, a.projectID)
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (a *clientAdapter) Bucket(name string) gcsBucket {
	return &bucketAdapter{handle: a.client.Bucket(name)}
}

func (a *clientAdapter) Close() error {
	return a.client.Close()
}

type bucketAdapter struct {
	handle *gcs.BucketHandle
}

func (b *bucketAdapter) Object(name string) gcsObject {
	return &objectAdapter{handle: b.handle.Object(name)}
}

func (b *bucketAdapter) ListObjects(ctx context.Context, prefix string) ([]*gcs.ObjectAttrs, error) {
	var query *gcs.Query
	if prefix != "" {
		query = &gcs.Query{Prefix: prefix}
	}

	var attrs []*gcs.ObjectAttrs
	it := b.handle.Objects(ctx, query)
	for {
		a, err := it.Next()
		if err == iterator.Done {
			return attrs, nil
		}
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
}

type objectAdapter struct {
	handle *gcs.ObjectHandle
}

func (o *objectAdapter) Attrs(ctx context.Context) (*gcs.ObjectAttrs, error) {
	return o.handle.Attrs(ctx)
}

func (o *objectAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return o.handle.NewReader(ctx)
}

func (o *objectAdapter) NewWriter(ctx context.Context) gcsWriter {
	return &writerAdapter{writer: o.handle.NewWriter(ctx)}
}

func (o *objectAdapter) Delete(ctx context.Context) error {
	return o.handle.Delete(ctx)
}

func (o *objectAdapter) CopyFrom(ctx context.Context, src gcsObject, metadata map[string]string) (*gcs.ObjectAttrs, error) {
	srcAdapter, ok := src.(*objectAdapter)
	if !ok {
		return nil, fmt.Errorf("copy source is not a GCS object handle")
	}
	copier := o.handle.CopierFrom(srcAdapter.handle)
	if len(metadata) > 0 {
		copier.Metadata = metadata
	}
	return copier.Run(ctx)
}

type writerAdapter struct {
	writer *gcs.Writer
}

func (w *writerAdapter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *writerAdapter) Close() error {
	return w.writer.Close()
}

func (w *writerAdapter) SetAttrs(contentType, storageClass string, metadata map[string]string) {
	if contentType != "" {
		w.writer.ContentType = contentType
	}
	if storageClass != "" {
		w.writer.StorageClass = storageClass
	}
	if len(metadata) > 0 {
		w.writer.Metadata = metadata
	}
}
