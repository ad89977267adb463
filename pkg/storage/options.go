package storage

// UploadOption configures upload and copy operations.
type UploadOption func(*UploadOptions)

// UploadOptions carries user metadata and backend-specific properties,
// applied as an opaque pass-through.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string

	// Properties are backend-specific settings each connector interprets on
	// its own terms: "storage_class" for S3 and GCS, "access_tier" for
	// Azure. Unrecognized keys are ignored.
	Properties map[string]string
}

// ApplyUploadOptions folds the given options into an UploadOptions value.
func ApplyUploadOptions(opts ...UploadOption) UploadOptions {
	o := UploadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithContentType sets the content type for the uploaded object.
func WithContentType(contentType string) UploadOption {
	return func(o *UploadOptions) {
		o.ContentType = contentType
	}
}

// WithMetadata attaches user metadata to the uploaded object.
func WithMetadata(metadata map[string]string) UploadOption {
	return func(o *UploadOptions) {
		o.Metadata = metadata
	}
}

// WithProperty sets a single backend-specific property.
func WithProperty(key, value string) UploadOption {
	return func(o *UploadOptions) {
		if o.Properties == nil {
			o.Properties = make(map[string]string)
		}
		o.Properties[key] = value
	}
}
