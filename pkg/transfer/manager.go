package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/sgl-project/cloudxfer/pkg/logging"
	"github.com/sgl-project/cloudxfer/pkg/storage"
	"github.com/sgl-project/cloudxfer/pkg/storage/aws"
	"github.com/sgl-project/cloudxfer/pkg/storage/azure"
	"github.com/sgl-project/cloudxfer/pkg/storage/gcp"
)

// TransferRequest is one source/destination pair in a batch.
type TransferRequest struct {
	Source      string            `json:"source" mapstructure:"source"`
	Destination string            `json:"destination" mapstructure:"destination"`
	Metadata    map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// BatchResult aggregates the outcomes of a sequential batch run. Results
// preserve the input order.
type BatchResult struct {
	Total     int                      `json:"total"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Results   []storage.TransferResult `json:"results"`
}

// Manager orchestrates transfers between local paths and cloud storage
// locations. Connectors are created lazily, authenticated once and cached;
// each provider gets its own circuit breaker. Captured transfer failures do
// not count against the breaker, only raised errors do.
type Manager struct {
	cfg     *Config
	logger  logging.Interface
	factory *storage.Factory

	mu         sync.Mutex
	connectors map[storage.Provider]storage.Connector
	breakers   map[storage.Provider]*storage.CircuitBreaker
}

// NewManager validates the config and creates a transfer manager.
func NewManager(cfg *Config, logger logging.Interface) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transfer config: %w", err)
	}

	m := &Manager{
		cfg:        cfg,
		logger:     logger,
		factory:    storage.NewFactory(logger),
		connectors: make(map[storage.Provider]storage.Connector),
		breakers:   make(map[storage.Provider]*storage.CircuitBreaker),
	}
	m.registerBuilders()
	return m, nil
}

func (m *Manager) registerBuilders() {
	retry := m.retryConfig()
	m.factory.Register(storage.ProviderAWS, func(l logging.Interface) (storage.Connector, error) {
		return aws.NewConnector(m.cfg.AWS, retry, l), nil
	})
	m.factory.Register(storage.ProviderAzure, func(l logging.Interface) (storage.Connector, error) {
		return azure.NewConnector(m.cfg.Azure, retry, l), nil
	})
	m.factory.Register(storage.ProviderGCP, func(l logging.Interface) (storage.Connector, error) {
		return gcp.NewConnector(m.cfg.GCP, retry, l), nil
	})
}

func (m *Manager) retryConfig() storage.RetryConfig {
	return storage.RetryConfig{
		MaxAttempts: m.cfg.MaxRetries,
		Delay:       m.cfg.RetryDelay,
		MaxDelay:    time.Minute,
		Retryable:   storage.IsRetryable,
	}
}

// SetConnector injects a pre-built connector for a provider (for testing).
func (m *Manager) SetConnector(provider storage.Provider, c storage.Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors[provider] = c
}

// connector returns the cached connector for a provider, creating and
// authenticating one on first use. A failed authentication leaves nothing
// cached, so the next call starts over.
func (m *Manager) connector(ctx context.Context, provider storage.Provider) (storage.Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.connectors[provider]; ok {
		return c, nil
	}

	c, err := m.factory.Create(provider)
	if err != nil {
		return nil, err
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}

	m.connectors[provider] = c
	return c, nil
}

func (m *Manager) breaker(provider storage.Provider) *storage.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[provider]
	if !ok {
		b = storage.NewCircuitBreaker(m.cfg.BreakerThreshold, m.cfg.BreakerCooldown, m.logger)
		m.breakers[provider] = b
	}
	return b
}

// runOp executes a connector operation through the provider's circuit
// breaker.
func (m *Manager) runOp(provider storage.Provider, fn func() (*storage.TransferResult, error)) (*storage.TransferResult, error) {
	var result *storage.TransferResult
	err := m.breaker(provider).Call(func() error {
		var opErr error
		result, opErr = fn()
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CopyFile transfers a file between any combination of local paths and
// storage URLs: cloud to cloud (server-side within one provider, staged
// through the scratch directory across providers), cloud to local, and
// local to cloud. At least one side must be a storage URL.
func (m *Manager) CopyFile(ctx context.Context, source, destination string, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	// A side with an unrecognized scheme is a parse failure, not a local
	// path. Reject it before any connector is built.
	for _, raw := range []string{source, destination} {
		if storage.HasScheme(raw) && !storage.IsStorageURL(raw) {
			return nil, fmt.Errorf("%w: unsupported URL scheme in %q", storage.ErrInvalidLocation, raw)
		}
	}

	srcIsURL := storage.IsStorageURL(source)
	dstIsURL := storage.IsStorageURL(destination)

	switch {
	case srcIsURL && dstIsURL:
		src, err := storage.ParseLocation(source)
		if err != nil {
			return nil, err
		}
		dst, err := storage.ParseLocation(destination)
		if err != nil {
			return nil, err
		}
		if src.Provider == dst.Provider {
			conn, err := m.connector(ctx, src.Provider)
			if err != nil {
				return nil, err
			}
			return m.runOp(src.Provider, func() (*storage.TransferResult, error) {
				return conn.CopyFile(ctx, src.Container, src.Path, dst.Container, dst.Path, opts...)
			})
		}
		return m.copyViaStaging(ctx, src, dst, opts...)

	case srcIsURL:
		src, err := storage.ParseLocation(source)
		if err != nil {
			return nil, err
		}
		conn, err := m.connector(ctx, src.Provider)
		if err != nil {
			return nil, err
		}
		return m.runOp(src.Provider, func() (*storage.TransferResult, error) {
			return conn.DownloadFile(ctx, src.Container, src.Path, destination)
		})

	case dstIsURL:
		dst, err := storage.ParseLocation(destination)
		if err != nil {
			return nil, err
		}
		conn, err := m.connector(ctx, dst.Provider)
		if err != nil {
			return nil, err
		}
		return m.runOp(dst.Provider, func() (*storage.TransferResult, error) {
			return conn.UploadFile(ctx, source, dst.Container, dst.Path, opts...)
		})

	default:
		return nil, fmt.Errorf("%w: neither %q nor %q is a storage URL", storage.ErrInvalidLocation, source, destination)
	}
}

// copyViaStaging moves a file between providers by downloading it to the
// scratch directory and re-uploading it. The staging file is removed no
// matter how the transfer ends.
func (m *Manager) copyViaStaging(ctx context.Context, src, dst *storage.Location, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	srcConn, err := m.connector(ctx, src.Provider)
	if err != nil {
		return nil, err
	}
	dstConn, err := m.connector(ctx, dst.Provider)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.cfg.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	staging := filepath.Join(m.cfg.ScratchDir, uuid.New().String()+"_"+filepath.Base(src.Path))
	defer func() {
		if err := os.Remove(staging); err != nil && !os.IsNotExist(err) {
			m.logger.WithError(err).WithField("path", staging).Warn("Failed to remove staging file")
		}
	}()

	m.logger.WithField("source", src.String()).
		WithField("destination", dst.String()).
		WithField("staging_path", staging).
		Info("Cross-cloud transfer staged locally")

	start := time.Now()
	download, err := m.runOp(src.Provider, func() (*storage.TransferResult, error) {
		return srcConn.DownloadFile(ctx, src.Container, src.Path, staging)
	})
	if err != nil {
		return nil, err
	}
	if !download.Success {
		return &storage.TransferResult{
			Success:         false,
			SourcePath:      src.String(),
			DestinationPath: dst.String(),
			ErrorMessage:    "Download failed: " + download.ErrorMessage,
		}, nil
	}

	upload, err := m.runOp(dst.Provider, func() (*storage.TransferResult, error) {
		return dstConn.UploadFile(ctx, staging, dst.Container, dst.Path, opts...)
	})
	if err != nil {
		return nil, err
	}
	if !upload.Success {
		return &storage.TransferResult{
			Success:         false,
			SourcePath:      src.String(),
			DestinationPath: dst.String(),
			ErrorMessage:    "Upload failed: " + upload.ErrorMessage,
		}, nil
	}

	return &storage.TransferResult{
		Success:          true,
		SourcePath:       src.String(),
		DestinationPath:  dst.String(),
		BytesTransferred: upload.BytesTransferred,
		DurationSeconds:  time.Since(start).Seconds(),
	}, nil
}

// BatchCopy runs the requests sequentially in order. A failed item never
// aborts the batch; raised errors are folded into that item's result.
func (m *Manager) BatchCopy(ctx context.Context, requests []TransferRequest) *BatchResult {
	batch := &BatchResult{Total: len(requests)}

	for i, req := range requests {
		m.logger.WithField("item", i+1).
			WithField("total", len(requests)).
			WithField("source", req.Source).
			WithField("destination", req.Destination).
			Info("Batch transfer item started")

		var opts []storage.UploadOption
		if len(req.Metadata) > 0 {
			opts = append(opts, storage.WithMetadata(req.Metadata))
		}

		result, err := m.CopyFile(ctx, req.Source, req.Destination, opts...)
		if err != nil {
			result = &storage.TransferResult{
				Success:         false,
				SourcePath:      req.Source,
				DestinationPath: req.Destination,
				ErrorMessage:    err.Error(),
			}
		}

		if result.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		batch.Results = append(batch.Results, *result)
	}

	m.logger.WithField("total", batch.Total).
		WithField("succeeded", batch.Succeeded).
		WithField("failed", batch.Failed).
		Info("Batch transfer finished")
	return batch
}

// Upload transfers a local file to a storage URL.
func (m *Manager) Upload(ctx context.Context, localPath, destination string, opts ...storage.UploadOption) (*storage.TransferResult, error) {
	if !storage.IsStorageURL(destination) {
		return nil, fmt.Errorf("%w: %q is not a storage URL", storage.ErrInvalidLocation, destination)
	}
	return m.CopyFile(ctx, localPath, destination, opts...)
}

// Download transfers an object at a storage URL to a local file.
func (m *Manager) Download(ctx context.Context, source, localPath string) (*storage.TransferResult, error) {
	if !storage.IsStorageURL(source) {
		return nil, fmt.Errorf("%w: %q is not a storage URL", storage.ErrInvalidLocation, source)
	}
	return m.CopyFile(ctx, source, localPath)
}

// ListFiles lists objects under a storage URL. The URL's path is used as a
// listing prefix.
func (m *Manager) ListFiles(ctx context.Context, location string) ([]storage.ObjectInfo, error) {
	loc, err := storage.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	conn, err := m.connector(ctx, loc.Provider)
	if err != nil {
		return nil, err
	}
	return conn.ListFiles(ctx, loc.Container, loc.Path)
}

// DeleteFile deletes the object at a storage URL.
func (m *Manager) DeleteFile(ctx context.Context, location string) (bool, error) {
	loc, err := storage.ParseLocation(location)
	if err != nil {
		return false, err
	}
	conn, err := m.connector(ctx, loc.Provider)
	if err != nil {
		return false, err
	}
	return conn.DeleteFile(ctx, loc.Container, loc.Path), nil
}

// FileExists reports whether the object at a storage URL exists.
func (m *Manager) FileExists(ctx context.Context, location string) (bool, error) {
	loc, err := storage.ParseLocation(location)
	if err != nil {
		return false, err
	}
	conn, err := m.connector(ctx, loc.Provider)
	if err != nil {
		return false, err
	}
	return conn.FileExists(ctx, loc.Container, loc.Path), nil
}

// FileInfo returns the metadata of the object at a storage URL.
func (m *Manager) FileInfo(ctx context.Context, location string) (*storage.ObjectInfo, error) {
	loc, err := storage.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	conn, err := m.connector(ctx, loc.Provider)
	if err != nil {
		return nil, err
	}
	return conn.GetFileInfo(ctx, loc.Container, loc.Path)
}

// ConfiguredProviders returns the providers that have credentials present,
// in canonical order.
func (m *Manager) ConfiguredProviders() []storage.Provider {
	var providers []storage.Provider
	if m.cfg.AWS.Configured() {
		providers = append(providers, storage.ProviderAWS)
	}
	if m.cfg.Azure.Configured() {
		providers = append(providers, storage.ProviderAzure)
	}
	if m.cfg.GCP.Configured() {
		providers = append(providers, storage.ProviderGCP)
	}
	return providers
}

// TestConnections probes every configured provider and reports per-provider
// health. The returned error aggregates all failures.
func (m *Manager) TestConnections(ctx context.Context) (map[storage.Provider]bool, error) {
	results := make(map[storage.Provider]bool)
	var errs *multierror.Error

	for _, provider := range m.ConfiguredProviders() {
		conn, err := m.connector(ctx, provider)
		if err != nil {
			results[provider] = false
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", provider, err))
			continue
		}

		ok := storage.TestConnection(ctx, conn)
		results[provider] = ok
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("%s: connection test failed", provider))
		}
	}

	return results, errs.ErrorOrNil()
}

// Cleanup removes the scratch directory and drops cached connectors.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	m.connectors = make(map[storage.Provider]storage.Connector)
	m.mu.Unlock()

	if err := os.RemoveAll(m.cfg.ScratchDir); err != nil {
		return fmt.Errorf("removing scratch dir: %w", err)
	}
	return nil
}
