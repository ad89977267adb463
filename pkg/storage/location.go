package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is the parsed form of a storage URL: which backend it lives on,
// the container (bucket) within that backend, and the object path.
type Location struct {
	Provider  Provider
	Container string
	Path      string
}

// Scheme-to-provider mapping. "gs" is the short alias for Google Cloud
// Storage; matching is case-insensitive.
var schemeProviders = map[string]Provider{
	"s3":    ProviderAWS,
	"azure": ProviderAzure,
	"gcs":   ProviderGCP,
	"gs":    ProviderGCP,
}

// ParseLocation parses a storage URL of the form scheme://container/path
// into a Location. It is a pure string transformation; no network access
// occurs. An unrecognized scheme or a missing container is an
// ErrInvalidLocation, never silently defaulted.
func ParseLocation(raw string) (*Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidLocation, raw, err)
	}

	provider, ok := schemeProviders[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported URL scheme %q", ErrInvalidLocation, u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing container in %q", ErrInvalidLocation, raw)
	}

	return &Location{
		Provider:  provider,
		Container: u.Host,
		Path:      strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// IsStorageURL reports whether raw carries a recognized storage scheme.
// Used to distinguish cloud locations from local filesystem paths.
func IsStorageURL(raw string) bool {
	scheme, _, found := strings.Cut(raw, "://")
	if !found {
		return false
	}
	_, ok := schemeProviders[strings.ToLower(scheme)]
	return ok
}

// HasScheme reports whether raw carries any URL scheme at all, recognized
// or not. A string that has a scheme but fails IsStorageURL names an
// unsupported backend and must not be mistaken for a local path.
func HasScheme(raw string) bool {
	_, _, found := strings.Cut(raw, "://")
	return found
}

// String renders the location back as a URL using the provider's canonical
// scheme.
func (l *Location) String() string {
	scheme := ""
	switch l.Provider {
	case ProviderAWS:
		scheme = "s3"
	case ProviderAzure:
		scheme = "azure"
	case ProviderGCP:
		scheme = "gcs"
	}
	if l.Path == "" {
		return fmt.Sprintf("%s://%s", scheme, l.Container)
	}
	return fmt.Sprintf("%s://%s/%s", scheme, l.Container, l.Path)
}
