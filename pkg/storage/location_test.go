package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Location
	}{
		{
			name:     "s3 url",
			input:    "s3://bucket/path/to/file.bin",
			expected: Location{Provider: ProviderAWS, Container: "bucket", Path: "path/to/file.bin"},
		},
		{
			name:     "azure url",
			input:    "azure://container/blob.txt",
			expected: Location{Provider: ProviderAzure, Container: "container", Path: "blob.txt"},
		},
		{
			name:     "gcs url",
			input:    "gcs://bucket/object",
			expected: Location{Provider: ProviderGCP, Container: "bucket", Path: "object"},
		},
		{
			name:     "gs alias maps to gcp",
			input:    "gs://bucket/object",
			expected: Location{Provider: ProviderGCP, Container: "bucket", Path: "object"},
		},
		{
			name:     "scheme is case insensitive",
			input:    "S3://bucket/object",
			expected: Location{Provider: ProviderAWS, Container: "bucket", Path: "object"},
		},
		{
			name:     "empty path",
			input:    "s3://bucket",
			expected: Location{Provider: ProviderAWS, Container: "bucket", Path: ""},
		},
		{
			name:     "nested path keeps slashes",
			input:    "azure://c/a/b/c/d.bin",
			expected: Location{Provider: ProviderAzure, Container: "c", Path: "a/b/c/d.bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseLocation(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, *loc)
		})
	}
}

func TestParseLocationErrors(t *testing.T) {
	inputs := []string{
		"ftp://host/file",
		"http://example.com/file",
		"/local/path",
		"not a url",
		"s3://",
		"",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseLocation(input)
			assert.True(t, errors.Is(err, ErrInvalidLocation), "input %q", input)
		})
	}
}

func TestParseLocationIsPure(t *testing.T) {
	// Parsing the same input twice yields identical results and never
	// depends on connector or network state.
	for i := 0; i < 2; i++ {
		loc, err := ParseLocation("s3://bucket/key")
		require.NoError(t, err)
		assert.Equal(t, Location{Provider: ProviderAWS, Container: "bucket", Path: "key"}, *loc)
	}
}

func TestIsStorageURL(t *testing.T) {
	assert.True(t, IsStorageURL("s3://bucket/key"))
	assert.True(t, IsStorageURL("azure://c/b"))
	assert.True(t, IsStorageURL("gs://bucket/key"))
	assert.False(t, IsStorageURL("/local/path"))
	assert.False(t, IsStorageURL("C:\\windows\\path"))
	assert.False(t, IsStorageURL("ftp://host/file"))
}

func TestHasScheme(t *testing.T) {
	assert.True(t, HasScheme("s3://bucket/key"))
	assert.True(t, HasScheme("ftp://host/file"))
	assert.False(t, HasScheme("/local/path"))
	assert.False(t, HasScheme("relative/path"))
}

func TestLocationString(t *testing.T) {
	tests := []struct {
		loc      Location
		expected string
	}{
		{Location{Provider: ProviderAWS, Container: "b", Path: "k"}, "s3://b/k"},
		{Location{Provider: ProviderAzure, Container: "c", Path: "blob"}, "azure://c/blob"},
		{Location{Provider: ProviderGCP, Container: "b", Path: "o"}, "gcs://b/o"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.loc.String())
	}
}

func TestLocationRoundTrip(t *testing.T) {
	for _, input := range []string{"s3://b/k", "azure://c/blob", "gcs://b/deep/path"} {
		loc, err := ParseLocation(input)
		require.NoError(t, err)
		assert.Equal(t, input, loc.String())
	}
}
