package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.in))
	}
}

func TestTransferSpeed(t *testing.T) {
	assert.Equal(t, "1.0 MiB/s", TransferSpeed(2*1048576, 2))
	assert.Equal(t, "n/a", TransferSpeed(100, 0))
}
