package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgl-project/cloudxfer/pkg/configutils"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, "temp_transfers", cfg.ScratchDir)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.BreakerCooldown)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromFile(t *testing.T) {
	content := `
aws:
  access_key_id: AKIAEXAMPLE
  secret_access_key: secret
  region: eu-west-1
gcp:
  project_id: my-project
max_retries: 5
retry_delay: 1s
scratch_dir: /tmp/staging
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	require.NoError(t, configutils.ResolveAndMergeFile(v, path))

	cfg, err := NewConfig(WithViper(v))
	require.NoError(t, err)

	assert.Equal(t, "AKIAEXAMPLE", cfg.AWS.AccessKeyID)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "my-project", cfg.GCP.ProjectID)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, "/tmp/staging", cfg.ScratchDir)

	// Unset keys keep their defaults.
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.False(t, cfg.Azure.Configured())
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAFROMENV")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "envsecret")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "DefaultEndpointsProtocol=https;AccountName=x")

	cfg, err := NewConfig(WithViper(viper.New()))
	require.NoError(t, err)

	assert.Equal(t, "AKIAFROMENV", cfg.AWS.AccessKeyID)
	assert.Equal(t, "envsecret", cfg.AWS.SecretAccessKey)
	assert.True(t, cfg.AWS.Configured())
	assert.True(t, cfg.Azure.Configured())
}

func TestConfigEnvBindsAllFields(t *testing.T) {
	t.Setenv("SCRATCH_DIR", "/tmp/env-staging")
	t.Setenv("MAX_RETRIES", "7")

	cfg, err := NewConfig(WithViper(viper.New()))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env-staging", cfg.ScratchDir)
	assert.Equal(t, 7, cfg.MaxRetries)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ScratchDir = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BreakerCooldown = 0
	assert.Error(t, cfg.Validate())
}

func TestWithViperNil(t *testing.T) {
	_, err := NewConfig(WithViper(nil))
	assert.Error(t, err)
}
