package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junior2099/carve/internal/config"
)

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Video)
	assert.Nil(t, cfg.Defaults.BlockSize)
	assert.Nil(t, cfg.Defaults.BWLimit)
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "carve")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	content := `
[defaults]
video = true
block_size = "16M"
bwlimit = "100M"
dedupe = true
manifest = false
video_max = "1G"
quiet = false
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Video)
	assert.True(t, *cfg.Defaults.Video)

	require.NotNil(t, cfg.Defaults.BlockSize)
	assert.Equal(t, "16M", *cfg.Defaults.BlockSize)

	require.NotNil(t, cfg.Defaults.BWLimit)
	assert.Equal(t, "100M", *cfg.Defaults.BWLimit)

	require.NotNil(t, cfg.Defaults.Dedupe)
	assert.True(t, *cfg.Defaults.Dedupe)

	require.NotNil(t, cfg.Defaults.Manifest)
	assert.False(t, *cfg.Defaults.Manifest)

	require.NotNil(t, cfg.Defaults.VideoMax)
	assert.Equal(t, "1G", *cfg.Defaults.VideoMax)

	require.NotNil(t, cfg.Defaults.Quiet)
	assert.False(t, *cfg.Defaults.Quiet)

	// Unset fields should remain nil.
	assert.Nil(t, cfg.Defaults.ImageMax)
}

func TestLoad_PartialConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "carve")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	content := `
[defaults]
dedupe = true
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Nil(t, cfg.Defaults.Video)
	assert.Nil(t, cfg.Defaults.BlockSize)

	require.NotNil(t, cfg.Defaults.Dedupe)
	assert.True(t, *cfg.Defaults.Dedupe)
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "carve")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte("invalid [[["), 0o644))

	_, err := config.Load()
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/carve/config.toml", config.Path())
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "4096", want: 4096},
		{in: "100B", want: 100},
		{in: "8k", want: 8 << 10},
		{in: "32M", want: 32 << 20},
		{in: "2G", want: 2 << 30},
		{in: "1T", want: 1 << 40},
		{in: "1.5G", want: int64(1.5 * float64(1<<30))},
		{in: " 16M ", want: 16 << 20},
		{in: "", wantErr: true},
		{in: "M", wantErr: true},
		{in: "abcM", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := config.ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
