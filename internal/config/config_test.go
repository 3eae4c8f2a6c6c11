package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  type: file
  options:
    path: /tmp/test.pcap
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Engine.ChannelCapacity)
	assert.Equal(t, "file", cfg.Source.Type)
	assert.Equal(t, "/tmp/test.pcap", cfg.Source.Options["path"])
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
engine:
  channel_capacity: 128
source:
  type: afpacket
  options:
    device: eth0
    snap_len: 65535
log:
  level: debug
metrics:
  enabled: true
  listen: ":9465"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Engine.ChannelCapacity)
	assert.Equal(t, "afpacket", cfg.Source.Type)
	assert.Equal(t, "eth0", cfg.Source.Options["device"])
	require.NotNil(t, cfg.Log)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidateRejectsTinyChannel(t *testing.T) {
	path := writeConfig(t, `
engine:
  channel_capacity: 1
source:
  type: file
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDumpRoundTrips(t *testing.T) {
	path := writeConfig(t, `
source:
  type: file
  options:
    path: /tmp/a.pcap
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.Contains(t, string(out), "type: file")
	assert.Contains(t, string(out), "channel_capacity: 64")
}
