package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("recorder.dir", filepath.Join(t.TempDir(), "records"))
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newViper(t)
	s, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "ws://127.0.0.1:3000", s.Hub.URL)
	require.Equal(t, 21, s.Hub.SchemaVersion)
	require.Equal(t, 5*time.Second, s.Hub.ReconnectDelay)
	require.Equal(t, 6*time.Second, s.Recorder.RetryInterval)
	require.Equal(t, 3, s.Recorder.MaxRetries)
	require.Equal(t, 30*time.Second, s.Recorder.MaxDuration)
	require.Equal(t, "eufy", s.Recorder.Prefix)
	require.Equal(t, "mp4", s.Recorder.Container)
	require.Equal(t, "9101", s.Metrics.Port)

	info, err := os.Stat(s.Recorder.Dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLoadExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	v := newViper(t)
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".eufy-bridge", "recordings.db"), s.Catalog.Path)
}

func TestLoadReadsYAML(t *testing.T) {
	v := newViper(t)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
hub:
  url: ws://hub.lan:3000
recorder:
  max_duration: 45s
  container: mkv
`)))
	v.Set("recorder.dir", filepath.Join(t.TempDir(), "records"))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "ws://hub.lan:3000", s.Hub.URL)
	require.Equal(t, 45*time.Second, s.Recorder.MaxDuration)
	require.Equal(t, "mkv", s.Recorder.Container)
	require.Equal(t, 6*time.Second, s.Recorder.RetryInterval)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EUFY_BRIDGE_RECORDER_MAX_RETRIES", "5")
	v := newViper(t)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 5, s.Recorder.MaxRetries)
}

func TestLoadValidation(t *testing.T) {
	v := newViper(t)
	v.Set("hub.url", "")
	v.Set("recorder.max_duration", "0s")
	v.Set("recorder.max_retries", -1)
	v.Set("recorder.prefix", "")

	_, err := Load(v)
	require.Error(t, err)
	for _, want := range []string{"hub.url", "recorder.max_duration", "recorder.max_retries", "recorder.prefix"} {
		require.Contains(t, err.Error(), want)
	}
}
