package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "trace", cfg.Sink)
	assert.Equal(t, "monitor.trace", cfg.Output)
	assert.Equal(t, "buffer", cfg.Skip)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 10*time.Second, cfg.KafkaTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Equal(t, 15*time.Second, cfg.MetricsInterval)
	assert.Equal(t, 10*time.Second, cfg.SummaryInterval)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MON_SINK", "kafka")
	t.Setenv("MON_ENABLED", "false")
	t.Setenv("MON_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MON_CAPTURE", "run.cap")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "kafka", cfg.Sink)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "run.cap", cfg.Capture)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("MON_ENABLED", "maybe")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	in := &Settings{Output: "/tmp/run.trace", Enabled: true}
	in.SetCounters(Counters{States: 12, Infos: 3, Skipped: 1})
	require.NoError(t, SaveSettings(path, in))

	out, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	c, err := out.Counters()
	require.NoError(t, err)
	assert.Equal(t, Counters{States: 12, Infos: 3, Skipped: 1}, c)
}

func TestMalformedCountersFallBackToZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	doc := "output: out.trace\nenabled: false\nstates: \"twelve\"\ninfos: \"7\"\nskipped: \"-1\"\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "out.trace", s.Output)
	assert.False(t, s.Enabled)

	c, err := s.Counters()
	assert.ErrorIs(t, err, ErrBadSetting)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, Counters{Infos: 7}, c)
}

func TestLoadSettingsErrors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: [unterminated"), 0o644))
	_, err = LoadSettings(path)
	assert.Error(t, err)
}
