package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1, cfg.Sim.Workers)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, engine.DefaultConfig(), cfg.EngineConfig(nil, nil))
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
engine:
  impact_model: extended
  cancel_probability: 0
  latency: 2ms
  seed: 99
sim:
  workers: 2
  batch_size: 250
kafka:
  enabled: true
  topic: sim-trades
`), 0o600))

	t.Setenv("LOBSIM_SIM_WORKERS", "6")
	t.Setenv("LOBSIM_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 6, cfg.Sim.Workers, "env wins over file")
	assert.Equal(t, 250, cfg.Sim.BatchSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sim-trades", cfg.Kafka.Topic)

	ec := cfg.EngineConfig(nil, nil)
	assert.Equal(t, engine.ImpactExtended, ec.ImpactModel)
	assert.Zero(t, ec.CancelProbability)
	assert.Equal(t, 2*time.Millisecond, ec.LatencyFactor)
	assert.Equal(t, int64(99), ec.Seed)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"impact model": "engine:\n  impact_model: quadratic\n",
		"probability":  "engine:\n  cancel_probability: 1.5\n",
		"split range":  "engine:\n  min_split: 5\n  max_split: 2\n",
		"kafka":        "kafka:\n  enabled: true\n  topic: \"\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
