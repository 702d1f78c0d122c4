package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newTestViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 50000, cfg.Engine.DefaultIterations)
	assert.InDelta(t, 0.05, cfg.Engine.InitialTemperature, 1e-12)
	assert.Equal(t, 10*time.Minute, cfg.Engine.JobTimeout)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, "season:progress", cfg.Progress.ChannelPrefix)
	assert.False(t, cfg.Runs.Enabled)
	assert.Equal(t, time.Hour, cfg.Exports.CleanupInterval)
}

func TestOverridesAndFallbacks(t *testing.T) {
	cfg, err := fromViper(newTestViper(map[string]interface{}{
		"ENGINE_JOB_TIMEOUT":     "not-a-duration",
		"ENGINE_RESULT_TTL":      "2h",
		"ALLOWED_ORIGINS":        " https://a.example , ,https://b.example",
		"ENABLE_RUN_PERSISTENCE": true,
	}))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Engine.JobTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Engine.ResultTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Runs.Enabled)
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"no workers":           {"ENGINE_WORKERS": 0},
		"inverted temperature": {"ENGINE_FINAL_TEMPERATURE": 0.5},
		"default prod secret":  {"ENV": EnvProduction},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fromViper(newTestViper(overrides))
			assert.Error(t, err)
		})
	}

	cfg, err := fromViper(newTestViper(map[string]interface{}{"ENV": EnvProduction, "EXPORTS_SIGNED_URL_SECRET": "s3cret"}))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
