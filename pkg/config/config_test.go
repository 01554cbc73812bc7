package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/nooga/esvm/pkg/errors"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg, err := Load(fs, DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesSelectedKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "esvm.toml", []byte(`
[engine]
max-recursion-depth = 50
max-run-time = "250ms"

[log]
level = "debug"
development = true
`), 0o644))

	cfg, err := Load(fs, "esvm.toml")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Engine.MaxRecursionDepth)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.MaxRunTime.Duration)
	assert.Equal(t, Default().Engine.MaxRegisters, cfg.Engine.MaxRegisters)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"negative":    "[engine]\nmax-registers = -1\n",
		"unknown key": "[engine]\nturbo = true\n",
		"bad level":   "[log]\nlevel = \"loud\"\n",
		"quota order": "[engine]\ntimeslice-quota = 10\ntimeslice-quota-max = 5\n",
		"syntax":      "[engine\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "c.toml", []byte(body), 0o644))
			_, err := Load(fs, "c.toml")
			var ce *errors.ConfigError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestLogBuild(t *testing.T) {
	l, err := Log{Level: "warn"}.Build()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = Log{Development: true}.Build()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = Log{Level: "loud"}.Build()
	assert.Error(t, err)
}
