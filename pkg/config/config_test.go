package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Port      int           `env:"SAMPLE_PORT" envDefault:"8080"`
	CodeTTL   time.Duration `env:"SAMPLE_CODE_TTL" envDefault:"10m"`
	Origins   []string      `env:"SAMPLE_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	Secure    bool          `env:"SAMPLE_SECURE" envDefault:"true"`
	SecretKey string        `env:"SAMPLE_SECRET"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg sampleConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.CodeTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Origins)
	assert.True(t, cfg.Secure)
	assert.Empty(t, cfg.SecretKey)
}

func TestLoad_FromProcessEnv(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "9091")
	t.Setenv("SAMPLE_CODE_TTL", "90s")
	t.Setenv("SAMPLE_ORIGINS", "https://a.example,https://b.example")

	var cfg sampleConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9091, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.CodeTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "eighty")

	var cfg sampleConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadFrom_ExplicitEnvironment(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "1111")

	var cfg sampleConfig
	require.NoError(t, LoadFrom(&cfg, map[string]string{
		"SAMPLE_SECRET": "s3cr3t",
		"SAMPLE_SECURE": "false",
	}))

	assert.Equal(t, 8080, cfg.Port, "process env must be ignored")
	assert.Equal(t, "s3cr3t", cfg.SecretKey)
	assert.False(t, cfg.Secure)
}

func TestLoad_NonPointer(t *testing.T) {
	assert.Error(t, Load(sampleConfig{}))
}
