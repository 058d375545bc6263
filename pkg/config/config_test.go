package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	d, err := cfg.Dialect.CSV()
	require.NoError(t, err)
	assert.Equal(t, byte(','), d.Delimiter)
	assert.Equal(t, byte('\n'), d.RecordDelimiter)
	assert.True(t, d.Header)

	inf := cfg.SchemaInference()
	assert.Equal(t, schema.PolicySample, inf.Policy)
	assert.Equal(t, 1000, inf.SampleSize)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		key    string
	}{
		"long delimiter":   {func(c *Config) { c.Dialect.Delimiter = ";;" }, "dialect.delimiter"},
		"empty quote":      {func(c *Config) { c.Dialect.Quote = "" }, "dialect.quote"},
		"bad policy":       {func(c *Config) { c.Inference.Policy = "guess" }, ""},
		"zero sample":      {func(c *Config) { c.Inference.SampleSize = 0 }, ""},
		"bad conversion":   {func(c *Config) { c.Builder.OnConversionError = "skip" }, "builder.on_conversion_error"},
		"zero chunk":       {func(c *Config) { c.Codec.ChunkSize = 0 }, "codec.chunk_size"},
		"negative workers": {func(c *Config) { c.Codec.Workers = -1 }, "codec.workers"},
		"negative timeout": {func(c *Config) { c.Storage.Timeout = -time.Second }, "storage.timeout"},
		"bad encoding":     {func(c *Config) { c.Logging.Encoding = "xml" }, "logging.encoding"},
		"clashing bytes":   {func(c *Config) { c.Dialect.Quote = "," }, ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeConfig), err.Error())
			if tt.key != "" {
				var te *tabulaerrors.Error
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.key, te.Details["key"])
			}
		})
	}

	full := Default()
	full.Inference.Policy = "full"
	full.Inference.SampleSize = 0
	assert.NoError(t, full.Validate(), "sample size is unused by the full policy")
}

func TestLoad(t *testing.T) {
	t.Setenv("TABULA_TEST_NULL", "NA")
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "tabula.yaml", []byte(`
dialect:
  delimiter: ";"
  record_delimiter: '\r'
inference:
  policy: full
builder:
  null_tokens: ["${TABULA_TEST_NULL}", "-"]
  on_conversion_error: widen
storage:
  timeout: 45s
`))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ";", cfg.Dialect.Delimiter)
	assert.Equal(t, `"`, cfg.Dialect.Quote, "missing keys keep defaults")
	assert.Equal(t, "full", cfg.Inference.Policy)
	assert.Equal(t, []string{"NA", "-"}, cfg.Builder.NullTokens)
	assert.Equal(t, ConversionWiden, cfg.Builder.OnConversionError)
	assert.Equal(t, 45*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, 65536, cfg.Codec.ChunkSize)

	d, err := cfg.Dialect.CSV()
	require.NoError(t, err)
	assert.Equal(t, byte('\r'), d.RecordDelimiter)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeConfig))

	bad := testutil.WriteFile(t, dir, "bad.yaml", []byte("codec: [1, 2"))
	_, err = Load(bad)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeConfig))

	invalidCfg := testutil.WriteFile(t, dir, "invalid.yaml", []byte("codec:\n  chunk_size: -5\n"))
	_, err = Load(invalidCfg)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Builder.NullTokens = []string{"NULL"}
	cfg.Storage.S3.Region = "eu-west-1"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TABULA_A", "x")
	assert.Equal(t, "x-x-", substituteEnvVars("${TABULA_A}-${TABULA_A}-${TABULA_UNSET_VALUE}"))
	assert.Equal(t, "open ${", substituteEnvVars("open ${"))
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.Builder.NullTokens = []string{"NA"}
	clone := cfg.Clone()
	clone.Builder.NullTokens[0] = "changed"
	clone.Inference.TrueTokens[0] = "yes"
	assert.Equal(t, "NA", cfg.Builder.NullTokens[0])
	assert.Equal(t, "true", cfg.Inference.TrueTokens[0])
}
