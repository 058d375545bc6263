package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/ajitpratap0/tabula/pkg/csv"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Config is the complete configuration of a tabula run. Every component
// configuration is derived from it.
type Config struct {
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Dialect describes the delimited text input and output
	Dialect DialectConfig `yaml:"dialect" json:"dialect"`

	// Inference selects how column types are determined
	Inference InferenceConfig `yaml:"inference" json:"inference"`

	// Builder controls how raw values become typed columns
	Builder BuilderConfig `yaml:"builder" json:"builder"`

	// Codec controls the colfile writer and reader
	Codec CodecConfig `yaml:"codec" json:"codec"`

	// Storage configures local and object storage access
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configures the zap logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Observability configures tracing and metrics output
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// DialectConfig holds the special characters of the text format. Each is a
// single byte; the names "tab", "\t", "\n" and "\r" are accepted as well.
type DialectConfig struct {
	Delimiter         string `yaml:"delimiter" json:"delimiter"`
	Quote             string `yaml:"quote" json:"quote"`
	Escape            string `yaml:"escape" json:"escape"`
	RecordDelimiter   string `yaml:"record_delimiter" json:"record_delimiter"`
	Header            bool   `yaml:"header" json:"header"`
	EnforceFieldCount bool   `yaml:"enforce_field_count" json:"enforce_field_count"`
	TrimSpace         bool   `yaml:"trim_space" json:"trim_space"`
}

// InferenceConfig contains type inference settings
type InferenceConfig struct {
	// Policy is "sample" or "full"
	Policy string `yaml:"policy" json:"policy"`
	// SampleSize is the number of leading rows inspected by the sample policy
	SampleSize int `yaml:"sample_size" json:"sample_size"`
	// TrueTokens and FalseTokens are the accepted boolean literals
	TrueTokens  []string `yaml:"true_tokens" json:"true_tokens"`
	FalseTokens []string `yaml:"false_tokens" json:"false_tokens"`
	// Workers bounds the columns inferred concurrently
	Workers int `yaml:"workers" json:"workers"`
}

// ConversionPolicy decides what happens when a value past the inference
// sample does not parse under the inferred type
type ConversionPolicy string

const (
	// ConversionFail aborts the run with a type_conversion error
	ConversionFail ConversionPolicy = "fail"
	// ConversionWiden re-infers the column over every row and rebuilds it
	ConversionWiden ConversionPolicy = "widen"
)

// BuilderConfig contains column building settings
type BuilderConfig struct {
	// NullTokens are raw values treated as null in addition to the empty string
	NullTokens        []string         `yaml:"null_tokens" json:"null_tokens"`
	OnConversionError ConversionPolicy `yaml:"on_conversion_error" json:"on_conversion_error"`
}

// CodecConfig contains colfile settings
type CodecConfig struct {
	// ChunkSize is the maximum number of rows per chunk
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// Workers bounds the chunks encoded or decoded concurrently
	Workers int `yaml:"workers" json:"workers"`
	// Verify re-reads every written file and checks all chunk checksums
	Verify bool `yaml:"verify" json:"verify"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Timeout bounds every remote read or upload (0 = no limit)
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	S3      S3Config      `yaml:"s3" json:"s3"`
}

// S3Config configures the S3 client. Credentials come from the default
// AWS provider chain.
type S3Config struct {
	Region         string `yaml:"region" json:"region"`
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style" json:"force_path_style"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	// Level sets logging verbosity (debug, info, warn, error)
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// ObservabilityConfig contains tracing and metrics settings
type ObservabilityConfig struct {
	// Tracing exports spans to stderr
	Tracing bool `yaml:"tracing" json:"tracing"`
	// MetricsFile, when set, receives the run metrics in Prometheus text format
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// Default returns the configuration used when no file is given: comma
// separated input with a header, sample inference over 1000 rows and
// failing conversions.
func Default() *Config {
	return &Config{
		Version: "1",
		Dialect: DialectConfig{
			Delimiter:         ",",
			Quote:             `"`,
			Escape:            `"`,
			RecordDelimiter:   `\n`,
			Header:            true,
			EnforceFieldCount: true,
		},
		Inference: InferenceConfig{
			Policy:      string(schema.PolicySample),
			SampleSize:  1000,
			TrueTokens:  append([]string(nil), schema.DefaultTrueTokens...),
			FalseTokens: append([]string(nil), schema.DefaultFalseTokens...),
			Workers:     runtime.NumCPU(),
		},
		Builder: BuilderConfig{
			OnConversionError: ConversionFail,
		},
		Codec: CodecConfig{
			ChunkSize: 65536,
			Workers:   runtime.NumCPU(),
		},
		Storage: StorageConfig{
			Timeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "warn",
			Encoding: "console",
		},
		Observability: ObservabilityConfig{
			ServiceName: "tabula",
		},
	}
}

// Validate checks every section and returns a config error naming the
// first offending key
func (c *Config) Validate() error {
	if _, err := c.Dialect.CSV(); err != nil {
		return err
	}
	if err := c.SchemaInference().Validate(); err != nil {
		return err
	}
	switch c.Builder.OnConversionError {
	case ConversionFail, ConversionWiden:
	default:
		return invalid("builder.on_conversion_error", c.Builder.OnConversionError, "must be fail or widen")
	}
	if c.Codec.ChunkSize <= 0 {
		return invalid("codec.chunk_size", c.Codec.ChunkSize, "must be positive")
	}
	if c.Codec.Workers < 0 {
		return invalid("codec.workers", c.Codec.Workers, "cannot be negative")
	}
	if c.Inference.Workers < 0 {
		return invalid("inference.workers", c.Inference.Workers, "cannot be negative")
	}
	if c.Storage.Timeout < 0 {
		return invalid("storage.timeout", c.Storage.Timeout, "cannot be negative")
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return invalid("logging.encoding", c.Logging.Encoding, "must be json or console")
	}
	return nil
}

func invalid(key string, value interface{}, reason string) error {
	return tabulaerrors.Newf(tabulaerrors.ErrorTypeConfig, "%s %s", key, reason).
		WithDetail("key", key).
		WithDetail("value", value)
}

// CSV converts the section into a validated csv.Dialect
func (d DialectConfig) CSV() (csv.Dialect, error) {
	out := csv.Dialect{
		Header:            d.Header,
		EnforceFieldCount: d.EnforceFieldCount,
		TrimSpace:         d.TrimSpace,
	}
	fields := []struct {
		key string
		raw string
		dst *byte
	}{
		{"dialect.delimiter", d.Delimiter, &out.Delimiter},
		{"dialect.quote", d.Quote, &out.Quote},
		{"dialect.escape", d.Escape, &out.Escape},
		{"dialect.record_delimiter", d.RecordDelimiter, &out.RecordDelimiter},
	}
	for _, f := range fields {
		b, ok := parseByte(f.raw)
		if !ok {
			return csv.Dialect{}, invalid(f.key, f.raw, "must be a single byte")
		}
		*f.dst = b
	}
	if err := out.Validate(); err != nil {
		return csv.Dialect{}, err
	}
	return out, nil
}

func parseByte(s string) (byte, bool) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', true
	case `\n`:
		return '\n', true
	case `\r`:
		return '\r', true
	}
	if len(s) != 1 {
		return 0, false
	}
	return s[0], true
}

// SchemaInference converts the inference and builder sections into the
// inferer configuration
func (c *Config) SchemaInference() schema.InferenceConfig {
	return schema.InferenceConfig{
		Policy:      schema.Policy(c.Inference.Policy),
		SampleSize:  c.Inference.SampleSize,
		TrueTokens:  c.Inference.TrueTokens,
		FalseTokens: c.Inference.FalseTokens,
		NullTokens:  c.Builder.NullTokens,
		Workers:     c.Inference.Workers,
	}
}

// Logger converts the logging section into a logger configuration
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		Encoding:    c.Logging.Encoding,
	}
}

// Clone returns a deep copy of c
func (c *Config) Clone() *Config {
	out := *c
	out.Inference.TrueTokens = append([]string(nil), c.Inference.TrueTokens...)
	out.Inference.FalseTokens = append([]string(nil), c.Inference.FalseTokens...)
	out.Builder.NullTokens = append([]string(nil), c.Builder.NullTokens...)
	return &out
}
