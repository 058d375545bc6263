package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabula/internal/pipeline"
	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/logger"
	"github.com/ajitpratap0/tabula/pkg/observability"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

var version = "0.1.0"

// flagKeys maps global flags to configuration keys. Every key can also be
// set through a TABULA_ environment variable, such as TABULA_CODEC_CHUNK_SIZE.
var flagKeys = map[string]string{
	"log-level":           "logging.level",
	"chunk-size":          "codec.chunk_size",
	"verify":              "codec.verify",
	"delimiter":           "dialect.delimiter",
	"quote":               "dialect.quote",
	"escape":              "dialect.escape",
	"no-header":           "dialect.no_header",
	"null":                "builder.null_tokens",
	"on-conversion-error": "builder.on_conversion_error",
	"sample-size":         "inference.sample_size",
	"inference":           "inference.policy",
	"metrics-file":        "observability.metrics_file",
	"trace":               "observability.tracing",
}

// app holds what the subcommands share: the resolved configuration and the
// driver built from it
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
	tracer *observability.Tracer
	driver *pipeline.Driver
	stdout io.Writer

	configFile string
	expect     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	return (&app{v: viper.New(), stdout: stdout}).rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tabula",
		Short: "tabula - typed columnar tables from delimited text",
		Long: `tabula parses delimited text into a typed columnar table, inferring a type
for every column, and stores tables in a chunked, self-describing columnar file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVar(&a.expect, "expect", "", "Expected schema of colfile input, such as id:int,score:float?")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.Int("chunk-size", 65536, "Rows per colfile chunk")
	flags.Bool("verify", false, "Decode every written colfile before publishing it")
	flags.String("delimiter", ",", "Field delimiter (a single byte, or tab)")
	flags.String("quote", `"`, "Quote character")
	flags.String("escape", `"`, "Escape character; equal to the quote means doubled quotes")
	flags.Bool("no-header", false, "Input has no header row; columns are named f0, f1, ...")
	flags.StringSlice("null", nil, "Additional null tokens (the empty field is always null)")
	flags.String("on-conversion-error", "fail", "What to do when a value past the sample does not convert (fail, widen)")
	flags.Int("sample-size", 1000, "Rows inspected by sample inference")
	flags.String("inference", "sample", "Type inference policy (sample, full)")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	flags.Bool("trace", false, "Export OpenTelemetry spans to stderr")
	a.bindFlags(flags)

	root.AddCommand(
		newVersionCommand(a),
		newReadCommand(a),
		newConvertCommand(a),
		newExportCommand(a),
		newInspectCommand(a),
		newSchemaCommand(a),
	)
	return root
}

func (a *app) bindFlags(flags *pflag.FlagSet) {
	a.v.SetEnvPrefix("TABULA")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()
	for flag, key := range flagKeys {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}
}

// resolveConfig loads the file, when given, over the defaults and applies
// every key set by a flag or an environment variable
func (a *app) resolveConfig() (*config.Config, error) {
	cfg := config.Default()
	if a.configFile != "" {
		loaded, err := config.Load(a.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	v := a.v
	if v.IsSet("logging.level") {
		cfg.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("codec.chunk_size") {
		cfg.Codec.ChunkSize = v.GetInt("codec.chunk_size")
	}
	if v.IsSet("codec.verify") {
		cfg.Codec.Verify = v.GetBool("codec.verify")
	}
	if v.IsSet("dialect.delimiter") {
		cfg.Dialect.Delimiter = v.GetString("dialect.delimiter")
	}
	if v.IsSet("dialect.quote") {
		cfg.Dialect.Quote = v.GetString("dialect.quote")
	}
	if v.IsSet("dialect.escape") {
		cfg.Dialect.Escape = v.GetString("dialect.escape")
	}
	if v.IsSet("dialect.no_header") {
		cfg.Dialect.Header = !v.GetBool("dialect.no_header")
	}
	if v.IsSet("builder.null_tokens") {
		cfg.Builder.NullTokens = v.GetStringSlice("builder.null_tokens")
	}
	if v.IsSet("builder.on_conversion_error") {
		cfg.Builder.OnConversionError = config.ConversionPolicy(v.GetString("builder.on_conversion_error"))
	}
	if v.IsSet("inference.sample_size") {
		cfg.Inference.SampleSize = v.GetInt("inference.sample_size")
	}
	if v.IsSet("inference.policy") {
		cfg.Inference.Policy = v.GetString("inference.policy")
	}
	if v.IsSet("observability.metrics_file") {
		cfg.Observability.MetricsFile = v.GetString("observability.metrics_file")
	}
	if v.IsSet("observability.tracing") {
		cfg.Observability.Tracing = v.GetBool("observability.tracing")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) setup() error {
	cfg, err := a.resolveConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeConfig, "failed to create logger")
	}
	a.logger = log

	a.tracer, err = observability.NewTracer(observability.Config{
		Enabled:        cfg.Observability.Tracing,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithLogger(log), pipeline.WithTracer(a.tracer)}
	if a.expect != "" {
		s, err := schema.Parse(a.expect)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithExpectedSchema(s))
	}
	a.driver, err = pipeline.NewDriver(cfg, opts...)
	return err
}

// teardown flushes spans and metrics. It only runs after a successful
// command; failed runs exit without writing the metrics file.
func (a *app) teardown(ctx context.Context) error {
	if a.driver == nil {
		return nil
	}
	defer func() { _ = a.logger.Sync() }()

	if err := a.tracer.Shutdown(ctx); err != nil {
		return err
	}
	if path := a.cfg.Observability.MetricsFile; path != "" {
		if err := a.driver.Metrics().WriteTextfile(path); err != nil {
			return err
		}
		a.logger.Debug("metrics written", zap.String("path", path))
	}
	return nil
}

// formatError renders err for stderr with its row and column context
func formatError(err error) string {
	var te *tabulaerrors.Error
	if errors.As(err, &te) {
		if ctx := te.Context(); ctx != "" {
			return fmt.Sprintf("Error: %s (%s)", err, ctx)
		}
	}
	return fmt.Sprintf("Error: %s", err)
}
