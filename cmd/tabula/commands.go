package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/tabula/internal/pipeline"
	"github.com/ajitpratap0/tabula/pkg/render"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "tabula v%s\n", version)
			fmt.Fprintf(a.stdout, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(a.stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newReadCommand(a *app) *cobra.Command {
	var output string
	var maxRows int

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Print a table",
		Long: `Read a colfile, an Arrow, Parquet or Avro file, or delimited text (optionally
compressed) and print it as aligned columns or JSON lines.

Example:
  tabula read scores.csv
  tabula read scores.tbl --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.driver.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch output {
			case "text":
				return render.Text(a.stdout, t, render.TextOptions{MaxRows: maxRows})
			case "json":
				return render.JSONLines(a.stdout, t)
			default:
				return tabulaerrors.Newf(tabulaerrors.ErrorTypeValidation, "unknown output %q, want text or json", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Print at most this many rows (0 = all)")
	return cmd
}

func newConvertCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in_path> <out_path>",
		Short: "Write any readable input as a colfile",
		Long: `Convert reads its input like read does and writes it as a colfile. A colfile
input is decoded and re-encoded with the configured chunk size. The output
only appears when the whole table was written.

Example:
  tabula convert scores.csv scores.tbl --chunk-size 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.driver.Convert(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printResult(a, res)
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <in_path> <out_path>",
		Short: "Write a table as Arrow, Parquet, Avro or CSV",
		Long: `Export reads its input like read does and writes it in an interchange format.
Without --format the format is taken from the output extension.

Example:
  tabula export scores.tbl scores.parquet
  tabula export scores.tbl scores.csv.gz`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.driver.Export(cmd.Context(), args[0], args[1], format)
			if err != nil {
				return err
			}
			return printResult(a, res)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (arrow, parquet, avro, csv)")
	return cmd
}

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <path>",
		Short: "Print the schema and chunk index of a colfile as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.driver.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render.JSON(a.stdout, info)
		},
	}
}

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <path>",
		Short: "Print the stored or inferred schema of an input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.driver.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render.Schema(a.stdout, t.Schema())
		},
	}
}

func printResult(a *app, res *pipeline.Result) error {
	_, err := fmt.Fprintf(a.stdout, "%s: %d rows, %d columns, %d chunks, %d bytes in %s\n",
		res.Output, res.Rows, res.Columns, res.Chunks, res.Bytes, res.Duration.Round(time.Millisecond))
	if err != nil {
		return tabulaerrors.Wrap(err, tabulaerrors.ErrorTypeIO, "failed to write result")
	}
	return nil
}
