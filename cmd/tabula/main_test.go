package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabula/pkg/json"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConvertAndInspect(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "scores.csv", []byte(testutil.ScoresCSV))
	out := filepath.Join(dir, "scores.tbl")

	stdout, err := execute(t, "convert", in, out, "--chunk-size", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 rows, 2 columns, 2 chunks")

	stdout, err = execute(t, "inspect", out)
	require.NoError(t, err)
	var info struct {
		Footer struct {
			TotalRows int `json:"total_rows"`
			Chunks    []struct {
				Rows int `json:"rows"`
			} `json:"chunks"`
		} `json:"footer"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, 3, info.Footer.TotalRows)
	require.Len(t, info.Footer.Chunks, 2)
	assert.Equal(t, 2, info.Footer.Chunks[0].Rows)
	assert.Equal(t, 1, info.Footer.Chunks[1].Rows)
}

func TestReadPrintsTable(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "scores.csv", []byte(testutil.ScoresCSV))

	stdout, err := execute(t, "read", in)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"id:integer", "score:float?"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2", "null"}, strings.Fields(lines[2]))

	stdout, err = execute(t, "read", in, "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"score":4.25`)
}

func TestSchemaWithExpectation(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "ids.csv", []byte("id\na\nb\n"))
	out := filepath.Join(dir, "ids.tbl")
	_, err := execute(t, "convert", in, out)
	require.NoError(t, err)

	stdout, err := execute(t, "schema", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "string")

	_, err = execute(t, "read", out, "--expect", "id:int")
	require.Error(t, err)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeSchemaMismatch))
	assert.Contains(t, formatError(err), "column=id")
}

func TestFailedConvertLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "bad.csv", []byte("a,b\n1,2\n3\n"))
	out := filepath.Join(dir, "bad.tbl")

	_, err := execute(t, "convert", in, out)
	require.Error(t, err)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeMalformedRecord))
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, []string{"bad.csv"}, testutil.ListDir(t, dir))
}

func TestConfigLayering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testutil.WriteFile(t, dir, "tabula.yaml", []byte(`
dialect:
  delimiter: ";"
codec:
  chunk_size: 10
inference:
  policy: full
`))
	t.Setenv("TABULA_CODEC_CHUNK_SIZE", "20")

	a := &app{v: viper.New(), stdout: &bytes.Buffer{}}
	root := a.rootCommand()
	require.NoError(t, root.ParseFlags([]string{"--sample-size", "50"}))
	a.configFile = cfgPath

	cfg, err := a.resolveConfig()
	require.NoError(t, err)
	assert.Equal(t, ";", cfg.Dialect.Delimiter)
	assert.Equal(t, "full", cfg.Inference.Policy)
	assert.Equal(t, 20, cfg.Codec.ChunkSize, "environment overrides the file")
	assert.Equal(t, 50, cfg.Inference.SampleSize)
	assert.True(t, cfg.Dialect.Header)
}

func TestInvalidFlagValue(t *testing.T) {
	_, err := execute(t, "read", "missing.csv", "--inference", "guess")
	require.Error(t, err)
	assert.True(t, tabulaerrors.IsType(err, tabulaerrors.ErrorTypeConfig))
}

func TestVersion(t *testing.T) {
	stdout, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tabula v"+version)
}
