package pipeline

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/tabula/pkg/columnar"
	"github.com/ajitpratap0/tabula/pkg/compression"
	"github.com/ajitpratap0/tabula/pkg/config"
	"github.com/ajitpratap0/tabula/pkg/metrics"
	"github.com/ajitpratap0/tabula/pkg/observability"
	"github.com/ajitpratap0/tabula/pkg/schema"
	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
	"github.com/ajitpratap0/tabula/pkg/testutil"
)

func newDriver(t *testing.T, mutate func(*config.Config), opts ...Option) *Driver {
	t.Helper()
	cfg := config.Default()
	cfg.Codec.Workers = 4
	if mutate != nil {
		mutate(cfg)
	}
	d, err := NewDriver(cfg, append([]Option{WithLogger(testutil.TestLogger(t))}, opts...)...)
	require.NoError(t, err)
	return d
}

func requireType(t *testing.T, err error, want tabulaerrors.ErrorType) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, tabulaerrors.GetType(err), err.Error())
}

func TestNewDriverRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Codec.ChunkSize = 0
	_, err := NewDriver(cfg)
	requireType(t, err, tabulaerrors.ErrorTypeConfig)

	d, err := NewDriver(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Codec.ChunkSize, d.Config().Codec.ChunkSize)
}

func TestIngestScores(t *testing.T) {
	d := newDriver(t, nil)
	tbl, err := d.Ingest(testutil.TestContext(t), strings.NewReader(testutil.ScoresCSV))
	require.NoError(t, err)

	assert.Equal(t, "{id:integer, score:float?}", tbl.Schema().String())
	assert.Equal(t, 3, tbl.NumRows())
	score := tbl.Column(1)
	assert.Equal(t, []interface{}{3.5, nil, 4.25}, []interface{}{score.Value(0), score.Value(1), score.Value(2)})
}

func TestIngestTracesStages(t *testing.T) {
	var spans bytes.Buffer
	tracer, err := observability.NewTracer(observability.Config{Enabled: true, ServiceName: "tabula-test", Writer: &spans})
	require.NoError(t, err)
	d := newDriver(t, nil, WithTracer(tracer))

	_, err = d.Ingest(testutil.TestContext(t), strings.NewReader(testutil.ScoresCSV))
	require.NoError(t, err)
	require.NoError(t, tracer.Shutdown(context.Background()))

	out := spans.String()
	for _, name := range []string{"tabula.ingest", "tabula.infer", "tabula.build"} {
		assert.Contains(t, out, name)
	}
}

func TestIngestQuoting(t *testing.T) {
	d := newDriver(t, nil)
	tbl, err := d.Ingest(testutil.TestContext(t), strings.NewReader("name\n\"a,b\"\"c\"\n"))
	require.NoError(t, err)
	require.Equal(t, 1, tbl.NumRows())
	assert.Equal(t, `a,b"c`, tbl.Column(0).Value(0))
}

func TestIngestMalformed(t *testing.T) {
	d := newDriver(t, nil)
	_, err := d.Ingest(testutil.TestContext(t), strings.NewReader("a,b\n1,2\n3,4,5\n"))
	requireType(t, err, tabulaerrors.ErrorTypeMalformedRecord)
}

func TestConversionPolicy(t *testing.T) {
	input := "v\n1\n2\nx\n"
	sample := func(policy config.ConversionPolicy) func(*config.Config) {
		return func(c *config.Config) {
			c.Inference.SampleSize = 2
			c.Builder.OnConversionError = policy
		}
	}

	t.Run("fail", func(t *testing.T) {
		d := newDriver(t, sample(config.ConversionFail))
		_, err := d.Ingest(testutil.TestContext(t), strings.NewReader(input))
		requireType(t, err, tabulaerrors.ErrorTypeTypeConversion)

		var te *tabulaerrors.Error
		require.ErrorAs(t, err, &te)
		row, _ := te.Detail("row")
		assert.Equal(t, 3, row)
		raw, _ := te.Detail("raw_value")
		assert.Equal(t, "x", raw)
	})

	t.Run("widen", func(t *testing.T) {
		d := newDriver(t, sample(config.ConversionWiden))
		tbl, err := d.Ingest(testutil.TestContext(t), strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, schema.String, tbl.Column(0).Type())
		assert.Equal(t, "x", tbl.Column(0).Value(2))
	})

	t.Run("full inference", func(t *testing.T) {
		d := newDriver(t, func(c *config.Config) {
			c.Inference.Policy = string(schema.PolicyFull)
		})
		tbl, err := d.Ingest(testutil.TestContext(t), strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, schema.String, tbl.Column(0).Type())
	})
}

func TestIngestCanceled(t *testing.T) {
	d := newDriver(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tbl, err := d.Ingest(ctx, strings.NewReader(testutil.GenerateCSV(100)))
	requireType(t, err, tabulaerrors.ErrorTypeCanceled)
	assert.Nil(t, tbl)
}

func TestEncodeChunks(t *testing.T) {
	d := newDriver(t, func(c *config.Config) { c.Codec.ChunkSize = 2 })
	ctx := testutil.TestContext(t)
	tbl, err := d.Ingest(ctx, strings.NewReader(testutil.ScoresCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	footer, err := d.Encode(ctx, tbl, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, footer.NumChunks())
	assert.EqualValues(t, 2, footer.Chunks[0].Rows)
	assert.EqualValues(t, 1, footer.Chunks[1].Rows)
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.NewCollector()
	d := newDriver(t, nil, WithMetrics(m))
	ctx := testutil.TestContext(t)

	_, err := d.Ingest(ctx, strings.NewReader(testutil.ScoresCSV))
	require.NoError(t, err)
	_, err = d.Ingest(ctx, strings.NewReader("a\n1\n2,3\n"))
	require.Error(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				found[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(6), found["tabula_rows_total"], "3 ingested plus 3 built")
	assert.Equal(t, float64(1), found["tabula_errors_total"])
	assert.Greater(t, found["tabula_bytes_total"], float64(0))
}

// DriverSuite runs the driver end to end against files in a scratch
// directory
type DriverSuite struct {
	testutil.IntegrationTestSuite
	driver *Driver
}

func TestDriverSuite(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(DriverSuite))
}

func (s *DriverSuite) SetupTest() {
	s.driver = newDriver(s.T(), func(c *config.Config) { c.Codec.ChunkSize = 2 })
}

func (s *DriverSuite) scores() *columnar.Table {
	tbl, err := s.driver.Ingest(s.Context(), strings.NewReader(testutil.ScoresCSV))
	s.Require().NoError(err)
	return tbl
}

func (s *DriverSuite) TestImportAndRead() {
	in := s.CreateTempFile("scores.csv", []byte(testutil.ScoresCSV))
	out := s.Path("scores.tblc")

	res, err := s.driver.Import(s.Context(), in, out)
	s.Require().NoError(err)
	s.Equal(3, res.Rows)
	s.Equal(2, res.Columns)
	s.Equal(2, res.Chunks)
	s.NotEmpty(res.RunID)
	s.Positive(res.Bytes)

	got, err := s.driver.ReadTable(s.Context(), out)
	s.Require().NoError(err)
	s.True(s.scores().Equal(got))

	info, err := s.driver.Inspect(s.Context(), out)
	s.Require().NoError(err)
	s.EqualValues(3, info.Footer.TotalRows)
	s.EqualValues(32, info.Footer.Chunks[0].Offset)
}

func (s *DriverSuite) TestExpectedSchema() {
	out := s.Path("expected.tblc")
	_, err := s.driver.WriteTable(s.Context(), s.scores(), out)
	s.Require().NoError(err)

	mismatch, err := schema.Parse("id:string,score:float?")
	s.Require().NoError(err)
	d := newDriver(s.T(), nil, WithExpectedSchema(mismatch))
	_, err = d.ReadTable(s.Context(), out)
	s.True(tabulaerrors.IsType(err, tabulaerrors.ErrorTypeSchemaMismatch), "%v", err)

	match, err := schema.Parse("id:integer,score:float?")
	s.Require().NoError(err)
	d = newDriver(s.T(), nil, WithExpectedSchema(match))
	_, err = d.ReadTable(s.Context(), out)
	s.NoError(err)
}

func (s *DriverSuite) TestFailedImportLeavesNoFile() {
	dir := s.Path("failed")
	s.Require().NoError(os.MkdirAll(dir, 0o755))
	in := s.CreateTempFile("bad.csv", []byte("a,b\n1,2\n3\n4,5,6\n"))

	_, err := s.driver.Import(s.Context(), in, dir+"/bad.tblc")
	s.True(tabulaerrors.IsType(err, tabulaerrors.ErrorTypeMalformedRecord), "%v", err)
	s.Empty(testutil.ListDir(s.T(), dir))

	ctx, cancel := context.WithCancel(s.Context())
	cancel()
	_, err = s.driver.WriteTable(ctx, s.scores(), dir+"/canceled.tblc")
	s.True(tabulaerrors.IsType(err, tabulaerrors.ErrorTypeCanceled), "%v", err)
	s.Empty(testutil.ListDir(s.T(), dir))
}

func (s *DriverSuite) TestCompressedInput() {
	for _, alg := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.LZ4, compression.Snappy, compression.S2} {
		var buf bytes.Buffer
		w, err := compression.NewWriter(&buf, alg, compression.Default)
		s.Require().NoError(err)
		_, err = w.Write([]byte(testutil.ScoresCSV))
		s.Require().NoError(err)
		s.Require().NoError(w.Close())

		path := s.CreateTempFile("scores.csv."+string(alg), buf.Bytes())
		got, err := s.driver.IngestPath(s.Context(), path)
		s.Require().NoError(err, alg)
		s.True(s.scores().Equal(got), alg)

		sniffed := s.CreateTempFile("scores-"+string(alg)+".data", buf.Bytes())
		got, err = s.driver.IngestPath(s.Context(), sniffed)
		s.Require().NoError(err, alg)
		s.True(s.scores().Equal(got), alg)
	}
}

func (s *DriverSuite) TestConvert() {
	in := s.CreateTempFile("convert.csv", []byte(testutil.GenerateCSV(50)))
	first := s.Path("convert.tblc")
	second := s.Path("convert-again.tblc")

	_, err := s.driver.Convert(s.Context(), in, first)
	s.Require().NoError(err)
	res, err := s.driver.Convert(s.Context(), first, second)
	s.Require().NoError(err)
	s.Equal("colfile", res.Format)

	a, err := os.ReadFile(first)
	s.Require().NoError(err)
	b, err := os.ReadFile(second)
	s.Require().NoError(err)
	s.Equal(a, b, "re-encoding a decoded colfile is byte-identical")
}

func (s *DriverSuite) TestExport() {
	in := s.CreateTempFile("export.csv", []byte(testutil.GenerateCSV(40)))
	want, err := s.driver.Load(s.Context(), in)
	s.Require().NoError(err)

	for _, out := range []string{"export.arrow", "export.parquet", "export.avro", "export.csv", "export.csv.gz"} {
		path := s.Path(out)
		res, err := s.driver.Export(s.Context(), in, path, "")
		s.Require().NoError(err, out)
		s.Equal(40, res.Rows)

		got, err := s.driver.Load(s.Context(), path)
		s.Require().NoError(err, out)
		s.True(want.Equal(got), out)
	}

	_, err = s.driver.Export(s.Context(), in, s.Path("export.orc"), "")
	s.True(tabulaerrors.IsType(err, tabulaerrors.ErrorTypeValidation), "%v", err)
	s.NoFileExists(s.Path("export.orc"))
}

func (s *DriverSuite) TestVerify() {
	d := newDriver(s.T(), func(c *config.Config) { c.Codec.Verify = true })
	out := s.Path("verified.tblc")
	footer, err := d.WriteTable(s.Context(), s.scores(), out)
	s.Require().NoError(err)
	s.EqualValues(3, footer.TotalRows)
	s.FileExists(out)
}

func (s *DriverSuite) TestMissingInput() {
	_, err := s.driver.Load(s.Context(), s.Path("missing.csv"))
	s.True(tabulaerrors.IsType(err, tabulaerrors.ErrorTypeIO), "%v", err)
}
