package schema

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tabula/pkg/tabulaerrors"
)

// Policy selects how many rows type inference inspects
type Policy string

const (
	// PolicySample infers from the first SampleSize rows. Rows past the
	// sample may later fail to convert.
	PolicySample Policy = "sample"
	// PolicyFull infers from every row. Conversion cannot fail afterwards.
	PolicyFull Policy = "full"
)

// InferenceConfig configures an Inferer
type InferenceConfig struct {
	Policy      Policy
	SampleSize  int
	TrueTokens  []string
	FalseTokens []string
	NullTokens  []string
	Workers     int
}

// DefaultInferenceConfig returns sample-based inference over 1000 rows
func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		Policy:     PolicySample,
		SampleSize: 1000,
		Workers:    runtime.NumCPU(),
	}
}

// Validate checks the configuration
func (c InferenceConfig) Validate() error {
	switch c.Policy {
	case PolicySample:
		if c.SampleSize <= 0 {
			return tabulaerrors.New(tabulaerrors.ErrorTypeConfig, "sample_size must be positive with the sample policy")
		}
	case PolicyFull:
	default:
		return tabulaerrors.Newf(tabulaerrors.ErrorTypeConfig, "unknown inference policy %q", c.Policy)
	}
	return nil
}

// candidate bits, one per type that every observed value still parses as.
// String is implicit: it is always a candidate.
const (
	canInteger uint8 = 1 << iota
	canFloat
	canBoolean

	allCandidates = canInteger | canFloat | canBoolean
)

// Inferer determines the narrowest type of raw columns
type Inferer struct {
	logger *zap.Logger
	cfg    InferenceConfig
	nulls  NullSet
	bools  BoolTokens
}

// NewInferer creates an inferer. A nil logger is replaced by a no-op logger.
func NewInferer(cfg InferenceConfig, logger *zap.Logger) *Inferer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Inferer{
		logger: logger,
		cfg:    cfg,
		nulls:  NewNullSet(cfg.NullTokens...),
		bools:  NewBoolTokens(cfg.TrueTokens, cfg.FalseTokens),
	}
}

// Nulls returns the null set in use
func (i *Inferer) Nulls() NullSet {
	return i.nulls
}

// Bools returns the boolean tokens in use
func (i *Inferer) Bools() BoolTokens {
	return i.bools
}

// Policy returns the configured policy
func (i *Inferer) Policy() Policy {
	return i.cfg.Policy
}

// SampleRows returns how many of total rows the policy inspects
func (i *Inferer) SampleRows(total int) int {
	if i.cfg.Policy == PolicySample && i.cfg.SampleSize < total {
		return i.cfg.SampleSize
	}
	return total
}

// ColumnState is the running upper bound of one column's type. Observing
// more values can only remove candidates, so Bound never narrows.
type ColumnState struct {
	inferer    *Inferer
	candidates uint8
	observed   int
	nulls      int
}

// NewColumnState starts a column with every type as a candidate
func (i *Inferer) NewColumnState() *ColumnState {
	return &ColumnState{inferer: i, candidates: allCandidates}
}

// Observe folds one raw value into the state
func (s *ColumnState) Observe(raw string) {
	s.observed++
	if s.inferer.nulls.IsNull(raw) {
		s.nulls++
		return
	}
	if s.candidates&canInteger != 0 {
		if _, ok := ParseInteger(raw); !ok {
			s.candidates &^= canInteger
		}
	}
	if s.candidates&canFloat != 0 {
		if _, ok := ParseFloat(raw); !ok {
			s.candidates &^= canFloat
		}
	}
	if s.candidates&canBoolean != 0 {
		if _, ok := s.inferer.bools.Parse(raw); !ok {
			s.candidates &^= canBoolean
		}
	}
}

// Merge folds another state for the same column into s
func (s *ColumnState) Merge(other *ColumnState) {
	s.candidates &= other.candidates
	s.observed += other.observed
	s.nulls += other.nulls
}

// Observed returns the number of values seen, nulls included
func (s *ColumnState) Observed() int {
	return s.observed
}

// Nulls returns the number of null values seen
func (s *ColumnState) Nulls() int {
	return s.nulls
}

// Bound returns the narrowest type every observed non-null value parses as.
// ok is false while no non-null value has been seen; that state sits below
// every type, so observing more values never narrows the bound.
func (s *ColumnState) Bound() (t DataType, ok bool) {
	if s.observed == s.nulls {
		return String, false
	}
	switch {
	case s.candidates&canInteger != 0:
		return Integer, true
	case s.candidates&canFloat != 0:
		return Float, true
	case s.candidates&canBoolean != 0:
		return Boolean, true
	default:
		return String, true
	}
}

// Type returns the committed type of the column. Columns with no non-null
// values are String.
func (s *ColumnState) Type() DataType {
	t, _ := s.Bound()
	return t
}

// Parses reports whether raw is null or parses under t
func (i *Inferer) Parses(raw string, t DataType) bool {
	if i.nulls.IsNull(raw) {
		return true
	}
	switch t {
	case Integer:
		_, ok := ParseInteger(raw)
		return ok
	case Float:
		_, ok := ParseFloat(raw)
		return ok
	case Boolean:
		_, ok := i.bools.Parse(raw)
		return ok
	default:
		return true
	}
}

// InferColumn infers the type of one column under the configured policy
func (i *Inferer) InferColumn(values []string) DataType {
	return i.scan(values[:i.SampleRows(len(values))]).Type()
}

// InferFull infers the type of one column from every value regardless of
// policy. Used when a sampled type failed to convert.
func (i *Inferer) InferFull(values []string) DataType {
	return i.scan(values).Type()
}

func (i *Inferer) scan(values []string) *ColumnState {
	state := i.NewColumnState()
	for _, v := range values {
		state.Observe(v)
	}
	return state
}

// minShardRows is the smallest row range inferred on its own goroutine
const minShardRows = 16384

// shards splits n rows into at most k contiguous ranges of at least
// minShardRows rows each
func shards(n, k int) [][2]int {
	if k > n/minShardRows {
		k = n / minShardRows
	}
	if k <= 1 {
		return [][2]int{{0, n}}
	}
	out := make([][2]int, 0, k)
	size := (n + k - 1) / k
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// InferColumns infers every column concurrently. When there are fewer
// columns than workers, long columns are split into row ranges whose states
// are merged, so a narrow table still uses every worker. The result is in column
// order and identical to inferring the columns one by one.
func (i *Inferer) InferColumns(ctx context.Context, names []string, columns [][]string) ([]DataType, error) {
	if len(names) != len(columns) {
		return nil, tabulaerrors.Newf(tabulaerrors.ErrorTypeInternal,
			"%d column names for %d columns", len(names), len(columns))
	}

	perColumn := 1
	if len(columns) > 0 && len(columns) < i.cfg.Workers {
		perColumn = i.cfg.Workers / len(columns)
	}

	partial := make([][]*ColumnState, len(columns))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Workers)

	for idx := range columns {
		values := columns[idx][:i.SampleRows(len(columns[idx]))]
		ranges := shards(len(values), perColumn)
		partial[idx] = make([]*ColumnState, len(ranges))
		for n, rg := range ranges {
			idx, n, part := idx, n, values[rg[0]:rg[1]]
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return tabulaerrors.FromContext(err, "type inference aborted")
				}
				partial[idx][n] = i.scan(part)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	types := make([]DataType, len(columns))
	for idx, states := range partial {
		state := states[0]
		for _, other := range states[1:] {
			state.Merge(other)
		}
		types[idx] = state.Type()
	}

	for idx, t := range types {
		rows := len(columns[idx])
		i.logger.Debug("inferred column type",
			zap.String("column", names[idx]),
			zap.String("type", t.String()),
			zap.String("policy", string(i.cfg.Policy)),
			zap.Int("sampled_rows", i.SampleRows(rows)),
			zap.Int("rows", rows))
	}
	return types, nil
}

// String summarises the configuration for logs
func (i *Inferer) String() string {
	if i.cfg.Policy == PolicySample {
		return fmt.Sprintf("sample(%d)", i.cfg.SampleSize)
	}
	return string(i.cfg.Policy)
}
