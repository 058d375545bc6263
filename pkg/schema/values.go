package schema

import (
	"strconv"
	"strings"
)

// NullSet is the set of raw strings that denote a missing value. The empty
// string is always a member.
type NullSet map[string]struct{}

// NewNullSet creates a null set from tokens plus the empty string
func NewNullSet(tokens ...string) NullSet {
	s := NullSet{"": {}}
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// IsNull reports whether raw denotes a null
func (s NullSet) IsNull(raw string) bool {
	if raw == "" {
		return true
	}
	_, ok := s[raw]
	return ok
}

// BoolTokens holds the exact strings accepted as boolean literals
type BoolTokens struct {
	trueSet  map[string]struct{}
	falseSet map[string]struct{}
}

// DefaultTrueTokens and DefaultFalseTokens are the boolean literals used
// when none are configured.
var (
	DefaultTrueTokens  = []string{"true", "True", "TRUE"}
	DefaultFalseTokens = []string{"false", "False", "FALSE"}
)

// NewBoolTokens creates a token set. Empty inputs fall back to the defaults.
func NewBoolTokens(trueTokens, falseTokens []string) BoolTokens {
	if len(trueTokens) == 0 {
		trueTokens = DefaultTrueTokens
	}
	if len(falseTokens) == 0 {
		falseTokens = DefaultFalseTokens
	}
	b := BoolTokens{
		trueSet:  make(map[string]struct{}, len(trueTokens)),
		falseSet: make(map[string]struct{}, len(falseTokens)),
	}
	for _, t := range trueTokens {
		b.trueSet[t] = struct{}{}
	}
	for _, t := range falseTokens {
		b.falseSet[t] = struct{}{}
	}
	return b
}

// IsZero reports whether b was never initialized with NewBoolTokens
func (b BoolTokens) IsZero() bool {
	return b.trueSet == nil && b.falseSet == nil
}

// Parse returns the boolean denoted by raw and whether raw is a token
func (b BoolTokens) Parse(raw string) (value, ok bool) {
	if _, hit := b.trueSet[raw]; hit {
		return true, true
	}
	if _, hit := b.falseSet[raw]; hit {
		return false, true
	}
	return false, false
}

// ParseInteger parses a base-10 signed 64-bit integer. Values outside the
// int64 range are rejected, which promotes their column to Float.
func ParseInteger(raw string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseFloat parses a decimal float. Go-specific forms (hex mantissas and
// digit separators) are not accepted.
func ParseFloat(raw string) (float64, bool) {
	if raw == "" || strings.ContainsAny(raw, "xX_") {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
