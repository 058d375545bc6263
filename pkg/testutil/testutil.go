// Package testutil provides testing utilities for tabula
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// ScoresCSV is the two-column fixture used across packages: an integer id
// and a float score with one null.
const ScoresCSV = "id,score\n1,3.5\n2,\n3,4.25\n"

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout that is
// canceled when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// WriteFile writes content to name inside dir and returns the full path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// GenerateCSV builds a header plus rows of id,name,value,flag where every
// seventh value is empty.
func GenerateCSV(rows int) string {
	var b strings.Builder
	b.WriteString("id,name,value,flag\n")
	for i := 0; i < rows; i++ {
		value := fmt.Sprintf("%.2f", float64(i)*1.25)
		if i%7 == 3 {
			value = ""
		}
		fmt.Fprintf(&b, "%d,name_%d,%s,%t\n", i, i, value, i%2 == 0)
	}
	return b.String()
}

// ListDir returns the file names in dir, sorted.
func ListDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
