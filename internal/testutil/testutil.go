// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/adcpqc/internal/monitoring"
)

// LogBuffer collects lines written through monitoring.Logf. It is safe for
// concurrent use, as batch screening logs from several goroutines.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *LogBuffer) logf(format string, v ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of the captured lines.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// Count returns the number of captured lines starting with prefix.
func (b *LogBuffer) Count(prefix string) int {
	n := 0
	for _, l := range b.Lines() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

// CaptureLogs redirects monitoring.Logf into a buffer until the test ends.
func CaptureLogs(t testing.TB) *LogBuffer {
	t.Helper()
	prev := monitoring.Logf
	buf := &LogBuffer{}
	monitoring.SetLogger(buf.logf)
	t.Cleanup(func() { monitoring.Logf = prev })
	return buf
}

// MuteLogs silences monitoring.Logf until the test ends.
func MuteLogs(t testing.TB) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = prev })
}

// TempDBPath returns a fresh sqlite path inside the test's temp directory.
func TempDBPath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
