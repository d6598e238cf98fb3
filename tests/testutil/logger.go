package testutil

import (
	"bytes"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

// lockedBuffer collects log output from any goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Logger returns a debug-level logger whose output is printed only when
// the test fails. Background goroutines may keep logging after the test
// returns without tripping the testing package.
func Logger(t testing.TB) *log.Logger {
	t.Helper()

	out := &lockedBuffer{}
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("captured log output:\n%s", out.String())
		}
	})

	return log.NewWithOptions(out, log.Options{
		Level:  log.DebugLevel,
		Prefix: t.Name(),
	})
}
