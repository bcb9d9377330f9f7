package parser

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src Source, want int) []string {
	t.Helper()
	var lines []string
	timeout := time.After(2 * time.Second)
	for len(lines) < want {
		select {
		case line, ok := <-src.Lines():
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatalf("timed out after %d of %d lines", len(lines), want)
		}
	}
	return lines
}

func TestReaderSource(t *testing.T) {
	src := NewReaderSource("test", strings.NewReader("one\ntwo\nthree\n"), nil)

	lines := collect(t, src, 3)
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	// EOF closes the channel
	_, open := <-src.Lines()
	assert.False(t, open)
	assert.Equal(t, "test", src.Name())
}

func TestReaderSourceStop(t *testing.T) {
	src := NewReaderSource("test", strings.NewReader("one\n"), nil)
	src.Stop()
	src.Stop() // idempotent
}

func TestExecTail(t *testing.T) {
	dir, err := ioutil.TempDir("", "logvigil-tail")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "access.log")
	require.NoError(t, ioutil.WriteFile(path, []byte("first\nsecond\n"), 0644))

	// use the real tail binary the daemon delegates to in production
	src, err := NewExecTail("tail -n +1", []string{path})
	if err != nil {
		t.Skipf("tail unavailable: %v", err)
	}
	defer src.Stop()

	lines := collect(t, src, 2)
	assert.Equal(t, []string{"first", "second"}, lines)
	assert.Equal(t, "tail", src.Name())
}
