package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authors.log")

	var b strings.Builder
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "line%d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	lines, err := Tail(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line3", "line4", "line5"}, lines)

	lines, err = Tail(path, 10)
	require.NoError(t, err)
	assert.Len(t, lines, 5)
}

func TestTailMissingLog(t *testing.T) {
	lines, err := Tail(filepath.Join(t.TempDir(), "absent.log"), 5)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTailCutsOverlongLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "works.log")
	huge := strings.Repeat("y", 2*MaxLineBytes)
	content := "start\n" + huge + "\nTraceback:\nValueError: bad record\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	lines, err := Tail(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Traceback:", "ValueError: bad record"}, lines)

	lines, err = Tail(path, 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Len(t, lines[0], MaxLineBytes)
	assert.Equal(t, "Traceback:", lines[1])
}

func TestTailKeepsUnterminatedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authors.log")
	require.NoError(t, os.WriteFile(path, []byte("a\r\n\nb\npartial"), 0o644))

	lines, err := Tail(path, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "b", "partial"}, lines)
}
