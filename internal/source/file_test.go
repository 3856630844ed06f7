package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFile_ReplayExistingFalseStartsAtEOF(t *testing.T) {
	path := writeFile(t, "already here\n")
	f, err := NewFile("src-1", path, false)
	require.NoError(t, err)
	defer f.Close()

	appendLine(t, path, "new line\n")

	rec := readOneLine(t, f)
	assert.Equal(t, "new line", rec.Raw)
}

func TestFile_TruncationReopensFromZero(t *testing.T) {
	path := writeFile(t, "")
	f, err := NewFile("src-1", path, true)
	require.NoError(t, err)
	defer f.Close()

	appendLine(t, path, "a much longer line than what follows truncation\n")
	rec := readOneLine(t, f)
	assert.Equal(t, "a much longer line than what follows truncation", rec.Raw)

	require.NoError(t, os.WriteFile(path, []byte("hi\n"), 0o644))
	rec = readOneLine(t, f)
	assert.Equal(t, "hi", rec.Raw)
}

func TestFile_PartialLineFlushesAfterTimeout(t *testing.T) {
	path := writeFile(t, "")
	f, err := NewFile("src-1", path, true)
	require.NoError(t, err)
	defer f.Close()

	appendLine(t, path, "no newline yet")

	// Ingest the partial line under the real clock first, then jump the
	// buffer's clock forward so the next call sees it as stale.
	ctx := context.Background()
	_, ok, err := f.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok, "a line with no trailing newline should not be emitted immediately")

	future := time.Now().Add(partialLineTimeout + time.Second)
	f.lineBuf.now = func() time.Time { return future }

	rec := readOneLine(t, f)
	assert.Equal(t, "no newline yet", rec.Raw)
}

func appendLine(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(text)
	require.NoError(t, err)
}

func readOneLine(t *testing.T, f *File) recordResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 20; i++ {
		rec, ok, err := f.Next(ctx)
		require.NoError(t, err)
		if ok {
			return recordResult{Raw: rec.Raw}
		}
	}
	t.Fatal("no record produced")
	return recordResult{}
}

type recordResult struct {
	Raw string
}
