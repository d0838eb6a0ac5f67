package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/runkeeper/internal/process"
)

func TestOpenRunWritesTaggedLines(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Dir: dir}, nil)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r, err := s.OpenRun("svc", start)
	require.NoError(t, err)
	require.NoError(t, r.WriteLine(process.Stdout, "hello"))
	require.NoError(t, r.WriteLine(process.Stderr, "oops"))
	require.NoError(t, r.Close())

	path := filepath.Join(dir, "svc-20240501-120000.000.log")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "# svc started"))
	assert.True(t, strings.HasSuffix(lines[1], "[stdout] hello"))
	assert.True(t, strings.HasSuffix(lines[2], "[stderr] oops"))
}

func TestRetentionKeepsNewestRuns(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Dir: dir, Keep: 5}, nil)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// unrelated files are left alone
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other-20200101-000000.000.log"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc-notes.txt"), nil, 0o644))

	for i := 0; i < 8; i++ {
		r, err := s.OpenRun("svc", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, r.Close())
	}

	ids, err := s.Runs("svc")
	require.NoError(t, err)
	require.Len(t, ids, 5)
	assert.Equal(t, base.Add(7*time.Second).Format(runIDLayout), ids[0])
	assert.Equal(t, base.Add(3*time.Second).Format(runIDLayout), ids[4])

	_, err = os.Stat(filepath.Join(dir, FileName("svc", base)))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "other-20200101-000000.000.log"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "svc-notes.txt"))
	assert.NoError(t, err)
}

func TestRetentionRemovesRotatedBackups(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Dir: dir, Keep: 1}, nil)
	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r, err := s.OpenRun("svc", first)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	backup := strings.TrimSuffix(FileName("svc", first), ".log") + "-2024-05-01T12-30-00.000.log"
	require.NoError(t, os.WriteFile(filepath.Join(dir, backup), []byte("x"), 0o644))

	r, err = s.OpenRun("svc", first.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = os.Stat(filepath.Join(dir, backup))
	assert.True(t, os.IsNotExist(err))
	ids, err := s.Runs("svc")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestFileNameSanitizes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("x", 3600))
	assert.Equal(t, "my_app-20240102-020405.006.log", FileName("my app", ts))
	assert.Equal(t, "runner-20240102-020405.006.log", FileName("", ts))
}

func TestPathsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Dir: filepath.Join(dir, "runs")}, nil)

	paths, err := s.Paths("svc")
	require.NoError(t, err)
	assert.Empty(t, paths)

	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		r, err := s.OpenRun("svc", first.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, r.Close())
	}
	paths, err = s.Paths("svc")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "runs", FileName("svc", first.Add(time.Minute))), paths[0])
}
