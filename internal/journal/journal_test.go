package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".docsync", FileName)
	j, err := Open(path, time.Second)
	require.NoError(t, err)
	defer func() {
		_ = j.Close()
	}()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(Run{
			ID:        NewRunID(),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Written:   i,
			Files:     []FileEntry{{Path: "src/styles/header.css", Status: "unchanged", Action: "written"}},
		}))
	}

	runs, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Written)
	assert.Equal(t, 1, runs[1].Written)

	all, err := j.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "src/styles/header.css", all[2].Files[0].Path)
}

func TestRecord_AssignsID(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), FileName), time.Second)
	require.NoError(t, err)
	defer func() {
		_ = j.Close()
	}()

	require.NoError(t, j.Record(Run{StartedAt: time.Now()}))
	runs, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].ID)
}

func TestOpen_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	j, err := Open(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, j.Record(Run{ID: "first", StartedAt: time.Now()}))
	require.NoError(t, j.Close())

	j, err = Open(path, time.Second)
	require.NoError(t, err)
	defer func() {
		_ = j.Close()
	}()

	runs, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "first", runs[0].ID)
}

func TestOpen_Locked(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	holder, err := Open(path, time.Second)
	require.NoError(t, err)
	defer func() {
		_ = holder.Close()
	}()

	_, err = Open(path, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	j, err := Open(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, j.Record(Run{ID: "only", StartedAt: time.Now()}))
	require.NoError(t, j.Close())

	// Readers share the lock.
	first, err := OpenReadOnly(path, time.Second)
	require.NoError(t, err)
	defer func() {
		_ = first.Close()
	}()
	second, err := OpenReadOnly(path, 50*time.Millisecond)
	require.NoError(t, err)
	defer func() {
		_ = second.Close()
	}()

	runs, err := second.Recent(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "only", runs[0].ID)

	assert.Error(t, second.Record(Run{ID: "nope", StartedAt: time.Now()}), "read-only journal accepts no writes")
}

func TestOpenReadOnly_WaitsForWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	writer, err := Open(path, time.Second)
	require.NoError(t, err)

	_, err = OpenReadOnly(path, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, writer.Close())
	reader, err := OpenReadOnly(path, time.Second)
	require.NoError(t, err)
	_ = reader.Close()
}

func TestOpenReadOnly_Missing(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), FileName), 50*time.Millisecond)
	assert.Error(t, err)
}
