package backup

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStrategy struct {
	Strategy
	before, after int
	errs          []error
	beforeErr     error
}

func (r *recordingStrategy) BeforeBackup() error {
	r.before++
	if r.beforeErr != nil {
		return r.beforeErr
	}
	return r.Strategy.BeforeBackup()
}

func (r *recordingStrategy) AfterBackup() error {
	r.after++
	return r.Strategy.AfterBackup()
}

func (r *recordingStrategy) OnError(err error) { r.errs = append(r.errs, err) }

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestDecorate_Clamp(t *testing.T) {
	base := FromLister(func() ([]FileDescriptor, error) {
		return []FileDescriptor{
			{Name: "a", Size: 100},
			{Name: "b", Size: 10},
			{Name: "c", Size: 5},
		}, nil
	})
	limits := map[string]int64{"a": 40, "b": 50, "c": 0}
	s := Decorate(base, Clamp(func(fd FileDescriptor) int64 { return limits[fd.Name] }))

	files, err := s.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, int64(40), s.AcceptFile(files[0]))
	assert.Equal(t, int64(10), s.AcceptFile(files[1]))
	assert.Equal(t, Exclude, s.AcceptFile(files[2]))
}

func TestDecorate_KeepsExclusion(t *testing.T) {
	base := Decorate(Empty, func(FileDescriptor, int64) int64 { return Exclude })
	outer := Decorate(base, func(FileDescriptor, int64) int64 { return 1 })
	assert.Equal(t, Exclude, outer.AcceptFile(FileDescriptor{Size: 10}))
}

func TestWriteArchive_RoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"0000000000000000.xd": "0123456789",
		"version":             "1",
		"skip.tmp":            "nope",
	})

	base := FromLister(func() ([]FileDescriptor, error) {
		return ListDir(src, "data", func(name string) bool { return filepath.Ext(name) != ".tmp" })
	})
	s := Decorate(base, Clamp(func(fd FileDescriptor) int64 {
		if filepath.Ext(fd.Path) == ".xd" {
			return 4
		}
		return fd.Size
	}))

	var buf bytes.Buffer
	stats, err := WriteArchive(context.Background(), s, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, int64(5), stats.Bytes)

	dst := t.TempDir()
	rstats, err := Restore(context.Background(), &buf, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, rstats.Files)

	got, err := os.ReadFile(filepath.Join(dst, "data", "0000000000000000.xd"))
	require.NoError(t, err)
	assert.Equal(t, "0123", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "data", "version"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	_, err = os.Stat(filepath.Join(dst, "data", "skip.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyToDir_Parallel(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{}
	for _, n := range []string{"1.blob", "2.blob", "3.blob", "4.blob"} {
		files[n] = "content-" + n
	}
	writeFiles(t, src, files)

	s := FromLister(func() ([]FileDescriptor, error) { return ListDir(src, "blobs", nil) })
	dst := t.TempDir()
	stats, err := CopyToDir(context.Background(), s, dst, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Files)

	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(dst, "blobs", name))
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	}
}

func TestRun_AfterBackupAlwaysCalled(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordingStrategy{Strategy: Empty, beforeErr: boom}

	_, err := WriteArchive(context.Background(), rec, &bytes.Buffer{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.before)
	assert.Equal(t, 1, rec.after)
	require.Len(t, rec.errs, 1)
}

func TestRun_MissingFileReportsError(t *testing.T) {
	rec := &recordingStrategy{Strategy: FromLister(func() ([]FileDescriptor, error) {
		return []FileDescriptor{{Path: filepath.Join(t.TempDir(), "gone"), Name: "gone", Size: 3}}, nil
	})}
	_, err := CopyToDir(context.Background(), rec, t.TempDir(), 1)
	require.Error(t, err)
	assert.Equal(t, 1, rec.after)
	assert.Len(t, rec.errs, 1)
}

func TestSafeJoin(t *testing.T) {
	_, err := safeJoin("/tmp/x", "../etc/passwd")
	require.ErrorIs(t, err, ErrUnsafePath)

	p, err := safeJoin("/tmp/x", "a/b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/x", "a", "b"), p)
}

func TestCompose(t *testing.T) {
	first := &recordingStrategy{Strategy: Decorate(FromLister(func() ([]FileDescriptor, error) {
		return []FileDescriptor{{Path: "/x/blob", Name: "blob", Size: 8}}, nil
	}), func(FileDescriptor, int64) int64 { return Exclude })}
	second := &recordingStrategy{Strategy: Decorate(FromLister(func() ([]FileDescriptor, error) {
		return []FileDescriptor{{Path: "/x/log", Name: "log", Size: 100}}, nil
	}), Clamp(func(FileDescriptor) int64 { return 60 }))}
	s := Compose(first, second)

	require.NoError(t, s.BeforeBackup())
	files, err := s.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "blob", files[0].Name)
	assert.Equal(t, "log", files[1].Name)

	assert.Equal(t, Exclude, s.AcceptFile(files[0]))
	assert.Equal(t, int64(60), s.AcceptFile(files[1]))
	assert.Equal(t, Exclude, s.AcceptFile(FileDescriptor{Path: "/unknown", Size: 1}))

	require.NoError(t, s.AfterBackup())
	assert.Equal(t, 1, first.before)
	assert.Equal(t, 1, second.after)
}

func TestCompose_BeforeBackupStops(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingStrategy{Strategy: Empty, beforeErr: boom}
	second := &recordingStrategy{Strategy: Empty}
	err := Compose(first, second).BeforeBackup()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, second.before)
}
