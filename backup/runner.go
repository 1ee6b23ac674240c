package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// ErrUnsafePath is returned by Restore for archive entries escaping the target directory.
var ErrUnsafePath = errors.New("backup: unsafe path in archive")

// Stats summarizes a backup run.
type Stats struct {
	Files    int
	Excluded int
	Bytes    int64
}

type copyFunc func(ctx context.Context, fd FileDescriptor, length int64) error

// Throttle wraps the reader of a copied file, for example to bound IO.
type Throttle func(ctx context.Context, r io.Reader) io.Reader

// Options configures WriteArchive and CopyToDir.
type Options struct {
	Throttle Throttle
}

func applyOptions(optFns []func(*Options)) Options {
	var o Options
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Throttle == nil {
		o.Throttle = func(_ context.Context, r io.Reader) io.Reader { return r }
	}
	return o
}

// run drives s through its lifecycle. AfterBackup is always called.
func run(ctx context.Context, s Strategy, parallelism int, copyFile copyFunc) (stats Stats, err error) {
	defer func() {
		if aerr := s.AfterBackup(); aerr != nil {
			err = errors.Join(err, aerr)
		}
	}()

	fail := func(e error) (Stats, error) {
		s.OnError(e)
		return stats, e
	}

	if err := s.BeforeBackup(); err != nil {
		return fail(err)
	}
	files, err := s.ListFiles()
	if err != nil {
		return fail(err)
	}

	type job struct {
		fd     FileDescriptor
		length int64
	}
	jobs := make([]job, 0, len(files))
	for _, fd := range files {
		n := s.AcceptFile(fd)
		if n < 0 {
			stats.Excluded++
			continue
		}
		jobs = append(jobs, job{fd: fd, length: n})
		stats.Files++
		stats.Bytes += n
	}

	if parallelism <= 1 {
		for _, j := range jobs {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			if err := copyFile(ctx, j.fd, j.length); err != nil {
				return fail(fmt.Errorf("backup %s: %w", j.fd.Name, err))
			}
		}
		return stats, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := copyFile(gctx, j.fd, j.length); err != nil {
				return fmt.Errorf("backup %s: %w", j.fd.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}
	return stats, nil
}

// WriteArchive writes the files accepted by s to w as a zstd compressed tar stream.
func WriteArchive(ctx context.Context, s Strategy, w io.Writer, optFns ...func(*Options)) (Stats, error) {
	opts := applyOptions(optFns)
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return Stats{}, err
	}
	tw := tar.NewWriter(zw)

	stats, err := run(ctx, s, 1, func(ctx context.Context, fd FileDescriptor, length int64) error {
		f, err := os.Open(fd.Path)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		hdr := &tar.Header{
			Name:    fd.Name,
			Mode:    int64(info.Mode().Perm()),
			Size:    length,
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = io.CopyN(tw, opts.Throttle(ctx, f), length)
		return err
	})
	if err != nil {
		_ = tw.Close()
		_ = zw.Close()
		return stats, err
	}
	if err := tw.Close(); err != nil {
		return stats, err
	}
	return stats, zw.Close()
}

// CopyToDir copies the files accepted by s into dir using up to parallelism workers.
func CopyToDir(ctx context.Context, s Strategy, dir string, parallelism int, optFns ...func(*Options)) (Stats, error) {
	opts := applyOptions(optFns)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stats{}, err
	}
	return run(ctx, s, parallelism, func(ctx context.Context, fd FileDescriptor, length int64) error {
		target, err := safeJoin(dir, fd.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := os.Open(fd.Path)
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.CopyN(dst, opts.Throttle(ctx, src), length); err != nil {
			_ = dst.Close()
			return err
		}
		if err := dst.Sync(); err != nil {
			_ = dst.Close()
			return err
		}
		return dst.Close()
	})
}

// Restore unpacks an archive produced by WriteArchive into dir.
func Restore(ctx context.Context, r io.Reader, dir string) (Stats, error) {
	var stats Stats
	zr, err := zstd.NewReader(r)
	if err != nil {
		return stats, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return stats, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return stats, err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return stats, err
		}
		n, err := io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return stats, err
		}
		_ = os.Chtimes(target, time.Now(), hdr.ModTime)
		stats.Files++
		stats.Bytes += n
	}
}

func safeJoin(dir, name string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(name))
	if clean == "/" || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
