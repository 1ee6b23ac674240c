package env

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/entitydb/internal/fs"
)

const (
	// LogFileExt is the extension of environment log files.
	LogFileExt = ".xd"

	recordHeaderSize = 8 // len(4) + crc(4)
	maxRecordSize    = 1 << 30
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// LogFileName returns the file name of the log file starting at address.
func LogFileName(address int64) string {
	return fmt.Sprintf("%016x%s", address, LogFileExt)
}

// AddressOf parses the start address encoded in a log file name.
func AddressOf(fileName string) (int64, bool) {
	base := filepath.Base(fileName)
	if !strings.HasSuffix(base, LogFileExt) {
		return 0, false
	}
	hex := strings.TrimSuffix(base, LogFileExt)
	if len(hex) != 16 {
		return 0, false
	}
	addr, err := strconv.ParseUint(hex, 16, 63)
	if err != nil {
		return 0, false
	}
	return int64(addr), true
}

// appendLog is the writer side of the log. Callers serialize access.
type appendLog struct {
	mu       sync.Mutex
	fs       fs.FileSystem
	dir      string
	fileSize int64
	sync     bool
	logger   *slog.Logger

	file      fs.File
	fileStart int64
	w         *bufio.Writer
	high      int64
	broken    error
}

func (l *appendLog) currentName() string {
	return filepath.Join(l.dir, LogFileName(l.fileStart))
}

func (l *appendLog) openFile(start int64) error {
	f, err := l.fs.OpenFile(filepath.Join(l.dir, LogFileName(start)), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.fileStart = start
	l.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// append writes one record and returns the new high address.
func (l *appendLog) append(payload []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.broken != nil {
		return 0, l.broken
	}
	if len(payload) > maxRecordSize {
		return 0, fmt.Errorf("env: record too large (%d bytes)", len(payload))
	}
	recSize := int64(recordHeaderSize + len(payload))
	inFile := l.high - l.fileStart
	if inFile > 0 && inFile+recSize > l.fileSize {
		if err := l.rotate(); err != nil {
			l.broken = fmt.Errorf("env: log rotation failed: %w", err)
			return 0, l.broken
		}
	}

	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], crc32.Checksum(payload, crcTable))

	if err := l.write(hdr[:], payload); err != nil {
		l.rollback()
		return 0, err
	}
	l.high += recSize
	return l.high, nil
}

func (l *appendLog) write(hdr, payload []byte) error {
	if _, err := l.w.Write(hdr); err != nil {
		return err
	}
	if _, err := l.w.Write(payload); err != nil {
		return err
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	if l.sync {
		return l.file.Sync()
	}
	return nil
}

// rollback cuts a partially written record off the active file.
func (l *appendLog) rollback() {
	l.w.Reset(l.file)
	if err := l.file.Truncate(l.high - l.fileStart); err != nil {
		l.broken = fmt.Errorf("env: log left in unknown state: %w", err)
		l.logger.Error("log rollback failed", "file", l.currentName(), "error", err)
	}
}

func (l *appendLog) rotate() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	l.logger.Debug("log file rotated", "address", l.high)
	return l.openFile(l.high)
}

func (l *appendLog) syncNow() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *appendLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.w.Flush()
	if serr := l.file.Sync(); err == nil {
		err = serr
	}
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

type logFile struct {
	name    string
	address int64
	size    int64
}

func listLogFiles(fsys fs.FileSystem, dir string) ([]logFile, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []logFile
	for _, e := range entries {
		addr, ok := AddressOf(e.Name())
		if !ok || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, logFile{name: e.Name(), address: addr, size: info.Size()})
	}
	slices.SortFunc(files, func(a, b logFile) int {
		switch {
		case a.address < b.address:
			return -1
		case a.address > b.address:
			return 1
		}
		return 0
	})
	return files, nil
}

// replay applies every valid record of the log to apply and returns the high
// address. A torn tail in the last file is truncated away.
func replay(fsys fs.FileSystem, dir string, logger *slog.Logger, apply func([]op)) (int64, error) {
	files, err := listLogFiles(fsys, dir)
	if err != nil {
		return 0, err
	}
	var high int64
	for i, lf := range files {
		if lf.address != high {
			return 0, fmt.Errorf("%w: gap before %s (expected address %d)", ErrCorrupt, lf.name, high)
		}
		last := i == len(files)-1
		valid, err := replayFile(fsys, filepath.Join(dir, lf.name), apply)
		if err != nil {
			if !last || !errors.Is(err, ErrCorrupt) {
				return 0, err
			}
			logger.Warn("truncating torn log tail", "file", lf.name, "valid", valid, "size", lf.size)
			if terr := fsys.Truncate(filepath.Join(dir, lf.name), valid); terr != nil {
				return 0, terr
			}
		}
		high = lf.address + valid
	}
	return high, nil
}

func replayFile(fsys fs.FileSystem, path string, apply func([]op)) (int64, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var off int64
	var hdr [recordHeaderSize]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return off, nil
			}
			return off, fmt.Errorf("%w: short header at %d", ErrCorrupt, off)
		}
		n := binary.LittleEndian.Uint32(hdr[0:4])
		sum := binary.LittleEndian.Uint32(hdr[4:8])
		if n > maxRecordSize {
			return off, fmt.Errorf("%w: record size %d at %d", ErrCorrupt, n, off)
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return off, fmt.Errorf("%w: short record at %d", ErrCorrupt, off)
		}
		if crc32.Checksum(payload, crcTable) != sum {
			return off, fmt.Errorf("%w: checksum mismatch at %d", ErrCorrupt, off)
		}
		ops, err := decodeOps(payload)
		if err != nil {
			return off, err
		}
		apply(ops)
		off += int64(recordHeaderSize) + int64(n)
	}
}
