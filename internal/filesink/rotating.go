package filesink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/neogan74/tracelog/internal/logger"
	"github.com/neogan74/tracelog/internal/metrics"
)

// RotatingFile is an append-only file that is rotated by size. The mutex
// covers one append together with its rotation check, so at most one
// writer advances the file position at a time.
type RotatingFile struct {
	path     string
	name     string
	maxBytes int64
	backups  int
	sync     bool
	log      logger.Logger

	mu   sync.Mutex
	file *os.File
	size int64
}

// RotatingConfig configures a single rotating file.
type RotatingConfig struct {
	Path string
	// MaxBytes triggers rotation when the next line would push the file
	// past it. Zero disables rotation.
	MaxBytes int64
	// Backups is the number of numbered backups kept.
	Backups int
	// Sync fsyncs after every line.
	Sync bool
}

// NewRotatingFile prepares a rotating file. The file is opened on the
// first write, so a missing or unwritable directory only surfaces as
// failed writes.
func NewRotatingFile(cfg RotatingConfig, log logger.Logger) *RotatingFile {
	if log == nil {
		log = logger.GetDefault()
	}
	if cfg.Backups < 0 {
		cfg.Backups = 0
	}
	return &RotatingFile{
		path:     cfg.Path,
		name:     filepath.Base(cfg.Path),
		maxBytes: cfg.MaxBytes,
		backups:  cfg.Backups,
		sync:     cfg.Sync,
		log:      log,
	}
}

// Path returns the active file path.
func (f *RotatingFile) Path() string {
	return f.path
}

// Write appends line, rotating first if the line would exceed the size
// threshold. Failures are reported to the diagnostic logger and returned;
// the caller is free to ignore them.
func (f *RotatingFile) Write(line []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureOpen(); err != nil {
		return f.fail("open", err)
	}

	if f.maxBytes > 0 && f.size > 0 && f.size+int64(len(line)) > f.maxBytes {
		if err := f.rotate(); err != nil {
			return f.fail("rotate", err)
		}
	}

	n, err := f.file.Write(line)
	f.size += int64(n)
	if err != nil {
		f.closeQuietly()
		return f.fail("write", err)
	}
	if f.sync {
		_ = f.file.Sync()
	}

	metrics.FileWritesTotal.WithLabelValues(f.name, "written").Inc()
	return nil
}

// Close closes the active file. A later Write reopens it.
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *RotatingFile) ensureOpen() error {
	if f.file != nil {
		return nil
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	f.file = file
	f.size = info.Size()
	return nil
}

// rotate shifts <name>.k<ext> to <name>.(k+1)<ext>, drops the oldest
// backup and moves the active file to <name>.1<ext>.
func (f *RotatingFile) rotate() error {
	f.closeQuietly()

	if f.backups > 0 {
		if err := removeIfExists(BackupName(f.path, f.backups)); err != nil {
			return err
		}
		for k := f.backups - 1; k >= 1; k-- {
			if err := renameIfExists(BackupName(f.path, k), BackupName(f.path, k+1)); err != nil {
				return err
			}
		}
		if err := renameIfExists(f.path, BackupName(f.path, 1)); err != nil {
			return err
		}
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reopen log file: %w", err)
	}
	f.file = file
	f.size = 0
	metrics.FileRotationsTotal.WithLabelValues(f.name).Inc()
	return nil
}

func (f *RotatingFile) closeQuietly() {
	if f.file != nil {
		_ = f.file.Close()
		f.file = nil
	}
}

func (f *RotatingFile) fail(op string, err error) error {
	metrics.FileWritesTotal.WithLabelValues(f.name, "error").Inc()
	f.log.Warn("Dropped log line",
		logger.String("file", f.path),
		logger.String("op", op),
		logger.Error(err),
	)
	return err
}

// BackupName returns the path of the n-th backup of path: the number is
// inserted before the extension, so logs/audit_logs.log becomes
// logs/audit_logs.1.log.
func BackupName(path string, n int) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%d%s", base, n, ext)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func renameIfExists(from, to string) error {
	if err := os.Rename(from, to); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
