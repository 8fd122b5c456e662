// Package filesink keeps the durable, append-only local record of every
// stream in size-rotated files.
package filesink

import (
	"errors"
	"path/filepath"

	"github.com/neogan74/tracelog/internal/logger"
)

// Target names one of the files the pipeline writes to.
type Target string

const (
	TargetApplication Target = "application_logs.log"
	TargetExceptions  Target = "application_exceptions.log"
	TargetAudit       Target = "audit_logs.log"
	TargetSystem      Target = "system.log"
	TargetPool        Target = "db_pool.log"
)

// Targets lists every file target.
var Targets = []Target{TargetApplication, TargetExceptions, TargetAudit, TargetSystem, TargetPool}

const (
	// DefaultAppMaxBytes applies to the application, exception and audit files.
	DefaultAppMaxBytes = 50 << 20
	// DefaultSystemMaxBytes applies to the system and pool files.
	DefaultSystemMaxBytes = 10 << 20

	DefaultAppBackups    = 10
	DefaultSystemBackups = 5
)

// Config describes the directory and rotation policy of the set.
type Config struct {
	Enabled bool
	Dir     string
	// SystemFile overrides the system.log location.
	SystemFile string

	AppMaxBytes    int64
	AppBackups     int
	SystemMaxBytes int64
	SystemBackups  int
	Sync           bool
}

// Set holds one RotatingFile per target, each with its own mutex.
type Set struct {
	enabled bool
	files   map[Target]*RotatingFile
}

// NewSet builds the five stream files. When disabled every write is a no-op.
func NewSet(cfg Config, log logger.Logger) *Set {
	if !cfg.Enabled {
		return &Set{enabled: false}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.AppMaxBytes == 0 {
		cfg.AppMaxBytes = DefaultAppMaxBytes
	}
	if cfg.SystemMaxBytes == 0 {
		cfg.SystemMaxBytes = DefaultSystemMaxBytes
	}

	files := make(map[Target]*RotatingFile, len(Targets))
	for _, target := range Targets {
		rc := RotatingConfig{
			Path:     filepath.Join(cfg.Dir, string(target)),
			MaxBytes: cfg.AppMaxBytes,
			Backups:  cfg.AppBackups,
			Sync:     cfg.Sync,
		}
		if target == TargetSystem || target == TargetPool {
			rc.MaxBytes = cfg.SystemMaxBytes
			rc.Backups = cfg.SystemBackups
		}
		if target == TargetSystem && cfg.SystemFile != "" {
			rc.Path = cfg.SystemFile
		}
		files[target] = NewRotatingFile(rc, log)
	}

	return &Set{enabled: true, files: files}
}

// Enabled reports whether lines are written at all.
func (s *Set) Enabled() bool {
	return s != nil && s.enabled
}

// Write appends line to the target file.
func (s *Set) Write(target Target, line []byte) error {
	if !s.Enabled() {
		return nil
	}
	f, ok := s.files[target]
	if !ok {
		return errors.New("filesink: unknown target " + string(target))
	}
	return f.Write(line)
}

// File returns the rotating file behind target.
func (s *Set) File(target Target) *RotatingFile {
	if !s.Enabled() {
		return nil
	}
	return s.files[target]
}

// Close closes every file.
func (s *Set) Close() error {
	if !s.Enabled() {
		return nil
	}
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
