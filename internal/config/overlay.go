package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/neogan74/tracelog/internal/logger"
)

// Overlay is the optional YAML file named by LOG_CONFIG_FILE.
//
//	log_level: INFO
//	levels:
//	  app: WARNING
//	  system: ERROR
//	sensitive_fields: [ssn, card_number]
type Overlay struct {
	LogLevel string `yaml:"log_level"`
	Levels   struct {
		App    string `yaml:"app"`
		System string `yaml:"system"`
	} `yaml:"levels"`
	SensitiveFields []string `yaml:"sensitive_fields"`
}

// ReadOverlay parses the overlay file at path.
func ReadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &o, nil
}

// Apply copies the non-empty overlay values onto c. Sensitive fields are
// appended to the ones from the environment.
func (o *Overlay) Apply(c *Config) {
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.Levels.App != "" {
		c.Remote.MinLevel = o.Levels.App
	}
	if o.Levels.System != "" {
		c.Remote.SystemMinLevel = o.Levels.System
	}
	c.SensitiveFields = append(c.SensitiveFields, o.SensitiveFields...)
}

// Watcher re-reads the overlay file when it changes and hands a fresh copy
// of the configuration to its subscribers. Only level settings take effect
// at runtime; the redactor keeps the fields it was built with.
type Watcher struct {
	path string
	base Config
	log  logger.Logger

	mu       sync.Mutex
	current  *Config
	onChange []func(*Config)
}

// NewWatcher creates a watcher for cfg.OverlayFile. Reloads start from the
// environment settings cfg was loaded with.
func NewWatcher(cfg *Config, log logger.Logger) *Watcher {
	base := *cfg
	if cfg.env != nil {
		base = *cfg.env
	}
	return &Watcher{
		path:    cfg.OverlayFile,
		base:    base,
		log:     log.Named("config"),
		current: cfg,
	}
}

// Config returns the latest configuration.
func (w *Watcher) Config() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// OnChange registers a callback invoked whenever the overlay reloads.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Reload re-reads the overlay. An unreadable or invalid file leaves the
// current configuration in place.
func (w *Watcher) Reload() (*Config, error) {
	o, err := ReadOverlay(w.path)
	if err != nil {
		return nil, err
	}
	cfg := w.base
	cfg.SensitiveFields = append([]string(nil), w.base.SensitiveFields...)
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.current = &cfg
	callbacks := make([]func(*Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(&cfg)
	}
	return &cfg, nil
}

// Watch starts a background goroutine that reloads the overlay on change.
// The directory is watched so editors that replace the file are seen too.
// Call the returned stop function to clean up.
func (w *Watcher) Watch() (stop func(), err error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", dir, err)
	}

	target := filepath.Clean(w.path)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer fw.Close()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := w.Reload()
				if err != nil {
					w.log.Warn("Config reload failed, keeping previous settings", logger.Error(err))
					continue
				}
				w.log.Info("Config reloaded",
					logger.String("log_level", cfg.Log.Level),
					logger.String("app_min_level", cfg.Remote.MinLevel),
					logger.String("system_min_level", cfg.Remote.SystemMinLevel))
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.log.Warn("Config watcher error", logger.Error(err))
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}, nil
}
