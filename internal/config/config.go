// Package config loads bridgewatch's settings from a YAML file, applies
// .env overrides, and hot-reloads on file changes so a deployed instance
// can pick up a tuning change without a restart.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AISSource is one upstream AIS source this instance ingests from.
type AISSource struct {
	Name        string     `yaml:"name"`
	URL         string     `yaml:"url"`
	APIKeyEnv   string     `yaml:"api_key_env"`
	BoundingBox [2][2]float64 `yaml:"bounding_box"`
}

// Settings is the full, validated configuration tree.
type Settings struct {
	ListenAddr  string      `yaml:"listen_addr"`
	DebugAddr   string      `yaml:"debug_addr"`
	LogLevel    string      `yaml:"log_level"`
	OpenBrowser bool        `yaml:"open_browser"`
	Sources     []AISSource `yaml:"sources"`
}

// Default returns a Settings with conservative defaults, used when no file
// is present and as the base any loaded file is merged onto.
func Default() Settings {
	return Settings{
		ListenAddr: ":8080",
		DebugAddr:  ":8090",
		LogLevel:   "info",
	}
}

// Load reads path as YAML onto Default(), then applies .env overrides from
// envPath (godotenv; missing file is not an error).
func Load(path, envPath string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return s, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse config: %w", err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return s, fmt.Errorf("load env: %w", err)
		}
	}
	applyEnvOverrides(&s)

	return s, nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("BRIDGEWATCH_LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv("BRIDGEWATCH_DEBUG_ADDR"); v != "" {
		s.DebugAddr = v
	}
	if v := os.Getenv("BRIDGEWATCH_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("BRIDGEWATCH_OPEN_BROWSER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.OpenBrowser = b
		}
	}
}

// Watcher hot-reloads Settings from a YAML file whenever it changes on
// disk, calling onChange with the freshly loaded value. Errors while
// reloading are logged and otherwise ignored — the last good Settings
// stays in effect.
type Watcher struct {
	path    string
	envPath string
	logger  *slog.Logger

	mu       sync.RWMutex
	current  Settings
	onChange func(Settings)
}

// NewWatcher loads the initial settings and starts watching path for
// changes. Call the returned func to release the underlying fsnotify
// watcher.
func NewWatcher(path, envPath string, logger *slog.Logger, onChange func(Settings)) (*Watcher, func() error, error) {
	initial, err := Load(path, envPath)
	if err != nil {
		return nil, nil, err
	}

	w := &Watcher{path: path, envPath: envPath, logger: logger, current: initial, onChange: onChange}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w, func() error { return nil }, nil
	}
	if path != "" {
		if err := fw.Add(path); err != nil {
			logger.Warn("config watch unavailable", "path", path, "error", err)
		}
	}

	go w.loop(fw)
	return w, fw.Close, nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := Load(w.path, w.envPath)
			if err != nil {
				w.logger.Error("config reload failed", "error", err)
				continue
			}
			w.mu.Lock()
			w.current = next
			w.mu.Unlock()
			if w.onChange != nil {
				w.onChange(next)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// Current returns the most recently loaded Settings.
func (w *Watcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
