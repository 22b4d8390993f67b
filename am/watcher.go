package am

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 500 * time.Millisecond

// ReloadCallback receives the freshly loaded config after the watched file
// changes on disk. Returning an error logs it; other callbacks still run.
type ReloadCallback func(*Config) error

// ConfigWatcher reloads configuration when the active config file is
// rewritten. The daemon registers callbacks so a running pipeline picks up
// override changes without a restart.
type ConfigWatcher struct {
	path     string
	fs       *fsnotify.Watcher
	ownWrite atomic.Bool

	mu        sync.Mutex
	callbacks []ReloadCallback
	debounce  *time.Timer
}

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher watches configPath for writes. Call Start to begin
// delivering reloads and Stop to release the inotify handle.
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create config watcher")
	}
	if err := fs.Add(configPath); err != nil {
		fs.Close()
		return nil, errors.Wrapf(err, "watch config file %s", configPath)
	}
	return &ConfigWatcher{path: configPath, fs: fs}, nil
}

// OnReload registers a callback for future reloads.
func (cw *ConfigWatcher) OnReload(cb ReloadCallback) {
	cw.mu.Lock()
	cw.callbacks = append(cw.callbacks, cb)
	cw.mu.Unlock()
}

// MarkOwnWrite suppresses the reload for the next write event. SetValue
// calls this before persisting so the daemon does not reload its own edit.
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.ownWrite.Store(true)
}

// Start launches the event loop in a goroutine.
func (cw *ConfigWatcher) Start() {
	go cw.run()
}

// Stop closes the underlying filesystem watcher.
func (cw *ConfigWatcher) Stop() error {
	return cw.fs.Close()
}

func (cw *ConfigWatcher) run() {
	for {
		select {
		case event, ok := <-cw.fs.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)
		case err, ok := <-cw.fs.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error", logger.FieldError, err.Error())
		}
	}
}

func (cw *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}
	if isConfigBackup(event.Name) {
		return
	}
	if cw.ownWrite.CompareAndSwap(true, false) {
		logger.Debugw("Ignoring own config write", "file", event.Name)
		return
	}

	logger.Infow("Config file changed", "file", event.Name, "op", event.Op.String())

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.debounce != nil {
		cw.debounce.Stop()
	}
	cw.debounce = time.AfterFunc(reloadDebounce, func() {
		if err := cw.reload(); err != nil {
			logger.Errorw("Config reload failed", logger.FieldError, err.Error())
		}
	})
}

func (cw *ConfigWatcher) reload() error {
	Reset()
	cfg, err := Load()
	if err != nil {
		return errors.Wrap(err, "reload config")
	}

	logger.Infow("Config reloaded", "path", cw.path)

	cw.mu.Lock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			logger.Warnw("Config reload callback failed", logger.FieldError, err.Error())
		}
	}
	return nil
}

// isConfigBackup reports whether path is one of the rotated backups that
// saveCLIConfig writes next to the config file.
func isConfigBackup(path string) bool {
	base := filepath.Base(path)
	for i := 1; i <= 3; i++ {
		if strings.HasSuffix(base, ".back"+string(rune('0'+i))) {
			return true
		}
	}
	return false
}

// SetGlobalWatcher records the watcher so persist writes can flag themselves.
func SetGlobalWatcher(w *ConfigWatcher) {
	globalWatcherMu.Lock()
	globalWatcher = w
	globalWatcherMu.Unlock()
}

// GetGlobalWatcher returns the watcher registered by the daemon, or nil.
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
