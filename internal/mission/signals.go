package mission

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StopFileName is the signal file that asks a running mission to stop.
const StopFileName = "stop"

// StopSignal watches a signals directory for the stop file. The mission loop
// polls it between cycles.
type StopSignal struct {
	dir    string
	logger *zap.Logger

	mu      sync.RWMutex
	stopped bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewStopSignal creates the signals directory and starts watching it. When
// fsnotify is unavailable ShouldStop falls back to checking the file directly.
func NewStopSignal(dir string, logger *zap.Logger) (*StopSignal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &StopSignal{dir: dir, logger: logger, done: make(chan struct{})}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug("stop signal watcher unavailable, polling", zap.Error(err))
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		logger.Debug("stop signal watch failed, polling", zap.String("dir", dir), zap.Error(err))
		return s, nil
	}
	s.watcher = watcher

	s.wg.Add(1)
	go s.watch()
	return s, nil
}

func (s *StopSignal) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != StopFileName || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.mu.Lock()
			// Events can trail a Clear; only a file that still exists counts.
			if _, err := os.Stat(event.Name); err == nil && !s.stopped {
				s.stopped = true
				s.logger.Info("stop signal received", zap.String("file", event.Name))
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Debug("stop signal watcher error", zap.Error(err))
		}
	}
}

// Path returns the stop file path.
func (s *StopSignal) Path() string {
	return filepath.Join(s.dir, StopFileName)
}

// ShouldStop reports whether a stop was requested.
func (s *StopSignal) ShouldStop() bool {
	if _, err := os.Stat(s.Path()); err == nil {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Send writes the stop file.
func (s *StopSignal) Send() error {
	return os.WriteFile(s.Path(), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes the stop file and resets the signal.
func (s *StopSignal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	os.Remove(s.Path())
}

// Close stops the watcher.
func (s *StopSignal) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
		s.wg.Wait()
	})
	return err
}
