package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle coalesces the burst of events produced by one write
const watchSettle = 200 * time.Millisecond

// Watch reloads the manifest whenever the file at path changes on disk.
// It watches the parent directory so that atomic renames are seen. Watch
// returns once the watcher is running; it stops when ctx is cancelled.
func (s *Server) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.opMu.Lock()
	s.watchPath = path
	s.noteManifest()
	s.opMu.Unlock()

	go s.watchLoop(ctx, watcher, filepath.Base(path))
	s.logger.Info("watching manifest", "path", path)
	return nil
}

func (s *Server) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, name string) {
	defer func() {
		_ = watcher.Close()
	}()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchSettle)
			} else {
				timer.Reset(watchSettle)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			s.reload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("manifest watcher error", "error", err)
		}
	}
}

// reload reloads the manifest unless its content matches the last version
// this process wrote or loaded
func (s *Server) reload(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	sum, ok := s.manifestFileSum()
	if ok && sum == s.manifestSum {
		s.logger.Debug("manifest unchanged, skipping reload")
		return
	}

	if err := s.svc.Reload(ctx); err != nil {
		s.logger.Error("failed to reload manifest", "error", err)
		return
	}
	s.manifestSum = sum
	s.logger.Info("manifest reloaded")
}

// noteManifest records the watched manifest's current content as seen so
// the watcher ignores writes made by this process. Callers hold opMu.
func (s *Server) noteManifest() {
	if sum, ok := s.manifestFileSum(); ok {
		s.manifestSum = sum
	}
}

func (s *Server) manifestFileSum() ([sha256.Size]byte, bool) {
	if s.watchPath == "" {
		return [sha256.Size]byte{}, false
	}
	data, err := os.ReadFile(s.watchPath)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}
