package config

import (
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/aurora/engine/core"
)

type fileWatcher struct {
	fsnotify *fsnotify.Watcher
	path     string
	done     chan struct{}
}

// Watch reapplies the cvar file whenever it changes on disk. Only one file
// can be watched per store.
func (s *CvarStore) Watch(path string) error {
	if s.watcher != nil {
		return errors.New("cvar store is already watching a file")
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file on save, which drops
	// a direct file watch.
	if err := fsWatch.Add(filepath.Dir(path)); err != nil {
		fsWatch.Close()
		return err
	}

	s.watcher = &fileWatcher{
		fsnotify: fsWatch,
		path:     path,
		done:     make(chan struct{}),
	}

	go s.watchLoop()

	return nil
}

func (s *CvarStore) watchLoop() {
	w := s.watcher
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != filepath.Clean(w.path) {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				core.LogInfo("cvar file '%s' changed, reloading", w.path)
				if err := s.LoadFile(w.path); err != nil {
					core.LogError(err.Error())
				}
			}
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("cvar watcher: %s", err.Error())
		case <-w.done:
			return
		}
	}
}

// Close stops the file watcher, if any.
func (s *CvarStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.watcher.done)
	err := s.watcher.fsnotify.Close()
	s.watcher = nil
	return err
}
