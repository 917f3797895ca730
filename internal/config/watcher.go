package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/gatelink/internal/logger"
)

// debounceWindow coalesces the write bursts editors and atomic renames produce.
const debounceWindow = 100 * time.Millisecond

// Watch calls onChange with the freshly loaded config whenever the file at
// path is rewritten. The returned stop function releases the watcher.
// Credential changes never touch a live connection; callers hand the new
// values to the client, which picks them up on the next attempt.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors and Save both replace the file by rename,
	// which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	log := logger.Global().WithPrefix("config")
	done := make(chan struct{})

	go func() {
		var pending *time.Timer
		for {
			select {
			case <-done:
				if pending != nil {
					pending.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(debounceWindow, func() {
					cfg, err := Load(path)
					if err != nil {
						log.Warn("ignoring unreadable config update: %v", err)
						return
					}
					log.Info("credential file updated")
					onChange(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("watch error: %v", err)
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
