// Package watcher turns filesystem events under the projects root into
// refresh nudges, so edits show up before the next tick.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the projects directory and its project subdirectories.
type Watcher struct {
	root   string
	notify func()
	fw     *fsnotify.Watcher
}

// New builds a watcher over the projects directory of root. notify fires
// on every relevant event and must not block.
func New(root string, notify func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create: %w", err)
	}
	return &Watcher{root: root, notify: notify, fw: fw}, nil
}

// Run watches until the context is canceled. New project directories are
// added to the watch set as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	projectsDir := filepath.Join(w.root, "projects")
	if err := w.fw.Add(projectsDir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", projectsDir, err)
	}
	w.addProjectDirs(projectsDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fw.Add(event.Name); err != nil {
				log.Printf("watcher: watch %s: %v", event.Name, err)
			}
			w.notify()
			return
		}
	}

	if strings.HasSuffix(event.Name, ".jsonl") &&
		event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.notify()
	}
}

func (w *Watcher) addProjectDirs(projectsDir string) {
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(projectsDir, e.Name())
		if err := w.fw.Add(dir); err != nil {
			log.Printf("watcher: watch %s: %v", dir, err)
		}
	}
}
