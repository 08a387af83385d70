// Package watcher keeps the index in sync with external edits: a note
// changed on disk outside the API (an editor, a git pull) is reindexed
// after a short debounce, and a removed note is deindexed.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/untoldecay/LoreVault/internal/logging"
	"github.com/untoldecay/LoreVault/internal/storage"
	"github.com/untoldecay/LoreVault/internal/vault"
)

// debounceDelay coalesces editor write bursts into one reindex.
const debounceDelay = 500 * time.Millisecond

// Watcher follows filesystem events under the vault base.
type Watcher struct {
	vault *vault.Store
	index storage.Store
	log   *logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New builds a watcher over the vault.
func New(v *vault.Store, idx storage.Store) *Watcher {
	return &Watcher{
		vault:   v,
		index:   idx,
		log:     logging.Get(logging.CategoryWatcher),
		pending: make(map[string]*time.Timer),
	}
}

// Run watches until the context is cancelled. Directories created
// while running are added to the watch set.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addTree(fsw, w.vault.Base()); err != nil {
		return err
	}
	w.log.Info("watching %s", w.vault.Base())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	name := filepath.ToSlash(event.Name)
	if skipPath(name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				w.log.Warn("failed to watch new directory %s: %v", name, err)
			}
			return
		}
	}
	if !strings.HasSuffix(name, ".md") {
		return
	}
	tenant, rel, ok := w.split(name)
	if !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.schedule(name, func() {
			if err := w.index.DeleteIndex(ctx, tenant, rel); err != nil {
				w.log.Warn("deindex of %s/%s failed: %v", tenant, rel, err)
			} else {
				w.log.Debug("deindexed %s/%s after external remove", tenant, rel)
			}
		})
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.schedule(name, func() {
			note, err := w.vault.Read(tenant, rel)
			if err != nil {
				return
			}
			if _, err := w.index.Index(ctx, tenant, note); err != nil {
				w.log.Warn("reindex of %s/%s failed: %v", tenant, rel, err)
			} else {
				w.log.Debug("reindexed %s/%s after external edit", tenant, rel)
			}
		})
	}
}

// schedule resets the per-path debounce timer.
func (w *Watcher) schedule(key string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[key]; ok {
		timer.Stop()
	}
	w.pending[key] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.mu.Unlock()
		fn()
	})
}

// split maps an absolute event path to (tenant, vault-relative path).
func (w *Watcher) split(name string) (tenant, rel string, ok bool) {
	base := filepath.ToSlash(w.vault.Base())
	trimmed := strings.TrimPrefix(name, base)
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == name || trimmed == "" {
		return "", "", false
	}
	tenant, rel, found := strings.Cut(trimmed, "/")
	if !found || rel == "" {
		return "", "", false
	}
	return tenant, rel, true
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skipPath(filepath.ToSlash(p)) {
			return fs.SkipDir
		}
		return fsw.Add(p)
	})
}

// skipPath excludes state dirs, hidden files and our own temp files.
func skipPath(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".lv-tmp-") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".lorevault" || part == ".git" || part == ".obsidian" {
			return true
		}
	}
	return false
}
