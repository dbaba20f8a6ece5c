package rbac

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/taskhub/pkg/observability"
)

// CatalogWatcher serves a catalog loaded from a YAML file and reloads it when
// the file changes. A reload that fails to parse keeps the previous catalog.
type CatalogWatcher struct {
	path    string
	current atomic.Pointer[Catalog]
	logger  *observability.Logger

	// OnReload, when set, observes every reload attempt triggered by Run.
	OnReload func(err error)
}

// NewCatalogWatcher loads path once. The initial load must succeed.
func NewCatalogWatcher(path string, logger *observability.Logger) (*CatalogWatcher, error) {
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	w := &CatalogWatcher{path: path, logger: logger}
	w.current.Store(c)
	return w, nil
}

// Catalog returns the most recently loaded catalog.
func (w *CatalogWatcher) Catalog() *Catalog {
	return w.current.Load()
}

// Reload re-reads the file.
func (w *CatalogWatcher) Reload() error {
	c, err := LoadCatalog(w.path)
	if err != nil {
		return err
	}
	w.current.Store(c)
	return nil
}

// Run watches the catalog's directory until ctx is done. Watching the
// directory rather than the file survives editors that replace the file on
// save.
func (w *CatalogWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			err := w.Reload()
			if w.OnReload != nil {
				w.OnReload(err)
			}
			if err != nil {
				w.logger.WithError(err).Warn("Role catalog reload failed, keeping previous catalog")
				continue
			}
			w.logger.WithField("path", w.path).Info("Role catalog reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Role catalog watcher error")
		}
	}
}
