package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var catalogExts = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// Catalog lists the panorama images available to the authoring tool. The
// transcoding pipeline writes into the same directory, so Watch keeps the
// list current and announces changes on the broker.
type Catalog struct {
	dir      string
	broker   *Broker
	logger   *slog.Logger
	debounce time.Duration

	mu    sync.RWMutex
	names []string
}

func NewCatalog(dir string, broker *Broker, logger *slog.Logger) *Catalog {
	return &Catalog{dir: dir, broker: broker, logger: logger, debounce: 250 * time.Millisecond}
}

// Dir is the directory the catalog reads.
func (c *Catalog) Dir() string { return c.dir }

// List returns the image file names, sorted.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.names)
}

// Refresh rereads the directory and reports whether the list changed.
func (c *Catalog) Refresh() (bool, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", c.dir, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !isCatalogImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names != nil && slices.Equal(c.names, names) {
		return false, nil
	}
	c.names = names
	return true, nil
}

// Watch refreshes the catalog whenever an image file appears, changes or
// disappears, until ctx is done. Bursts of events are coalesced.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(c.dir); err != nil {
		return fmt.Errorf("watching %s: %w", c.dir, err)
	}

	timer := time.NewTimer(c.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isCatalogImage(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(c.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("image watcher error", "error", err)
		case <-timer.C:
			if err := c.sync(); err != nil {
				c.logger.Warn("refreshing image catalog", "error", err)
			}
		}
	}
}

// sync refreshes the list and announces a change.
func (c *Catalog) sync() error {
	changed, err := c.Refresh()
	if err != nil {
		return err
	}
	if changed {
		n := len(c.List())
		c.logger.Info("image catalog changed", "images", n)
		c.broker.Publish(Event{Type: EventImagesChanged, Images: n})
	}
	return nil
}

func isCatalogImage(name string) bool {
	return slices.Contains(catalogExts, strings.ToLower(filepath.Ext(name)))
}

func handleImages(c *Catalog, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.sync(); err != nil {
			logger.Error("reading images directory", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to read images directory")
			return
		}
		writeJSON(w, http.StatusOK, c.List())
	}
}
