package effect

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Invalidator drops compiled permutations of an effect.
type Invalidator interface {
	Invalidate(name string)
}

// ResolveFunc maps a changed source file to the effect names depending on it.
type ResolveFunc func(path string) []string

// Watcher watches an effect source directory and invalidates effects whose sources change.
type Watcher struct {
	watcher     *fsnotify.Watcher
	invalidator Invalidator
	resolve     ResolveFunc
}

// NewWatcher starts watching a directory.
//
// Parameters:
//   - dir: the effect source directory
//   - invalidator: receives the names of changed effects
//   - resolve: maps a changed file to effect names, nil uses the file name without extension
//
// Returns:
//   - *Watcher: the watcher, stopped by Close or by cancelling Run
//   - error: an error if the directory cannot be watched
func NewWatcher(dir string, invalidator Invalidator, resolve ResolveFunc) (*Watcher, error) {
	if invalidator == nil {
		panic("effect: watcher requires an invalidator")
	}
	if resolve == nil {
		resolve = EffectNameFromPath
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create effect watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch effect directory %q", dir)
	}
	return &Watcher{watcher: w, invalidator: invalidator, resolve: resolve}, nil
}

// EffectNameFromPath returns the file name of path without its extension.
func EffectNameFromPath(path string) []string {
	base := filepath.Base(path)
	return []string{strings.TrimSuffix(base, filepath.Ext(base))}
}

// Run dispatches file events until ctx is cancelled or the watcher is closed.
//
// Parameters:
//   - ctx: stops the loop when cancelled
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			for _, name := range w.resolve(event.Name) {
				common.Logger().Info("effect source changed", slog.String("file", event.Name), slog.String("effect", name))
				w.invalidator.Invalidate(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			common.Logger().Warn("effect watcher error", slog.Any("error", err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
