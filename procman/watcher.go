package procman

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher watches the manifest file for changes made while the supervisor
// is running. Changes never touch the running children; they are only
// reported so the operator knows a restart is needed to apply them.
type Watcher struct {
	Events chan EventManifestModified

	w    *fsnotify.Watcher
	j    Journaler
	file string
}

// TryWatch attempts to watch the given manifest file asynchronously, but it
// will log into the journaler if, for some reason, it fails to watch.
func TryWatch(ctx context.Context, file string, j Journaler) *Watcher {
	w := newWatcher(file, j)

	go func() {
		if err := w.init(); err != nil {
			j.Write(&EventWarning{
				Component: "watcher",
				Error:     fmt.Sprintf("not watching manifest because: %v", err),
			})
			return
		}

		w.watch(ctx)
	}()

	return w
}

// NewWatcher watches the given manifest file and reports changes on the
// Events channel. The watcher is stopped once the given context is
// canceled.
func NewWatcher(ctx context.Context, file string, j Journaler) (*Watcher, error) {
	w := newWatcher(file, j)
	if err := w.init(); err != nil {
		return nil, err
	}

	go w.watch(ctx)
	return w, nil
}

func newWatcher(file string, j Journaler) *Watcher {
	return &Watcher{
		Events: make(chan EventManifestModified),
		w:      nil,
		j:      j,
		file:   file,
	}
}

func (w *Watcher) init() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	// Watch the containing directory: editors commonly replace the file by
	// rename, which a watch on the file itself would lose.
	if err := watcher.Add(filepath.Dir(w.file)); err != nil {
		return errors.Wrap(err, "failed to watch manifest dir")
	}

	w.w = watcher
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-w.w.Errors:
			w.j.Write(&EventWarning{
				Component: "watcher",
				Error:     "inotify error: " + err.Error(),
			})

		case evt := <-w.w.Events:
			event := translateFsnotifyEvt(evt, w.file)
			if event == nil {
				continue
			}

			select {
			case w.Events <- *event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// translateFsnotifyEvt translates an fsnotify event into a manifest
// modification event, or nil if the event concerns another file in the
// directory.
func translateFsnotifyEvt(evt fsnotify.Event, file string) *EventManifestModified {
	if filepath.Base(evt.Name) != filepath.Base(file) {
		return nil
	}

	switch {
	case evt.Op&(fsnotify.Write|fsnotify.Create) != 0:
		return &EventManifestModified{Op: ManifestUpdate, File: file}

	case evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename is treated as a remove; fsnotify does not report the
		// rename target.
		// See: https://github.com/fsnotify/fsnotify/issues/26
		return &EventManifestModified{Op: ManifestRemove, File: file}
	}

	return nil
}
