package dashboard

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
)

// WatchConfig watches the safety config file and invokes onChange on
// every write to it. It is used by the long-running dashboard to pick up
// policy edits without a restart. The watch runs until the context is
// cancelled, watcher errors only end the watch, never the caller.
func WatchConfig(ctx context.Context, path string, onChange func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("unable to watch config file, err: %v", err)
		return
	}
	defer watcher.Close()

	// watch the directory, editors often replace the file on save
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Warnf("unable to watch config directory, err: %v", err)
		return
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				log.Infof("[Config]: %v changed, reloading", path)
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("config watcher error: %v", err)
		}
	}
}
