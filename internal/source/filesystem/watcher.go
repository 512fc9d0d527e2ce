package filesystem

import (
	"io/fs"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher debounces filesystem events under the adapter root and fires a
// callback once the tree settles. The callback typically asks the sync
// engine to refresh this plugin.
type watcher struct {
	fsw      *fsnotify.Watcher
	onChange func()
	delay    time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	stopChan chan struct{}
	stopOnce sync.Once
}

// StartWatcher begins watching the adapter root. Events are debounced so
// a burst of copies triggers onChange once.
func (a *Adapter) StartWatcher(onChange func()) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w := &watcher{
		fsw:      fsw,
		onChange: onChange,
		delay:    2 * time.Second,
		stopChan: make(chan struct{}),
	}

	// Watch every directory; files report through their parent.
	err = filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	a.watcher = w
	go w.run(a.desc.ID)
	return nil
}

func (w *watcher) run(pluginID string) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// New directories must be added to the watch set.
			if ev.Op&fsnotify.Create != 0 {
				w.fsw.Add(ev.Name)
			}
			w.bump()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[%s] watcher error: %v", pluginID, err)
		case <-w.stopChan:
			return
		}
	}
}

// bump restarts the debounce timer.
func (w *watcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.onChange)
}

func (w *watcher) stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return w.fsw.Close()
}
