package engineconfig

import (
	"github.com/fsnotify/fsnotify"

	"github.com/nec-oss/sliceengine/internal/logx"
)

// Watcher hot-reloads the engine's own YAML operating config. Kept close
// to the teacher's pkg/config.Watcher: one fsnotify.Watcher, one buffered
// channel of parsed snapshots, non-blocking sends so a slow consumer never
// stalls the watch loop.
type Watcher struct {
	path    string
	updates chan *Config
	fsw     *fsnotify.Watcher
	log     *logx.Logger
}

func NewWatcher(path string, log *logx.Logger) (*Watcher, error) {
	if log == nil {
		log = logx.Default
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    path,
		updates: make(chan *Config, 10),
		fsw:     fsw,
		log:     log,
	}, nil
}

func (w *Watcher) Updates() <-chan *Config { return w.updates }

// Start loads the config once, then blocks watching for further writes.
// Callers normally run it in its own goroutine.
func (w *Watcher) Start() error {
	defer w.fsw.Close()

	if err := w.reload(); err != nil {
		w.log.Warnf("engineconfig: error loading initial config: %v", err)
	}

	if err := w.fsw.Add(w.path); err != nil {
		return err
	}
	w.log.Infof("engineconfig: watching config file %s", w.path)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.log.Infof("engineconfig: config file modified: %s", event.Name)
				if err := w.reload(); err != nil {
					w.log.Warnf("engineconfig: error reloading config: %v", err)
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("engineconfig: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	select {
	case w.updates <- cfg:
		w.log.Infof("engineconfig: config reloaded from %s", w.path)
	default:
		w.log.Warnf("engineconfig: update channel full, dropping reload")
	}
	return nil
}
