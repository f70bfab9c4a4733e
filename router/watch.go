package router

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/ibrb-io/aorta/errors"
	xlog "github.com/ibrb-io/aorta/log"
	"github.com/ibrb-io/aorta/message"
)

// Watcher supplements the distilled spec's static load_config/glob_config
// calls: a long-running router daemon can pick up edited rule files
// without a restart. Not part of the core algorithm — purely additive.
type Watcher struct {
	patterns []string
	engine   atomic.Pointer[Engine]
	log      xlog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher loads patterns once to build the initial Engine, then arms an
// fsnotify watch on the directory part (filepath.Dir) of every pattern.
func NewWatcher(patterns []string, log xlog.Logger) (*Watcher, error) {
	rules, err := LoadAll(patterns)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create rule file watcher")
	}

	dirs := map[string]bool{}
	for _, p := range patterns {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, errors.Wrapf(err, "watch rule directory %s", dir)
		}
	}

	w := &Watcher{patterns: patterns, log: log, fsw: fsw}
	w.engine.Store(NewEngine(rules))
	return w, nil
}

// Engine returns the currently active rule engine. Safe to call
// concurrently with Run swapping it out on reload.
func (w *Watcher) Engine() *Engine { return w.engine.Load() }

// Route evaluates m against the currently active rule set, so a Watcher can
// be handed to anything that only needs a Route method (such as
// orchestrator.WithRouter) without the caller needing to re-fetch Engine()
// on every message.
func (w *Watcher) Route(m message.Message) []string {
	return w.engine.Load().Route(m)
}

// Run processes filesystem events until ctx is canceled, reloading and
// swapping the engine on every write/create/rename. A reload that fails
// validation is logged and the previous engine is kept in place, so a
// typo'd rule file edit never drops live routing.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warning("rule watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadAll(w.patterns)
	if err != nil {
		w.log.Warning("rule reload failed, keeping previous ruleset", "error", err)
		return
	}
	w.engine.Store(NewEngine(rules))
	w.log.Info("rule set reloaded")
}
