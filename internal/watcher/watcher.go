package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher turns OS file notifications for the followed log into wake-ups.
// Notifications are only hints: on container mounts they can be missing
// entirely, so the follower keeps polling and uses Wake to react sooner.
type Watcher struct {
	fsw     *fsnotify.Watcher
	pattern string
	dir     string
	wake    chan struct{}
	log     zerolog.Logger
}

// New watches the directory holding pattern. Patterns may be plain paths or
// doublestar globs such as /var/log/nginx/*access.log.
func New(pattern string, log zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(pattern)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if HasMeta(abs) {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(abs))
		dir = filepath.FromSlash(base)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return &Watcher{
		fsw:     fsw,
		pattern: abs,
		dir:     dir,
		wake:    make(chan struct{}, 1),
		log:     log,
	}, nil
}

// Start forwards relevant events as wake-ups. It blocks until the context is
// cancelled or the underlying watcher fails.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.matches(ev.Name) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Write != 0,
				ev.Op&fsnotify.Create != 0,
				ev.Op&fsnotify.Remove != 0,
				ev.Op&fsnotify.Rename != 0:
				w.notify()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("fsnotify_error")
		}
	}
}

// Wake receives a value after the followed file changed. Wake-ups coalesce.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Dir returns the directory being watched.
func (w *Watcher) Dir() string {
	return w.dir
}

func (w *Watcher) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) matches(name string) bool {
	if !HasMeta(w.pattern) {
		return filepath.Clean(name) == w.pattern
	}
	ok, err := doublestar.PathMatch(w.pattern, name)
	return err == nil && ok
}

// HasMeta reports whether pattern contains glob syntax.
func HasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// Resolve maps a path or glob to the single file to follow. A glob resolves
// to its most recently modified match; no match yields fs.ErrNotExist.
func Resolve(pattern string) (string, error) {
	if !HasMeta(pattern) {
		return pattern, nil
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", err
	}

	var (
		newest string
		best   os.FileInfo
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if best == nil || info.ModTime().After(best.ModTime()) {
			newest, best = m, info
		}
	}
	if best == nil {
		return "", fmt.Errorf("no file matches %s: %w", pattern, fs.ErrNotExist)
	}
	return newest, nil
}
