// Package watcher monitors the raw video directory and runs the
// transcribe-to-export tail of the pipeline for every video dropped in.
// Processing is strictly sequential: the speech model holds an exclusive
// accelerator, so a second transcription must never start while one runs.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one newly arrived video, identified by its artifact key.
type Handler func(ctx context.Context, videoID string) error

type Watcher struct {
	dir     string
	handler Handler
	fsw     *fsnotify.Watcher
	logf    func(format string, args ...any)

	// settleDelay gives the producer time to finish writing the file before
	// the pipeline opens it.
	settleDelay time.Duration
}

func New(dir string, handler Handler, logf func(format string, args ...any)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Watcher{
		dir:         dir,
		handler:     handler,
		fsw:         fsw,
		logf:        logf,
		settleDelay: 2 * time.Second,
	}, nil
}

// Start blocks until ctx is cancelled, handling arrivals one at a time.
func (w *Watcher) Start(ctx context.Context) error {
	w.logf("watching %s for new videos", w.dir)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) || !isVideo(event.Name) {
				continue
			}
			videoID := strings.TrimSuffix(filepath.Base(event.Name), filepath.Ext(event.Name))
			w.logf("new video detected: %s", event.Name)

			select {
			case <-time.After(w.settleDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := w.handler(ctx, videoID); err != nil {
				w.logf("processing %s failed: %v", videoID, err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) Close() error { return w.fsw.Close() }

func isVideo(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".mkv", ".webm":
		return true
	}
	return false
}
