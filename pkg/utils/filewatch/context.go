// Package filewatch ties lifetime of contexts to files.
package filewatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrModified is the cause of contexts cancelled by a file modification.
	ErrModified = errors.New("watched file is modified")

	// ErrWatch is the cause of contexts cancelled since watching is broken.
	ErrWatch = errors.New("watching files is broken")
)

// UntilModifyContext returns a context that is canceled
// when one of target files is modified (= written, created, removed, renamed or changed its mode).
//
// A target may be a directory. Then, modifications of files in it cancel the context.
//
// The cause of the cancellation (see `context.Cause`) is ErrModified for modifications,
// ErrWatch for failures of the underlying watcher, or the cause of the parent context.
//
// # Returns
//
// - context.Context: context that is canceled when one of target files is modified.
//
// - func(): cancel function. It stops watching.
//
// - error: error caused when it fails to start watching files.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, targetFilePath ...string) (context.Context, func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for _, f := range targetFilePath {
		if err := w.Add(filepath.Clean(f)); err != nil {
			w.Close()
			return nil, nil, fmt.Errorf("%w: %s", err, f)
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					cancel(ErrWatch)
					return
				}
				cancel(fmt.Errorf("%w: %s (%s)", ErrModified, event.Name, event.Op.String()))
				return
			case err, ok := <-w.Errors:
				if !ok {
					cancel(ErrWatch)
					return
				}
				cancel(fmt.Errorf("%w: %w", ErrWatch, err))
				return
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
