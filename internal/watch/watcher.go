package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Start once the watcher has been closed
var ErrClosed = errors.New("watcher closed")

// ChangeFunc is called for every change to a watched file
type ChangeFunc func(path string, op fsnotify.Op)

// FileWatcher watches files for changes based on patterns
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	patterns []string
	exclude  []string
	onChange ChangeFunc
	logger   zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(patterns []string, exclude []string, onChange ChangeFunc, logger zerolog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &FileWatcher{
		watcher:  watcher,
		patterns: patterns,
		exclude:  exclude,
		onChange: onChange,
		logger:   logger.With().Str("component", "watch").Logger(),
	}, nil
}

// AddDirectory recursively adds a directory to the watcher
func (fw *FileWatcher) AddDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != dir && fw.excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Only directories are registered with fsnotify
		if d.IsDir() {
			if err := fw.watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", path, err)
			}
			fw.logger.Debug().Str("dir", path).Msg("watching directory")
		}

		return nil
	})
}

// Start delivers change events until ctx is done or the watcher is closed
func (fw *FileWatcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return ErrClosed
			}

			if fw.Matches(event.Name) {
				fw.onChange(event.Name, event.Op)
			}

			// New directories are watched too
			if event.Has(fsnotify.Create) && !fw.excluded(filepath.Base(event.Name)) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fw.AddDirectory(event.Name); err != nil {
						fw.logger.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
					}
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return ErrClosed
			}
			if err != nil {
				fw.logger.Warn().Err(err).Msg("watcher error")
			}
		}
	}
}

// Matches reports whether a change to path should be delivered
func (fw *FileWatcher) Matches(path string) bool {
	base := filepath.Base(path)
	if fw.excluded(base) {
		return false
	}

	for _, pattern := range fw.patterns {
		if ext, ok := strings.CutPrefix(pattern, "**/*"); ok {
			if strings.HasSuffix(base, ext) {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}

func (fw *FileWatcher) excluded(name string) bool {
	for _, pattern := range fw.exclude {
		if matched, _ := filepath.Match(strings.TrimSuffix(pattern, "/"), name); matched {
			return true
		}
	}
	return false
}

// Close stops the watcher. Closing twice is safe.
func (fw *FileWatcher) Close() error {
	fw.closeOnce.Do(func() {
		fw.closeErr = fw.watcher.Close()
	})
	return fw.closeErr
}
