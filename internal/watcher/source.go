package watcher

import (
	"github.com/fsnotify/fsnotify"
)

// Source delivers file-system notifications. It is satisfied by an
// fsnotify watcher and by in-memory fakes in tests.
type Source interface {
	Add(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

type fsSource struct {
	w *fsnotify.Watcher
}

// NewFSSource opens an fsnotify-backed Source.
func NewFSSource() (Source, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsSource{w: w}, nil
}

func (s *fsSource) Add(path string) error         { return s.w.Add(path) }
func (s *fsSource) Events() <-chan fsnotify.Event { return s.w.Events }
func (s *fsSource) Errors() <-chan error          { return s.w.Errors }
func (s *fsSource) Close() error                  { return s.w.Close() }
