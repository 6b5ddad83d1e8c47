package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches directory trees and delivers debounced batches of
// file events to its handlers.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	onError   func(error)
	mutex     sync.RWMutex
	stopOnce  sync.Once
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventAdded EventType = iota
	EventChanged
	EventRemoved
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventAdded:
		return "added"
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a path should be watched. Filters see both files
// and directories; a rejected directory is not descended into.
type FileFilter func(path string) bool

// ChangeHandler handles file change events
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	pending []ChangeEvent
	index   map[string]int
	mutex   sync.Mutex
}

func newDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		events: make(chan ChangeEvent, 100),
		output: make(chan []ChangeEvent, 10),
		index:  make(map[string]int),
	}
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: newDebouncer(debounceDelay),
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		onError:   func(error) {},
	}

	return fw, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// OnError sets the hook receiving watcher and handler errors. Watching
// continues after an error.
func (fw *FileWatcher) OnError(fn func(error)) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	if fn == nil {
		fn = func(error) {}
	}
	fw.onError = fn
}

// AddPath adds a single path to watch
func (fw *FileWatcher) AddPath(path string) error {
	if err := fw.watcher.Add(filepath.Clean(path)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	return nil
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	root = filepath.Clean(root)
	filters := fw.currentFilters()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && !accept(filters, path) {
			return filepath.SkipDir
		}
		return fw.AddPath(path)
	})
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.run(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)

	return nil
}

// Run starts the watcher and blocks until ctx is done, then stops it.
func (fw *FileWatcher) Run(ctx context.Context) error {
	if err := fw.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return fw.Stop()
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.reportError(fmt.Errorf("file watcher: %w", err))
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	filters := fw.currentFilters()
	if !accept(filters, event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			fw.addDirectory(ctx, event.Name)
			return
		}
		fw.send(ctx, newEvent(EventAdded, event.Name, info))
	case event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return
		}
		fw.send(ctx, newEvent(EventChanged, event.Name, info))
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A renamed file reappears under its new name as a Create.
		fw.send(ctx, ChangeEvent{Type: EventRemoved, Path: event.Name})
	}
}

// addDirectory starts watching a new directory tree and reports the files
// already inside it, which were created before the watch existed.
func (fw *FileWatcher) addDirectory(ctx context.Context, dir string) {
	if err := fw.AddRecursive(dir); err != nil {
		fw.reportError(err)
		return
	}

	files, err := Scan(dir, fw.currentFilters()...)
	if err != nil {
		fw.reportError(err)
		return
	}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		fw.send(ctx, newEvent(EventAdded, file, info))
	}
}

func (fw *FileWatcher) send(ctx context.Context, event ChangeEvent) {
	select {
	case fw.debouncer.events <- event:
	case <-ctx.Done():
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.reportError(fmt.Errorf("file watcher handler: %w", err))
				}
			}
		}
	}
}

func (fw *FileWatcher) currentFilters() []FileFilter {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return fw.filters
}

func (fw *FileWatcher) reportError(err error) {
	fw.mutex.RLock()
	onError := fw.onError
	fw.mutex.RUnlock()
	onError(err)
}

func newEvent(t EventType, path string, info os.FileInfo) ChangeEvent {
	return ChangeEvent{
		Type:    t,
		Path:    path,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}
}

func accept(filters []FileFilter, path string) bool {
	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

// Debouncer implementation
func (d *Debouncer) run(ctx context.Context) {
	timer := time.NewTimer(d.delay)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
			timer.Reset(d.delay)
			fire = timer.C
		case <-fire:
			fire = nil
			events := d.take()
			if len(events) == 0 {
				continue
			}
			select {
			case d.output <- events:
			case <-ctx.Done():
				return
			}
		}
	}
}

// addEvent merges event into the pending batch. Each path keeps its first
// position; the latest event wins, except that a change to a file added in
// the same batch is still an add.
func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	i, ok := d.index[event.Path]
	if !ok {
		d.index[event.Path] = len(d.pending)
		d.pending = append(d.pending, event)
		return
	}

	if d.pending[i].Type == EventAdded && event.Type == EventChanged {
		event.Type = EventAdded
	}
	d.pending[i] = event
}

func (d *Debouncer) take() []ChangeEvent {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	events := d.pending
	d.pending = nil
	clear(d.index)
	return events
}

// Scan lists the files under root accepted by filters, in lexical order.
func Scan(root string, filters ...FileFilter) ([]string, error) {
	root = filepath.Clean(root)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path != root && !accept(filters, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	return files, nil
}

// Common file filters

// NoHiddenFilter rejects dot files and dot directories.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return base == "." || base == ".." || !strings.HasPrefix(base, ".")
}

// NoNodeModulesFilter rejects anything under node_modules.
func NoNodeModulesFilter(path string) bool {
	return !hasSegment(path, "node_modules")
}

// NoEditorTempFilter rejects editor swap and backup files.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasSuffix(base, ".swx") &&
		!strings.HasPrefix(base, "#")
}

// ExcludeFilter rejects dir and everything below it.
func ExcludeFilter(dir string) FileFilter {
	dir = filepath.Clean(dir)
	return func(path string) bool {
		path = filepath.Clean(path)
		return path != dir && !strings.HasPrefix(path, dir+string(filepath.Separator))
	}
}

func hasSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}
