package server

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/josephgoksu/quill/internal/results"
)

// flushInterval coalesces bursts of checkpoints into one update per task.
const flushInterval = 250 * time.Millisecond

// Monitor reports changes to the records/nodes.json of watched tasks. It
// listens to fsnotify on the records directory and polls modification times
// for tasks whose directory cannot be watched yet.
type Monitor struct {
	rs       *results.Store
	onChange func(taskID string)
	interval time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	tasks map[string]*watchState
	dirty map[string]struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type watchState struct {
	notified bool // fsnotify watches the directory
	lastMod  time.Time
}

// NewMonitor creates a monitor calling onChange from its own goroutine. A
// monitor without fsnotify support falls back to polling every interval.
func NewMonitor(rs *results.Store, interval time.Duration, onChange func(taskID string), logger *slog.Logger) *Monitor {
	m := &Monitor{
		rs:       rs,
		onChange: onChange,
		interval: interval,
		logger:   logger,
		tasks:    make(map[string]*watchState),
		dirty:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	if w, err := fsnotify.NewWatcher(); err == nil {
		m.watcher = w
	} else {
		logger.Warn("fsnotify unavailable, polling task files", "error", err)
	}
	return m
}

// Start runs the event loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

func (m *Monitor) recordsDir(taskID string) string {
	return filepath.Dir(m.rs.Path(taskID, results.NodesFile))
}

// Watch starts reporting changes of a task. Watching twice is a no-op.
func (m *Monitor) Watch(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; ok {
		return
	}
	st := &watchState{}
	if mt, err := m.rs.ModTime(taskID, results.NodesFile); err == nil {
		st.lastMod = mt
	}
	if m.watcher != nil {
		if err := m.watcher.Add(m.recordsDir(taskID)); err == nil {
			st.notified = true
		}
	}
	m.tasks[taskID] = st
}

// Unwatch stops reporting a task.
func (m *Monitor) Unwatch(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tasks[taskID]
	if !ok {
		return
	}
	if st.notified && m.watcher != nil {
		_ = m.watcher.Remove(m.recordsDir(taskID))
	}
	delete(m.tasks, taskID)
	delete(m.dirty, taskID)
}

// Watching reports whether a task is watched.
func (m *Monitor) Watching(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[taskID]
	return ok
}

// Close stops the loop and releases the fsnotify watcher.
func (m *Monitor) Close() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		if m.watcher != nil {
			err = m.watcher.Close()
		}
	})
	return err
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if m.watcher != nil {
		events, errs = m.watcher.Events, m.watcher.Errors
	}
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()
	poll := time.NewTicker(m.interval)
	defer poll.Stop()

	for {
		select {
		case <-m.done:
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(ev.Name) != filepath.Base(results.NodesFile) {
				continue
			}
			// <base>/<taskID>/records/nodes.json
			m.markDirty(filepath.Base(filepath.Dir(filepath.Dir(ev.Name))))

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.logger.Debug("fsnotify error", "error", err)

		case <-poll.C:
			m.pollModTimes()

		case <-flush.C:
			for _, id := range m.takeDirty() {
				m.onChange(id)
			}
		}
	}
}

func (m *Monitor) markDirty(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; ok {
		m.dirty[taskID] = struct{}{}
	}
}

func (m *Monitor) takeDirty() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	m.dirty = make(map[string]struct{})
	return ids
}

// pollModTimes covers tasks fsnotify does not watch, and retries the
// watch once their directory exists.
func (m *Monitor) pollModTimes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, st := range m.tasks {
		if st.notified {
			continue
		}
		if m.watcher != nil && m.watcher.Add(m.recordsDir(id)) == nil {
			st.notified = true
		}
		mt, err := m.rs.ModTime(id, results.NodesFile)
		if err != nil {
			if !errors.Is(err, results.ErrNotFound) {
				m.logger.Debug("stat nodes file failed", "task_id", id, "error", err)
			}
			continue
		}
		if mt.After(st.lastMod) {
			st.lastMod = mt
			m.dirty[id] = struct{}{}
		}
	}
}
