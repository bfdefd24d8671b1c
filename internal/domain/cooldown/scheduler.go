// Package cooldown holds the shared cooldown record of a matched pair and
// the keyed, cancellable timer schedulers that release it.
package cooldown

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs delayed tasks identified by key. Scheduling a key that is
// already pending replaces the pending task.
type Scheduler interface {
	Schedule(key string, after time.Duration, fn func())
	Cancel(key string) bool
	Pending() int
	Stop()
}

// TimerScheduler is a Scheduler backed by time.AfterFunc. Fired tasks are
// handed to post, which is expected to run them on the owning goroutine.
type TimerScheduler struct {
	mu      sync.Mutex
	post    func(func())
	timers  map[string]*entry
	seq     uint64
	stopped bool
}

type entry struct {
	timer *time.Timer
	seq   uint64
}

// NewTimerScheduler creates a scheduler; a nil post runs tasks on the timer goroutine.
func NewTimerScheduler(post func(func())) *TimerScheduler {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &TimerScheduler{post: post, timers: make(map[string]*entry)}
}

// Schedule arranges for fn to run after the given delay.
func (s *TimerScheduler) Schedule(key string, after time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}
	s.seq++
	e := &entry{seq: s.seq}
	e.timer = time.AfterFunc(after, func() {
		// drop the task if it was cancelled or replaced after the timer fired
		if !s.claim(key, e.seq) {
			return
		}
		s.post(fn)
	})
	s.timers[key] = e
}

func (s *TimerScheduler) claim(key string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[key]
	if !ok || cur.seq != seq || s.stopped {
		return false
	}
	delete(s.timers, key)
	return true
}

// Cancel stops a pending task; it reports whether one was pending.
func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, key)
	return true
}

// Pending returns the number of tasks that have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending task; later Schedule calls are ignored.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, k)
	}
	s.stopped = true
}

// ManualScheduler is a Scheduler driven by a virtual clock. Tasks run
// synchronously inside Advance, in due order.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	tasks map[string]*manualTask
	seq   uint64
}

type manualTask struct {
	key string
	due time.Time
	seq uint64
	fn  func()
}

// NewManualScheduler starts the virtual clock at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start, tasks: make(map[string]*manualTask)}
}

// Now returns the virtual time.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualScheduler) Schedule(key string, after time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.tasks[key] = &manualTask{key: key, due: m.now.Add(after), seq: m.seq, fn: fn}
}

func (m *ManualScheduler) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[key]; !ok {
		return false
	}
	delete(m.tasks, key)
	return true
}

func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *ManualScheduler) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.tasks)
}

// Advance moves the clock forward by d and runs every task that became due.
// Tasks scheduled by a running task are honoured if they fall inside the window.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.tasks, next.key)
		if next.due.After(m.now) {
			m.now = next.due
		}
		m.mu.Unlock()
		next.fn()
	}
}

func (m *ManualScheduler) nextDue(limit time.Time) *manualTask {
	due := make([]*manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.due.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}
