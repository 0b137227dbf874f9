package quest

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timers is the host timer facility. After runs fn once after d on an
// arbitrary goroutine; the returned cancel reports whether it stopped fn
// from running.
type Timers interface {
	After(d time.Duration, fn func()) (cancel func() bool)
}

type stage struct {
	delay time.Duration
	fn    func()
}

// Sequencer plays a chain of stages for one player. Each stage runs on the
// dispatch goroutine, its delay counted from the previous stage. The chain
// stops early when it is cancelled or the player goes offline.
type Sequencer struct {
	eng    *Engine
	player Player
	stages []stage
	next   int

	mu      sync.Mutex
	cancel  func() bool
	stopped atomic.Bool
}

// NewSequencer creates an empty chain addressed to p.
func (e *Engine) NewSequencer(p Player) *Sequencer {
	return &Sequencer{eng: e, player: p}
}

// Then appends a stage running fn delay after the previous one.
func (s *Sequencer) Then(delay time.Duration, fn func()) *Sequencer {
	if delay < 0 {
		delay = 0
	}
	s.stages = append(s.stages, stage{delay: delay, fn: fn})
	return s
}

// Start schedules the first stage. Stages may not be added afterwards.
func (s *Sequencer) Start() {
	if len(s.stages) == 0 {
		s.stopped.Store(true)
		return
	}
	s.eng.track(s)
	s.schedule()
}

// Cancel stops the chain. Stages already run are not undone.
func (s *Sequencer) Cancel() {
	if s.stopped.Swap(true) {
		return
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.eng.untrack(s)
}

// Done reports whether the chain has finished or been cancelled.
func (s *Sequencer) Done() bool { return s.stopped.Load() }

func (s *Sequencer) schedule() {
	st := s.stages[s.next]
	s.mu.Lock()
	s.cancel = s.eng.After(st.delay, s.fire)
	s.mu.Unlock()
}

func (s *Sequencer) fire() {
	if s.stopped.Load() {
		return
	}
	if !s.player.Online() {
		s.finish()
		return
	}
	st := s.stages[s.next]
	s.next++
	if s.next == len(s.stages) {
		s.finish()
	}
	st.fn()
	if s.next < len(s.stages) && !s.stopped.Load() {
		s.schedule()
	}
}

func (s *Sequencer) finish() {
	if !s.stopped.Swap(true) {
		s.eng.untrack(s)
	}
}
