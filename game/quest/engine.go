package quest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/rpgquest/config"
	"github.com/kasuganosora/rpgquest/game/event"
	"go.uber.org/zap"
)

// Options tunes the engine.
type Options struct {
	StartingStep        int
	VisibilityDistance  int
	TeleportEmoteOffset time.Duration
	TeleportPortOffset  time.Duration
	QueueSize           int
}

// DefaultOptions matches the configuration defaults.
func DefaultOptions() Options {
	return Options{
		StartingStep:        1,
		VisibilityDistance:  3600,
		TeleportEmoteOffset: 2 * time.Second,
		TeleportPortOffset:  3 * time.Second,
		QueueSize:           1024,
	}
}

// OptionsFromConfig maps the quest configuration section onto Options.
func OptionsFromConfig(cfg config.QuestConfig) Options {
	o := DefaultOptions()
	if cfg.StartingStep > 0 {
		o.StartingStep = cfg.StartingStep
	}
	if cfg.VisibilityDistance > 0 {
		o.VisibilityDistance = cfg.VisibilityDistance
	}
	if cfg.TeleportEmoteOffset > 0 {
		o.TeleportEmoteOffset = cfg.TeleportEmoteOffset
	}
	if cfg.TeleportPortOffset > 0 {
		o.TeleportPortOffset = cfg.TeleportPortOffset
	}
	if cfg.DispatchQueue > 0 {
		o.QueueSize = cfg.DispatchQueue
	}
	return o
}

// Deps are the collaborators the engine drives. World, Timers and Bus are
// required; the rest may be nil.
type Deps struct {
	World     World
	Timers    Timers
	Bus       *event.Bus
	Script    ScriptRunner
	Persister *Persister
	Auditor   Auditor
	Offers    *Offers
	// Rand returns a number in [0, n). Defaults to math/rand.
	Rand func(n int) int
}

type dialog struct {
	charID int64
	fn     DialogResponse
}

// Engine owns the rule set and the quest registry and runs every event,
// timer stage and dialog answer on a single dispatch goroutine, one job at
// a time.
type Engine struct {
	log    *zap.Logger
	opts   Options
	world  World
	timers Timers
	bus    *event.Bus
	script ScriptRunner
	rand   func(n int) int

	rules *Ruleset
	mgr   *Manager

	jobs    chan func()
	done    chan struct{}
	runOnce sync.Once

	mu      sync.Mutex
	dialogs map[string]dialog
	seqs    map[int64]map[*Sequencer]struct{}
}

func NewEngine(opts Options, deps Deps, logger *zap.Logger) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.StartingStep <= 0 {
		opts.StartingStep = 1
	}
	if deps.Rand == nil {
		deps.Rand = rand.Intn
	}
	if deps.Bus == nil {
		deps.Bus = event.NewBus()
	}
	e := &Engine{
		log:     logger,
		opts:    opts,
		world:   deps.World,
		timers:  deps.Timers,
		bus:     deps.Bus,
		script:  deps.Script,
		rand:    deps.Rand,
		jobs:    make(chan func(), opts.QueueSize),
		done:    make(chan struct{}),
		dialogs: make(map[string]dialog),
		seqs:    make(map[int64]map[*Sequencer]struct{}),
	}
	e.rules = newRuleset(e)
	e.mgr = newManager(e, deps.Persister, deps.Auditor, deps.Offers)
	return e
}

func (e *Engine) Rules() *Ruleset   { return e.rules }
func (e *Engine) Manager() *Manager { return e.mgr }
func (e *Engine) Options() Options  { return e.opts }
func (e *Engine) Offers() *Offers   { return e.mgr.offers }

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// Run executes posted jobs until ctx is cancelled, then runs what is still
// queued and returns. Run must be called at most once.
func (e *Engine) Run(ctx context.Context) {
	e.runOnce.Do(func() {
		e.log.Info("quest engine started", zap.Int("parts", len(e.rules.Parts())))
		for {
			select {
			case fn := <-e.jobs:
				e.run(fn)
			case <-ctx.Done():
				close(e.done)
				n := e.Drain()
				e.log.Info("quest engine stopped", zap.Int("drained", n))
				return
			}
		}
	})
}

func (e *Engine) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("quest job panicked", zap.Any("recover", r))
		}
	}()
	fn()
}

// Post queues fn for the dispatch goroutine. It waits while the queue is
// full and returns false once the engine has stopped. It must not be called
// from the dispatch goroutine itself.
func (e *Engine) Post(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.jobs <- fn:
		return true
	case <-e.done:
		return false
	}
}

// Drain runs queued jobs on the calling goroutine until the queue is empty
// and returns how many ran.
func (e *Engine) Drain() int {
	n := 0
	for {
		select {
		case fn := <-e.jobs:
			e.run(fn)
			n++
		default:
			return n
		}
	}
}

// Pending returns how many jobs are queued.
func (e *Engine) Pending() int { return len(e.jobs) }

// Publish queues ev for dispatch.
func (e *Engine) Publish(ev Event) bool {
	return e.Post(func() { e.Dispatch(ev) })
}

// Dispatch delivers ev on the calling goroutine, which must be the dispatch
// goroutine.
func (e *Engine) Dispatch(ev Event) {
	if err := e.bus.Publish(context.Background(), ev.Kind().String(), ev.Sender(), ev); err != nil {
		e.log.Warn("event delivery failed", zap.Stringer("event", ev.Kind()), zap.Error(err))
	}
}

// After runs fn on the dispatch goroutine once d has elapsed.
func (e *Engine) After(d time.Duration, fn func()) (cancel func() bool) {
	return e.timers.After(d, func() { e.Post(fn) })
}

// ---------------------------------------------------------------------------
// Sequencers and dialogs
// ---------------------------------------------------------------------------

func (e *Engine) track(s *Sequencer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := s.player.ObjectID()
	set := e.seqs[id]
	if set == nil {
		set = make(map[*Sequencer]struct{})
		e.seqs[id] = set
	}
	set[s] = struct{}{}
}

func (e *Engine) untrack(s *Sequencer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := s.player.ObjectID()
	if set := e.seqs[id]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(e.seqs, id)
		}
	}
}

// Sequencers returns how many chains are live for p.
func (e *Engine) Sequencers(p Player) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seqs[p.ObjectID()])
}

func (e *Engine) openDialog(p Player, fn DialogResponse) string {
	token := uuid.NewString()
	e.mu.Lock()
	e.dialogs[token] = dialog{charID: p.ObjectID(), fn: fn}
	e.mu.Unlock()
	return token
}

// AnswerDialog routes a player's answer to the dialog opened with token.
// Unknown tokens and answers from another player are ignored.
func (e *Engine) AnswerDialog(p Player, token string, accepted bool) bool {
	e.mu.Lock()
	d, ok := e.dialogs[token]
	if ok && d.charID == p.ObjectID() {
		delete(e.dialogs, token)
	}
	e.mu.Unlock()
	if !ok || d.charID != p.ObjectID() {
		return false
	}
	return e.Post(func() { d.fn(p, accepted) })
}

// PlayerLeft cancels p's pending sequencers and dialogs.
func (e *Engine) PlayerLeft(p Player) {
	id := p.ObjectID()
	e.mu.Lock()
	seqs := make([]*Sequencer, 0, len(e.seqs[id]))
	for s := range e.seqs[id] {
		seqs = append(seqs, s)
	}
	for token, d := range e.dialogs {
		if d.charID == id {
			delete(e.dialogs, token)
		}
	}
	e.mu.Unlock()

	for _, s := range seqs {
		s.Cancel()
	}
	if len(seqs) > 0 {
		e.log.Debug("cancelled sequencers for leaving player",
			zap.Int64("char_id", id), zap.Int("count", len(seqs)))
	}
}

// Stats is a point-in-time view for the admin endpoints.
type Stats struct {
	Parts         int            `json:"parts"`
	Version       uint64         `json:"version"`
	Subscriptions map[string]int `json:"subscriptions"`
	Queued        int            `json:"queued"`
	Sequencers    int            `json:"sequencers"`
	Dialogs       int            `json:"dialogs"`
	Descriptors   int            `json:"descriptors"`
}

func (e *Engine) Stats() Stats {
	subs := make(map[string]int)
	for k, n := range e.rules.Subscriptions() {
		subs[k.String()] = n
	}
	st := Stats{
		Parts:         len(e.rules.Parts()),
		Version:       e.rules.Version(),
		Subscriptions: subs,
		Queued:        e.Pending(),
		Descriptors:   len(e.mgr.Descriptors()),
	}
	e.mu.Lock()
	for _, set := range e.seqs {
		st.Sequencers += len(set)
	}
	st.Dialogs = len(e.dialogs)
	e.mu.Unlock()
	return st
}
