package quest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const rulesetSubscriber = "quest.ruleset"

// snapshot is one immutable version of the registered parts.
type snapshot struct {
	version uint64
	parts   []*Part
	byKind  map[EventKind][]*Part
}

func newSnapshot(version uint64, parts []*Part) *snapshot {
	s := &snapshot{version: version, parts: parts, byKind: make(map[EventKind][]*Part)}
	for _, p := range parts {
		for _, k := range p.events() {
			s.byKind[k] = append(s.byKind[k], p)
		}
	}
	return s
}

// Ruleset is the process-wide set of registered parts. Writers serialise on
// a mutex and publish a fresh snapshot; dispatch reads the current snapshot
// without locking, so parts may be registered or removed mid-dispatch.
type Ruleset struct {
	eng *Engine

	mu   sync.Mutex
	refs map[EventKind]int
	snap atomic.Pointer[snapshot]
}

func newRuleset(eng *Engine) *Ruleset {
	r := &Ruleset{eng: eng, refs: make(map[EventKind]int)}
	r.snap.Store(newSnapshot(0, nil))
	return r
}

// Register adds parts in order. Parts already registered are skipped.
func (r *Ruleset) Register(parts ...*Part) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(parts)
}

func (r *Ruleset) register(parts []*Part) {
	cur := r.snap.Load()
	next := append([]*Part(nil), cur.parts...)
	changed := false
	for _, p := range parts {
		if p == nil || !p.registered.CompareAndSwap(false, true) {
			continue
		}
		next = append(next, p)
		for _, k := range p.events() {
			r.retain(k)
		}
		changed = true
	}
	if changed {
		r.snap.Store(newSnapshot(cur.version+1, next))
	}
}

// Unregister removes parts. Parts that are not registered are ignored.
func (r *Ruleset) Unregister(parts ...*Part) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregister(parts)
}

func (r *Ruleset) unregister(parts []*Part) {
	drop := make(map[*Part]bool)
	for _, p := range parts {
		if p != nil && p.registered.CompareAndSwap(true, false) {
			drop[p] = true
			for _, k := range p.events() {
				r.release(k)
			}
		}
	}
	if len(drop) == 0 {
		return
	}
	cur := r.snap.Load()
	next := make([]*Part, 0, len(cur.parts))
	for _, p := range cur.parts {
		if !drop[p] {
			next = append(next, p)
		}
	}
	r.snap.Store(newSnapshot(cur.version+1, next))
}

// Replace swaps the whole rule set, as a content reload does.
func (r *Ruleset) Replace(parts []*Part) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregister(r.snap.Load().parts)
	r.register(parts)
}

// Parts returns the registered parts in registration order.
func (r *Ruleset) Parts() []*Part {
	return append([]*Part(nil), r.snap.Load().parts...)
}

// Version increases with every change to the rule set.
func (r *Ruleset) Version() uint64 { return r.snap.Load().version }

// Subscriptions returns how many registered parts listen on each event kind.
func (r *Ruleset) Subscriptions() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[EventKind]int, len(r.refs))
	for k, n := range r.refs {
		out[k] = n
	}
	return out
}

// retain and release keep one bus subscription per event kind in use.
func (r *Ruleset) retain(k EventKind) {
	r.refs[k]++
	if r.refs[k] == 1 {
		r.eng.bus.Subscribe(k.String(), 0, rulesetSubscriber, r.handle)
	}
}

func (r *Ruleset) release(k EventKind) {
	r.refs[k]--
	if r.refs[k] <= 0 {
		delete(r.refs, k)
		r.eng.bus.Unsubscribe(k.String(), rulesetSubscriber)
	}
}

func (r *Ruleset) handle(_ context.Context, _ string, _, payload any) error {
	ev, ok := payload.(Event)
	if !ok {
		return fmt.Errorf("ruleset: unexpected payload %T", payload)
	}
	r.notify(ev)
	return nil
}

// notify evaluates every part listening on the event for each player the
// event concerns, in registration order.
func (r *Ruleset) notify(ev Event) {
	parts := r.snap.Load().byKind[ev.Kind()]
	if len(parts) == 0 {
		return
	}
	for _, p := range r.subjects(ev) {
		if p == nil || !p.Online() {
			continue
		}
		for _, part := range parts {
			part.Notify(&Context{Event: ev, Player: p, Part: part, eng: r.eng})
		}
	}
}

func (r *Ruleset) subjects(ev Event) []Player {
	switch e := ev.(type) {
	case subjectEvent:
		if p := e.subject(); p != nil {
			return []Player{p}
		}
	case DyingEvent:
		if e.Living != nil {
			return r.eng.world.PlayersInRadius(e.Living, r.eng.opts.VisibilityDistance)
		}
	}
	return nil
}
