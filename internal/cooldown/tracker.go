// Package cooldown throttles repeated command use per (actor, command) pair.
package cooldown

import (
	"hash/maphash"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const shardCount = 32

// Result is the outcome of a throttle check.
type Result struct {
	Allowed   bool
	Remaining int // whole seconds until the command may be used again
}

type key struct {
	actor   string
	command string
}

type shard struct {
	mu   sync.Mutex
	last map[key]time.Time
}

// Tracker records the last allowed invocation per (actor, command). Checks for
// the same key are serialized so concurrent bursts admit exactly one caller.
type Tracker struct {
	clock  clockwork.Clock
	seed   maphash.Seed
	shards [shardCount]shard

	maxMu       sync.Mutex
	maxCooldown time.Duration
}

// NewTracker returns an empty tracker. A nil clock uses the real clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker{clock: clock, seed: maphash.MakeSeed()}
	for i := range t.shards {
		t.shards[i].last = make(map[key]time.Time)
	}
	return t
}

// CheckAndRecord checks and records an invocation at the tracker's current time.
func (t *Tracker) CheckAndRecord(actor, command string, cooldown time.Duration) Result {
	return t.CheckAndRecordAt(actor, command, cooldown, t.clock.Now())
}

// CheckAndRecordAt allows the invocation and records now when no record exists
// or the cooldown has elapsed. Otherwise it reports the remaining whole seconds,
// rounded up and never less than one. A zero cooldown always allows and
// records nothing.
func (t *Tracker) CheckAndRecordAt(actor, command string, cooldown time.Duration, now time.Time) Result {
	if cooldown <= 0 {
		return Result{Allowed: true}
	}
	t.observe(cooldown)

	k := key{actor: actor, command: command}
	s := t.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.last[k]; ok {
		remainingMs := cooldown.Milliseconds() - now.Sub(last).Milliseconds()
		if remainingMs > 0 {
			secs := int((remainingMs + 999) / 1000)
			if secs < 1 {
				secs = 1
			}
			return Result{Remaining: secs}
		}
	}
	s.last[k] = now
	return Result{Allowed: true}
}

// Sweep drops records older than the longest cooldown seen so far and returns
// how many were removed. Dropped records can no longer throttle anything.
func (t *Tracker) Sweep() int {
	return t.SweepAt(t.clock.Now())
}

// SweepAt is Sweep evaluated at now.
func (t *Tracker) SweepAt(now time.Time) int {
	t.maxMu.Lock()
	horizon := t.maxCooldown
	t.maxMu.Unlock()

	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, last := range s.last {
			if now.Sub(last) >= horizon {
				delete(s.last, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of live records.
func (t *Tracker) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.last)
		s.mu.Unlock()
	}
	return n
}

func (t *Tracker) observe(cooldown time.Duration) {
	t.maxMu.Lock()
	if cooldown > t.maxCooldown {
		t.maxCooldown = cooldown
	}
	t.maxMu.Unlock()
}

func (t *Tracker) shardFor(k key) *shard {
	var h maphash.Hash
	h.SetSeed(t.seed)
	_, _ = h.WriteString(k.actor)
	_ = h.WriteByte(0)
	_, _ = h.WriteString(k.command)
	return &t.shards[h.Sum64()%shardCount]
}
