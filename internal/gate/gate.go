package gate

import "sync"

// Recorder observes gate lifecycle events. Implementations must not call
// back into the gate.
type Recorder interface {
	RecordInitialized(identity string, intervalSec uint32)
	RecordTriggered(identity string, expiry uint64)
}

// Gate enforces a per-identity cooldown around protected operations.
// Accounting is attributed to the root caller: when a protected body
// re-enters the gate before returning, the nested call is charged to
// whoever opened the outermost call, so a caller cannot dodge its own
// cooldown by re-entering through another identity.
//
// Reentrancy is synchronous nesting within one logical call tree. The
// mutex guards the short check/trigger and cleanup sections only and is
// never held while the protected body runs.
type Gate struct {
	mu          sync.Mutex
	clock       Clock
	recorder    Recorder
	intervalSec uint32
	initialized bool
	expiry      map[string]uint64
	root        string
	depth       int
}

func New(clock Clock, recorder Recorder) *Gate {
	if clock == nil {
		clock = SystemClock()
	}
	return &Gate{
		clock:    clock,
		recorder: recorder,
		expiry:   make(map[string]uint64),
	}
}

// Init fixes the cooldown interval. It succeeds at most once per gate;
// the interval is immutable afterwards.
func (g *Gate) Init(initiator string, intervalSec uint32) error {
	g.mu.Lock()
	if intervalSec == 0 {
		g.mu.Unlock()
		return ErrZeroInterval
	}
	if g.initialized {
		g.mu.Unlock()
		return ErrAlreadyInitialized
	}
	g.intervalSec = intervalSec
	g.initialized = true
	g.mu.Unlock()

	if g.recorder != nil {
		g.recorder.RecordInitialized(initiator, intervalSec)
	}
	return nil
}

// Do runs fn under cooldown enforcement for identity. The expiry for the
// effective identity is advanced before fn runs, so a body that fails
// afterwards has still spent its cooldown, and a body that re-enters the
// gate sees the updated expiry. An expiry equal to the current time does
// not block: the identity is usable again exactly at its expiry second.
func (g *Gate) Do(identity string, fn func() error) error {
	g.mu.Lock()
	if !g.initialized {
		g.mu.Unlock()
		return ErrUninitialized
	}
	top := g.depth == 0
	if top {
		g.root = identity
	}
	effective := g.root
	now := g.clock.Now()
	if exp, ok := g.expiry[effective]; ok && exp > now {
		if top {
			g.root = ""
		}
		g.mu.Unlock()
		return &CooldownError{Root: effective, Caller: identity, Expiry: exp}
	}
	newExpiry := now + uint64(g.intervalSec)
	g.expiry[effective] = newExpiry
	g.depth++
	g.mu.Unlock()

	// Cleanup must run on every exit path, panics included, or the root
	// slot stays occupied and wedges the gate for all identities.
	defer func() {
		g.mu.Lock()
		g.depth--
		if top {
			g.root = ""
		}
		g.mu.Unlock()
	}()

	if g.recorder != nil {
		g.recorder.RecordTriggered(effective, newExpiry)
	}
	return fn()
}

func (g *Gate) IsInitialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialized
}

// Interval reports the configured cooldown interval in seconds, zero
// before initialization.
func (g *Gate) Interval() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intervalSec
}

// Expiry reports the absolute expiry recorded for identity. ok is false
// for identities that never triggered the gate.
func (g *Gate) Expiry(identity string) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, ok := g.expiry[identity]
	return exp, ok
}

// RootCaller reports the identity that opened the currently running
// outermost protected call, or false when the gate is idle. Diagnostics
// only.
func (g *Gate) RootCaller() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth == 0 {
		return "", false
	}
	return g.root, true
}
