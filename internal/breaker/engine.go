package breaker

import (
	"sync"
	"time"

	"flowguard/internal/clock"
)

// Config holds the window parameters shared by every limiter the engine
// tracks.
type Config struct {
	// Window is the trailing duration over which net change is evaluated.
	Window time.Duration
	// Tick is the coarsening granularity for bucketing timestamps. Bounding
	// the bucket count per window to Window/Tick bounds eviction cost.
	Tick time.Duration
	// GateIncludesWindow selects whether the in-window total contributes to
	// the enforcement gate alongside the settled total.
	GateIncludesWindow bool
}

const (
	// DefaultWindow is used when Config.Window is zero.
	DefaultWindow = 24 * time.Hour
	// DefaultTick is used when Config.Tick is zero.
	DefaultTick = time.Hour
)

// Engine is the per-identifier limiter registry. Each identifier owns an
// independent tracker guarded by its own lock, so different identifiers are
// processed fully in parallel; the engine lock only guards the registry map.
type Engine struct {
	window int64 // seconds
	tick   int64 // seconds
	gate   bool

	clk clock.Clock

	mu       sync.RWMutex
	limiters map[string]*limiter
}

// NewEngine creates an engine with the given window configuration. Zero
// window or tick values fall back to the defaults.
func NewEngine(cfg Config, clk clock.Clock) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Engine{
		window:   int64(cfg.Window / time.Second),
		tick:     int64(cfg.Tick / time.Second),
		gate:     cfg.GateIncludesWindow,
		clk:      clk,
		limiters: make(map[string]*limiter),
	}
}

// Create initializes a limiter for the identifier. The limiter is written
// fully or not at all: a failed create leaves no observable state.
func (e *Engine) Create(identifier string, minRetainedBps, limitBeginThreshold int64) error {
	if minRetainedBps <= 0 || minRetainedBps > BpsDenominator {
		return ErrInvalidThreshold
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.limiters[identifier]; exists {
		return ErrAlreadyInitialized
	}
	e.limiters[identifier] = &limiter{
		minRetainedBps:      minRetainedBps,
		limitBeginThreshold: limitBeginThreshold,
		buckets:             make(map[int64]*tickBucket),
	}
	return nil
}

// Reconfigure overwrites the threshold fields of an existing limiter. The
// accumulated totals and the bucket chain are left untouched.
func (e *Engine) Reconfigure(identifier string, minRetainedBps, limitBeginThreshold int64) error {
	if minRetainedBps <= 0 || minRetainedBps > BpsDenominator {
		return ErrInvalidThreshold
	}
	l := e.get(identifier)
	if l == nil {
		return ErrNotInitialized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minRetainedBps = minRetainedBps
	l.limitBeginThreshold = limitBeginThreshold
	return nil
}

// IsInitialized reports whether a limiter exists for the identifier.
func (e *Engine) IsInitialized(identifier string) bool {
	return e.get(identifier) != nil
}

// SetOverridden toggles the manual bypass. While set, Status always reports
// Ok regardless of the computed breach.
func (e *Engine) SetOverridden(identifier string, overridden bool) error {
	l := e.get(identifier)
	if l == nil {
		return ErrNotInitialized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overridden = overridden
	return nil
}

// RecordChange ingests a signed flow delta for the identifier and returns the
// status evaluated after the change. Untracked identifiers are silently
// ignored so instrumentation can be added unconditionally; tracked reports
// whether a limiter exists.
func (e *Engine) RecordChange(identifier string, amount int64) (status Status, tracked bool) {
	l := e.get(identifier)
	if l == nil {
		return StatusUninitialized, false
	}
	now := e.clk.Now().Unix()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(now, e.tick, e.window, amount)
	return l.status(e.gate), true
}

// Sync evicts buckets older than the window from the identifier's chain,
// bounded by maxIterations per call (0 = unbounded). Returns the number of
// buckets evicted. Exhausting the budget is not an error; the chain stays
// valid and a follow-up call clears the remaining backlog.
func (e *Engine) Sync(identifier string, maxIterations int) (int, error) {
	l := e.get(identifier)
	if l == nil {
		return 0, ErrNotInitialized
	}
	now := e.clk.Now().Unix()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evict(now, e.window, maxIterations), nil
}

// Status evaluates the identifier's limiter without mutating it. It never
// evicts, so a status query needs no write access.
func (e *Engine) Status(identifier string) Status {
	l := e.get(identifier)
	if l == nil {
		return StatusUninitialized
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status(e.gate)
}

// BucketSnapshot is one bucket of a diagnostic snapshot.
type BucketSnapshot struct {
	Timestamp int64 `json:"timestamp"`
	Delta     int64 `json:"delta"`
}

// Snapshot is a read-only copy of a limiter's aggregate state and bucket
// chain, head to tail.
type Snapshot struct {
	MinRetainedBps      int64            `json:"min_retained_bps"`
	LimitBeginThreshold int64            `json:"limit_begin_threshold"`
	SettledTotal        int64            `json:"settled_total"`
	InWindowTotal       int64            `json:"in_window_total"`
	ListHead            int64            `json:"list_head"`
	ListTail            int64            `json:"list_tail"`
	Overridden          bool             `json:"overridden"`
	Buckets             []BucketSnapshot `json:"buckets"`
}

// Snapshot returns a diagnostic copy of the limiter state, or false when the
// identifier is untracked.
func (e *Engine) Snapshot(identifier string) (Snapshot, bool) {
	l := e.get(identifier)
	if l == nil {
		return Snapshot{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{
		MinRetainedBps:      l.minRetainedBps,
		LimitBeginThreshold: l.limitBeginThreshold,
		SettledTotal:        l.settledTotal,
		InWindowTotal:       l.inWindowTotal,
		ListHead:            l.listHead,
		ListTail:            l.listTail,
		Overridden:          l.overridden,
	}
	for key := l.listHead; key != 0; {
		b, ok := l.buckets[key]
		if !ok {
			break
		}
		snap.Buckets = append(snap.Buckets, BucketSnapshot{Timestamp: key, Delta: b.delta})
		key = b.next
	}
	return snap, true
}

// Identifiers returns the tracked identifiers in no particular order.
func (e *Engine) Identifiers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.limiters))
	for id := range e.limiters {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) get(identifier string) *limiter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limiters[identifier]
}
