// Package gate enforces per-destination rate ceilings with sliding
// windows. Capacity: at most C grants inside any window of length W,
// per destination. Denials are free — no side effects, no retry budget
// consumed — and RetryAfter tells the orchestrator when to come back.
package gate

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/logger"
)

// Gate is the shared limiter across all stages. One mutex guards every
// window; acquisition is a memory check plus one insert, so contention
// stays trivial next to the collaborator calls behind it.
type Gate struct {
	mu      sync.Mutex
	windows map[string]*window

	cfg     *am.Config
	store   *Store
	log     *zap.SugaredLogger
	timeNow func() time.Time
}

// window is the in-memory sliding window for one destination.
type window struct {
	ceiling int
	span    time.Duration
	grants  []time.Time // ascending
}

// NewGate creates a gate configured from the [gate.<destination>] config
// sections. A nil store keeps windows in memory only; with a store,
// grants persist to gate_events and windows reload on first touch, so
// limits hold across restarts.
func NewGate(cfg *am.Config, store *Store, log *zap.SugaredLogger) *Gate {
	return NewGateWithClock(cfg, store, log, time.Now)
}

// NewGateWithClock creates a gate with an injectable clock.
func NewGateWithClock(cfg *am.Config, store *Store, log *zap.SugaredLogger, timeNow func() time.Time) *Gate {
	return &Gate{
		windows: make(map[string]*window),
		cfg:     cfg,
		store:   store,
		log:     log,
		timeNow: timeNow,
	}
}

// TryAcquire takes cost units of the destination's window if capacity
// remains, recording who consumed them. Returns false without side
// effects when the window is full.
func (g *Gate) TryAcquire(destination, fingerprint string, cost int) bool {
	if cost <= 0 {
		cost = 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.timeNow()
	w, err := g.windowFor(destination, now)
	if err != nil {
		// Reload failure: enforce from an empty window rather than
		// blocking the pipeline on a read error.
		g.log.Errorw("Gate window reload failed",
			logger.FieldDestination, destination,
			logger.FieldError, err.Error(),
		)
	}
	g.prune(destination, w, now)

	if len(w.grants)+cost > w.ceiling {
		return false
	}

	for i := 0; i < cost; i++ {
		w.grants = append(w.grants, now)
		if g.store != nil {
			if err := g.store.Append(destination, now, fingerprint); err != nil {
				g.log.Errorw("Gate event not persisted",
					logger.FieldDestination, destination,
					logger.FieldError, err.Error(),
				)
			}
		}
	}
	return true
}

// RetryAfter returns how long until the destination frees capacity: zero
// when a grant would succeed now, otherwise the time until the oldest
// in-window grant slides out.
func (g *Gate) RetryAfter(destination string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.timeNow()
	w, err := g.windowFor(destination, now)
	if err != nil {
		g.log.Errorw("Gate window reload failed",
			logger.FieldDestination, destination,
			logger.FieldError, err.Error(),
		)
	}
	g.prune(destination, w, now)

	if len(w.grants) < w.ceiling {
		return 0
	}
	return w.grants[0].Add(w.span).Sub(now)
}

// Stats reports grants used and remaining for a destination.
func (g *Gate) Stats(destination string) (used, remaining int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.timeNow()
	w, _ := g.windowFor(destination, now)
	g.prune(destination, w, now)

	used = len(w.grants)
	remaining = w.ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	return used, remaining
}

// windowFor returns the destination's window, creating it from config and
// persisted events on first touch. Callers hold the mutex.
func (g *Gate) windowFor(destination string, now time.Time) (*window, error) {
	if w, ok := g.windows[destination]; ok {
		return w, nil
	}

	gateCfg := g.cfg.GateOrDefault(destination)
	w := &window{
		ceiling: gateCfg.Ceiling,
		span:    time.Duration(gateCfg.WindowSeconds) * time.Second,
	}
	g.windows[destination] = w

	if g.store == nil {
		return w, nil
	}
	grants, err := g.store.EventsSince(destination, now.Add(-w.span))
	if err != nil {
		return w, err
	}
	w.grants = grants
	g.log.Debugw("Gate window reloaded",
		logger.FieldDestination, destination,
		logger.FieldCount, len(w.grants),
		"ceiling", w.ceiling,
		"window", w.span.String(),
	)
	return w, nil
}

// prune drops grants that have slid out of the window, mirroring the
// removal in gate_events. Callers hold the mutex.
func (g *Gate) prune(destination string, w *window, now time.Time) {
	cutoff := now.Add(-w.span)
	expired := 0
	for _, t := range w.grants {
		if t.After(cutoff) {
			break
		}
		expired++
	}
	if expired == 0 {
		return
	}
	w.grants = w.grants[expired:]

	if g.store != nil {
		if err := g.store.Prune(destination, cutoff); err != nil {
			g.log.Errorw("Gate event prune failed",
				logger.FieldDestination, destination,
				logger.FieldError, err.Error(),
			)
		}
	}
}
