// Package pipeline drives job records through their lifecycle. The
// orchestrator owns the tick loop: it sweeps silence, reaps abandoned
// leases, pulls due records per stage, and dispatches each one through
// the rate gate, its lease, and the stage executor before feeding the
// outcome back into the state machine.
package pipeline

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/db"
	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/pipeline/gate"
	"github.com/teranos/pursuit/pipeline/lifecycle"
	"github.com/teranos/pursuit/pipeline/stage"
)

// Collaborators bundles the external services the stages call. The run
// command wires real backends here; --simulate wires the fakes.
type Collaborators struct {
	Extractor collab.Extractor
	Composer  collab.Composer
	Mail      collab.MailTransport
	Calendar  collab.Calendar
	Inbox     collab.Inbox
}

// Orchestrator is the pipeline daemon. One instance per process; the
// lease holder ID ties in-flight work to this instance so a restart can
// tell its own leases from a crashed predecessor's.
type Orchestrator struct {
	machine  *lifecycle.Machine
	store    *lifecycle.Store
	executor *stage.Executor
	gate     *gate.Gate
	leases   *Leases
	calCache *calendar.Store
	services Collaborators

	policies map[string]stage.Policy
	cons     calendar.Constraints
	sched    am.SchedulingConfig

	workers  int
	interval time.Duration
	grace    time.Duration
	holder   string

	log      *zap.SugaredLogger
	pulseLog *zap.SugaredLogger

	timeNow func() time.Time

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// NewOrchestrator wires the pipeline over an open database. The config
// supplies worker counts, tick cadence, per-stage retry policies, gate
// ceilings, and the scheduling constraints.
func NewOrchestrator(db *sql.DB, cfg *am.Config, services Collaborators, log *zap.SugaredLogger) (*Orchestrator, error) {
	store := lifecycle.NewStore(db)

	machine := lifecycle.NewMachine(store, lifecycle.MachineConfig{
		FollowUpDelay:    time.Duration(cfg.FollowUp.Days) * 24 * time.Hour,
		MaxFollowUps:     cfg.FollowUp.Max,
		ResponsePoll:     time.Duration(cfg.Responses.PollIntervalMinutes) * time.Minute,
		ResponsesEnabled: cfg.Responses.Enabled,
		StaleAfter:       time.Duration(cfg.Pipeline.StaleAfterDays) * 24 * time.Hour,
	}, log)

	sched := cfg.GetSchedulingConfig()
	cons, err := calendar.ConstraintsFromConfig(sched)
	if err != nil {
		return nil, err
	}

	policies := make(map[string]stage.Policy)
	for _, def := range lifecycle.Stages() {
		policies[def.Name] = stage.FromConfig(cfg.StageOrDefault(def.Name))
	}

	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 4
	}
	interval := time.Duration(cfg.Pipeline.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	grace := time.Duration(cfg.Pipeline.LeaseGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 15 * time.Minute
	}

	return &Orchestrator{
		machine:  machine,
		store:    store,
		executor: stage.NewExecutor(log),
		gate:     gate.NewGate(cfg, gate.NewStore(db), log),
		leases:   NewLeases(db),
		calCache: calendar.NewStore(db),
		services: services,
		policies: policies,
		cons:     cons,
		sched:    sched,
		workers:  workers,
		interval: interval,
		grace:    grace,
		holder:   uuid.New().String(),
		log:      log,
		pulseLog: logger.AddPulseSymbol(log),
		timeNow:  time.Now,
	}, nil
}

// Machine exposes the state machine for the CLI paths that share it
// (requeue, status).
func (o *Orchestrator) Machine() *lifecycle.Machine {
	return o.machine
}

// Reconfigure applies the settings that can change while the daemon runs:
// worker count and per-stage retry policies, picked up on the next tick.
// Gate ceilings and scheduling constraints stay fixed until restart.
func (o *Orchestrator) Reconfigure(cfg *am.Config) {
	policies := make(map[string]stage.Policy)
	for _, def := range lifecycle.Stages() {
		policies[def.Name] = stage.FromConfig(cfg.StageOrDefault(def.Name))
	}
	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 4
	}

	o.mu.Lock()
	o.policies = policies
	o.workers = workers
	o.mu.Unlock()

	o.log.Infow("Pipeline reconfigured", "workers", workers)
}

// workerLimit reads the current worker count under the mutex; a config
// reload may change it between ticks.
func (o *Orchestrator) workerLimit() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workers
}

// policyFor reads one stage's current retry policy under the mutex.
func (o *Orchestrator) policyFor(name string) stage.Policy {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.policies[name]
}

// Run loops Tick at the configured interval until the context is
// cancelled. Leases held by a previous run are left alone; their records
// resume once the grace period reaps them.
func (o *Orchestrator) Run(ctx context.Context) error {
	held, err := o.leases.Count(ctx)
	if err != nil {
		return err
	}
	logger.AddPulseOpenSymbol(o.log).Infow("Pipeline daemon starting",
		"interval", o.interval.String(),
		"workers", o.workerLimit(),
		logger.FieldHolder, shortID(o.holder),
	)
	if held > 0 {
		logger.AddPulseOpenSymbol(o.log).Infow("Records leased by a previous run resume after the grace period",
			logger.FieldCount, held,
			"grace", o.grace.String(),
		)
	}
	o.logMemoryPressure()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	if err := o.Tick(ctx); err != nil && ctx.Err() == nil {
		o.pulseLog.Warnw("Tick error", logger.FieldError, err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			logger.AddPulseCloseSymbol(o.log).Infow("Pipeline daemon stopped",
				"ticks", o.Ticks(),
			)
			return nil
		case <-ticker.C:
			if err := o.Tick(ctx); err != nil {
				// Shutdown closes the database out from under an
				// in-flight tick; neither case is worth a warning.
				if ctx.Err() != nil || db.IsDatabaseClosed(err) {
					continue
				}
				o.pulseLog.Warnw("Tick error",
					logger.FieldError, err.Error(),
					"tick", o.Ticks(),
				)
			}
		}
	}
}

// Ticks returns how many ticks have completed since Run started.
func (o *Orchestrator) Ticks() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ticksSinceStart
}

// shortID trims holder and confirmation IDs for log lines.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
