// Package engine is the single owner of all reminder, escalation and
// rewards state. Every mutating call takes one lock, applies the domain
// change, and commits the touched records together with the resulting
// events to the outbox in one unit of work; the outbox processor delivers
// the events later, so a slow notification layer never stalls the engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	momentumDomain "github.com/felixgeelhaar/gadfly/internal/momentum/domain"
	nagDomain "github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	"github.com/felixgeelhaar/gadfly/internal/phrases"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	rotationDomain "github.com/felixgeelhaar/gadfly/internal/rotation/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/recordstore"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// Deps are the collaborators of an Engine. Only Store is required in
// practice; the rest default to in-memory or no-op implementations.
type Deps struct {
	Store      recordstore.Store
	UnitOfWork application.UnitOfWork
	Outbox     outbox.Writer
	Phrases    phrases.Provider
	Clock      sharedDomain.Clock
	Metrics    observability.Metrics
	Logger     *slog.Logger
	UserID     uuid.UUID
	// Random replaces the phrase selector's random source.
	Random func(n int) int
}

// Engine is safe for concurrent use; calls are serialized.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	store   recordstore.Store
	uow     application.UnitOfWork
	outbox  outbox.Writer
	phrases phrases.Provider
	clock   sharedDomain.Clock
	metrics observability.Metrics
	logger  *slog.Logger
	userID  uuid.UUID
	random  func(n int) int

	today sharedDomain.Day
	// scopesUnsaved is set while the tracker holds scopes the store has
	// never seen, e.g. the global scope of a fresh engine.
	scopesUnsaved bool
	monitor       *agingDomain.Monitor
	schedule      *nagDomain.Schedule
	tracker       *escalationDomain.Tracker
	goals         map[string]*escalationDomain.Goal
	momentum      *momentumDomain.Tracker
	selector      *rotationDomain.Selector
	ledger        *rewardsDomain.Ledger
}

// New builds an engine with empty state. Call Restore to load the store.
func New(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	if deps.Store == nil {
		deps.Store = recordstore.NewMemoryStore()
	}
	if deps.UnitOfWork == nil {
		deps.UnitOfWork = application.NoopUnitOfWork{}
	}
	if deps.Outbox == nil {
		deps.Outbox = outbox.NewMemoryRepository()
	}
	if deps.Phrases == nil {
		deps.Phrases = phrases.Default()
	}
	if deps.Clock == nil {
		deps.Clock = sharedDomain.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{
		cfg:     cfg,
		store:   deps.Store,
		uow:     deps.UnitOfWork,
		outbox:  deps.Outbox,
		phrases: deps.Phrases,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "engine"),
		userID:  deps.UserID,
		random:  deps.Random,
	}
	e.reset(e.clock.Now())
	return e
}

// Config returns the configuration in use.
func (e *Engine) Config() Config { return e.cfg }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

func (e *Engine) dayOf(t time.Time) sharedDomain.Day {
	return sharedDomain.DayOf(t, e.cfg.Location)
}

func (e *Engine) newSelector() *rotationDomain.Selector {
	var opts []rotationDomain.Option
	if e.random != nil {
		opts = append(opts, rotationDomain.WithRandom(e.random))
	}
	return rotationDomain.NewSelector(e.cfg.RotationWindow, e.cfg.RotationTTL, opts...)
}

// reset replaces all state with a fresh engine as of now.
func (e *Engine) reset(now time.Time) {
	e.today = e.dayOf(now)
	e.monitor = agingDomain.NewMonitor(now)
	e.schedule = nagDomain.NewSchedule(now)
	e.tracker = escalationDomain.NewTracker(e.cfg.Escalation, e.today, now)
	e.scopesUnsaved = true
	e.goals = make(map[string]*escalationDomain.Goal)
	e.momentum = momentumDomain.NewTracker(e.today, e.cfg.Lull)
	e.selector = e.newSelector()
	e.ledger = rewardsDomain.NewLedger(now)
	e.ledger.RefreshDailyChallenges(e.today, e.cfg.Challenges, now)
}

func (e *Engine) aggregates() []sharedDomain.AggregateRoot {
	out := []sharedDomain.AggregateRoot{e.monitor, e.schedule, e.tracker, e.ledger}
	for _, g := range e.goals {
		out = append(out, g)
	}
	return out
}

// discardEvents drops events raised by a change that was rejected.
func (e *Engine) discardEvents() {
	for _, a := range e.aggregates() {
		a.ClearDomainEvents()
	}
}

// commit writes cs and every pending domain event in one unit of work.
// When the write fails the in-memory state is reloaded from the store so
// memory never runs ahead of what was persisted.
func (e *Engine) commit(ctx context.Context, cs *changeset) error {
	events := append(sharedDomain.DrainEvents(e.aggregates()...), cs.events...)
	if len(events) == 0 && cs.empty() {
		return nil
	}
	// The momentum record carries the engine's current day, which restore
	// needs to detect a missed rollover.
	e.stageMomentum(cs)
	if e.scopesUnsaved {
		e.stageScopes(cs)
	}
	application.ApplyEventMetadata(events, application.NewEventMetadata(e.userID, observability.CorrelationIDFromContext(ctx)))

	msgs, err := outbox.NewMessages(events)
	if err == nil {
		err = application.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
			if err := cs.apply(txCtx, e.store); err != nil {
				return err
			}
			if len(msgs) == 0 {
				return nil
			}
			return e.outbox.SaveBatch(txCtx, msgs)
		})
	}
	if err == nil {
		e.scopesUnsaved = false
		return nil
	}

	e.logger.ErrorContext(ctx, "commit failed, reloading state", "error", err)
	if rerr := e.restoreLocked(ctx); rerr != nil {
		e.logger.ErrorContext(ctx, "reload after failed commit", "error", rerr)
	}
	return fmt.Errorf("commit: %w", err)
}

// catchUp runs the daily rollover when the local day moved since the last
// command, e.g. after the device slept through midnight.
func (e *Engine) catchUp(ctx context.Context, now time.Time) error {
	today := e.dayOf(now)
	if !e.today.Before(today) {
		return nil
	}
	cs := newChangeset()
	e.rollover(ctx, today, now, cs)
	return e.commit(ctx, cs)
}

// Restore loads all state from the store, replacing what is in memory.
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restoreLocked(ctx)
}

func (e *Engine) restoreLocked(ctx context.Context) error {
	now := e.clock.Now()
	e.reset(now)
	st, err := loadState(ctx, e.store)
	if err != nil {
		return err
	}

	if st.momentum != nil {
		e.momentum = momentumDomain.RehydrateTracker(*st.momentum, e.cfg.Lull)
		if !st.momentum.Day.IsZero() {
			e.today = st.momentum.Day
		}
	}

	e.schedule = nagDomain.RehydrateSchedule(st.entries, st.permissionLost, now)

	for _, m := range st.mirrors {
		if b, ok := st.blockers[m.ID]; ok {
			b := b
			m.Blocker = &b
		}
		e.monitor.Track(m)
	}

	for _, gs := range st.goals {
		e.goals[gs.ID] = escalationDomain.RehydrateGoal(gs)
	}
	// A store without scopes still dates the global scope from the last
	// day the engine saw, not from today.
	e.tracker = escalationDomain.RehydrateTracker(e.cfg.Escalation, st.scopes, e.today, now)
	e.scopesUnsaved = len(st.scopes) == 0

	for category, spoken := range st.spoken {
		e.selector.Restore(category, spoken)
	}

	if st.ledger != nil || len(st.redemptions) > 0 {
		var ls rewardsDomain.LedgerState
		if st.ledger != nil {
			ls = *st.ledger
		}
		e.ledger = rewardsDomain.RehydrateLedger(ls, st.redemptions, st.challenges[e.today], now)
	}
	if e.ledger.Challenges().Day.IsZero() {
		e.ledger.RefreshDailyChallenges(e.today, e.cfg.Challenges, now)
	}

	e.discardEvents()
	e.logger.InfoContext(ctx, "engine state restored",
		"tasks", e.monitor.Len(),
		"nags", len(st.entries),
		"goals", len(e.goals),
		"day", e.today,
	)
	return nil
}
