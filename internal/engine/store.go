package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	momentumDomain "github.com/felixgeelhaar/gadfly/internal/momentum/domain"
	nagDomain "github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	rotationDomain "github.com/felixgeelhaar/gadfly/internal/rotation/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/recordstore"
)

// Record collections and singleton keys.
const (
	collNag        = "nagSchedule"
	collEscalation = "escalation"
	collRedemption = "redemptions"
	collChallenges = "dailyChallenges"
	collSpoken     = "recentlySpoken"
	collMirror     = "taskMirror"
	collGoal       = "goal"
	collBlocker    = "blocker"

	keyLedger     = "ledger"
	keyMomentum   = "momentum"
	keyPermission = "nagPermission"
)

func nagKey(taskID string) string              { return recordstore.Key(collNag, taskID) }
func scopeKey(s escalationDomain.Scope) string { return recordstore.Key(collEscalation, s.String()) }
func redemptionKey(id string) string           { return recordstore.Key(collRedemption, id) }
func challengesKey(d sharedDomain.Day) string  { return recordstore.Key(collChallenges, d.String()) }
func spokenKey(category string) string         { return recordstore.Key(collSpoken, category) }
func mirrorKey(taskID string) string           { return recordstore.Key(collMirror, taskID) }
func goalKey(id string) string                 { return recordstore.Key(collGoal, id) }
func blockerKey(taskID string) string          { return recordstore.Key(collBlocker, taskID) }

type permissionRecord struct {
	Lost bool `json:"lost"`
}

// changeset collects the records and extra events of one command.
type changeset struct {
	puts    map[string]any
	deletes map[string]bool
	events  []sharedDomain.DomainEvent
}

func newChangeset() *changeset {
	return &changeset{puts: make(map[string]any), deletes: make(map[string]bool)}
}

func (c *changeset) put(key string, v any) {
	delete(c.deletes, key)
	c.puts[key] = v
}

func (c *changeset) del(key string) {
	delete(c.puts, key)
	c.deletes[key] = true
}

func (c *changeset) emit(event sharedDomain.DomainEvent) {
	c.events = append(c.events, event)
}

func (c *changeset) empty() bool {
	return len(c.puts) == 0 && len(c.deletes) == 0 && len(c.events) == 0
}

func (c *changeset) apply(ctx context.Context, s recordstore.Store) error {
	keys := make([]string, 0, len(c.puts))
	for k := range c.puts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := recordstore.PutJSON(ctx, s, k, c.puts[k]); err != nil {
			return err
		}
	}
	for k := range c.deletes {
		if err := s.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to delete record %s: %w", k, err)
		}
	}
	return nil
}

// Helpers that stage the current in-memory form of an entity.

func (e *Engine) stageEntry(cs *changeset, taskID string) {
	if entry, ok := e.schedule.Get(taskID); ok {
		cs.put(nagKey(taskID), entry)
		return
	}
	cs.del(nagKey(taskID))
}

func (e *Engine) stagePermission(cs *changeset) {
	cs.put(keyPermission, permissionRecord{Lost: e.schedule.PermissionLost()})
}

func (e *Engine) stageMirror(cs *changeset, taskID string) {
	m, ok := e.monitor.Get(taskID)
	if !ok {
		cs.del(mirrorKey(taskID))
		cs.del(blockerKey(taskID))
		return
	}
	stored := *m
	stored.Blocker = nil
	cs.put(mirrorKey(taskID), stored)
	if m.Blocker != nil {
		cs.put(blockerKey(taskID), *m.Blocker)
	} else {
		cs.del(blockerKey(taskID))
	}
}

func (e *Engine) stageScopes(cs *changeset) {
	for _, st := range e.tracker.States() {
		cs.put(scopeKey(st.Scope), st)
	}
}

func (e *Engine) stageGoal(cs *changeset, g *escalationDomain.Goal) {
	cs.put(goalKey(g.ID()), g.Snapshot())
}

func (e *Engine) stageMomentum(cs *changeset) {
	cs.put(keyMomentum, e.momentum.State())
}

func (e *Engine) stageLedger(cs *changeset, redemptionIDs ...string) {
	cs.put(keyLedger, e.ledger.State())
	set := e.ledger.Challenges()
	if !set.Day.IsZero() {
		cs.put(challengesKey(set.Day), set)
	}
	for _, id := range redemptionIDs {
		if r, ok := e.ledger.Redemption(id); ok {
			cs.put(redemptionKey(id), r)
		}
	}
}

func (e *Engine) stageSpoken(cs *changeset) {
	for _, category := range e.selector.Dirty() {
		cs.put(spokenKey(category), e.selector.Window(category))
	}
}

// storedState is everything read back from the store.
type storedState struct {
	entries        []nagDomain.Entry
	permissionLost bool
	mirrors        []*agingDomain.TaskMirror
	blockers       map[string]agingDomain.Blocker
	scopes         []escalationDomain.ScopeState
	goals          []escalationDomain.GoalState
	momentum       *momentumDomain.State
	spoken         map[string][]rotationDomain.Spoken
	ledger         *rewardsDomain.LedgerState
	redemptions    []rewardsDomain.Redemption
	challenges     map[sharedDomain.Day]rewardsDomain.ChallengeSet
}

// loadCollection decodes every record of a collection.
func loadCollection[T any](ctx context.Context, s recordstore.Store, collection string) ([]T, error) {
	keys, err := s.Keys(ctx, recordstore.Collection(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		if err := recordstore.GetJSON(ctx, s, k, &v); err != nil {
			if errors.Is(err, recordstore.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// loadOptional decodes a singleton record; a missing record yields nil.
func loadOptional[T any](ctx context.Context, s recordstore.Store, key string) (*T, error) {
	var v T
	if err := recordstore.GetJSON(ctx, s, key, &v); err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func loadState(ctx context.Context, s recordstore.Store) (*storedState, error) {
	st := &storedState{
		blockers:   make(map[string]agingDomain.Blocker),
		spoken:     make(map[string][]rotationDomain.Spoken),
		challenges: make(map[sharedDomain.Day]rewardsDomain.ChallengeSet),
	}
	var err error

	if st.entries, err = loadCollection[nagDomain.Entry](ctx, s, collNag); err != nil {
		return nil, err
	}
	perm, err := loadOptional[permissionRecord](ctx, s, keyPermission)
	if err != nil {
		return nil, err
	}
	st.permissionLost = perm != nil && perm.Lost

	if st.mirrors, err = loadCollection[*agingDomain.TaskMirror](ctx, s, collMirror); err != nil {
		return nil, err
	}
	blockerKeys, err := s.Keys(ctx, recordstore.Collection(collBlocker))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collBlocker, err)
	}
	for _, k := range blockerKeys {
		var b agingDomain.Blocker
		if err := recordstore.GetJSON(ctx, s, k, &b); err != nil {
			return nil, err
		}
		st.blockers[k[len(recordstore.Collection(collBlocker)):]] = b
	}

	if st.scopes, err = loadCollection[escalationDomain.ScopeState](ctx, s, collEscalation); err != nil {
		return nil, err
	}
	if st.goals, err = loadCollection[escalationDomain.GoalState](ctx, s, collGoal); err != nil {
		return nil, err
	}
	if st.momentum, err = loadOptional[momentumDomain.State](ctx, s, keyMomentum); err != nil {
		return nil, err
	}

	spokenKeys, err := s.Keys(ctx, recordstore.Collection(collSpoken))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collSpoken, err)
	}
	for _, k := range spokenKeys {
		var window []rotationDomain.Spoken
		if err := recordstore.GetJSON(ctx, s, k, &window); err != nil {
			return nil, err
		}
		st.spoken[k[len(recordstore.Collection(collSpoken)):]] = window
	}

	if st.ledger, err = loadOptional[rewardsDomain.LedgerState](ctx, s, keyLedger); err != nil {
		return nil, err
	}
	if st.redemptions, err = loadCollection[rewardsDomain.Redemption](ctx, s, collRedemption); err != nil {
		return nil, err
	}
	sets, err := loadCollection[rewardsDomain.ChallengeSet](ctx, s, collChallenges)
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		st.challenges[set.Day] = set
	}
	return st, nil
}

// pruneChallengeSets deletes stored daily challenge sets older than before.
func (e *Engine) pruneChallengeSets(ctx context.Context, before sharedDomain.Day, cs *changeset) {
	keys, err := e.store.Keys(ctx, recordstore.Collection(collChallenges))
	if err != nil {
		e.logger.WarnContext(ctx, "listing challenge sets failed", "error", err)
		return
	}
	prefix := len(recordstore.Collection(collChallenges))
	for _, k := range keys {
		if sharedDomain.Day(k[prefix:]).Before(before) {
			cs.del(k)
		}
	}
}
