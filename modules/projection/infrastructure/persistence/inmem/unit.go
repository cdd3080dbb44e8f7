package inmem

import (
	"context"
	"maps"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

type store struct {
	profiles    map[string]domain.Profile
	roles       map[string]domain.Role
	functions   map[string]domain.Function
	tags        map[string]domain.Tag
	assignments []domain.Assignment

	settings   map[string]map[string]domain.ClientSetting
	calculated map[string][]domain.ClientSetting
	states     map[string]domain.ProjectionState
}

func newStore() *store {
	return &store{
		profiles:   make(map[string]domain.Profile),
		roles:      make(map[string]domain.Role),
		functions:  make(map[string]domain.Function),
		tags:       make(map[string]domain.Tag),
		settings:   make(map[string]map[string]domain.ClientSetting),
		calculated: make(map[string][]domain.ClientSetting),
		states:     make(map[string]domain.ProjectionState),
	}
}

// clone copies every map and slice a write can touch. Slices held by
// entities are never modified in place, so they are shared.
func (st *store) clone() *store {
	out := &store{
		profiles:    maps.Clone(st.profiles),
		roles:       maps.Clone(st.roles),
		functions:   maps.Clone(st.functions),
		tags:        maps.Clone(st.tags),
		assignments: append([]domain.Assignment(nil), st.assignments...),
		settings:    make(map[string]map[string]domain.ClientSetting, len(st.settings)),
		calculated:  maps.Clone(st.calculated),
		states:      maps.Clone(st.states),
	}
	for id, raw := range st.settings {
		out.settings[id] = maps.Clone(raw)
	}
	return out
}

type unitKey struct {
	r *Repository
}

func (r *Repository) unit(ctx context.Context) (*store, bool) {
	st, ok := ctx.Value(unitKey{r}).(*store)
	return st, ok
}

// InTx runs fn as one unit of work. Reads through the ctx passed to fn see
// the unit's own writes; everyone else sees the last committed state until
// fn returns nil. A failed fn leaves the repository untouched. Units are
// serialized and a nested call joins the enclosing unit.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := r.unit(ctx); ok {
		return fn(ctx)
	}
	if err := r.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.writer.Release(1)

	r.mu.RLock()
	work := r.committed.clone()
	r.mu.RUnlock()

	if err := fn(context.WithValue(ctx, unitKey{r}, work)); err != nil {
		return err
	}
	r.mu.Lock()
	r.committed = work
	r.mu.Unlock()
	return nil
}

// read returns the state visible to ctx, locked for reading.
func (r *Repository) read(ctx context.Context) (*store, func()) {
	r.mu.RLock()
	if st, ok := r.unit(ctx); ok {
		return st, r.mu.RUnlock
	}
	return r.committed, r.mu.RUnlock
}

func (r *Repository) update(ctx context.Context, fn func(st *store) error) error {
	return r.InTx(ctx, func(ctx context.Context) error {
		st, _ := r.unit(ctx)
		r.mu.Lock()
		defer r.mu.Unlock()
		return fn(st)
	})
}
