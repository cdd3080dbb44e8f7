package inmem

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

// Repository is a process-local read model. Writes made through a ctx
// carrying a unit of work (see InTx) stay private to that unit until it
// succeeds; writes made outside one are applied as a unit of their own.
type Repository struct {
	mu        sync.RWMutex
	writer    *semaphore.Weighted
	committed *store
}

var (
	_ domain.Repository = (*Repository)(nil)
	_ domain.UnitOfWork = (*Repository)(nil)
)

func NewRepository() *Repository {
	return &Repository{
		writer:    semaphore.NewWeighted(1),
		committed: newStore(),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
}

func alreadyExists(kind, id string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrAlreadyExists, kind, id)
}

func (r *Repository) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	p, ok := st.profiles[id]
	if !ok {
		return domain.Profile{}, notFound("profile", id)
	}
	return p, nil
}

func (r *Repository) GetRole(ctx context.Context, id string) (domain.Role, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	role, ok := st.roles[id]
	if !ok {
		return domain.Role{}, notFound("role", id)
	}
	return role, nil
}

func (r *Repository) GetFunction(ctx context.Context, id string) (domain.Function, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	f, ok := st.functions[id]
	if !ok {
		return domain.Function{}, notFound("function", id)
	}
	return f, nil
}

func (r *Repository) GetTag(ctx context.Context, id string) (domain.Tag, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	t, ok := st.tags[id]
	if !ok {
		return domain.Tag{}, notFound("tag", id)
	}
	return t, nil
}

func (r *Repository) CreateProfile(ctx context.Context, profile domain.Profile) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.profiles[profile.ID]; ok {
			return alreadyExists("profile", profile.ID)
		}
		st.profiles[profile.ID] = profile
		return nil
	})
}

func (r *Repository) UpdateProfile(ctx context.Context, profile domain.Profile) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.profiles[profile.ID]; !ok {
			return notFound("profile", profile.ID)
		}
		st.profiles[profile.ID] = profile
		return nil
	})
}

func (r *Repository) CreateRole(ctx context.Context, role domain.Role) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.roles[role.ID]; ok {
			return alreadyExists("role", role.ID)
		}
		st.roles[role.ID] = role
		return nil
	})
}

func (r *Repository) UpdateRole(ctx context.Context, role domain.Role) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.roles[role.ID]; !ok {
			return notFound("role", role.ID)
		}
		st.roles[role.ID] = role
		return nil
	})
}

func (r *Repository) CreateFunction(ctx context.Context, function domain.Function) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.functions[function.ID]; ok {
			return alreadyExists("function", function.ID)
		}
		st.functions[function.ID] = function
		return nil
	})
}

func (r *Repository) UpdateFunction(ctx context.Context, function domain.Function) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.functions[function.ID]; !ok {
			return notFound("function", function.ID)
		}
		st.functions[function.ID] = function
		return nil
	})
}

func (r *Repository) CreateTag(ctx context.Context, tag domain.Tag) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.tags[tag.ID]; ok {
			return alreadyExists("tag", tag.ID)
		}
		st.tags[tag.ID] = tag
		return nil
	})
}

func (r *Repository) DeleteProfile(ctx context.Context, id string) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.profiles[id]; !ok {
			return notFound("profile", id)
		}
		delete(st.profiles, id)
		delete(st.settings, id)
		delete(st.calculated, id)
		st.dropEdges(id)
		return nil
	})
}

func (r *Repository) DeleteRole(ctx context.Context, id string) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.roles[id]; !ok {
			return notFound("role", id)
		}
		delete(st.roles, id)
		st.dropEdges(id)
		return nil
	})
}

func (r *Repository) DeleteFunction(ctx context.Context, id string) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.functions[id]; !ok {
			return notFound("function", id)
		}
		delete(st.functions, id)
		st.dropEdges(id)
		return nil
	})
}

// DeleteTag removes the tag and every assignment of it.
func (r *Repository) DeleteTag(ctx context.Context, id string) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.tags[id]; !ok {
			return notFound("tag", id)
		}
		delete(st.tags, id)
		for pid, p := range st.profiles {
			p.Tags = withoutTags(p.Tags, []string{id})
			st.profiles[pid] = p
		}
		for rid, role := range st.roles {
			role.Tags = withoutTags(role.Tags, []string{id})
			st.roles[rid] = role
		}
		for fid, f := range st.functions {
			f.Tags = withoutTags(f.Tags, []string{id})
			st.functions[fid] = f
		}
		return nil
	})
}

func (st *store) dropEdges(id string) {
	st.assignments = slices.DeleteFunc(st.assignments, func(a domain.Assignment) bool {
		return a.ProfileID == id || a.TargetID == id
	})
}

func (r *Repository) AddTagToProfile(ctx context.Context, profileID string, tags []domain.TagAssignment) error {
	return r.update(ctx, func(st *store) error {
		p, ok := st.profiles[profileID]
		if !ok {
			return notFound("profile", profileID)
		}
		p.Tags = withTags(p.Tags, tags)
		st.profiles[profileID] = p
		return nil
	})
}

func (r *Repository) AddTagToRole(ctx context.Context, roleID string, tags []domain.TagAssignment) error {
	return r.update(ctx, func(st *store) error {
		role, ok := st.roles[roleID]
		if !ok {
			return notFound("role", roleID)
		}
		role.Tags = withTags(role.Tags, tags)
		st.roles[roleID] = role
		return nil
	})
}

func (r *Repository) RemoveTagFromProfile(ctx context.Context, profileID string, tagIDs []string) error {
	return r.update(ctx, func(st *store) error {
		p, ok := st.profiles[profileID]
		if !ok {
			return notFound("profile", profileID)
		}
		p.Tags = withoutTags(p.Tags, tagIDs)
		st.profiles[profileID] = p
		return nil
	})
}

func (r *Repository) RemoveTagFromRole(ctx context.Context, roleID string, tagIDs []string) error {
	return r.update(ctx, func(st *store) error {
		role, ok := st.roles[roleID]
		if !ok {
			return notFound("role", roleID)
		}
		role.Tags = withoutTags(role.Tags, tagIDs)
		st.roles[roleID] = role
		return nil
	})
}

func (r *Repository) GetTagsAssignmentsFromProfile(ctx context.Context, tagIDs []string, profileID string) ([]domain.TagAssignment, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	p, ok := st.profiles[profileID]
	if !ok {
		return nil, notFound("profile", profileID)
	}
	return selectTags(p.Tags, tagIDs), nil
}

func (r *Repository) GetTagsAssignmentsFromRole(ctx context.Context, tagIDs []string, roleID string) ([]domain.TagAssignment, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	role, ok := st.roles[roleID]
	if !ok {
		return nil, notFound("role", roleID)
	}
	return selectTags(role.Tags, tagIDs), nil
}

func (r *Repository) GetAssignedObjectsFromTag(ctx context.Context, tagID string) ([]domain.ObjectIdent, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	var out []domain.ObjectIdent
	for _, p := range st.profiles {
		if len(selectTags(p.Tags, []string{tagID})) > 0 {
			out = append(out, p.Ident())
		}
	}
	for _, role := range st.roles {
		if len(selectTags(role.Tags, []string{tagID})) > 0 {
			out = append(out, role.Container().Ident())
		}
	}
	for _, f := range st.functions {
		if len(selectTags(f.Tags, []string{tagID})) > 0 {
			out = append(out, f.Container().Ident())
		}
	}
	sortIdents(out)
	return out, nil
}

// CreateProfileAssignment adds the edge, merging conditions into an
// existing edge between the same pair.
func (r *Repository) CreateProfileAssignment(ctx context.Context, a domain.Assignment) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.profiles[a.ProfileID]; !ok {
			return notFound("profile", a.ProfileID)
		}
		if !st.exists(a.Target()) {
			return notFound(string(a.TargetType), a.TargetID)
		}
		for i, existing := range st.assignments {
			if existing.ProfileID == a.ProfileID && existing.TargetID == a.TargetID {
				st.assignments[i].Conditions = domain.MergeConditions(existing.Conditions, a.Conditions)
				return nil
			}
		}
		st.assignments = append(st.assignments, a)
		return nil
	})
}

func (r *Repository) DeleteProfileAssignment(ctx context.Context, a domain.Assignment) error {
	return r.update(ctx, func(st *store) error {
		before := len(st.assignments)
		st.assignments = slices.DeleteFunc(st.assignments, func(existing domain.Assignment) bool {
			return existing.ProfileID == a.ProfileID && existing.TargetID == a.TargetID
		})
		if len(st.assignments) == before {
			return notFound("assignment", a.ProfileID+"->"+a.TargetID)
		}
		return nil
	})
}

func (st *store) exists(object domain.ObjectIdent) bool {
	switch object.Type {
	case domain.ObjectTypeRole:
		_, ok := st.roles[object.ID]
		return ok
	case domain.ObjectTypeFunction:
		_, ok := st.functions[object.ID]
		return ok
	case domain.ObjectTypeTag:
		_, ok := st.tags[object.ID]
		return ok
	default:
		_, ok := st.profiles[object.ID]
		return ok
	}
}

func (r *Repository) OrganizationExists(ctx context.Context, externalID, name, displayName string) (bool, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	for _, p := range st.profiles {
		if p.Kind != domain.ProfileKindOrganization {
			continue
		}
		switch {
		case externalID != "":
			for _, ext := range p.ExternalIDs {
				if ext.ID == externalID {
					return true, nil
				}
			}
		case name != "":
			if p.Name == name {
				return true, nil
			}
		case displayName != "":
			if p.DisplayName == displayName {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *Repository) SetUpdatedAt(ctx context.Context, updatedAt time.Time, ids []string) error {
	return r.update(ctx, func(st *store) error {
		for _, id := range ids {
			if p, ok := st.profiles[id]; ok {
				p.UpdatedAt = updatedAt
				st.profiles[id] = p
			}
			if role, ok := st.roles[id]; ok {
				role.UpdatedAt = updatedAt
				st.roles[id] = role
			}
			if f, ok := st.functions[id]; ok {
				f.UpdatedAt = updatedAt
				st.functions[id] = f
			}
		}
		return nil
	})
}

func (r *Repository) SaveProjectionState(ctx context.Context, state domain.ProjectionState) error {
	return r.update(ctx, func(st *store) error {
		st.states[state.StreamName] = state
		return nil
	})
}

// ProjectionState returns the last state saved for stream.
func (r *Repository) ProjectionState(stream string) (domain.ProjectionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.committed.states[stream]
	return s, ok
}

// Assignments returns a copy of every stored edge.
func (r *Repository) Assignments() []domain.Assignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Assignment(nil), r.committed.assignments...)
}

func (r *Repository) ProfileCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.committed.profiles)
}

func withTags(existing, add []domain.TagAssignment) []domain.TagAssignment {
	out := append([]domain.TagAssignment(nil), existing...)
	for _, t := range add {
		replaced := false
		for i := range out {
			if out[i].TagID == t.TagID {
				out[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, t)
		}
	}
	return out
}

func withoutTags(existing []domain.TagAssignment, ids []string) []domain.TagAssignment {
	return slices.DeleteFunc(append([]domain.TagAssignment(nil), existing...), func(t domain.TagAssignment) bool {
		return slices.Contains(ids, t.TagID)
	})
}

func selectTags(existing []domain.TagAssignment, ids []string) []domain.TagAssignment {
	var out []domain.TagAssignment
	for _, t := range existing {
		if slices.Contains(ids, t.TagID) {
			out = append(out, t)
		}
	}
	return out
}

func sortIdents(idents []domain.ObjectIdent) {
	slices.SortFunc(idents, func(a, b domain.ObjectIdent) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.ID, b.ID))
	})
}
