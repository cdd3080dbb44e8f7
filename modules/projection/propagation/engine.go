package propagation

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/tuples"
	"github.com/iota-uz/profile-projection/pkg/composables"
)

// Engine derives resolved events from graph changes. It only reads from the
// repository; persisting the primary mutation is left to the caller.
type Engine struct {
	repo    domain.Repository
	builder *tuples.Builder
}

func NewEngine(repo domain.Repository, builder *tuples.Builder) *Engine {
	if builder == nil {
		builder = tuples.NewBuilder()
	}
	return &Engine{repo: repo, builder: builder}
}

func (e *Engine) Builder() *tuples.Builder {
	return e.builder
}

// Descendants returns every direct and indirect member of object, each
// profile once. Failures are logged and reported through the lookup status.
func (e *Engine) Descendants(ctx context.Context, object domain.ObjectIdent) Lookup[[]domain.FirstLevelRelationProfile] {
	if object.Type == domain.ObjectTypeUser {
		return Lookup[[]domain.FirstLevelRelationProfile]{Status: LookupEmpty}
	}
	children, err := e.repo.GetAllChildren(ctx, object)
	res := lookupSlice(dedupeRelations(children), err)
	warnOnFault(ctx, res.Status, res.Err, "descendants", object)
	return res
}

// Members returns the direct members of container.
func (e *Engine) Members(ctx context.Context, container domain.ObjectIdent) Lookup[[]domain.ObjectIdent] {
	members, err := e.repo.GetContainerMembers(ctx, container)
	res := lookupSlice(members, err)
	warnOnFault(ctx, res.Status, res.Err, "members", container)
	return res
}

func (e *Engine) Parents(ctx context.Context, profileID string) Lookup[[]domain.Container] {
	parents, err := e.repo.GetParents(ctx, profileID)
	res := lookupSlice(parents, err)
	warnOnFault(ctx, res.Status, res.Err, "parents", domain.ObjectIdent{ID: profileID, Type: domain.ObjectTypeProfile})
	return res
}

func (e *Engine) RelevantObjects(ctx context.Context, object domain.ObjectIdent) Lookup[[]domain.ObjectIdentPath] {
	paths, err := e.repo.GetAllRelevantObjectsBecauseOfPropertyChanged(ctx, object)
	res := lookupSlice(paths, err)
	warnOnFault(ctx, res.Status, res.Err, "relevant_objects", object)
	return res
}

// ResolveType replaces the ambiguous Profile type with the stored kind.
func (e *Engine) ResolveType(ctx context.Context, object domain.ObjectIdent) (domain.ObjectIdent, error) {
	if object.Type != domain.ObjectTypeProfile {
		return object, nil
	}
	p, err := e.repo.GetProfile(ctx, object.ID)
	if err != nil {
		return object, errors.Wrapf(err, "resolve profile type of %s", object.ID)
	}
	return p.Ident(), nil
}

// Container loads the container identified by object.
func (e *Engine) Container(ctx context.Context, object domain.ObjectIdent) (domain.Container, error) {
	switch object.Type {
	case domain.ObjectTypeGroup, domain.ObjectTypeOrganization:
		p, err := e.repo.GetProfile(ctx, object.ID)
		if err != nil {
			return domain.Container{}, errors.Wrapf(err, "get container %s", object)
		}
		return p.Container(), nil
	case domain.ObjectTypeRole:
		r, err := e.repo.GetRole(ctx, object.ID)
		if err != nil {
			return domain.Container{}, errors.Wrapf(err, "get container %s", object)
		}
		return r.Container(), nil
	case domain.ObjectTypeFunction:
		f, err := e.repo.GetFunction(ctx, object.ID)
		if err != nil {
			return domain.Container{}, errors.Wrapf(err, "get container %s", object)
		}
		return f.Container(), nil
	default:
		return domain.Container{}, fmt.Errorf("%w: %s cannot own members", domain.ErrUnsupportedType, object.Type)
	}
}

// hasSettings reports whether any client setting is visible at profileID.
func (e *Engine) hasSettings(ctx context.Context, profileID string, cache map[string]bool) (bool, error) {
	if has, ok := cache[profileID]; ok {
		return has, nil
	}
	settings, err := e.repo.GetCalculatedClientSettings(ctx, profileID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, errors.Wrapf(err, "get client settings of %s", profileID)
	}
	cache[profileID] = len(settings) > 0
	return cache[profileID], nil
}

func warnOnFault(ctx context.Context, status LookupStatus, err error, lookup string, object domain.ObjectIdent) {
	if status != LookupFault {
		return
	}
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"lookup": lookup,
		"object": object.String(),
	}).WithError(err).Warn("propagation: best-effort lookup failed, continuing with empty result")
}

func dedupeRelations(in []domain.FirstLevelRelationProfile) []domain.FirstLevelRelationProfile {
	if len(in) == 0 {
		return in
	}
	index := make(map[string]int, len(in))
	out := make([]domain.FirstLevelRelationProfile, 0, len(in))
	for _, rel := range in {
		if i, ok := index[rel.Profile.ID]; ok {
			if rel.Relation == domain.RelationDirectMember {
				out[i].Relation = domain.RelationDirectMember
			}
			continue
		}
		index[rel.Profile.ID] = len(out)
		out = append(out, rel)
	}
	return out
}

// ProfileSet is an insertion-ordered set of profile ids.
type ProfileSet struct {
	ids  []string
	seen map[string]struct{}
}

func NewProfileSet(ids ...string) *ProfileSet {
	s := &ProfileSet{seen: make(map[string]struct{})}
	s.Add(ids...)
	return s
}

func (s *ProfileSet) Add(ids ...string) {
	for _, id := range ids {
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
}

func (s *ProfileSet) Has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *ProfileSet) IDs() []string {
	return append([]string(nil), s.ids...)
}

func (s *ProfileSet) Len() int {
	return len(s.ids)
}
