package propagation_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/infrastructure/persistence/inmem"
	"github.com/iota-uz/profile-projection/modules/projection/propagation"
	"github.com/iota-uz/profile-projection/modules/projection/tuples"
)

var cause = &events.ObjectAssignment{Metadata: events.Metadata{EventID: "cause-1"}}

func ident(id string, t domain.ObjectType) domain.ObjectIdent {
	return domain.NewObjectIdent(id, t)
}

// org o1 (inheritable tag t-org) > group g1 > {u1, group g2 > u2}; g3 > u3 detached.
func seed(t *testing.T) *inmem.Repository {
	t.Helper()
	ctx := context.Background()
	repo := inmem.NewRepository()
	for _, p := range []domain.Profile{
		{ID: "o1", Kind: domain.ProfileKindOrganization, Name: "o1", Tags: []domain.TagAssignment{{TagID: "t-org", IsInheritable: true}}},
		{ID: "g1", Kind: domain.ProfileKindGroup, Name: "g1"},
		{ID: "g2", Kind: domain.ProfileKindGroup, Name: "g2"},
		{ID: "g3", Kind: domain.ProfileKindGroup, Name: "g3"},
		{ID: "u1", Kind: domain.ProfileKindUser, Name: "u1"},
		{ID: "u2", Kind: domain.ProfileKindUser, Name: "u2"},
		{ID: "u3", Kind: domain.ProfileKindUser, Name: "u3"},
	} {
		require.NoError(t, repo.CreateProfile(ctx, p))
	}
	for _, e := range []propagation.Edge{
		{Parent: ident("o1", domain.ObjectTypeOrganization), Child: ident("g1", domain.ObjectTypeGroup)},
		{Parent: ident("g1", domain.ObjectTypeGroup), Child: ident("u1", domain.ObjectTypeUser)},
		{Parent: ident("g1", domain.ObjectTypeGroup), Child: ident("g2", domain.ObjectTypeGroup)},
		{Parent: ident("g2", domain.ObjectTypeGroup), Child: ident("u2", domain.ObjectTypeUser)},
		{Parent: ident("g3", domain.ObjectTypeGroup), Child: ident("u3", domain.ObjectTypeUser)},
	} {
		require.NoError(t, repo.CreateProfileAssignment(ctx, e.Assignment()))
	}
	require.NoError(t, repo.CreateRole(ctx, domain.Role{ID: "r1", Name: "admin"}))
	return repo
}

type summary struct {
	Type   events.ResolvedType
	Stream string
}

func summarize(tuples []events.EventTuple) []summary {
	out := make([]summary, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, summary{Type: t.Event.ResolvedType(), Stream: t.TargetStream})
	}
	return out
}

func countType(tuples []events.EventTuple, prefix string) int {
	n := 0
	for _, t := range tuples {
		if strings.HasPrefix(string(t.Event.ResolvedType()), prefix) {
			n++
		}
	}
	return n
}

func TestAssign_ProfileTargetEmitsTreeDifference(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	require.NoError(t, repo.SetClientSettings(ctx, "o1", []domain.ClientSetting{{Key: "theme", Value: json.RawMessage(`"dark"`)}}))
	engine := propagation.NewEngine(repo, tuples.NewBuilder())

	edge := propagation.Edge{Parent: ident("g1", domain.ObjectTypeGroup), Child: ident("g3", domain.ObjectTypeGroup)}
	out, err := engine.Assign(ctx, edge, cause)
	require.NoError(t, err)

	assert.Equal(t, []summary{
		{events.ResolvedWasAssignedToGroup, "group-g3"},
		{events.ResolvedWasAssignedToOrganization, "group-g3"},
		{events.ResolvedTagsAdded, "group-g3"},
		{events.ResolvedWasAssignedToGroup, "user-u3"},
		{events.ResolvedWasAssignedToOrganization, "user-u3"},
		{events.ResolvedTagsAdded, "user-u3"},
		{events.ResolvedMemberAdded, "group-g1"},
	}, summarize(out.Tuples))
	assert.Equal(t, []string{"g3", "u3"}, out.Recalculate)
	assert.Equal(t, edge.Assignment(), out.Assignment)

	viaGroup := out.Tuples[1].Event.(*events.WasAssignedToOrganization)
	assert.Equal(t, "g3", viaGroup.ProfileID)
	assert.Equal(t, "g1", viaGroup.Via)
	tags := out.Tuples[2].Event.(*events.TagsAdded)
	assert.Equal(t, []domain.TagAssignment{{TagID: "t-org", IsInheritable: true}}, tags.Tags)
}

func TestAssign_IsIdempotentOnceSatisfied(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	engine := propagation.NewEngine(repo, tuples.NewBuilder())

	edge := propagation.Edge{Parent: ident("g1", domain.ObjectTypeGroup), Child: ident("g3", domain.ObjectTypeGroup)}
	first, err := engine.Assign(ctx, edge, cause)
	require.NoError(t, err)
	require.NotZero(t, countType(first.Tuples, "WasAssignedTo"))
	require.NoError(t, repo.CreateProfileAssignment(ctx, first.Assignment))

	again, err := engine.Assign(ctx, edge, cause)
	require.NoError(t, err)
	assert.Zero(t, countType(again.Tuples, "WasAssignedTo"))
	assert.Empty(t, again.Tuples)
	assert.Empty(t, again.Recalculate)
}

func TestAssign_RoleTargetCoversDescendants(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	engine := propagation.NewEngine(repo, tuples.NewBuilder())

	conditions := []domain.RangeCondition{{End: ptr(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))}}
	edge := propagation.Edge{Parent: ident("r1", domain.ObjectTypeRole), Child: ident("g2", domain.ObjectTypeGroup), Conditions: conditions}
	out, err := engine.Assign(ctx, edge, cause)
	require.NoError(t, err)

	assert.Equal(t, []summary{
		{events.ResolvedWasAssignedToRole, "group-g2"},
		{events.ResolvedWasAssignedToRole, "user-u2"},
		{events.ResolvedMemberAdded, "role-r1"},
	}, summarize(out.Tuples))
	assert.Empty(t, out.Recalculate)

	added := out.Tuples[2].Event.(*events.MemberAdded)
	assert.Equal(t, "g2", added.Member.ID)
	assert.Equal(t, conditions, added.Member.Conditions)
	assert.Equal(t, "g2", out.Tuples[1].Event.(*events.WasAssignedToRole).Via)
}

func TestUnassign_MarksDescendantsWhenParentHasSettings(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	require.NoError(t, repo.SetClientSettings(ctx, "g1", []domain.ClientSetting{{Key: "lang", Value: json.RawMessage(`"en"`)}}))
	engine := propagation.NewEngine(repo, tuples.NewBuilder())

	edge := propagation.Edge{Parent: ident("g1", domain.ObjectTypeGroup), Child: ident("g2", domain.ObjectTypeGroup)}
	out, err := engine.Unassign(ctx, edge, cause)
	require.NoError(t, err)

	assert.Equal(t, []summary{
		{events.ResolvedWasUnassignedFrom, "group-g2"},
		{events.ResolvedWasUnassignedFrom, "user-u2"},
		{events.ResolvedMemberRemoved, "group-g1"},
	}, summarize(out.Tuples))
	assert.Equal(t, []string{"g2", "u2"}, out.Recalculate)
}

func TestTagsAdded_PropagatesInheritableSubset(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	engine := propagation.NewEngine(repo, tuples.NewBuilder())

	tags := []domain.TagAssignment{{TagID: "inh", IsInheritable: true}, {TagID: "local"}}
	out := engine.TagsAdded(ctx, ident("g1", domain.ObjectTypeGroup), tags, cause)

	// g1 has three descendants: u1, g2, u2.
	require.Len(t, out, 4)
	assert.Equal(t, tags, out[0].Event.(*events.TagsAdded).Tags)
	for _, tuple := range out[1:] {
		assert.Equal(t, []domain.TagAssignment{{TagID: "inh", IsInheritable: true}}, tuple.Event.(*events.TagsAdded).Tags)
	}

	out = engine.TagsAdded(ctx, ident("g1", domain.ObjectTypeGroup), []domain.TagAssignment{{TagID: "local"}}, cause)
	assert.Len(t, out, 1)
}

func TestTagsRemoved_PropagatesWhenAnyInheritable(t *testing.T) {
	ctx := context.Background()
	engine := propagation.NewEngine(seed(t), tuples.NewBuilder())

	out := engine.TagsRemoved(ctx, ident("g2", domain.ObjectTypeGroup), []domain.TagAssignment{{TagID: "a", IsInheritable: true}, {TagID: "b"}}, cause)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"a", "b"}, out[0].Event.(*events.TagsRemoved).TagIDs)
	assert.Equal(t, []string{"a"}, out[1].Event.(*events.TagsRemoved).TagIDs)
	assert.Equal(t, "user-u2", out[1].TargetStream)
}

type faultyChildren struct {
	*inmem.Repository
}

func (faultyChildren) GetAllChildren(context.Context, domain.ObjectIdent) ([]domain.FirstLevelRelationProfile, error) {
	return nil, errors.New("connection reset")
}

func TestDescendants_FaultDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	engine := propagation.NewEngine(faultyChildren{seed(t)}, tuples.NewBuilder())

	res := engine.Descendants(ctx, ident("g1", domain.ObjectTypeGroup))
	assert.Equal(t, propagation.LookupFault, res.Status)
	assert.Empty(t, res.OrDefault())
	_, err := res.Must()
	require.Error(t, err)

	out := engine.TagsAdded(ctx, ident("g1", domain.ObjectTypeGroup), []domain.TagAssignment{{TagID: "inh", IsInheritable: true}}, cause)
	assert.Len(t, out, 1)
}

func TestDescendants_NotFoundIsNotAFault(t *testing.T) {
	engine := propagation.NewEngine(seed(t), tuples.NewBuilder())
	res := engine.Descendants(context.Background(), ident("ghost", domain.ObjectTypeGroup))
	assert.Equal(t, propagation.LookupNotFound, res.Status)
	_, err := res.Must()
	require.NoError(t, err)
}

func TestRecalculateClientSettings_PairsAndSupersededKeys(t *testing.T) {
	ctx := context.Background()
	repo := seed(t)
	require.NoError(t, repo.SetClientSettings(ctx, "o1", []domain.ClientSetting{
		{Key: "theme", Value: json.RawMessage(`"dark"`), Weight: 5},
		{Key: "lang", Value: json.RawMessage(`"de"`)},
	}))
	require.NoError(t, repo.SetClientSettings(ctx, "g2", []domain.ClientSetting{{Key: "theme", Value: json.RawMessage(`"light"`), Weight: 1}}))
	require.NoError(t, repo.SaveCalculatedClientSettings(ctx, "u2", []domain.ClientSetting{{Key: "theme"}, {Key: "legacy"}}))
	engine := propagation.NewEngine(repo, tuples.NewBuilder())

	out, results, err := engine.RecalculateClientSettings(ctx, []string{"u2", "u1"}, cause)
	require.NoError(t, err)

	assert.Equal(t, []summary{
		{events.ResolvedClientSettingsCalculated, "user-u2"},
		{events.ResolvedClientSettingsInvalidated, "user-u2"},
		{events.ResolvedClientSettingsCalculated, "user-u1"},
		{events.ResolvedClientSettingsInvalidated, "user-u1"},
	}, summarize(out))

	require.Len(t, results, 2)
	u2 := results[0]
	require.Len(t, u2.Settings, 2)
	assert.Equal(t, "lang", u2.Settings[0].Key)
	assert.Equal(t, "theme", u2.Settings[1].Key)
	assert.Equal(t, "g2", u2.Settings[1].ProfileID, "closest origin wins over higher weight")
	assert.Equal(t, []string{"legacy"}, u2.Superseded)
	assert.Equal(t, []string{"legacy"}, out[1].Event.(*events.ClientSettingsInvalidated).Keys)
	assert.Empty(t, results[1].Superseded)
}

func TestResolveSettings_TieBreaks(t *testing.T) {
	got := propagation.ResolveSettings([]domain.ClientSetting{
		{ProfileID: "b", Key: "k", Hops: 1, Weight: 1},
		{ProfileID: "a", Key: "k", Hops: 1, Weight: 3},
		{ProfileID: "c", Key: "k", Hops: 2, Weight: 9},
		{ProfileID: "z", Key: "j", Hops: 1, Weight: 1},
		{ProfileID: "y", Key: "j", Hops: 1, Weight: 1},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "y", got[0].ProfileID)
	assert.Equal(t, "a", got[1].ProfileID)
}

func TestNewWasAssignedTo_Variants(t *testing.T) {
	for containerType, want := range map[domain.ContainerType]events.ResolvedType{
		domain.ContainerTypeGroup:        events.ResolvedWasAssignedToGroup,
		domain.ContainerTypeOrganization: events.ResolvedWasAssignedToOrganization,
		domain.ContainerTypeRole:         events.ResolvedWasAssignedToRole,
		domain.ContainerTypeFunction:     events.ResolvedWasAssignedToFunction,
	} {
		evt, err := propagation.NewWasAssignedTo(events.Assigned{ProfileID: "u1", Target: domain.Container{ID: "c", Type: containerType}})
		require.NoError(t, err)
		assert.Equal(t, want, evt.ResolvedType())
	}

	_, err := propagation.NewWasAssignedTo(events.Assigned{ProfileID: "u1", Target: domain.Container{ID: "c", Type: "User"}})
	require.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestNormalizeEdges(t *testing.T) {
	resource := ident("g1", domain.ObjectTypeGroup)
	entries := []domain.ConditionObjectIdent{{ID: "u1", Type: domain.ObjectTypeUser}}

	edges, err := propagation.NormalizeEdges(resource, events.AssignmentChildrenToParent, entries)
	require.NoError(t, err)
	assert.Equal(t, resource, edges[0].Parent)
	assert.Equal(t, ident("u1", domain.ObjectTypeUser), edges[0].Child)

	edges, err = propagation.NormalizeEdges(resource, events.AssignmentParentsToChild, entries)
	require.NoError(t, err)
	assert.Equal(t, resource, edges[0].Child)

	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	entries[0].Conditions = []domain.RangeCondition{{Start: &start, End: ptr(start.Add(-time.Hour))}}
	_, err = propagation.NormalizeEdges(resource, events.AssignmentChildrenToParent, entries)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestResolveEdge(t *testing.T) {
	ctx := context.Background()
	engine := propagation.NewEngine(seed(t), tuples.NewBuilder())

	edge, err := engine.ResolveEdge(ctx, propagation.Edge{Parent: ident("g1", domain.ObjectTypeProfile), Child: ident("u3", domain.ObjectTypeProfile)})
	require.NoError(t, err)
	assert.Equal(t, ident("g1", domain.ObjectTypeGroup), edge.Parent)
	assert.Equal(t, ident("u3", domain.ObjectTypeUser), edge.Child)

	_, err = engine.ResolveEdge(ctx, propagation.Edge{Parent: ident("u1", domain.ObjectTypeProfile), Child: ident("u3", domain.ObjectTypeUser)})
	require.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = engine.ResolveEdge(ctx, propagation.Edge{Parent: ident("g1", domain.ObjectTypeGroup), Child: ident("g1", domain.ObjectTypeGroup)})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = engine.ResolveEdge(ctx, propagation.Edge{Parent: ident("ghost", domain.ObjectTypeProfile), Child: ident("u1", domain.ObjectTypeUser)})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }
