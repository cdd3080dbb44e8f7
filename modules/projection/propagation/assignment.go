package propagation

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

// Edge is a membership of Child in Parent.
type Edge struct {
	Parent     domain.ObjectIdent
	Child      domain.ObjectIdent
	Conditions []domain.RangeCondition
}

func (e Edge) Assignment() domain.Assignment {
	return domain.Assignment{
		ProfileID:   e.Child.ID,
		ProfileType: e.Child.Type,
		TargetID:    e.Parent.ID,
		TargetType:  e.Parent.Type,
		Conditions:  e.Conditions,
	}
}

// NormalizeEdges turns the entries of an assignment event into edges. With
// ChildrenToParent the resource is the parent of every entry, with
// ParentsToChild it is the child.
func NormalizeEdges(resource domain.ObjectIdent, direction events.AssignmentType, entries []domain.ConditionObjectIdent) ([]Edge, error) {
	out := make([]Edge, 0, len(entries))
	for _, entry := range entries {
		if err := domain.ValidateConditions(entry.Conditions); err != nil {
			return nil, err
		}
		switch direction {
		case events.AssignmentChildrenToParent:
			out = append(out, Edge{Parent: resource, Child: entry.Ident(), Conditions: entry.Conditions})
		case events.AssignmentParentsToChild:
			out = append(out, Edge{Parent: entry.Ident(), Child: resource, Conditions: entry.Conditions})
		default:
			return nil, fmt.Errorf("%w: assignment type %q", domain.ErrValidation, direction)
		}
	}
	return out, nil
}

// ResolveEdge resolves ambiguous Profile types on both ends and checks that
// the parent can own members and the child is a profile.
func (e *Engine) ResolveEdge(ctx context.Context, edge Edge) (Edge, error) {
	var err error
	if edge.Parent, err = e.ResolveType(ctx, edge.Parent); err != nil {
		return edge, err
	}
	if edge.Child, err = e.ResolveType(ctx, edge.Child); err != nil {
		return edge, err
	}
	if !edge.Parent.Type.IsContainer() {
		return edge, fmt.Errorf("%w: %s cannot own members", domain.ErrUnsupportedType, edge.Parent)
	}
	if !edge.Child.Type.IsProfile() {
		return edge, fmt.Errorf("%w: %s cannot be a member", domain.ErrValidation, edge.Child)
	}
	if edge.Parent == edge.Child {
		return edge, fmt.Errorf("%w: %s cannot be a member of itself", domain.ErrValidation, edge.Child)
	}
	return edge, nil
}

// Outcome is what an assignment change resolves to. Assignment is the edge
// the caller must create or delete.
type Outcome struct {
	Tuples      []events.EventTuple
	Assignment  domain.Assignment
	Recalculate []string
}

// Assign resolves the events caused by adding edge. The edge must already
// be resolved (see ResolveEdge) and must not be persisted yet.
func (e *Engine) Assign(ctx context.Context, edge Edge, cause events.DomainEvent) (Outcome, error) {
	parent, err := e.Container(ctx, edge.Parent)
	if err != nil {
		return Outcome{}, err
	}
	child, err := e.repo.GetProfile(ctx, edge.Child.ID)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "get member %s", edge.Child)
	}

	var out Outcome
	if parent.Type.IsProfile() {
		out, err = e.assignToProfile(ctx, parent, child, edge, cause)
	} else {
		out, err = e.assignToContainer(ctx, parent, child, edge, cause)
	}
	if err != nil {
		return Outcome{}, err
	}
	out.Assignment = edge.Assignment()
	return out, nil
}

// assignToContainer handles roles and functions. Their membership is not
// inherited further, so the child and its descendants each get one edge event.
func (e *Engine) assignToContainer(ctx context.Context, parent domain.Container, child domain.Profile, edge Edge, cause events.DomainEvent) (Outcome, error) {
	var out Outcome

	assignees := []domain.ObjectIdent{child.Ident()}
	for _, rel := range e.Descendants(ctx, child.Ident()).OrDefault() {
		assignees = append(assignees, rel.Profile.Ident())
	}

	for _, assignee := range assignees {
		assigned := events.Assigned{
			ProfileID:  assignee.ID,
			Target:     parent,
			Conditions: edge.Conditions,
		}
		if assignee.ID != child.ID {
			assigned.Via = child.ID
		}
		evt, err := NewWasAssignedTo(assigned)
		if err != nil {
			return Outcome{}, err
		}
		out.Tuples = append(out.Tuples, e.builder.CreateEvent(assignee, evt, cause))
	}

	out.Tuples = append(out.Tuples, e.memberAdded(parent, child, edge, cause))
	return out, nil
}

// assignToProfile handles groups and organizations through the ancestor tree
// difference, which makes re-applying a satisfied assignment silent.
func (e *Engine) assignToProfile(ctx context.Context, parent domain.Container, child domain.Profile, edge Edge, cause events.DomainEvent) (Outcome, error) {
	var out Outcome
	settingsCache := make(map[string]bool)
	directEdgeMissing := false

	for diff, err := range e.repo.GetDifferenceInParentsTrees(ctx, parent.ID, []string{child.ID}) {
		if err != nil {
			return Outcome{}, errors.Wrapf(err, "difference in parents trees of %s", parent.ID)
		}
		if len(diff.MissingRelations) == 0 {
			continue
		}
		target := domain.ObjectIdent{ID: diff.ReferenceProfileID, Type: diff.Profile.Type.ObjectType()}

		var inherited []domain.TagAssignment
		recalculate := false
		for _, rel := range diff.MissingRelations {
			conditions := rel.Conditions
			if rel.Parent.ID == parent.ID && rel.Child.ID == child.ID {
				conditions = edge.Conditions
				if diff.ReferenceProfileID == child.ID {
					directEdgeMissing = true
				}
			}
			assigned := events.Assigned{
				ProfileID:  diff.ReferenceProfileID,
				Target:     rel.Parent,
				Conditions: conditions,
			}
			if rel.Child.ID != diff.ReferenceProfileID {
				assigned.Via = rel.Child.ID
			}
			evt, err := NewWasAssignedTo(assigned)
			if err != nil {
				return Outcome{}, err
			}
			out.Tuples = append(out.Tuples, e.builder.CreateEvent(target, evt, cause))
			inherited = mergeTags(inherited, domain.InheritableTags(rel.ParentTags))

			if !recalculate {
				has, err := e.hasSettings(ctx, rel.Parent.ID, settingsCache)
				if err != nil {
					return Outcome{}, err
				}
				recalculate = has
			}
		}

		if missing := subtractTags(inherited, diff.ProfileTags); len(missing) > 0 {
			out.Tuples = append(out.Tuples, e.builder.CreateEvent(target, &events.TagsAdded{
				Object: target,
				Tags:   missing,
			}, cause))
		}
		if recalculate {
			out.Recalculate = append(out.Recalculate, diff.ReferenceProfileID)
		}
	}

	if directEdgeMissing {
		out.Tuples = append(out.Tuples, e.memberAdded(parent, child, edge, cause))
	}
	return out, nil
}

func (e *Engine) memberAdded(parent domain.Container, child domain.Profile, edge Edge, cause events.DomainEvent) events.EventTuple {
	return e.builder.CreateEvent(parent.Ident(), &events.MemberAdded{
		Container: parent,
		Member: events.Member{
			ID:         child.ID,
			Type:       child.Kind.ObjectType(),
			Name:       child.Name,
			Conditions: edge.Conditions,
		},
	}, cause)
}

// Unassign resolves the events caused by removing edge. The edge must still
// be persisted when this is called.
func (e *Engine) Unassign(ctx context.Context, edge Edge, cause events.DomainEvent) (Outcome, error) {
	parent, err := e.Container(ctx, edge.Parent)
	if err != nil {
		return Outcome{}, err
	}

	affected := []domain.ObjectIdent{edge.Child}
	for _, rel := range e.Descendants(ctx, edge.Child).OrDefault() {
		affected = append(affected, rel.Profile.Ident())
	}

	out := Outcome{Assignment: edge.Assignment()}
	for _, profile := range affected {
		out.Tuples = append(out.Tuples, e.builder.CreateEvent(profile, &events.WasUnassignedFrom{
			ProfileID:  profile.ID,
			Container:  parent,
			Conditions: edge.Conditions,
		}, cause))
	}
	out.Tuples = append(out.Tuples, e.builder.CreateEvent(parent.Ident(), &events.MemberRemoved{
		Container:  parent,
		MemberID:   edge.Child.ID,
		Conditions: edge.Conditions,
	}, cause))

	if parent.Type.IsProfile() {
		has, err := e.hasSettings(ctx, parent.ID, make(map[string]bool))
		if err != nil {
			return Outcome{}, err
		}
		if has {
			for _, profile := range affected {
				out.Recalculate = append(out.Recalculate, profile.ID)
			}
		}
	}
	return out, nil
}
