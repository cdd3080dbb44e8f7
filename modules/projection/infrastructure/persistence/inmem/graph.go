package inmem

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

func (r *Repository) GetAllChildren(ctx context.Context, container domain.ObjectIdent) ([]domain.FirstLevelRelationProfile, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	if !st.exists(container) {
		return nil, notFound(string(container.Type), container.ID)
	}
	return st.descendants(container.ID), nil
}

// descendants walks member edges breadth first. Users end a branch.
func (st *store) descendants(rootID string) []domain.FirstLevelRelationProfile {
	var out []domain.FirstLevelRelationProfile
	visited := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range st.assignments {
			if edge.TargetID != cur || visited[edge.ProfileID] {
				continue
			}
			visited[edge.ProfileID] = true
			p, ok := st.profiles[edge.ProfileID]
			if !ok {
				continue
			}
			relation := domain.RelationIndirectMember
			if cur == rootID {
				relation = domain.RelationDirectMember
			}
			out = append(out, domain.FirstLevelRelationProfile{Profile: p, Relation: relation})
			if p.Kind != domain.ProfileKindUser {
				queue = append(queue, p.ID)
			}
		}
	}
	return out
}

func (r *Repository) GetParents(ctx context.Context, profileID string) ([]domain.Container, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	if _, ok := st.profiles[profileID]; !ok {
		return nil, notFound("profile", profileID)
	}
	var out []domain.Container
	for _, edge := range st.assignments {
		if edge.ProfileID != profileID {
			continue
		}
		if c, ok := st.container(edge.Target()); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Repository) GetContainerMembers(ctx context.Context, container domain.ObjectIdent) ([]domain.ObjectIdent, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	if !st.exists(container) {
		return nil, notFound(string(container.Type), container.ID)
	}
	var out []domain.ObjectIdent
	for _, edge := range st.assignments {
		if edge.TargetID != container.ID {
			continue
		}
		if p, ok := st.profiles[edge.ProfileID]; ok {
			out = append(out, p.Ident())
		}
	}
	return out, nil
}

func (st *store) container(object domain.ObjectIdent) (domain.Container, bool) {
	switch object.Type {
	case domain.ObjectTypeRole:
		role, ok := st.roles[object.ID]
		return role.Container(), ok
	case domain.ObjectTypeFunction:
		f, ok := st.functions[object.ID]
		return f.Container(), ok
	default:
		p, ok := st.profiles[object.ID]
		if !ok || p.Kind == domain.ProfileKindUser {
			return domain.Container{}, false
		}
		return p.Container(), true
	}
}

// GetDifferenceInParentsTrees computes the results before yielding so the
// consumer may call back into the repository.
func (r *Repository) GetDifferenceInParentsTrees(ctx context.Context, parentID string, childIDs []string) iter.Seq2[domain.ParentsTreeDifferenceResult, error] {
	return func(yield func(domain.ParentsTreeDifferenceResult, error) bool) {
		results, err := r.parentsTreeDifference(ctx, parentID, childIDs)
		if err != nil {
			yield(domain.ParentsTreeDifferenceResult{}, err)
			return
		}
		for _, res := range results {
			if !yield(res, nil) {
				return
			}
		}
	}
}

type treeEdge struct {
	child, parent string
	conditions    []domain.RangeCondition
}

func (r *Repository) parentsTreeDifference(ctx context.Context, parentID string, childIDs []string) ([]domain.ParentsTreeDifferenceResult, error) {
	st, unlock := r.read(ctx)
	defer unlock()

	parent, ok := st.profiles[parentID]
	if !ok {
		return nil, notFound("profile", parentID)
	}
	if !parent.Container().Type.IsProfile() {
		return nil, fmt.Errorf("%w: %s cannot own members", domain.ErrUnsupportedType, parent.Kind)
	}

	var extra []treeEdge
	var affected []string
	seen := make(map[string]bool)
	for _, childID := range childIDs {
		if _, ok := st.profiles[childID]; !ok {
			return nil, notFound("profile", childID)
		}
		if !st.hasEdge(childID, parentID) {
			extra = append(extra, treeEdge{child: childID, parent: parentID})
		}
		if !seen[childID] {
			seen[childID] = true
			affected = append(affected, childID)
		}
		for _, rel := range st.descendants(childID) {
			if !seen[rel.Profile.ID] {
				seen[rel.Profile.ID] = true
				affected = append(affected, rel.Profile.ID)
			}
		}
	}

	var out []domain.ParentsTreeDifferenceResult
	for _, id := range affected {
		existing := st.ancestorTree(id, nil)
		have := make(map[string]bool, len(existing))
		for _, rel := range existing {
			have[rel.Child.ID+"|"+rel.Parent.ID] = true
		}
		var missing []domain.TreeEdgeRelation
		for _, rel := range st.ancestorTree(id, extra) {
			if !have[rel.Child.ID+"|"+rel.Parent.ID] {
				missing = append(missing, rel)
			}
		}
		if len(missing) == 0 {
			continue
		}
		p := st.profiles[id]
		out = append(out, domain.ParentsTreeDifferenceResult{
			ReferenceProfileID: id,
			Profile:            p.Container(),
			ProfileTags:        append([]domain.TagAssignment(nil), p.Tags...),
			MissingRelations:   missing,
		})
	}
	return out, nil
}

// ancestorTree returns every group/organization edge above id, plus
// the hypothetical edges in extra.
func (st *store) ancestorTree(id string, extra []treeEdge) []domain.TreeEdgeRelation {
	var out []domain.TreeEdgeRelation
	seenEdge := make(map[string]bool)
	visited := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		child, ok := st.profiles[cur]
		if !ok {
			continue
		}
		for _, edge := range st.profileParentEdges(cur, extra) {
			parent := st.profiles[edge.parent]
			key := cur + "|" + edge.parent
			if seenEdge[key] {
				continue
			}
			seenEdge[key] = true
			out = append(out, domain.TreeEdgeRelation{
				Parent:     parent.Container(),
				Child:      child.Ident(),
				Conditions: edge.conditions,
				ParentTags: append([]domain.TagAssignment(nil), parent.Tags...),
			})
			if !visited[edge.parent] {
				visited[edge.parent] = true
				queue = append(queue, edge.parent)
			}
		}
	}
	return out
}

func (st *store) profileParentEdges(childID string, extra []treeEdge) []treeEdge {
	var out []treeEdge
	for _, a := range st.assignments {
		if a.ProfileID != childID {
			continue
		}
		if p, ok := st.profiles[a.TargetID]; ok && p.Kind != domain.ProfileKindUser {
			out = append(out, treeEdge{child: childID, parent: a.TargetID, conditions: a.Conditions})
		}
	}
	for _, e := range extra {
		if e.child == childID {
			out = append(out, e)
		}
	}
	return out
}

func (st *store) hasEdge(childID, parentID string) bool {
	return slices.ContainsFunc(st.assignments, func(a domain.Assignment) bool {
		return a.ProfileID == childID && a.TargetID == parentID
	})
}

// GetAllRelevantObjectsBecauseOfPropertyChanged lists the objects that
// display data of object. RelatedContext is how object relates to them.
func (r *Repository) GetAllRelevantObjectsBecauseOfPropertyChanged(ctx context.Context, object domain.ObjectIdent) ([]domain.ObjectIdentPath, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	if !st.exists(object) {
		return nil, notFound(string(object.Type), object.ID)
	}

	var out []domain.ObjectIdentPath
	seen := map[string]bool{object.ID: true}
	add := func(target domain.ObjectIdent, rc domain.RelatedContext) {
		if seen[target.ID] {
			return
		}
		seen[target.ID] = true
		out = append(out, domain.ObjectIdentPath{Object: target, RelatedContext: rc})
	}

	if _, ok := st.profiles[object.ID]; ok {
		for _, edge := range st.assignments {
			if edge.ProfileID == object.ID {
				if c, ok := st.container(edge.Target()); ok {
					add(c.Ident(), domain.RelatedContextMember)
				}
			}
		}
		for _, rel := range st.ancestorTree(object.ID, nil) {
			add(rel.Parent.Ident(), domain.RelatedContextIndirectMember)
		}
	}

	for _, edge := range st.assignments {
		if edge.TargetID != object.ID {
			continue
		}
		if p, ok := st.profiles[edge.ProfileID]; ok {
			add(p.Ident(), domain.RelatedContextMemberOf)
		}
	}

	var functions []domain.ObjectIdent
	for _, f := range st.functions {
		switch {
		case object.Type == domain.ObjectTypeOrganization && f.OrganizationID == object.ID,
			object.Type == domain.ObjectTypeRole && f.RoleID == object.ID:
			functions = append(functions, f.Container().Ident())
		}
	}
	sortIdents(functions)
	rc := domain.RelatedContextOrganization
	if object.Type == domain.ObjectTypeRole {
		rc = domain.RelatedContextRole
	}
	for _, f := range functions {
		add(f, rc)
	}
	return out, nil
}
