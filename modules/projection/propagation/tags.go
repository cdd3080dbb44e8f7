package propagation

import (
	"context"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

// TagsAdded emits TagsAdded at subject and, for the inheritable subset, at
// every descendant of subject.
func (e *Engine) TagsAdded(ctx context.Context, subject domain.ObjectIdent, tags []domain.TagAssignment, cause events.DomainEvent) []events.EventTuple {
	if len(tags) == 0 {
		return nil
	}
	out := []events.EventTuple{
		e.builder.CreateEvent(subject, &events.TagsAdded{Object: subject, Tags: tags}, cause),
	}

	inheritable := domain.InheritableTags(tags)
	if len(inheritable) == 0 {
		return out
	}
	for _, rel := range e.Descendants(ctx, subject).OrDefault() {
		target := rel.Profile.Ident()
		out = append(out, e.builder.CreateEvent(target, &events.TagsAdded{
			Object: target,
			Tags:   append([]domain.TagAssignment(nil), inheritable...),
		}, cause))
	}
	return out
}

// TagsRemoved mirrors TagsAdded for the removed assignments.
func (e *Engine) TagsRemoved(ctx context.Context, subject domain.ObjectIdent, removed []domain.TagAssignment, cause events.DomainEvent) []events.EventTuple {
	if len(removed) == 0 {
		return nil
	}
	out := []events.EventTuple{
		e.builder.CreateEvent(subject, &events.TagsRemoved{Object: subject, TagIDs: domain.TagIDs(removed)}, cause),
	}

	inheritable := domain.InheritableTags(removed)
	if len(inheritable) == 0 {
		return out
	}
	ids := domain.TagIDs(inheritable)
	for _, rel := range e.Descendants(ctx, subject).OrDefault() {
		target := rel.Profile.Ident()
		out = append(out, e.builder.CreateEvent(target, &events.TagsRemoved{
			Object: target,
			TagIDs: append([]string(nil), ids...),
		}, cause))
	}
	return out
}

func mergeTags(base, add []domain.TagAssignment) []domain.TagAssignment {
	for _, t := range add {
		if !containsTag(base, t.TagID) {
			base = append(base, t)
		}
	}
	return base
}

func subtractTags(tags, present []domain.TagAssignment) []domain.TagAssignment {
	var out []domain.TagAssignment
	for _, t := range tags {
		if !containsTag(present, t.TagID) {
			out = append(out, t)
		}
	}
	return out
}

func containsTag(tags []domain.TagAssignment, id string) bool {
	for _, t := range tags {
		if t.TagID == id {
			return true
		}
	}
	return false
}
