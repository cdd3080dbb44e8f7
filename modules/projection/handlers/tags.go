package handlers

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/pkg/composables"
)

func (c *Context) TagCreated() Handler {
	return typed(func(ctx context.Context, evt *events.TagCreated, _ events.StreamHeader) error {
		tag := domain.Tag{
			ID:        evt.ID,
			Name:      evt.Name,
			Type:      evt.TagType,
			CreatedAt: c.occurredAt(evt),
		}
		if tag.Type == "" {
			tag.Type = domain.TagTypeCustom
		}
		subject := domain.NewObjectIdent(tag.ID, domain.ObjectTypeTag)
		out := []events.EventTuple{
			c.tuples().CreateEvent(subject, &events.TagProjected{Tag: tag}, evt),
		}
		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.CreateTag(ctx, tag); err != nil {
				return errors.Wrapf(err, "create tag %s", tag.ID)
			}
			return nil
		})
	})
}

// TagDeleted removes the tag from every holder before deleting it.
func (c *Context) TagDeleted() Handler {
	return typed(func(ctx context.Context, evt *events.TagDeleted, _ events.StreamHeader) error {
		tag, err := c.Repo.GetTag(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get tag %s", evt.ID)
		}
		holders, err := c.Repo.GetAssignedObjectsFromTag(ctx, tag.ID)
		if err != nil {
			return errors.Wrapf(err, "get holders of tag %s", tag.ID)
		}

		var out []events.EventTuple
		for _, holder := range holders {
			assignments, err := c.tagAssignmentsOf(ctx, holder, []string{tag.ID})
			if err != nil {
				return err
			}
			if len(assignments) == 0 {
				assignments = []domain.TagAssignment{{TagID: tag.ID}}
			}
			out = append(out, c.Engine.TagsRemoved(ctx, holder, assignments, evt)...)
		}
		subject := domain.NewObjectIdent(tag.ID, domain.ObjectTypeTag)
		out = append(out, c.tuples().CreateEvent(subject, &events.EntityDeleted{ID: tag.ID, ObjectType: domain.ObjectTypeTag}, evt))

		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.DeleteTag(ctx, tag.ID); err != nil {
				return errors.Wrapf(err, "delete tag %s", tag.ID)
			}
			return nil
		})
	})
}

func (c *Context) tagAssignmentsOf(ctx context.Context, object domain.ObjectIdent, tagIDs []string) ([]domain.TagAssignment, error) {
	switch object.Type {
	case domain.ObjectTypeRole:
		tags, err := c.Repo.GetTagsAssignmentsFromRole(ctx, tagIDs, object.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "get tags of %s", object)
		}
		return tags, nil
	case domain.ObjectTypeFunction:
		function, err := c.Repo.GetFunction(ctx, object.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "get tags of %s", object)
		}
		var tags []domain.TagAssignment
		for _, t := range function.Tags {
			if slices.Contains(tagIDs, t.TagID) {
				tags = append(tags, t)
			}
		}
		return tags, nil
	default:
		tags, err := c.Repo.GetTagsAssignmentsFromProfile(ctx, tagIDs, object.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "get tags of %s", object)
		}
		return tags, nil
	}
}

func (c *Context) ProfileTagsAdded() Handler {
	return typed(func(ctx context.Context, evt *events.ProfileTagsAdded, _ events.StreamHeader) error {
		profile, err := c.Repo.GetProfile(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get profile %s", evt.ID)
		}
		out := c.Engine.TagsAdded(ctx, profile.Ident(), evt.Tags, evt)
		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.AddTagToProfile(ctx, profile.ID, evt.Tags); err != nil {
				return errors.Wrapf(err, "add tags to profile %s", profile.ID)
			}
			return nil
		})
	})
}

func (c *Context) RoleTagsAdded() Handler {
	return typed(func(ctx context.Context, evt *events.RoleTagsAdded, _ events.StreamHeader) error {
		role, err := c.Repo.GetRole(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get role %s", evt.ID)
		}
		out := c.Engine.TagsAdded(ctx, role.Container().Ident(), evt.Tags, evt)
		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.AddTagToRole(ctx, role.ID, evt.Tags); err != nil {
				return errors.Wrapf(err, "add tags to role %s", role.ID)
			}
			return nil
		})
	})
}

func (c *Context) ProfileTagsRemoved() Handler {
	return typed(func(ctx context.Context, evt *events.ProfileTagsRemoved, _ events.StreamHeader) error {
		profile, err := c.Repo.GetProfile(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get profile %s", evt.ID)
		}
		return c.removeTags(ctx, profile.Ident(), evt.TagIDs, evt, func(ctx context.Context, ids []string) error {
			if err := c.Repo.RemoveTagFromProfile(ctx, profile.ID, ids); err != nil {
				return errors.Wrapf(err, "remove tags from profile %s", profile.ID)
			}
			return nil
		})
	})
}

func (c *Context) RoleTagsRemoved() Handler {
	return typed(func(ctx context.Context, evt *events.RoleTagsRemoved, _ events.StreamHeader) error {
		role, err := c.Repo.GetRole(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get role %s", evt.ID)
		}
		return c.removeTags(ctx, role.Container().Ident(), evt.TagIDs, evt, func(ctx context.Context, ids []string) error {
			if err := c.Repo.RemoveTagFromRole(ctx, role.ID, ids); err != nil {
				return errors.Wrapf(err, "remove tags from role %s", role.ID)
			}
			return nil
		})
	})
}

// removeTags removes the requested tags the subject actually holds. A
// partial match is logged and applied; no match at all aborts the batch.
func (c *Context) removeTags(ctx context.Context, subject domain.ObjectIdent, tagIDs []string, cause events.DomainEvent, persist func(ctx context.Context, ids []string) error) error {
	return c.inBatch(ctx, nil, func(ctx context.Context, b *batch) error {
		found, err := c.tagAssignmentsOf(ctx, subject, tagIDs)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("%w: none of %v is assigned to %s", domain.ErrNothingToRemove, tagIDs, subject)
		}
		if len(found) != len(tagIDs) {
			composables.UseLogger(ctx).WithFields(logrus.Fields{
				"subject":   subject.String(),
				"requested": len(tagIDs),
				"found":     len(found),
				"missing":   missingTagIDs(tagIDs, found),
			}).Warn("some tags requested for removal are not assigned, removing the rest")
		}

		if err := b.Add(ctx, c.Engine.TagsRemoved(ctx, subject, found, cause)...); err != nil {
			return err
		}
		return persist(ctx, domain.TagIDs(found))
	})
}

func missingTagIDs(requested []string, found []domain.TagAssignment) []string {
	var out []string
	for _, id := range requested {
		if !slices.ContainsFunc(found, func(t domain.TagAssignment) bool { return t.TagID == id }) {
			out = append(out, id)
		}
	}
	return out
}
