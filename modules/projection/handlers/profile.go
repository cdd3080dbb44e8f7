package handlers

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/propagation"
)

func (c *Context) UserCreated() Handler {
	return typed(func(ctx context.Context, evt *events.UserCreated, _ events.StreamHeader) error {
		at := c.occurredAt(evt)
		profile := domain.Profile{
			ID:          evt.ID,
			Kind:        domain.ProfileKindUser,
			Name:        evt.Name,
			DisplayName: evt.DisplayName,
			FirstName:   evt.FirstName,
			LastName:    evt.LastName,
			Email:       evt.Email,
			ExternalIDs: evt.ExternalIDs,
			Source:      evt.Source,
			Tags:        evt.Tags,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		return c.createProfile(ctx, profile, nil, evt)
	})
}

func (c *Context) GroupCreated() Handler {
	return typed(func(ctx context.Context, evt *events.GroupCreated, _ events.StreamHeader) error {
		at := c.occurredAt(evt)
		profile := domain.Profile{
			ID:          evt.ID,
			Kind:        domain.ProfileKindGroup,
			Name:        evt.Name,
			DisplayName: evt.DisplayName,
			Weight:      evt.Weight,
			IsSystem:    evt.IsSystem,
			ExternalIDs: evt.ExternalIDs,
			Source:      evt.Source,
			Tags:        evt.Tags,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		members, err := propagation.NormalizeEdges(profile.Ident(), events.AssignmentChildrenToParent, evt.Members)
		if err != nil {
			return err
		}
		return c.createProfile(ctx, profile, members, evt)
	})
}

// OrganizationCreated serializes creation per soft identity so two events
// for the same organization cannot both pass the existence check.
func (c *Context) OrganizationCreated() Handler {
	return typed(func(ctx context.Context, evt *events.OrganizationCreated, _ events.StreamHeader) error {
		at := c.occurredAt(evt)
		profile := domain.Profile{
			ID:          evt.ID,
			Kind:        domain.ProfileKindOrganization,
			Name:        evt.Name,
			DisplayName: evt.DisplayName,
			Weight:      evt.Weight,
			ExternalIDs: evt.ExternalIDs,
			Source:      evt.Source,
			Tags:        evt.Tags,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		members, err := propagation.NormalizeEdges(profile.Ident(), events.AssignmentChildrenToParent, evt.Members)
		if err != nil {
			return err
		}

		// Under Atomic the key stays held until the unit commits.
		return c.Locks.WithLock(ctx, evt.LockKey(), func(ctx context.Context) error {
			exists, err := c.Repo.OrganizationExists(ctx, evt.FirstExternalID(), evt.Name, evt.DisplayName)
			if err != nil {
				return errors.Wrap(err, "check organization existence")
			}
			if exists {
				return fmt.Errorf("%w: organization %s", domain.ErrAlreadyExists, evt.LockKey())
			}
			return c.createProfile(ctx, profile, members, evt)
		})
	})
}

// createProfile persists profile, then attaches its initial members through
// the assignment engine within the same batch.
func (c *Context) createProfile(ctx context.Context, profile domain.Profile, members []propagation.Edge, cause events.DomainEvent) error {
	subject := profile.Ident()
	initial := append([]events.EventTuple{
		c.tuples().CreateEvent(subject, &events.ProfileProjected{Profile: profile}, cause),
	}, c.creationTags(subject, profile.Tags, cause)...)

	return c.inBatch(ctx, initial, func(ctx context.Context, b *batch) error {
		if err := c.Repo.CreateProfile(ctx, profile); err != nil {
			return errors.Wrapf(err, "create profile %s", profile.ID)
		}
		if len(members) == 0 {
			return nil
		}
		return c.applyEdges(ctx, b, members, nil, cause)
	})
}

func (c *Context) ProfileDeleted() Handler {
	return typed(func(ctx context.Context, evt *events.ProfileDeleted, _ events.StreamHeader) error {
		profile, err := c.Repo.GetProfile(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get profile %s", evt.ID)
		}
		subject := profile.Ident()
		container := profile.Container()

		out := []events.EventTuple{
			c.tuples().CreateEvent(subject, &events.EntityDeleted{ID: profile.ID, ObjectType: subject.Type}, evt),
		}
		for _, rel := range c.Engine.Descendants(ctx, subject).OrDefault() {
			member := rel.Profile.Ident()
			out = append(out, c.tuples().CreateEvent(member, &events.ContainerDeleted{
				Container: container,
				MemberID:  member.ID,
			}, evt))
		}
		for _, parent := range c.Engine.Parents(ctx, profile.ID).OrDefault() {
			out = append(out, c.tuples().CreateEvent(parent.Ident(), &events.MemberDeleted{
				ContainerID: parent.ID,
				MemberID:    profile.ID,
				MemberType:  subject.Type,
			}, evt))
		}

		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.DeleteProfile(ctx, profile.ID); err != nil {
				return errors.Wrapf(err, "delete profile %s", profile.ID)
			}
			return nil
		})
	})
}

func (c *Context) ProfilePropertiesChanged() Handler {
	return typed(func(ctx context.Context, evt *events.ProfilePropertiesChanged, _ events.StreamHeader) error {
		profile, err := c.Repo.GetProfile(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get profile %s", evt.ID)
		}
		patched, err := mergeProperties(profile, evt.Properties)
		if err != nil {
			return err
		}
		patched.ID, patched.Kind, patched.CreatedAt = profile.ID, profile.Kind, profile.CreatedAt
		patched.UpdatedAt = c.occurredAt(evt)

		return c.propertiesChanged(ctx, profile.Ident(), evt.Properties, evt, func(ctx context.Context) error {
			if err := c.Repo.UpdateProfile(ctx, patched); err != nil {
				return errors.Wrapf(err, "update profile %s", profile.ID)
			}
			return nil
		})
	})
}
