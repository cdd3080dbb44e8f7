package handlers

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

func (c *Context) RoleCreated() Handler {
	return typed(func(ctx context.Context, evt *events.RoleCreated, _ events.StreamHeader) error {
		at := c.occurredAt(evt)
		role := domain.Role{
			ID:                evt.ID,
			Name:              evt.Name,
			Description:       evt.Description,
			Permissions:       evt.Permissions,
			DeniedPermissions: evt.DeniedPermissions,
			IsSystem:          evt.IsSystem,
			Source:            evt.Source,
			ExternalIDs:       evt.ExternalIDs,
			Tags:              evt.Tags,
			CreatedAt:         at,
			UpdatedAt:         at,
		}
		subject := role.Container().Ident()
		out := append([]events.EventTuple{
			c.tuples().CreateEvent(subject, &events.RoleProjected{Role: role}, evt),
		}, c.creationTags(subject, role.Tags, evt)...)

		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.CreateRole(ctx, role); err != nil {
				return errors.Wrapf(err, "create role %s", role.ID)
			}
			return nil
		})
	})
}

// RoleDeleted deletes the role together with every function built on it.
func (c *Context) RoleDeleted() Handler {
	return typed(func(ctx context.Context, evt *events.RoleDeleted, _ events.StreamHeader) error {
		role, err := c.Repo.GetRole(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get role %s", evt.ID)
		}
		// Strict: this is the only way to find the role's functions, and
		// deleting the role without them would leave orphans behind.
		related, err := c.Repo.GetAllRelevantObjectsBecauseOfPropertyChanged(ctx, role.Container().Ident())
		if err != nil {
			return errors.Wrapf(err, "get functions of role %s", role.ID)
		}

		entities := []domain.Container{role.Container()}
		var functionIDs []string
		for _, path := range related {
			if path.Object.Type != domain.ObjectTypeFunction {
				continue
			}
			function, err := c.Repo.GetFunction(ctx, path.Object.ID)
			if err != nil {
				return errors.Wrapf(err, "get function %s", path.Object.ID)
			}
			entities = append(entities, function.Container())
			functionIDs = append(functionIDs, function.ID)
		}

		return c.emit(ctx, c.containersDeleted(ctx, entities, evt), func(ctx context.Context) error {
			for _, id := range functionIDs {
				if err := c.Repo.DeleteFunction(ctx, id); err != nil {
					return errors.Wrapf(err, "delete function %s", id)
				}
			}
			if err := c.Repo.DeleteRole(ctx, role.ID); err != nil {
				return errors.Wrapf(err, "delete role %s", role.ID)
			}
			return nil
		})
	})
}

// containersDeleted emits EntityDeleted for every container, then one
// ContainerDeleted per distinct (container, member) pair reached through
// direct members and, for non-user members, their descendants.
func (c *Context) containersDeleted(ctx context.Context, containers []domain.Container, cause events.DomainEvent) []events.EventTuple {
	var out []events.EventTuple
	for _, container := range containers {
		ident := container.Ident()
		out = append(out, c.tuples().CreateEvent(ident, &events.EntityDeleted{ID: container.ID, ObjectType: ident.Type}, cause))
	}

	seen := make(map[string]bool)
	notify := func(container domain.Container, member domain.ObjectIdent) {
		key := container.ID + "|" + member.ID
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c.tuples().CreateEvent(member, &events.ContainerDeleted{
			Container: container,
			MemberID:  member.ID,
		}, cause))
	}
	for _, container := range containers {
		for _, member := range c.Engine.Members(ctx, container.Ident()).OrDefault() {
			notify(container, member)
			if member.Type == domain.ObjectTypeUser {
				continue
			}
			for _, rel := range c.Engine.Descendants(ctx, member).OrDefault() {
				notify(container, rel.Profile.Ident())
			}
		}
	}
	return out
}
