package handlers

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

func (c *Context) FunctionCreated() Handler {
	return typed(func(ctx context.Context, evt *events.FunctionCreated, _ events.StreamHeader) error {
		if evt.Organization.Type != domain.ObjectTypeOrganization {
			return fmt.Errorf("%w: function organization has type %s", domain.ErrValidation, evt.Organization.Type)
		}
		if evt.Role.Type != domain.ObjectTypeRole {
			return fmt.Errorf("%w: function role has type %s", domain.ErrValidation, evt.Role.Type)
		}
		if _, err := c.Repo.GetProfile(ctx, evt.Organization.ID); err != nil {
			return errors.Wrapf(err, "get organization %s", evt.Organization.ID)
		}
		if _, err := c.Repo.GetRole(ctx, evt.Role.ID); err != nil {
			return errors.Wrapf(err, "get role %s", evt.Role.ID)
		}

		at := c.occurredAt(evt)
		function := domain.Function{
			ID:             evt.ID,
			Name:           evt.Name,
			OrganizationID: evt.Organization.ID,
			RoleID:         evt.Role.ID,
			Source:         evt.Source,
			ExternalIDs:    evt.ExternalIDs,
			Tags:           evt.Tags,
			CreatedAt:      at,
			UpdatedAt:      at,
		}
		subject := function.Container().Ident()
		out := append([]events.EventTuple{
			c.tuples().CreateEvent(subject, &events.FunctionProjected{Function: function}, evt),
		}, c.creationTags(subject, function.Tags, evt)...)

		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.CreateFunction(ctx, function); err != nil {
				return errors.Wrapf(err, "create function %s", function.ID)
			}
			return nil
		})
	})
}

func (c *Context) FunctionDeleted() Handler {
	return typed(func(ctx context.Context, evt *events.FunctionDeleted, _ events.StreamHeader) error {
		function, err := c.Repo.GetFunction(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get function %s", evt.ID)
		}
		out := c.containersDeleted(ctx, []domain.Container{function.Container()}, evt)

		return c.emit(ctx, out, func(ctx context.Context) error {
			if err := c.Repo.DeleteFunction(ctx, function.ID); err != nil {
				return errors.Wrapf(err, "delete function %s", function.ID)
			}
			return nil
		})
	})
}
