package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

// mergeProperties applies properties to entity as an RFC 7386 merge patch
// over its JSON form.
func mergeProperties[T any](entity T, properties map[string]any) (T, error) {
	var zero T
	doc, err := json.Marshal(entity)
	if err != nil {
		return zero, errors.Wrap(err, "marshal entity")
	}
	patch, err := json.Marshal(properties)
	if err != nil {
		return zero, fmt.Errorf("%w: properties are not valid JSON: %w", domain.ErrValidation, err)
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return zero, fmt.Errorf("%w: apply properties: %w", domain.ErrValidation, err)
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, fmt.Errorf("%w: properties do not fit %T: %w", domain.ErrValidation, entity, err)
	}
	return out, nil
}

// propertiesChanged emits PropertiesChanged at subject and at every object
// displaying it, persists, and bumps UpdatedAt of the objects notified.
func (c *Context) propertiesChanged(ctx context.Context, subject domain.ObjectIdent, properties map[string]any, cause events.DomainEvent, persist func(ctx context.Context) error) error {
	out := []events.EventTuple{
		c.tuples().CreateEvent(subject, &events.PropertiesChanged{
			Object:         subject,
			Source:         subject,
			RelatedContext: domain.RelatedContextSelf,
			Properties:     properties,
		}, cause),
	}
	touched := []string{subject.ID}
	for _, path := range c.Engine.RelevantObjects(ctx, subject).OrDefault() {
		out = append(out, c.tuples().CreateEvent(path.Object, &events.PropertiesChanged{
			Object:         path.Object,
			Source:         subject,
			RelatedContext: path.RelatedContext,
			Properties:     properties,
		}, cause))
		touched = append(touched, path.Object.ID)
	}

	return c.emit(ctx, out, func(ctx context.Context) error {
		if err := persist(ctx); err != nil {
			return err
		}
		if err := c.Repo.SetUpdatedAt(ctx, c.occurredAt(cause), touched); err != nil {
			return errors.Wrap(err, "set updated at")
		}
		return nil
	})
}

func (c *Context) RolePropertiesChanged() Handler {
	return typed(func(ctx context.Context, evt *events.RolePropertiesChanged, _ events.StreamHeader) error {
		role, err := c.Repo.GetRole(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get role %s", evt.ID)
		}
		patched, err := mergeProperties(role, evt.Properties)
		if err != nil {
			return err
		}
		patched.ID, patched.CreatedAt = role.ID, role.CreatedAt

		subject := role.Container().Ident()
		return c.propertiesChanged(ctx, subject, evt.Properties, evt, func(ctx context.Context) error {
			if err := c.Repo.UpdateRole(ctx, patched); err != nil {
				return errors.Wrapf(err, "update role %s", role.ID)
			}
			return nil
		})
	})
}

func (c *Context) FunctionPropertiesChanged() Handler {
	return typed(func(ctx context.Context, evt *events.FunctionPropertiesChanged, _ events.StreamHeader) error {
		function, err := c.Repo.GetFunction(ctx, evt.ID)
		if err != nil {
			return errors.Wrapf(err, "get function %s", evt.ID)
		}
		patched, err := mergeProperties(function, evt.Properties)
		if err != nil {
			return err
		}
		patched.ID, patched.CreatedAt = function.ID, function.CreatedAt
		patched.OrganizationID, patched.RoleID = function.OrganizationID, function.RoleID

		subject := function.Container().Ident()
		return c.propertiesChanged(ctx, subject, evt.Properties, evt, func(ctx context.Context) error {
			if err := c.Repo.UpdateFunction(ctx, patched); err != nil {
				return errors.Wrapf(err, "update function %s", function.ID)
			}
			return nil
		})
	})
}
