package handlers

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/propagation"
)

func (c *Context) ProfileClientSettingsSet() Handler {
	return typed(func(ctx context.Context, evt *events.ProfileClientSettingsSet, _ events.StreamHeader) error {
		profile, err := c.Repo.GetProfile(ctx, evt.ProfileID)
		if err != nil {
			return errors.Wrapf(err, "get profile %s", evt.ProfileID)
		}
		return c.inBatch(ctx, nil, func(ctx context.Context, b *batch) error {
			affected, err := c.setClientSetting(ctx, b, profile, evt.Key, evt.Value, evt)
			if err != nil {
				return err
			}
			return c.recalculate(ctx, b, affected.IDs(), evt)
		})
	})
}

func (c *Context) ProfileClientSettingsSetBatch() Handler {
	return typed(func(ctx context.Context, evt *events.ProfileClientSettingsSetBatch, _ events.StreamHeader) error {
		profiles := make([]domain.Profile, 0, len(evt.Resources))
		for _, resource := range evt.Resources {
			resolved, err := c.Engine.ResolveType(ctx, resource)
			if err != nil {
				return err
			}
			if !resolved.Type.IsProfile() {
				return fmt.Errorf("%w: client settings cannot be set on %s", domain.ErrUnsupportedType, resolved)
			}
			profile, err := c.Repo.GetProfile(ctx, resolved.ID)
			if err != nil {
				return errors.Wrapf(err, "get profile %s", resolved.ID)
			}
			profiles = append(profiles, profile)
		}

		return c.inBatch(ctx, nil, func(ctx context.Context, b *batch) error {
			affected := propagation.NewProfileSet()
			for _, profile := range profiles {
				ids, err := c.setClientSetting(ctx, b, profile, evt.Key, evt.Value, evt)
				if err != nil {
					return err
				}
				affected.Add(ids.IDs()...)
			}
			return c.recalculate(ctx, b, affected.IDs(), evt)
		})
	})
}

func (c *Context) ProfileClientSettingsDeleted() Handler {
	return typed(func(ctx context.Context, evt *events.ProfileClientSettingsDeleted, _ events.StreamHeader) error {
		profile, err := c.Repo.GetProfile(ctx, evt.ProfileID)
		if err != nil {
			return errors.Wrapf(err, "get profile %s", evt.ProfileID)
		}
		return c.inBatch(ctx, nil, func(ctx context.Context, b *batch) error {
			if err := c.Repo.DeleteClientSetting(ctx, profile.ID, evt.Key); err != nil {
				return errors.Wrapf(err, "delete client setting %s of %s", evt.Key, profile.ID)
			}
			return c.recalculate(ctx, b, c.withDescendants(ctx, profile).IDs(), evt)
		})
	})
}

// setClientSetting stores the raw setting and returns the profiles whose
// effective settings may change.
func (c *Context) setClientSetting(ctx context.Context, b *batch, profile domain.Profile, key string, value []byte, cause events.DomainEvent) (*propagation.ProfileSet, error) {
	setting := domain.ClientSetting{
		ProfileID: profile.ID,
		Key:       key,
		Value:     value,
		Weight:    profile.Weight,
	}
	err := b.Add(ctx, c.tuples().CreateEvent(profile.Ident(), &events.ClientSettingsSet{
		ProfileID: profile.ID,
		Key:       key,
		Value:     value,
	}, cause))
	if err != nil {
		return nil, err
	}
	if err := c.Repo.SetClientSettings(ctx, profile.ID, []domain.ClientSetting{setting}); err != nil {
		return nil, errors.Wrapf(err, "set client setting %s of %s", key, profile.ID)
	}
	return c.withDescendants(ctx, profile), nil
}

func (c *Context) withDescendants(ctx context.Context, profile domain.Profile) *propagation.ProfileSet {
	set := propagation.NewProfileSet(profile.ID)
	for _, rel := range c.Engine.Descendants(ctx, profile.Ident()).OrDefault() {
		set.Add(rel.Profile.ID)
	}
	return set
}
