package propagation

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

// Recalculation is the effective client settings of one profile.
type Recalculation struct {
	ProfileID  string
	Settings   []domain.ClientSetting
	Superseded []string
}

// ResolveSettings picks one winner per key, ordered by key.
func ResolveSettings(candidates []domain.ClientSetting) []domain.ClientSetting {
	winners := make(map[string]domain.ClientSetting, len(candidates))
	for _, c := range candidates {
		if current, ok := winners[c.Key]; !ok || c.Outranks(current) {
			winners[c.Key] = c
		}
	}
	out := make([]domain.ClientSetting, 0, len(winners))
	for _, s := range winners {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b domain.ClientSetting) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}

// RecalculateClientSettings resolves the effective settings of every
// profile and emits ClientSettingsCalculated followed by its paired
// ClientSettingsInvalidated for each. The caller persists the results.
func (e *Engine) RecalculateClientSettings(ctx context.Context, profileIDs []string, cause events.DomainEvent) ([]events.EventTuple, []Recalculation, error) {
	var (
		out     []events.EventTuple
		results []Recalculation
	)
	for _, id := range profileIDs {
		profile, err := e.repo.GetProfile(ctx, id)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "recalculate client settings of %s", id)
		}
		candidates, err := e.repo.GetCalculatedClientSettings(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, errors.Wrapf(err, "get client settings of %s", id)
		}
		previous, err := e.repo.GetCalculatedClientSettingKeys(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, errors.Wrapf(err, "get calculated setting keys of %s", id)
		}

		settings := ResolveSettings(candidates)
		superseded := supersededKeys(previous, settings)
		target := profile.Ident()

		out = append(out,
			e.builder.CreateEvent(target, &events.ClientSettingsCalculated{ProfileID: id, Settings: settings}, cause),
			e.builder.CreateEvent(target, &events.ClientSettingsInvalidated{ProfileID: id, Keys: superseded}, cause),
		)
		results = append(results, Recalculation{ProfileID: id, Settings: settings, Superseded: superseded})
	}
	return out, results, nil
}

func supersededKeys(previous []string, current []domain.ClientSetting) []string {
	keep := make(map[string]struct{}, len(current))
	for _, s := range current {
		keep[s.Key] = struct{}{}
	}
	out := make([]string, 0)
	for _, key := range previous {
		if _, ok := keep[key]; ok || slices.Contains(out, key) {
			continue
		}
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
