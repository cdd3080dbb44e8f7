package inmem

import (
	"context"
	"slices"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

func (r *Repository) SetClientSettings(ctx context.Context, profileID string, settings []domain.ClientSetting) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.profiles[profileID]; !ok {
			return notFound("profile", profileID)
		}
		raw, ok := st.settings[profileID]
		if !ok {
			raw = make(map[string]domain.ClientSetting)
			st.settings[profileID] = raw
		}
		for _, s := range settings {
			s.ProfileID = profileID
			s.Hops = 0
			raw[s.Key] = s
		}
		return nil
	})
}

func (r *Repository) DeleteClientSetting(ctx context.Context, profileID, key string) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.settings[profileID][key]; !ok {
			return notFound("client setting", profileID+"/"+key)
		}
		delete(st.settings[profileID], key)
		return nil
	})
}

// GetCalculatedClientSettings walks up the group/organization tree and
// returns the raw settings of every profile reached, with the hop count of
// the shortest path. Conditions hold the windows of the edge the origin was
// reached through.
func (r *Repository) GetCalculatedClientSettings(ctx context.Context, profileID string) ([]domain.ClientSetting, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	if _, ok := st.profiles[profileID]; !ok {
		return nil, notFound("profile", profileID)
	}

	type node struct {
		id         string
		hops       int
		conditions []domain.RangeCondition
	}
	var out []domain.ClientSetting
	visited := map[string]bool{profileID: true}
	queue := []node{{id: profileID}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		keys := make([]string, 0, len(st.settings[cur.id]))
		for key := range st.settings[cur.id] {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			s := st.settings[cur.id][key]
			s.Hops = cur.hops
			s.Conditions = nil
			if len(cur.conditions) > 0 {
				s.Conditions = map[string][]domain.RangeCondition{cur.id: cur.conditions}
			}
			out = append(out, s)
		}

		for _, edge := range st.profileParentEdges(cur.id, nil) {
			if visited[edge.parent] {
				continue
			}
			visited[edge.parent] = true
			queue = append(queue, node{id: edge.parent, hops: cur.hops + 1, conditions: edge.conditions})
		}
	}
	return out, nil
}

func (r *Repository) GetCalculatedClientSettingKeys(ctx context.Context, profileID string) ([]string, error) {
	st, unlock := r.read(ctx)
	defer unlock()
	keys := make([]string, 0, len(st.calculated[profileID]))
	for _, s := range st.calculated[profileID] {
		keys = append(keys, s.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (r *Repository) SaveCalculatedClientSettings(ctx context.Context, profileID string, settings []domain.ClientSetting) error {
	return r.update(ctx, func(st *store) error {
		if _, ok := st.profiles[profileID]; !ok {
			return notFound("profile", profileID)
		}
		st.calculated[profileID] = append([]domain.ClientSetting(nil), settings...)
		return nil
	})
}

// CalculatedClientSettings returns what was last saved for profileID.
func (r *Repository) CalculatedClientSettings(profileID string) []domain.ClientSetting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ClientSetting(nil), r.committed.calculated[profileID]...)
}
