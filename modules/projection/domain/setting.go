package domain

import "encoding/json"

// ClientSetting is a key/value visible at ProfileID. Hops is the distance
// from the profile that set it; Conditions are keyed by the id of the
// profile the setting was inherited through.
type ClientSetting struct {
	ProfileID  string                      `json:"profile_id"`
	Key        string                      `json:"key"`
	Value      json.RawMessage             `json:"value"`
	Weight     float64                     `json:"weight"`
	Hops       int                         `json:"hops"`
	Conditions map[string][]RangeCondition `json:"conditions,omitempty"`
}

// Outranks reports whether s takes precedence over other for the same key:
// fewer hops first, then higher weight, then the lower origin id so the
// result is stable.
func (s ClientSetting) Outranks(other ClientSetting) bool {
	if s.Hops != other.Hops {
		return s.Hops < other.Hops
	}
	if s.Weight != other.Weight {
		return s.Weight > other.Weight
	}
	return s.ProfileID < other.ProfileID
}
