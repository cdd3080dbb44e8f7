package domain

import (
	"fmt"
	"time"
)

// RangeCondition is a validity window; a nil bound is unbounded on that side.
type RangeCondition struct {
	Start *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

func (r RangeCondition) Validate() error {
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return fmt.Errorf("%w: range condition end %s is before start %s",
			ErrValidation, r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

func (r RangeCondition) IsActive(at time.Time) bool {
	if r.Start != nil && at.Before(*r.Start) {
		return false
	}
	if r.End != nil && !at.Before(*r.End) {
		return false
	}
	return true
}

func ValidateConditions(conditions []RangeCondition) error {
	for _, c := range conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MergeConditions appends the windows of add that are not already in base.
func MergeConditions(base, add []RangeCondition) []RangeCondition {
	out := append([]RangeCondition(nil), base...)
	for _, c := range add {
		if !containsCondition(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func containsCondition(list []RangeCondition, c RangeCondition) bool {
	for _, existing := range list {
		if timePtrEqual(existing.Start, c.Start) && timePtrEqual(existing.End, c.End) {
			return true
		}
	}
	return false
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
