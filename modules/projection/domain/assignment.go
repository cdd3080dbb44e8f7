package domain

// Assignment is a directed edge profile -> target.
type Assignment struct {
	ProfileID   string           `json:"profile_id"`
	ProfileType ObjectType       `json:"profile_type"`
	TargetID    string           `json:"target_id"`
	TargetType  ObjectType       `json:"target_type"`
	Conditions  []RangeCondition `json:"conditions,omitempty"`
}

func (a Assignment) Profile() ObjectIdent {
	return ObjectIdent{ID: a.ProfileID, Type: a.ProfileType}
}

func (a Assignment) Target() ObjectIdent {
	return ObjectIdent{ID: a.TargetID, Type: a.TargetType}
}
