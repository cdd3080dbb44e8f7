package domain

import (
	"fmt"
	"strings"
)

type ObjectType string

const (
	ObjectTypeUser         ObjectType = "User"
	ObjectTypeGroup        ObjectType = "Group"
	ObjectTypeOrganization ObjectType = "Organization"
	ObjectTypeRole         ObjectType = "Role"
	ObjectTypeFunction     ObjectType = "Function"
	ObjectTypeTag          ObjectType = "Tag"
	// ObjectTypeProfile is ambiguous: it must be resolved to User, Group or
	// Organization before an assignment is processed.
	ObjectTypeProfile ObjectType = "Profile"
)

func (t ObjectType) IsProfile() bool {
	switch t {
	case ObjectTypeUser, ObjectTypeGroup, ObjectTypeOrganization:
		return true
	default:
		return false
	}
}

// IsContainer reports whether objects of this type can own members.
func (t ObjectType) IsContainer() bool {
	switch t {
	case ObjectTypeGroup, ObjectTypeOrganization, ObjectTypeRole, ObjectTypeFunction:
		return true
	default:
		return false
	}
}

func ParseObjectType(raw string) (ObjectType, error) {
	for _, t := range []ObjectType{
		ObjectTypeUser, ObjectTypeGroup, ObjectTypeOrganization,
		ObjectTypeRole, ObjectTypeFunction, ObjectTypeTag, ObjectTypeProfile,
	} {
		if strings.EqualFold(raw, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: object type %q", ErrUnsupportedType, raw)
}

// ObjectIdent identifies any node of the graph.
type ObjectIdent struct {
	ID   string     `json:"id" yaml:"id" validate:"notblank"`
	Type ObjectType `json:"type" yaml:"type" validate:"required"`
}

func NewObjectIdent(id string, t ObjectType) ObjectIdent {
	return ObjectIdent{ID: id, Type: t}
}

func (o ObjectIdent) String() string {
	return fmt.Sprintf("%s/%s", o.Type, o.ID)
}

func (o ObjectIdent) IsZero() bool {
	return o.ID == "" && o.Type == ""
}

type ProfileKind string

const (
	ProfileKindUser         ProfileKind = "User"
	ProfileKindGroup        ProfileKind = "Group"
	ProfileKindOrganization ProfileKind = "Organization"
)

func (k ProfileKind) ObjectType() ObjectType {
	return ObjectType(k)
}

func ProfileKindOf(t ObjectType) (ProfileKind, error) {
	if !t.IsProfile() {
		return "", fmt.Errorf("%w: %s is not a profile type", ErrUnsupportedType, t)
	}
	return ProfileKind(t), nil
}

// ProfileIdent is an ObjectIdent restricted to profile types.
type ProfileIdent struct {
	ID   string      `json:"id"`
	Kind ProfileKind `json:"kind"`
}

func (p ProfileIdent) Object() ObjectIdent {
	return ObjectIdent{ID: p.ID, Type: p.Kind.ObjectType()}
}

// ConditionObjectIdent is an ObjectIdent qualified by validity windows.
type ConditionObjectIdent struct {
	ID         string           `json:"id" yaml:"id" validate:"notblank"`
	Type       ObjectType       `json:"type" yaml:"type" validate:"required"`
	Conditions []RangeCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

func (c ConditionObjectIdent) Ident() ObjectIdent {
	return ObjectIdent{ID: c.ID, Type: c.Type}
}
