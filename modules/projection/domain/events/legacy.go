package events

import (
	"strings"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

// Superseded payload versions that are still present in old streams.
const (
	TypeUserCreatedV1     Type = "profile.user_created.v1"
	TypeFunctionCreatedV1 Type = "function.created.v1"
)

type UserCreatedV1 struct {
	Metadata
	ID         string `json:"id" validate:"notblank"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	ExternalID string `json:"external_id,omitempty"`
	Source     string `json:"source"`
}

func (*UserCreatedV1) Type() Type { return TypeUserCreatedV1 }

// Upgrade maps the payload onto the current UserCreated shape.
func (e *UserCreatedV1) Upgrade() *UserCreated {
	first, last, _ := strings.Cut(strings.TrimSpace(e.FullName), " ")
	out := &UserCreated{
		Metadata:    e.Metadata,
		ID:          e.ID,
		Name:        e.FullName,
		DisplayName: e.FullName,
		FirstName:   first,
		LastName:    strings.TrimSpace(last),
		Email:       e.Email,
		Source:      e.Source,
	}
	if e.ExternalID != "" {
		out.ExternalIDs = []domain.ExternalIdentifier{{ID: e.ExternalID, Source: e.Source}}
	}
	return out
}

type FunctionCreatedV1 struct {
	Metadata
	ID             string `json:"id" validate:"notblank"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id" validate:"notblank"`
	RoleID         string `json:"role_id" validate:"notblank"`
	ExternalID     string `json:"external_id,omitempty"`
	Source         string `json:"source"`
}

func (*FunctionCreatedV1) Type() Type { return TypeFunctionCreatedV1 }

func (e *FunctionCreatedV1) Upgrade() *FunctionCreated {
	out := &FunctionCreated{
		Metadata:     e.Metadata,
		ID:           e.ID,
		Name:         e.Name,
		Organization: domain.NewObjectIdent(e.OrganizationID, domain.ObjectTypeOrganization),
		Role:         domain.NewObjectIdent(e.RoleID, domain.ObjectTypeRole),
		Source:       e.Source,
	}
	if e.ExternalID != "" {
		out.ExternalIDs = []domain.ExternalIdentifier{{ID: e.ExternalID, Source: e.Source}}
	}
	return out
}
