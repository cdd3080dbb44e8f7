package domain

import "time"

type ExternalIdentifier struct {
	ID          string `json:"id" yaml:"id"`
	Source      string `json:"source" yaml:"source"`
	IsConverted bool   `json:"is_converted,omitempty" yaml:"is_converted,omitempty"`
}

// Profile is a user, group or organization.
type Profile struct {
	ID          string               `json:"id"`
	Kind        ProfileKind          `json:"kind"`
	Name        string               `json:"name"`
	DisplayName string               `json:"display_name"`
	ExternalIDs []ExternalIdentifier `json:"external_ids,omitempty"`
	Source      string               `json:"source,omitempty"`
	Weight      float64              `json:"weight"`
	Tags        []TagAssignment      `json:"tags,omitempty"`

	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	IsSystem  bool   `json:"is_system,omitempty"`

	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	SynchronizedAt      *time.Time `json:"synchronized_at,omitempty"`
	IsMarkedForDeletion bool       `json:"is_marked_for_deletion,omitempty"`
}

func (p Profile) Ident() ObjectIdent {
	return ObjectIdent{ID: p.ID, Type: p.Kind.ObjectType()}
}

// Container returns the profile as a container; users are not containers
// but are returned with type User so callers can reject them.
func (p Profile) Container() Container {
	return Container{ID: p.ID, Name: p.Name, Type: ContainerType(p.Kind), Weight: p.Weight}
}

// FirstLevelRelationProfile is one row of a descendant/ancestor query.
type FirstLevelRelationProfile struct {
	Profile  Profile            `json:"profile"`
	Relation FirstLevelRelation `json:"relation"`
}

type FirstLevelRelation string

const (
	RelationDirectMember   FirstLevelRelation = "DirectMember"
	RelationIndirectMember FirstLevelRelation = "IndirectMember"
)
