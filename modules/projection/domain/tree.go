package domain

// TreeEdgeRelation is one parent->child edge of an ancestor tree.
type TreeEdgeRelation struct {
	Parent     Container        `json:"parent"`
	Child      ObjectIdent      `json:"child"`
	Conditions []RangeCondition `json:"conditions,omitempty"`
	ParentTags []TagAssignment  `json:"parent_tags,omitempty"`
}

// ParentsTreeDifferenceResult lists the edges missing from the projected
// ancestor tree of ReferenceProfileID once it is attached below Profile.
type ParentsTreeDifferenceResult struct {
	ReferenceProfileID string             `json:"reference_profile_id"`
	Profile            Container          `json:"profile"`
	ProfileTags        []TagAssignment    `json:"profile_tags,omitempty"`
	MissingRelations   []TreeEdgeRelation `json:"missing_relations,omitempty"`
}

// ObjectIdentPath is an object affected by a property change of another
// object together with how it relates to it.
type ObjectIdentPath struct {
	Object         ObjectIdent    `json:"object"`
	RelatedContext RelatedContext `json:"related_context"`
}

type RelatedContext string

const (
	RelatedContextSelf           RelatedContext = "Self"
	RelatedContextMember         RelatedContext = "Member"
	RelatedContextIndirectMember RelatedContext = "IndirectMember"
	RelatedContextMemberOf       RelatedContext = "MemberOf"
	RelatedContextOrganization   RelatedContext = "Organization"
	RelatedContextRole           RelatedContext = "Role"
)
