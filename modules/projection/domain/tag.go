package domain

import "time"

type TagType string

const (
	TagTypeCustom                 TagType = "Custom"
	TagTypeSecurity               TagType = "Security"
	TagTypeFunctionalAccessRights TagType = "FunctionalAccessRights"
)

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      TagType   `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// TagAssignment attaches a tag to an object. Inheritable tags propagate to
// every descendant of the object.
type TagAssignment struct {
	TagID         string `json:"tag_id" yaml:"tag_id" validate:"notblank"`
	IsInheritable bool   `json:"is_inheritable" yaml:"is_inheritable"`
}

func InheritableTags(tags []TagAssignment) []TagAssignment {
	out := make([]TagAssignment, 0, len(tags))
	for _, t := range tags {
		if t.IsInheritable {
			out = append(out, t)
		}
	}
	return out
}

func HasInheritableTag(tags []TagAssignment) bool {
	for _, t := range tags {
		if t.IsInheritable {
			return true
		}
	}
	return false
}

func TagIDs(tags []TagAssignment) []string {
	ids := make([]string, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.TagID)
	}
	return ids
}
