package events

import "time"

type InitiatorType string

const (
	InitiatorTypeUser           InitiatorType = "User"
	InitiatorTypeServiceAccount InitiatorType = "ServiceAccount"
	InitiatorTypeSystem         InitiatorType = "System"
)

type Initiator struct {
	ID   string        `json:"id,omitempty"`
	Type InitiatorType `json:"type,omitempty"`
}

// Metadata is carried by every inbound domain event.
type Metadata struct {
	EventID            string    `json:"event_id" validate:"notblank"`
	CorrelationID      string    `json:"correlation_id,omitempty"`
	CausationID        string    `json:"causation_id,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Initiator          Initiator `json:"initiator"`
	VersionInformation int       `json:"version_information,omitempty"`
}

func (m Metadata) Meta() Metadata { return m }

// StreamHeader describes where an inbound event was read from.
type StreamHeader struct {
	StreamName  string    `json:"stream_name"`
	EventNumber uint64    `json:"event_number"`
	EventID     string    `json:"event_id"`
	RecordedAt  time.Time `json:"recorded_at"`
}
