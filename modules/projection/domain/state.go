package domain

import "time"

// ProjectionState records the last inbound event applied to the read model.
type ProjectionState struct {
	StreamName    string    `json:"stream_name"`
	EventNumber   uint64    `json:"event_number"`
	EventID       string    `json:"event_id"`
	EventName     string    `json:"event_name"`
	ProcessedOn   time.Time `json:"processed_on"`
	ErrorOccurred bool      `json:"error_occurred,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}
