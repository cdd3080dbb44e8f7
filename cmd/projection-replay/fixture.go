package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

// fixture is a YAML (or JSON) list of inbound events:
//
//	events:
//	  - type: UserCreated
//	    stream: user-u1
//	    payload: {event_id: e1, id: u1, name: ada}
type fixture struct {
	Events []fixtureEvent `yaml:"events"`
}

type fixtureEvent struct {
	Type    string         `yaml:"type"`
	Stream  string         `yaml:"stream"`
	Payload map[string]any `yaml:"payload"`
}

type replayEvent struct {
	Type    events.Type
	Header  events.StreamHeader
	Payload []byte
}

func readFixture(r io.Reader) ([]replayEvent, error) {
	var f fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	out := make([]replayEvent, 0, len(f.Events))
	for i, e := range f.Events {
		if e.Type == "" {
			return nil, fmt.Errorf("event %d: type is required", i)
		}
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		stream := e.Stream
		if stream == "" {
			stream = "replay"
		}
		eventID, _ := e.Payload["event_id"].(string)
		out = append(out, replayEvent{
			Type:    events.Type(e.Type),
			Header:  events.StreamHeader{StreamName: stream, EventNumber: uint64(i + 1), EventID: eventID},
			Payload: payload,
		})
	}
	return out, nil
}
