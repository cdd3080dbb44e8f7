package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
events:
  - type: profile.user_created.v2
    stream: user-u1
    payload:
      event_id: e1
      id: u1
      name: ada
  - type: profile.group_created.v1
    stream: group-g1
    payload:
      event_id: e2
      id: g1
      name: admins
      members:
        - {id: u1, type: User}
`

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(out), "\n") {
		if raw == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &m), raw)
		lines = append(lines, m)
	}
	return lines
}

func TestReadFixture(t *testing.T) {
	evts, err := readFixture(strings.NewReader(fixtureYAML))
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "group-g1", evts[1].Header.StreamName)
	assert.EqualValues(t, 2, evts[1].Header.EventNumber)
	assert.Equal(t, "e2", evts[1].Header.EventID)
	assert.JSONEq(t, `{"event_id":"e1","id":"u1","name":"ada"}`, string(evts[0].Payload))
}

func TestReadFixture_AcceptsJSON(t *testing.T) {
	evts, err := readFixture(strings.NewReader(`{"events":[{"type":"profile.user_created.v2","payload":{"event_id":"e1","id":"u1"}}]}`))
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "replay", evts[0].Header.StreamName)
}

func TestReadFixture_Rejects(t *testing.T) {
	_, err := readFixture(strings.NewReader("events:\n  - stream: x\n"))
	require.Error(t, err)

	_, err = readFixture(strings.NewReader("evnts: []\n"))
	require.Error(t, err)
}

func TestReplay_PrintsResolvedEvents(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, replay(context.Background(), strings.NewReader(fixtureYAML), &out, replayOptions{logLevel: "silent"}))

	lines := decodeLines(t, out.String())
	require.NotEmpty(t, lines)
	streams := map[string]bool{}
	for _, l := range lines {
		streams[l["target_stream"].(string)] = true
		assert.NotEmpty(t, l["batch_id"])
		assert.NotEmpty(t, l["type"])
	}
	assert.True(t, streams["user-u1"])
	assert.True(t, streams["group-g1"])
}

func TestReplay_StopsOnFailure(t *testing.T) {
	in := "events:\n  - type: nope.v1\n    payload: {event_id: e1}\n"
	var out bytes.Buffer
	err := replay(context.Background(), strings.NewReader(in), &out, replayOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event 1 (nope.v1)")
	assert.Empty(t, out.String())
}

func TestReplay_ContinueOnError(t *testing.T) {
	in := "events:\n  - type: nope.v1\n    payload: {event_id: e1}\n" +
		"  - type: profile.user_created.v2\n    payload: {event_id: e2, id: u1, name: ada}\n"
	var out bytes.Buffer
	require.NoError(t, replay(context.Background(), strings.NewReader(in), &out, replayOptions{continueOnError: true}))

	lines := decodeLines(t, out.String())
	require.GreaterOrEqual(t, len(lines), 2)
	assert.EqualValues(t, 1, lines[0]["event"])
	assert.Contains(t, lines[0]["error"], "nope.v1")
	assert.EqualValues(t, 2, lines[1]["event"])
}
