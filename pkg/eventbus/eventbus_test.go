package eventbus_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/profile-projection/pkg/eventbus"
)

type created struct{ id string }

type deleted struct{ id string }

func TestMatchSignature(t *testing.T) {
	cases := []struct {
		name    string
		handler any
		args    []any
		want    bool
	}{
		{"exact pointer", func(*created) {}, []any{&created{}}, true},
		{"other type", func(*created) {}, []any{&deleted{}}, false},
		{"arity", func(*created, string) {}, []any{&created{}}, false},
		{"interface param", func(error) {}, []any{errors.New("x")}, true},
		{"nil to pointer", func(*created) {}, []any{nil}, true},
		{"nil to value", func(created) {}, []any{nil}, false},
		{"not a func", 42, []any{1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eventbus.MatchSignature(tc.handler, tc.args))
		})
	}
}

func TestBus_PublishRoutesBySignature(t *testing.T) {
	b := eventbus.New(logrus.New())
	var got []string
	require.NoError(t, b.Subscribe(func(e *created) { got = append(got, "created:"+e.id) }))
	require.NoError(t, b.Subscribe(func(e *deleted) { got = append(got, "deleted:"+e.id) }))

	b.Publish(&created{id: "1"})
	b.Publish(&deleted{id: "2"})

	assert.Equal(t, []string{"created:1", "deleted:2"}, got)
}

func TestBus_PublishLogsWhenUnmatched(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	b := eventbus.New(log)
	require.NoError(t, b.Subscribe(func(*created) { t.Error("must not be called") }))

	b.Publish(&deleted{id: "1"})
	assert.Contains(t, buf.String(), "no matching subscribers")
}

func TestBus_PublishEJoinsErrorsAndPanics(t *testing.T) {
	b := eventbus.New(nil)
	boom := errors.New("boom")
	calls := 0
	require.NoError(t, b.Subscribe(func(*created) error { calls++; return boom }))
	require.NoError(t, b.Subscribe(func(*created) { calls++; panic("bad") }))
	require.NoError(t, b.Subscribe(func(*created) error { calls++; return nil }))

	err := b.PublishE(&created{id: "1"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, 3, calls)

	require.ErrorIs(t, b.PublishE(&deleted{}), eventbus.ErrNoSubscribers)
}

func TestBus_InvalidReturn(t *testing.T) {
	b := eventbus.New(nil)
	require.NoError(t, b.Subscribe(func(*created) (int, error) { return 0, nil }))
	require.ErrorIs(t, b.PublishE(&created{}), eventbus.ErrInvalidHandlerReturn)
}

func TestBus_SubscribeRejectsNonFunctions(t *testing.T) {
	b := eventbus.New(nil)
	require.ErrorIs(t, b.Subscribe("nope"), eventbus.ErrNotAFunction)
	assert.Equal(t, 0, b.Len())
}

func TestBus_Unsubscribe(t *testing.T) {
	b := eventbus.New(nil)
	handler := func(*created) {}
	require.NoError(t, b.Subscribe(handler))
	require.Equal(t, 1, b.Len())
	b.Unsubscribe(handler)
	assert.Equal(t, 0, b.Len())
}
