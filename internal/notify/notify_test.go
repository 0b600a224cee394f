package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/runner"
	"github.com/vk/actiongrid/internal/testutil"
)

type recorded struct {
	event   string
	payload map[string]any
}

func TestSocketIO_EmitsEveryTransition(t *testing.T) {
	ctx, logs := testutil.Context(t)
	ft := testutil.NewFakeTarget("/work")

	var mu sync.Mutex
	var got []recorded
	closed := false
	n := newSocketIO("", "run-1", func(event string, payload map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, recorded{event, payload})
	}, func() { closed = true })

	kind := action.MustDefine[struct{}]("fc", action.Base[struct{}]{},
		action.WithCommand(runner.NewCommand("true")), action.WithObserver(n), action.WithObserver(Log{}))
	a, err := kind.New(ctx, struct{}{}, nil, ft)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(ctx))
	require.NoError(t, a.Run(ctx))

	require.Len(t, got, 3)
	for _, r := range got {
		assert.Equal(t, DefaultEvent, r.event)
		assert.Equal(t, "run-1", r.payload["run_id"])
		assert.Equal(t, "fc", r.payload["prefix"])
		assert.Equal(t, "/work/fc", r.payload["path"])
	}
	assert.Equal(t, "NEW", got[0].payload["from"])
	assert.Equal(t, "SUCCEEDED", got[2].payload["to"])
	assert.Contains(t, logs.String(), "Action state changed.")

	n.Close()
	assert.True(t, closed)
}

func TestDialSocketIO_RejectsRelativeURL(t *testing.T) {
	_, err := DialSocketIO(context.Background(), SocketIOConfig{URL: "localhost:8080"})
	require.Error(t, err)
}

func TestEvent_MapOmitsEmptyRunID(t *testing.T) {
	m := Event{Kind: "fc", Prefix: "p", To: "RUNNING"}.Map()
	_, ok := m["run_id"]
	assert.False(t, ok)
	assert.Equal(t, "RUNNING", m["to"])
}

func TestSignal_DropsLateOutcomes(t *testing.T) {
	ch := make(chan error, 1)
	signal(ch, nil)
	signal(ch, errors.New("connect_error"))
	signal(ch, errors.New("connect_error"))

	require.Len(t, ch, 1)
	assert.NoError(t, <-ch)
}
