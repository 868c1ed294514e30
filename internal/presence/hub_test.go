// ABOUTME: Tests for the operator presence hub
// ABOUTME: Covers connect/disconnect, subscriptions, list watchers, and pruning

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_ConnectAndDisconnect(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	s := h.Connect("op-a")
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "op-a", s.OperatorID)
	assert.True(t, h.Online("op-a"))

	h.Disconnect(s.ID)
	assert.False(t, h.Online("op-a"))
	assert.Empty(t, h.Sessions())
}

func TestHub_MultipleSessionsPerOperator(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	s1 := h.Connect("op-a")
	s2 := h.Connect("op-a")

	assert.Len(t, h.OperatorSessions("op-a"), 2)

	h.Disconnect(s1.ID)
	assert.True(t, h.Online("op-a"))

	h.Disconnect(s2.ID)
	assert.False(t, h.Online("op-a"))
}

func TestHub_SubscribeRoutesSessions(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	s1 := h.Connect("op-a")
	s2 := h.Connect("op-b")

	require.NoError(t, h.Subscribe(s1.ID, "conv-1"))
	require.NoError(t, h.Subscribe(s2.ID, "conv-1"))
	require.NoError(t, h.Subscribe(s2.ID, "conv-2"))

	sessions := h.SessionsFor("conv-1")
	assert.Len(t, sessions, 2)

	sessions = h.SessionsFor("conv-2")
	require.Len(t, sessions, 1)
	assert.Equal(t, "op-b", sessions[0].OperatorID)

	assert.Empty(t, h.SessionsFor("conv-3"))
}

func TestHub_UnsubscribeStopsRouting(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	s := h.Connect("op-a")
	require.NoError(t, h.Subscribe(s.ID, "conv-1"))
	require.NoError(t, h.Unsubscribe(s.ID, "conv-1"))

	assert.Empty(t, h.SessionsFor("conv-1"))
}

func TestHub_DisconnectCleansSubscriptions(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	s := h.Connect("op-a")
	require.NoError(t, h.Subscribe(s.ID, "conv-1"))
	require.NoError(t, h.Subscribe(s.ID, "conv-2"))

	h.Disconnect(s.ID)

	assert.Empty(t, h.SessionsFor("conv-1"))
	assert.Empty(t, h.SessionsFor("conv-2"))
}

func TestHub_UnknownSessionErrors(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	assert.ErrorIs(t, h.Subscribe("nope", "conv-1"), ErrSessionNotFound)
	assert.ErrorIs(t, h.Unsubscribe("nope", "conv-1"), ErrSessionNotFound)
	assert.ErrorIs(t, h.Touch("nope"), ErrSessionNotFound)
	assert.ErrorIs(t, h.WatchList("nope", true), ErrSessionNotFound)
}

func TestHub_ListWatchers(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	s1 := h.Connect("op-a")
	h.Connect("op-b")

	require.NoError(t, h.WatchList(s1.ID, true))

	watchers := h.ListWatchers()
	require.Len(t, watchers, 1)
	assert.Equal(t, s1.ID, watchers[0].ID)

	require.NoError(t, h.WatchList(s1.ID, false))
	assert.Empty(t, h.ListWatchers())
}

func TestHub_PruneRemovesStaleSessions(t *testing.T) {
	h := NewHub(50*time.Millisecond, nil)
	defer h.Close()

	stale := h.Connect("op-a")
	fresh := h.Connect("op-b")
	require.NoError(t, h.Subscribe(stale.ID, "conv-1"))

	// Keep the fresh session alive past the stale session's timeout
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		_ = h.Touch(fresh.ID)
		time.Sleep(10 * time.Millisecond)
	}

	assert.False(t, h.Online("op-a"))
	assert.True(t, h.Online("op-b"))
	assert.Empty(t, h.SessionsFor("conv-1"))
}

func TestHub_TouchDefersPrune(t *testing.T) {
	h := NewHub(time.Minute, nil)
	defer h.Close()

	s := h.Connect("op-a")
	before := h.OperatorSessions("op-a")[0].LastSeen

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, h.Touch(s.ID))

	after := h.OperatorSessions("op-a")[0].LastSeen
	assert.True(t, after.After(before))
}
