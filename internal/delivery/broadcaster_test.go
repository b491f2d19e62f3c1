package delivery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lichka/internal/metrics"
	"lichka/internal/models"
	"lichka/internal/presence"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, h *presence.Handle) models.ServerMessage {
	t.Helper()
	select {
	case msg := <-h.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event on %s", h)
	}
	return models.ServerMessage{}
}

func expectNothing(t *testing.T, h *presence.Handle) {
	t.Helper()
	select {
	case msg := <-h.Messages():
		t.Fatalf("unexpected event %s on %s", msg.Event, h)
	case <-time.After(50 * time.Millisecond):
	}
}

func startBroadcaster(t *testing.T, reg *presence.Registry, buffer int) (*Broadcaster, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	b := NewBroadcaster(reg, buffer, m)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return b, m
}

func TestBroadcaster_ToUser(t *testing.T) {
	reg := presence.NewRegistry()
	alice := presence.NewHandle("alice", 10)
	bob := presence.NewHandle("bob", 10)
	reg.Register(alice)
	reg.Register(bob)

	b, _ := startBroadcaster(t, reg, 10)
	require.True(t, b.Publish(ToUser("bob", models.MessagesRead{ReaderID: "alice"})))

	msg := receive(t, bob)
	require.Equal(t, models.EventMessagesRead, msg.Event)
	require.JSONEq(t, `"alice"`, string(msg.Payload))
	expectNothing(t, alice)
}

func TestBroadcaster_ToAll(t *testing.T) {
	reg := presence.NewRegistry()
	alice := presence.NewHandle("alice", 10)
	bob := presence.NewHandle("bob", 10)
	reg.Register(alice)
	reg.Register(bob)

	b, _ := startBroadcaster(t, reg, 10)
	b.Publish(ToAll(models.OnlineUsers{UserIDs: reg.OnlineUserIDs()}))

	for _, h := range []*presence.Handle{alice, bob} {
		msg := receive(t, h)
		require.Equal(t, models.EventOnlineUsers, msg.Event)
		var ids []string
		require.NoError(t, json.Unmarshal(msg.Payload, &ids))
		require.Equal(t, []string{"alice", "bob"}, ids)
	}
}

func TestBroadcaster_OfflinePeerIsNoop(t *testing.T) {
	reg := presence.NewRegistry()
	b, m := startBroadcaster(t, reg, 10)

	b.Publish(ToUser("ghost", models.BlockChanged{ActorID: "alice", Blocked: true}))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsDropped.WithLabelValues("blocked", "offline")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_DeadHandleFailsFast(t *testing.T) {
	reg := presence.NewRegistry()
	bob := presence.NewHandle("bob", 10)
	reg.Register(bob)
	bob.Close()

	b, m := startBroadcaster(t, reg, 10)
	b.Publish(ToUser("bob", models.MessagesRead{ReaderID: "alice"}))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsDropped.WithLabelValues("messagesRead", "unreachable")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_PreservesOrderPerConnection(t *testing.T) {
	reg := presence.NewRegistry()
	bob := presence.NewHandle("bob", 10)
	reg.Register(bob)

	b, _ := startBroadcaster(t, reg, 10)
	b.Publish(ToUser("bob", models.MessageDeleted{MsgID: "m1", DeletedBy: "alice"}))
	b.Publish(ToUser("bob", models.MessageDeleted{MsgID: "m1", DeletedBy: "alice", ForEveryone: true}))
	b.Publish(ToUser("bob", models.BlockChanged{ActorID: "alice", Blocked: true}))

	require.Equal(t, models.EventDeleteForMe, receive(t, bob).Event)
	require.Equal(t, models.EventDeleteForEveryone, receive(t, bob).Event)
	require.Equal(t, models.EventBlocked, receive(t, bob).Event)
}

func TestBroadcaster_PublishDoesNotBlock(t *testing.T) {
	reg := presence.NewRegistry()
	// No consumer running.
	b := NewBroadcaster(reg, 1, nil)

	require.True(t, b.Publish(ToAll(models.OnlineUsers{})))
	require.False(t, b.Publish(ToAll(models.OnlineUsers{})))
}
