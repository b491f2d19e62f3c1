package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeEvent_WireShape(t *testing.T) {
	tests := []struct {
		ev      Event
		name    EventType
		payload string
	}{
		{OnlineUsers{}, EventOnlineUsers, `[]`},
		{OnlineUsers{UserIDs: []string{"a", "b"}}, EventOnlineUsers, `["a","b"]`},
		{MessagesRead{ReaderID: "b"}, EventMessagesRead, `"b"`},
		{BlockChanged{ActorID: "a", Blocked: true}, EventBlocked, `"a"`},
		{BlockChanged{ActorID: "a"}, EventUnblocked, `"a"`},
		{MessageDeleted{MsgID: "m", DeletedBy: "a"}, EventDeleteForMe, `{"msgId":"m","deletedBy":"a"}`},
		{MessageDeleted{MsgID: "m", DeletedBy: "a", ForEveryone: true}, EventDeleteForEveryone, `{"msgId":"m","deletedBy":"a"}`},
		{ErrorEvent{Error: "nope"}, EventError, `{"error":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			msg, err := EncodeEvent(tt.ev)
			require.NoError(t, err)
			require.Equal(t, tt.name, msg.Event)
			require.JSONEq(t, tt.payload, string(msg.Payload))

			decoded, err := msg.Decode()
			require.NoError(t, err)
			if online, ok := tt.ev.(OnlineUsers); ok && online.UserIDs == nil {
				require.Equal(t, OnlineUsers{UserIDs: []string{}}, decoded)
				return
			}
			require.Equal(t, tt.ev, decoded)
		})
	}
}

func TestServerMessage_DecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
	}{
		{"unknown event", ServerMessage{Event: "typing", Payload: json.RawMessage(`{}`)}},
		{"wrong payload type", ServerMessage{Event: EventMessagesRead, Payload: json.RawMessage(`{"id":"a"}`)}},
		{"empty reader", ServerMessage{Event: EventMessagesRead, Payload: json.RawMessage(`""`)}},
		{"message without ids", ServerMessage{Event: EventNewMessage, Payload: json.RawMessage(`{"content":"hi"}`)}},
		{"delete without msgId", ServerMessage{Event: EventDeleteForMe, Payload: json.RawMessage(`{"deletedBy":"a"}`)}},
		{"not json", ServerMessage{Event: EventOnlineUsers, Payload: json.RawMessage(`nope`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.msg.Decode()
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestClientMessage_Validate(t *testing.T) {
	require.NoError(t, ClientMessage{Type: ClientMessageTypeSend, ReceiverID: "b", Content: "hi"}.Validate())
	require.NoError(t, ClientMessage{Type: ClientMessageTypeRead, PeerID: "b"}.Validate())

	require.ErrorIs(t, ClientMessage{Type: ClientMessageTypeSend}.Validate(), ErrValidation)
	require.ErrorIs(t, ClientMessage{Type: ClientMessageTypeRead}.Validate(), ErrValidation)
	require.ErrorIs(t, ClientMessage{Type: "join"}.Validate(), ErrValidation)
}

func TestMessageHelpers(t *testing.T) {
	m := Message{SenderID: "a", ReceiverID: "b", DeletedFor: []string{"b"}}
	require.Equal(t, "b", m.Peer("a"))
	require.Equal(t, "a", m.Peer("b"))
	require.True(t, m.HasParticipant("a"))
	require.False(t, m.HasParticipant("c"))
	require.True(t, m.DeletedForUser("b"))
	require.False(t, m.DeletedForUser("a"))

	u := User{BlockedUserIDs: []string{"x"}}
	require.True(t, u.Blocks("x"))
	require.False(t, u.Blocks("y"))
}
