package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"lichka/internal/models"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/require"
)

type memSubs struct {
	subs    map[string]models.PushSubscription
	deleted []string
}

func (m *memSubs) GetPushSubscription(userID string) (models.PushSubscription, error) {
	sub, ok := m.subs[userID]
	if !ok {
		return models.PushSubscription{}, models.ErrNotFound
	}
	return sub, nil
}

func (m *memSubs) DeletePushSubscription(userID string) error {
	delete(m.subs, userID)
	m.deleted = append(m.deleted, userID)
	return nil
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

func enabledConfig() Config {
	return Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", Subscriber: "ops@example.com"}
}

func TestWebPush_Disabled(t *testing.T) {
	w := NewWebPush(Config{}, &memSubs{})
	w.send = func(context.Context, []byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		t.Fatal("send must not be called when disabled")
		return nil, nil
	}
	require.False(t, w.Enabled())
	require.NoError(t, w.NotifyOffline(context.Background(), models.Message{ReceiverID: "b"}))
}

func TestWebPush_NoSubscription(t *testing.T) {
	w := NewWebPush(enabledConfig(), &memSubs{subs: map[string]models.PushSubscription{}})
	called := false
	w.send = func(context.Context, []byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		called = true
		return response(http.StatusCreated), nil
	}
	require.NoError(t, w.NotifyOffline(context.Background(), models.Message{ReceiverID: "b"}))
	require.False(t, called)
}

func TestWebPush_Sends(t *testing.T) {
	subs := &memSubs{subs: map[string]models.PushSubscription{
		"b": {Endpoint: "https://push.example/b", P256dh: "key", Auth: "auth"},
	}}
	w := NewWebPush(enabledConfig(), subs)

	var (
		gotBody []byte
		gotSub  *webpush.Subscription
		gotOpts *webpush.Options
	)
	w.send = func(_ context.Context, body []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		gotBody, gotSub, gotOpts = body, sub, opts
		return response(http.StatusCreated), nil
	}

	msg := models.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Content: "secret"}
	require.NoError(t, w.NotifyOffline(context.Background(), msg))

	require.Equal(t, "https://push.example/b", gotSub.Endpoint)
	require.Equal(t, "key", gotSub.Keys.P256dh)
	require.Equal(t, "pub", gotOpts.VAPIDPublicKey)
	require.Equal(t, defaultTTL, gotOpts.TTL)

	var p payload
	require.NoError(t, json.Unmarshal(gotBody, &p))
	require.Equal(t, payload{Type: "newMessage", From: "a", MessageID: "m1"}, p)
	require.NotContains(t, string(gotBody), "secret")
}

func TestWebPush_GoneSubscriptionIsRemoved(t *testing.T) {
	subs := &memSubs{subs: map[string]models.PushSubscription{
		"b": {Endpoint: "https://push.example/b"},
	}}
	w := NewWebPush(enabledConfig(), subs)
	w.send = func(context.Context, []byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		return response(http.StatusGone), nil
	}

	require.NoError(t, w.NotifyOffline(context.Background(), models.Message{ID: "m1", SenderID: "a", ReceiverID: "b"}))
	require.Equal(t, []string{"b"}, subs.deleted)
}
