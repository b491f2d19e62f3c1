// Package notify sends a browser push notification to a receiver that was
// offline when a message arrived. It is a nudge to come back and pull the
// conversation, not a delivery channel: the message itself is not included
// and nothing is retried.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lichka/internal/models"

	"github.com/SherClockHolmes/webpush-go"
)

const (
	defaultTTL     = 60
	defaultTimeout = 5 * time.Second
)

type SubscriptionStore interface {
	GetPushSubscription(userID string) (models.PushSubscription, error)
	DeletePushSubscription(userID string) error
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
	Timeout         time.Duration
}

type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

type WebPush struct {
	cfg  Config
	subs SubscriptionStore
	send sendFunc
}

func NewWebPush(cfg Config, subs SubscriptionStore) *WebPush {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &WebPush{
		cfg:  cfg,
		subs: subs,
		send: webpush.SendNotificationWithContext,
	}
}

// Enabled reports whether VAPID keys are configured.
func (w *WebPush) Enabled() bool {
	return w != nil && w.cfg.VAPIDPublicKey != "" && w.cfg.VAPIDPrivateKey != ""
}

type payload struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	MessageID string `json:"messageId"`
}

// NotifyOffline tells the receiver of msg that something new is waiting.
// A receiver without a subscription is not an error.
func (w *WebPush) NotifyOffline(ctx context.Context, msg models.Message) error {
	if !w.Enabled() {
		return nil
	}

	sub, err := w.subs.GetPushSubscription(msg.ReceiverID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load push subscription: %w", err)
	}

	body, err := json.Marshal(payload{
		Type:      string(models.EventNewMessage),
		From:      msg.SenderID,
		MessageID: msg.ID,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	resp, err := w.send(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		TTL:             w.cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to send web push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The browser dropped the subscription.
		slog.Info("removing expired push subscription", "user_id", msg.ReceiverID, "status", resp.StatusCode)
		return w.subs.DeletePushSubscription(msg.ReceiverID)
	case resp.StatusCode >= 300:
		return fmt.Errorf("web push rejected with status %d", resp.StatusCode)
	}
	return nil
}
