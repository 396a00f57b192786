// Package push sends web push notifications to users who are offline when
// something happens. Delivery is best effort; failures are logged, never
// surfaced to the request that triggered them.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/config"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// Notification is the payload the service worker renders.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ActionURL string `json:"action_url,omitempty"`
}

type Sender struct {
	subs       *repository.NotificationRepository
	vapidPub   string
	vapidPriv  string
	subscriber string
}

func NewSender(cfg *config.Config, subs *repository.NotificationRepository) *Sender {
	return &Sender{
		subs:       subs,
		vapidPub:   cfg.Push.VAPIDPublicKey,
		vapidPriv:  cfg.Push.VAPIDPrivateKey,
		subscriber: cfg.Push.Subscriber,
	}
}

// Enabled reports whether VAPID keys are configured.
func (s *Sender) Enabled() bool {
	return s.vapidPub != "" && s.vapidPriv != ""
}

// Send pushes to the user's registered subscription. A 404/410 from the push
// service means the subscription is dead and gets removed.
func (s *Sender) Send(ctx context.Context, userID string, n Notification) {
	if !s.Enabled() {
		return
	}
	sub, err := s.subs.PushSubscription(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("push subscription lookup failed", "user_id", userID, "error", err)
		}
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.vapidPub,
		VAPIDPrivateKey: s.vapidPriv,
		TTL:             60,
	})
	if err != nil {
		logger.Warn("push send failed", "user_id", userID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := s.subs.DeletePushSubscription(ctx, userID); err != nil {
			logger.Warn("stale push subscription cleanup failed", "user_id", userID, "error", err)
		}
	}
}
