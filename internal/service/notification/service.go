// Package notification implements the notification feed and web push
// subscription management.
package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	"github.com/jodi-app/jodi-server/internal/db"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/server"
)

// Service owns the notification endpoints.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

// List returns the caller's notifications, newest first.
func (s *Service) List(c *gin.Context) {
	userID := authn.UserID(c)
	unreadOnly := c.Query("unread") == "true"

	items, err := s.appCtx.Notifications.ListForUser(c.Request.Context(), userID, unreadOnly, 50)
	if err != nil {
		server.Fail(c, err)
		return
	}
	unread, err := s.appCtx.Notifications.CountUnread(c.Request.Context(), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread_count": unread})
}

// MarkRead marks a single notification as read.
func (s *Service) MarkRead(c *gin.Context) {
	err := s.appCtx.Notifications.MarkRead(c.Request.Context(), authn.UserID(c), c.Param("notificationID"))
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// MarkAllRead clears the caller's unread notifications.
func (s *Service) MarkAllRead(c *gin.Context) {
	if err := s.appCtx.Notifications.MarkAllRead(c.Request.Context(), authn.UserID(c)); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// SubscribePush stores the browser push subscription, one per user.
func (s *Service) SubscribePush(c *gin.Context) {
	var req pushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	sub := &db.PushSubscription{
		UserID:   authn.UserID(c),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := s.appCtx.Notifications.UpsertPushSubscription(c.Request.Context(), sub); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "subscribed"})
}

// UnsubscribePush drops the stored push subscription.
func (s *Service) UnsubscribePush(c *gin.Context) {
	if err := s.appCtx.Notifications.DeletePushSubscription(c.Request.Context(), authn.UserID(c)); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unsubscribed"})
}

// VAPIDKey exposes the public key clients need to subscribe.
func (s *Service) VAPIDKey(c *gin.Context) {
	if !s.appCtx.Push.Enabled() {
		server.Fail(c, svcErr.Unavailable("push notifications are not configured"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": s.appCtx.Config.Push.VAPIDPublicKey})
}
