// Package discovery implements recommendations, swiping and matches.
package discovery

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/agent"
	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	"github.com/jodi-app/jodi-server/internal/db"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/plans"
	"github.com/jodi-app/jodi-server/internal/push"
	"github.com/jodi-app/jodi-server/internal/repository"
	"github.com/jodi-app/jodi-server/internal/server"
	"github.com/jodi-app/jodi-server/internal/ws"
)

const (
	defaultRecommendations = 10
	maxRecommendations     = 50
	likersPageSize         = 20
)

// Service owns the discovery and matching endpoints.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

// Recommendations returns scored candidates for the caller.
//
// Behavior:
//   - Serves cached rows first; the matching agent refills when the cache
//     runs dry.
//   - Returned rows are marked shown so they are not repeated.
func (s *Service) Recommendations(c *gin.Context) {
	userID := authn.UserID(c)
	limit := intQuery(c, "limit", defaultRecommendations, maxRecommendations)
	ctx := c.Request.Context()

	recs, err := s.appCtx.Recommendations.ListFresh(ctx, userID, limit)
	if err != nil {
		server.Fail(c, err)
		return
	}

	if len(recs) < limit {
		_, err := s.appCtx.Orchestrator.Dispatch(ctx, agent.Task{
			Action:  "find_matches",
			UserID:  userID,
			Payload: map[string]any{"limit": limit},
		})
		if err != nil {
			logger.Warn("recommendation refill", "user_id", userID, "error", err)
		} else {
			recs, err = s.appCtx.Recommendations.ListFresh(ctx, userID, limit)
			if err != nil {
				server.Fail(c, err)
				return
			}
		}
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.RecommendedUserID)
	}
	profiles, err := s.appCtx.Profiles.ProfilesByUserIDs(ctx, ids)
	if err != nil {
		server.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(recs))
	for _, r := range recs {
		p, ok := profiles[r.RecommendedUserID]
		if !ok {
			continue
		}
		items = append(items, gin.H{
			"user_id":          r.RecommendedUserID,
			"compatibility":    r.Compatibility,
			"reason":           r.Reason,
			"common_interests": r.CommonInterests,
			"profile":          p,
		})
	}

	if len(ids) > 0 {
		if err := s.appCtx.Recommendations.MarkShown(ctx, userID, ids); err != nil {
			logger.Warn("mark recommendations shown", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"recommendations": items})
}

// Discover returns unscored candidates straight from the preference
// filters, for browsing past the ranked deck.
func (s *Service) Discover(c *gin.Context) {
	userID := authn.UserID(c)
	limit := intQuery(c, "limit", defaultRecommendations, maxRecommendations)
	ctx := c.Request.Context()

	prefs, err := s.appCtx.Profiles.Preferences(ctx, userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	candidates, err := s.appCtx.Profiles.DiscoverCandidates(ctx, userID, prefs, limit)
	if err != nil {
		server.Fail(c, err)
		return
	}

	now := time.Now()
	items := make([]gin.H, 0, len(candidates))
	for i := range candidates {
		p := &candidates[i]
		items = append(items, gin.H{
			"user_id":           p.UserID,
			"first_name":        p.FirstName,
			"age":               p.Age(now),
			"city":              p.City,
			"bio":               p.Bio,
			"occupation":        p.Occupation,
			"profile_photo_url": p.ProfilePhotoURL,
			"is_photo_verified": p.IsPhotoVerified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"profiles": items})
}

type swipeRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
	Action       string `json:"action" binding:"required,oneof=like dislike superlike"`
}

// Swipe records a like, dislike or superlike.
//
// Behavior:
//   - Enforces the tier's daily swipe quota via Redis counters.
//   - Superlikes additionally consume the per-day superlike quota.
//   - A mutual like creates a match plus its conversation atomically and
//     notifies the other user over the socket, falling back to web push.
func (s *Service) Swipe(c *gin.Context) {
	var req swipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)
	ctx := c.Request.Context()

	if req.TargetUserID == userID {
		server.Fail(c, svcErr.InvalidArgument("cannot swipe on yourself"))
		return
	}

	blocked, err := s.appCtx.Safety.IsBlocked(ctx, userID, req.TargetUserID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if blocked {
		server.Fail(c, svcErr.NotFound("user not found"))
		return
	}

	user, err := s.appCtx.Users.GetByID(ctx, userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	plan, _ := plans.ByCode(user.SubscriptionTier)

	// A rejected swipe must not consume quota, so validate everything
	// before the counter moves.
	if _, err := s.appCtx.Swipes.Get(ctx, userID, req.TargetUserID); err == nil {
		server.Fail(c, svcErr.AlreadyExists("already swiped on this user"))
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		server.Fail(c, err)
		return
	}
	if req.Action == db.ActionSuperlike {
		if plan.SuperlikesPerDay <= 0 {
			server.Fail(c, svcErr.PermissionDenied("superlikes require a paid plan"))
			return
		}
		used, err := s.appCtx.Swipes.CountSuperlikesSince(ctx, userID, startOfDay(time.Now()))
		if err != nil {
			server.Fail(c, err)
			return
		}
		if used >= int64(plan.SuperlikesPerDay) {
			server.Fail(c, svcErr.ResourceExhausted("daily superlike limit reached"))
			return
		}
	}

	if plan.DailySwipeLimit != plans.Unlimited {
		total, err := s.appCtx.Cache.IncrDailySwipes(ctx, userID, time.Now())
		if err != nil {
			logger.Warn("swipe quota counter", "error", err)
		} else if total > int64(plan.DailySwipeLimit) {
			server.Fail(c, svcErr.ResourceExhausted("daily swipe limit reached, upgrade for more"))
			return
		}
	}

	swipe := &db.Swipe{
		SwiperID: userID,
		SwipedID: req.TargetUserID,
		Action:   req.Action,
	}
	if req.Action != db.ActionDislike {
		if score, _, err := s.appCtx.Matching.ScorePair(ctx, userID, req.TargetUserID); err == nil {
			swipe.Compatibility = &score
		}
	}
	if err := s.appCtx.Swipes.Create(ctx, swipe); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			server.Fail(c, svcErr.AlreadyExists("already swiped on this user"))
			return
		}
		server.Fail(c, err)
		return
	}
	if err := s.appCtx.Recommendations.RecordAction(ctx, userID, req.TargetUserID, req.Action); err != nil {
		logger.Warn("record recommendation action", "error", err)
	}

	resp := gin.H{"swipe_id": swipe.ID, "matched": false}

	if req.Action != db.ActionDislike {
		_ = s.appCtx.Cache.IncrLikeCount(ctx, req.TargetUserID)

		reciprocal, err := s.appCtx.Swipes.HasLiked(ctx, req.TargetUserID, userID)
		if err != nil {
			server.Fail(c, err)
			return
		}
		if reciprocal {
			match := &db.Match{InitiatedBy: userID, Compatibility: swipe.Compatibility}
			match.User1ID, match.User2ID = repository.OrderPair(userID, req.TargetUserID)
			convo, err := s.appCtx.Matches.CreateWithConversation(ctx, match)
			if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
				server.Fail(c, err)
				return
			}
			if err == nil {
				resp["matched"] = true
				resp["match_id"] = match.ID
				resp["conversation_id"] = convo.ID
				s.announceMatch(ctx, match, userID, req.TargetUserID)
			}
		}
	}

	c.JSON(http.StatusCreated, resp)
}

// Matches lists the caller's active matches, most recently active first.
func (s *Service) Matches(c *gin.Context) {
	userID := authn.UserID(c)
	limit := intQuery(c, "limit", 50, 100)
	ctx := c.Request.Context()

	matches, err := s.appCtx.Matches.ListForUser(ctx, userID, limit)
	if err != nil {
		server.Fail(c, err)
		return
	}

	otherIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		otherIDs = append(otherIDs, m.Other(userID))
	}
	profiles, err := s.appCtx.Profiles.ProfilesByUserIDs(ctx, otherIDs)
	if err != nil {
		server.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		otherID := m.Other(userID)
		item := gin.H{
			"match_id":        m.ID,
			"user_id":         otherID,
			"compatibility":   m.Compatibility,
			"matched_at":      m.CreatedAt,
			"message_count":   m.MessageCount,
			"last_message_at": m.LastMessageAt,
		}
		if p, ok := profiles[otherID]; ok {
			item["profile"] = p
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"matches": items})
}

// LikesMe lists users who liked the caller but are not yet matched.
//
// Behavior:
//   - Gated on the see_likes plan feature.
//   - Cursor paginated; pass the returned next_token to continue.
func (s *Service) LikesMe(c *gin.Context) {
	userID := authn.UserID(c)
	ctx := c.Request.Context()

	user, err := s.appCtx.Users.GetByID(ctx, userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	plan, _ := plans.ByCode(user.SubscriptionTier)
	if !plan.Has(plans.FeatureSeeLikes) {
		server.Fail(c, svcErr.PermissionDenied("seeing who liked you requires a paid plan"))
		return
	}

	swipes, nextToken, err := s.appCtx.Swipes.ListLikers(ctx, userID, c.Query("token"), likersPageSize)
	if err != nil {
		server.Fail(c, err)
		return
	}

	likerIDs := make([]string, 0, len(swipes))
	for _, sw := range swipes {
		likerIDs = append(likerIDs, sw.SwiperID)
	}
	profiles, err := s.appCtx.Profiles.ProfilesByUserIDs(ctx, likerIDs)
	if err != nil {
		server.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(swipes))
	for _, sw := range swipes {
		item := gin.H{
			"user_id":  sw.SwiperID,
			"action":   sw.Action,
			"liked_at": sw.CreatedAt,
		}
		if p, ok := profiles[sw.SwiperID]; ok {
			item["profile"] = p
		}
		items = append(items, item)
	}

	resp := gin.H{"likers": items}
	if nextToken != "" {
		resp["next_token"] = nextToken
	}
	c.JSON(http.StatusOK, resp)
}

// LikeCount returns how many pending likes the caller has, served from the
// Redis counter when warm.
func (s *Service) LikeCount(c *gin.Context) {
	userID := authn.UserID(c)
	ctx := c.Request.Context()

	count, err := s.appCtx.Cache.LikeCount(ctx, userID)
	if err != nil {
		count, err = s.appCtx.Swipes.CountLikesReceived(ctx, userID)
		if err != nil {
			server.Fail(c, err)
			return
		}
		if cacheErr := s.appCtx.Cache.SetLikeCount(ctx, userID, count); cacheErr != nil {
			logger.Warn("prime like counter", "error", cacheErr)
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type unmatchRequest struct {
	Reason string `json:"reason"`
}

// Unmatch dissolves a match and closes its conversation.
func (s *Service) Unmatch(c *gin.Context) {
	var req unmatchRequest
	_ = c.ShouldBindJSON(&req)

	userID := authn.UserID(c)
	matchID := c.Param("matchID")
	ctx := c.Request.Context()

	match, err := s.appCtx.Matches.GetByID(ctx, matchID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if match.User1ID != userID && match.User2ID != userID {
		server.Fail(c, svcErr.PermissionDenied("not a participant of this match"))
		return
	}
	if err := s.appCtx.Matches.Unmatch(ctx, matchID, userID, req.Reason); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unmatched"})
}

func (s *Service) announceMatch(ctx context.Context, match *db.Match, swiperID, otherID string) {
	payload := map[string]any{
		"match_id": match.ID,
		"user_id":  swiperID,
	}
	delivered := s.appCtx.Hub.SendToUser(otherID, ws.Envelope{
		Type:    ws.EventMatchCreated,
		Payload: payload,
	})
	if !delivered {
		s.appCtx.Push.Send(ctx, otherID, push.Notification{
			Title:     "New match!",
			Body:      "Someone you liked matched with you.",
			ActionURL: "/matches/" + match.ID,
		})
	}
	n := &db.Notification{
		UserID:      otherID,
		Type:        "match",
		Title:       "New match!",
		Body:        "You have a new match.",
		ActionURL:   "/matches/" + match.ID,
		SentViaPush: !delivered,
	}
	if err := s.appCtx.Notifications.Create(ctx, n); err != nil {
		logger.Warn("persist match notification", "error", err)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intQuery(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
