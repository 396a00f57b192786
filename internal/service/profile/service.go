// Package profile implements profile, interest, photo and preference
// endpoints.
package profile

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/agent"
	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	"github.com/jodi-app/jodi-server/internal/db"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/plans"
	"github.com/jodi-app/jodi-server/internal/repository"
	"github.com/jodi-app/jodi-server/internal/server"
)

const maxInterests = 15

// Service owns the profile endpoints.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

// Get returns the caller's own profile with interests and photos.
func (s *Service) Get(c *gin.Context) {
	userID := authn.UserID(c)
	s.respondProfile(c, userID, userID)
}

// GetByID returns another user's profile, respecting blocks and visibility.
func (s *Service) GetByID(c *gin.Context) {
	s.respondProfile(c, authn.UserID(c), c.Param("userID"))
}

func (s *Service) respondProfile(c *gin.Context, viewerID, ownerID string) {
	ctx := c.Request.Context()

	if viewerID != ownerID {
		blocked, err := s.appCtx.Safety.IsBlocked(ctx, viewerID, ownerID)
		if err != nil {
			server.Fail(c, err)
			return
		}
		if blocked {
			server.Fail(c, svcErr.NotFound("profile not found"))
			return
		}
	}

	profile, err := s.appCtx.Profiles.GetByUserID(ctx, ownerID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if viewerID != ownerID && (!profile.IsVisible || profile.IsIncognito) {
		server.Fail(c, svcErr.NotFound("profile not found"))
		return
	}

	interests, err := s.appCtx.Profiles.ListInterests(ctx, profile.ID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	photos, err := s.appCtx.Profiles.ListPhotos(ctx, ownerID)
	if err != nil {
		server.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":   profile,
		"interests": interests,
		"photos":    photos,
	})
}

// Search finds visible profiles by free text and basic filters. Results are
// card summaries, never full profiles.
func (s *Service) Search(c *gin.Context) {
	filter := repository.SearchFilter{
		Query:  strings.TrimSpace(c.Query("q")),
		City:   strings.TrimSpace(c.Query("city")),
		Gender: strings.TrimSpace(c.Query("gender")),
		AgeMin: queryInt(c, "age_min"),
		AgeMax: queryInt(c, "age_max"),
		Limit:  queryInt(c, "limit"),
	}
	if filter.AgeMin < 0 || filter.AgeMax < 0 || (filter.AgeMax > 0 && filter.AgeMin > filter.AgeMax) {
		server.Fail(c, svcErr.InvalidArgument("invalid age range"))
		return
	}

	profiles, err := s.appCtx.Profiles.Search(c.Request.Context(), authn.UserID(c), filter)
	if err != nil {
		server.Fail(c, err)
		return
	}

	now := time.Now()
	results := make([]gin.H, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		results = append(results, gin.H{
			"user_id":           p.UserID,
			"first_name":        p.FirstName,
			"display_name":      p.DisplayName,
			"age":               p.Age(now),
			"gender":            p.Gender,
			"city":              p.City,
			"occupation":        p.Occupation,
			"bio":               p.Bio,
			"profile_photo_url": p.ProfilePhotoURL,
			"is_photo_verified": p.IsPhotoVerified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

type updateRequest struct {
	FirstName     *string  `json:"first_name"`
	LastName      *string  `json:"last_name"`
	DisplayName   *string  `json:"display_name"`
	Bio           *string  `json:"bio"`
	AboutMe       *string  `json:"about_me"`
	LookingFor    *string  `json:"looking_for"`
	Province      *string  `json:"province"`
	District      *string  `json:"district"`
	City          *string  `json:"city"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	HeightCM      *int     `json:"height_cm"`
	Education     *string  `json:"education"`
	Occupation    *string  `json:"occupation"`
	Religion      *string  `json:"religion"`
	MotherTongue  *string  `json:"mother_tongue"`
	MaritalStatus *string  `json:"marital_status"`
	Drinking      *string  `json:"drinking"`
	Smoking       *string  `json:"smoking"`
	Diet          *string  `json:"diet"`
	IsVisible     *bool    `json:"is_visible"`
	IsIncognito   *bool    `json:"is_incognito"`
}

// Update applies a partial profile update and re-runs profile analysis so
// the completion score, traits and embedding stay current.
func (s *Service) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)

	fields := map[string]any{}
	put := func(col string, v any) { fields[col] = v }
	if req.FirstName != nil {
		put("first_name", *req.FirstName)
	}
	if req.LastName != nil {
		put("last_name", *req.LastName)
	}
	if req.DisplayName != nil {
		put("display_name", *req.DisplayName)
	}
	if req.Bio != nil {
		put("bio", *req.Bio)
	}
	if req.AboutMe != nil {
		put("about_me", *req.AboutMe)
	}
	if req.LookingFor != nil {
		put("looking_for", *req.LookingFor)
	}
	if req.Province != nil {
		put("province", *req.Province)
	}
	if req.District != nil {
		put("district", *req.District)
	}
	if req.City != nil {
		put("city", *req.City)
	}
	if req.Latitude != nil {
		put("latitude", *req.Latitude)
	}
	if req.Longitude != nil {
		put("longitude", *req.Longitude)
	}
	if req.HeightCM != nil {
		put("height_cm", *req.HeightCM)
	}
	if req.Education != nil {
		put("education", *req.Education)
	}
	if req.Occupation != nil {
		put("occupation", *req.Occupation)
	}
	if req.Religion != nil {
		put("religion", *req.Religion)
	}
	if req.MotherTongue != nil {
		put("mother_tongue", *req.MotherTongue)
	}
	if req.MaritalStatus != nil {
		put("marital_status", *req.MaritalStatus)
	}
	if req.Drinking != nil {
		put("drinking", *req.Drinking)
	}
	if req.Smoking != nil {
		put("smoking", *req.Smoking)
	}
	if req.Diet != nil {
		put("diet", *req.Diet)
	}
	if req.IsVisible != nil {
		put("is_visible", *req.IsVisible)
	}
	if req.IsIncognito != nil {
		if *req.IsIncognito {
			user, err := s.appCtx.Users.GetByID(c.Request.Context(), userID)
			if err != nil {
				server.Fail(c, err)
				return
			}
			if !tierHasIncognito(user.SubscriptionTier) {
				server.Fail(c, svcErr.PermissionDenied("incognito mode requires the elite plan"))
				return
			}
		}
		put("is_incognito", *req.IsIncognito)
	}
	if len(fields) == 0 {
		server.Fail(c, svcErr.InvalidArgument("no fields to update"))
		return
	}

	if err := s.appCtx.Profiles.Update(c.Request.Context(), userID, fields); err != nil {
		server.Fail(c, err)
		return
	}

	s.reanalyze(userID)
	s.respondProfile(c, userID, userID)
}

type interestsRequest struct {
	Interests []struct {
		Name     string `json:"name" binding:"required"`
		Category string `json:"category"`
	} `json:"interests" binding:"required"`
}

// SetInterests replaces the full interest list.
func (s *Service) SetInterests(c *gin.Context) {
	var req interestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	if len(req.Interests) > maxInterests {
		server.Fail(c, svcErr.InvalidArgument("at most %d interests allowed", maxInterests))
		return
	}

	userID := authn.UserID(c)
	profile, err := s.appCtx.Profiles.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}

	seen := map[string]bool{}
	interests := make([]db.Interest, 0, len(req.Interests))
	for _, in := range req.Interests {
		name := strings.TrimSpace(in.Name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		interests = append(interests, db.Interest{
			ProfileID: profile.ID,
			Name:      name,
			Category:  in.Category,
		})
	}

	if err := s.appCtx.Profiles.ReplaceInterests(c.Request.Context(), profile.ID, interests); err != nil {
		server.Fail(c, err)
		return
	}

	s.reanalyze(userID)
	c.JSON(http.StatusOK, gin.H{"interests": interests})
}

type photoRequest struct {
	URL          string `json:"url" binding:"required,url"`
	ThumbnailURL string `json:"thumbnail_url"`
	MimeType     string `json:"mime_type"`
	IsPrimary    bool   `json:"is_primary"`

	// Upload metadata, used by the verification quality pass.
	Width         int  `json:"width"`
	Height        int  `json:"height"`
	FileSizeBytes int  `json:"file_size_bytes"`
	IsBlurry      bool `json:"is_blurry"`
}

// AddPhoto registers an uploaded photo.
func (s *Service) AddPhoto(c *gin.Context) {
	var req photoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)

	photo := &db.Photo{
		UserID:       userID,
		URL:          req.URL,
		ThumbnailURL: req.ThumbnailURL,
		MimeType:     req.MimeType,
		IsPrimary:    req.IsPrimary,
	}
	if err := s.appCtx.Profiles.AddPhoto(c.Request.Context(), photo); err != nil {
		server.Fail(c, err)
		return
	}
	if req.IsPrimary {
		if err := s.appCtx.Profiles.Update(c.Request.Context(), userID, map[string]any{
			"profile_photo_url": req.URL,
		}); err != nil {
			logger.Warn("set primary photo url", "error", err)
		}
	}
	s.verifyPhoto(userID, photo.ID, &req)
	s.reanalyze(userID)
	c.JSON(http.StatusCreated, photo)
}

// verifyPhoto runs the image verification agent on a fresh upload in the
// background. The verdict lands on the photo row.
func (s *Service) verifyPhoto(userID, photoID string, req *photoRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := s.appCtx.Orchestrator.Dispatch(ctx, agent.Task{
			Action: "verify_photo",
			UserID: userID,
			Payload: map[string]any{
				"photo_id":        photoID,
				"width":           float64(req.Width),
				"height":          float64(req.Height),
				"file_size_bytes": float64(req.FileSizeBytes),
				"is_blurry":       req.IsBlurry,
			},
		})
		if err != nil {
			logger.Warn("photo verification", "user_id", userID, "photo_id", photoID, "error", err)
		}
	}()
}

// DeletePhoto removes one of the caller's photos.
func (s *Service) DeletePhoto(c *gin.Context) {
	userID := authn.UserID(c)
	if err := s.appCtx.Profiles.DeletePhoto(c.Request.Context(), userID, c.Param("photoID")); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GetPreferences returns the caller's discovery and notification settings.
func (s *Service) GetPreferences(c *gin.Context) {
	prefs, err := s.appCtx.Profiles.Preferences(c.Request.Context(), authn.UserID(c))
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

type preferencesRequest struct {
	LookingForGender     []string `json:"looking_for_gender"`
	AgeMin               *int     `json:"age_min"`
	AgeMax               *int     `json:"age_max"`
	MaxDistanceKM        *int     `json:"max_distance_km"`
	PreferredProvinces   []string `json:"preferred_provinces"`
	PreferredReligions   []string `json:"preferred_religions"`
	DealBreakerSmoking   *bool    `json:"deal_breaker_smoking"`
	DealBreakerDrinking  *bool    `json:"deal_breaker_drinking"`
	EmailNotifications   *bool    `json:"email_notifications"`
	PushNotifications    *bool    `json:"push_notifications"`
	MatchNotifications   *bool    `json:"match_notifications"`
	MessageNotifications *bool    `json:"message_notifications"`
	ShowOnlineStatus     *bool    `json:"show_online_status"`
	ShowDistance         *bool    `json:"show_distance"`
	AllowDiscovery       *bool    `json:"allow_discovery"`
}

// UpdatePreferences upserts preference settings.
//
// Behavior:
//   - Age bounds are clamped to 18..99 and must satisfy min <= max.
//   - Unspecified fields keep their current values.
func (s *Service) UpdatePreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)

	prefs, err := s.appCtx.Profiles.Preferences(c.Request.Context(), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}

	if req.LookingForGender != nil {
		prefs.LookingForGender = req.LookingForGender
	}
	if req.AgeMin != nil {
		prefs.AgeMin = clamp(*req.AgeMin, 18, 99)
	}
	if req.AgeMax != nil {
		prefs.AgeMax = clamp(*req.AgeMax, 18, 99)
	}
	if prefs.AgeMin > prefs.AgeMax {
		server.Fail(c, svcErr.InvalidArgument("age_min cannot exceed age_max"))
		return
	}
	if req.MaxDistanceKM != nil {
		prefs.MaxDistanceKM = clamp(*req.MaxDistanceKM, 1, 500)
	}
	if req.PreferredProvinces != nil {
		prefs.PreferredProvinces = req.PreferredProvinces
	}
	if req.PreferredReligions != nil {
		prefs.PreferredReligions = req.PreferredReligions
	}
	if req.DealBreakerSmoking != nil {
		prefs.DealBreakerSmoking = *req.DealBreakerSmoking
	}
	if req.DealBreakerDrinking != nil {
		prefs.DealBreakerDrinking = *req.DealBreakerDrinking
	}
	if req.EmailNotifications != nil {
		prefs.EmailNotifications = *req.EmailNotifications
	}
	if req.PushNotifications != nil {
		prefs.PushNotifications = *req.PushNotifications
	}
	if req.MatchNotifications != nil {
		prefs.MatchNotifications = *req.MatchNotifications
	}
	if req.MessageNotifications != nil {
		prefs.MessageNotifications = *req.MessageNotifications
	}
	if req.ShowOnlineStatus != nil {
		prefs.ShowOnlineStatus = *req.ShowOnlineStatus
	}
	if req.ShowDistance != nil {
		prefs.ShowDistance = *req.ShowDistance
	}
	if req.AllowDiscovery != nil {
		prefs.AllowDiscovery = *req.AllowDiscovery
	}

	if err := s.appCtx.Profiles.UpsertPreferences(c.Request.Context(), prefs); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// reanalyze refreshes completion score, traits and embedding in the
// background so the request does not wait on the LLM.
func (s *Service) reanalyze(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := s.appCtx.Orchestrator.Dispatch(ctx, agent.Task{
			Action: "analyze_profile",
			UserID: userID,
		})
		if err != nil {
			logger.Warn("profile analysis", "user_id", userID, "error", err)
		}
	}()
}

func tierHasIncognito(tier string) bool {
	plan, ok := plans.ByCode(tier)
	return ok && plan.Has(plans.FeatureIncognito)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
