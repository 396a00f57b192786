// Package auth implements registration, login and credential management.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
	"github.com/jodi-app/jodi-server/internal/db"
	svcErr "github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/server"
)

const maxFailedLogins = 5

// Service owns the authentication endpoints.
type Service struct {
	appCtx *app.Context
}

func NewService(appCtx *app.Context) *Service {
	return &Service{appCtx: appCtx}
}

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	Password    string `json:"password" binding:"required,min=8"`
	FirstName   string `json:"first_name" binding:"required"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth" binding:"required"`
	Gender      string `json:"gender" binding:"required"`
	Consent     bool   `json:"consent"`
}

// Register creates a user with an attached profile and default preferences.
//
// Behavior:
//   - Rejects duplicate email or phone with 409.
//   - Rejects applicants younger than 18.
//   - Issues a token pair immediately so onboarding continues signed in.
//   - Queues an OTP for phone verification when a phone was supplied.
func (s *Service) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		server.Fail(c, svcErr.InvalidArgument("date_of_birth must be YYYY-MM-DD"))
		return
	}
	if age(dob, time.Now()) < 18 {
		server.Fail(c, svcErr.InvalidArgument("you must be at least 18 years old"))
		return
	}
	if !req.Consent {
		server.Fail(c, svcErr.InvalidArgument("consent is required"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.appCtx.Users.EmailOrPhoneExists(c.Request.Context(), email, req.Phone)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if exists {
		server.Fail(c, svcErr.AlreadyExists("an account with this email or phone already exists"))
		return
	}

	hash, err := authn.HashPassword(req.Password)
	if err != nil {
		server.Fail(c, err)
		return
	}

	now := time.Now()
	user := &db.User{
		Email:          email,
		PasswordHash:   hash,
		ConsentGiven:   true,
		ConsentGivenAt: &now,
	}
	if req.Phone != "" {
		user.Phone = &req.Phone
	}
	profile := &db.Profile{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: dob,
		Gender:      req.Gender,
	}
	if err := s.appCtx.Users.CreateWithProfile(c.Request.Context(), user, profile); err != nil {
		server.Fail(c, err)
		return
	}

	if req.Phone != "" {
		s.sendOTP(c, user.ID)
	}

	pair, err := s.appCtx.Tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		server.Fail(c, err)
		return
	}

	logger.Info("user registered", "user_id", user.ID)
	c.JSON(http.StatusCreated, gin.H{
		"user_id": user.ID,
		"tokens":  pair,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a token pair.
//
// Behavior:
//   - A wrong password increments the failure counter; the account locks
//     for 15 minutes after 5 consecutive failures.
//   - A successful login resets the counter and stamps last_login_at.
func (s *Service) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}

	user, err := s.appCtx.Users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			server.Fail(c, svcErr.Unauthenticated("invalid email or password"))
			return
		}
		server.Fail(c, err)
		return
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		server.Fail(c, svcErr.ResourceExhausted("account temporarily locked, try again later"))
		return
	}

	if !authn.CheckPassword(user.PasswordHash, req.Password) {
		attempts, recErr := s.appCtx.Users.RecordFailedLogin(c.Request.Context(), user.ID)
		if recErr != nil {
			logger.Warn("failed login bookkeeping", "error", recErr)
		}
		if attempts >= maxFailedLogins {
			until := time.Now().Add(15 * time.Minute)
			if lockErr := s.appCtx.Users.Lock(c.Request.Context(), user.ID, until); lockErr != nil {
				logger.Warn("lock account", "error", lockErr)
			}
			logger.Warn("account locked after repeated failures", "user_id", user.ID)
		}
		server.Fail(c, svcErr.Unauthenticated("invalid email or password"))
		return
	}

	if err := s.appCtx.Users.RecordLogin(c.Request.Context(), user.ID, time.Now()); err != nil {
		logger.Warn("record login", "error", err)
	}
	_ = s.appCtx.Profiles.TouchLastActive(c.Request.Context(), user.ID, time.Now())

	pair, err := s.appCtx.Tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "tokens": pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	claims, err := s.appCtx.Tokens.Verify(req.RefreshToken, authn.TokenRefresh)
	if err != nil {
		server.Fail(c, err)
		return
	}
	revoked, err := s.appCtx.Cache.TokenRevoked(c.Request.Context(), req.RefreshToken)
	if err != nil {
		logger.Warn("token denylist lookup", "error", err)
	}
	if revoked {
		server.Fail(c, svcErr.Unauthenticated("token has been revoked"))
		return
	}
	user, err := s.appCtx.Users.GetByID(c.Request.Context(), claims.Subject)
	if err != nil {
		server.Fail(c, svcErr.Unauthenticated("account no longer active"))
		return
	}
	pair, err := s.appCtx.Tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Logout denylists the presented refresh token for the rest of its life.
// Access tokens stay valid until they expire on their own.
func (s *Service) Logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	claims, err := s.appCtx.Tokens.Verify(req.RefreshToken, authn.TokenRefresh)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if claims.Subject != authn.UserID(c) {
		server.Fail(c, svcErr.PermissionDenied("token belongs to another account"))
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		if err := s.appCtx.Cache.RevokeToken(c.Request.Context(), req.RefreshToken, ttl); err != nil {
			server.Fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Me returns the signed-in account with its profile summary.
func (s *Service) Me(c *gin.Context) {
	userID := authn.UserID(c)
	user, err := s.appCtx.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	profile, err := s.appCtx.Profiles.GetByUserID(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		server.Fail(c, err)
		return
	}

	resp := gin.H{
		"id":                user.ID,
		"email":             user.Email,
		"phone":             user.Phone,
		"is_verified":       user.IsVerified,
		"subscription_tier": user.SubscriptionTier,
		"created_at":        user.CreatedAt,
	}
	if profile != nil {
		resp["profile"] = profile
	}
	c.JSON(http.StatusOK, resp)
}

// RequestOTP issues a fresh phone verification code.
func (s *Service) RequestOTP(c *gin.Context) {
	userID := authn.UserID(c)
	user, err := s.appCtx.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if user.Phone == nil {
		server.Fail(c, svcErr.InvalidArgument("no phone number on file"))
		return
	}
	if user.PhoneVerifiedAt != nil {
		server.Fail(c, svcErr.AlreadyExists("phone already verified"))
		return
	}
	s.sendOTP(c, userID)
	c.JSON(http.StatusOK, gin.H{"status": "otp_sent"})
}

type verifyOTPRequest struct {
	Code string `json:"code" binding:"required,len=6"`
}

// VerifyOTP checks the code stored in Redis and marks the phone verified.
func (s *Service) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)

	stored, err := s.appCtx.Cache.OTP(c.Request.Context(), userID)
	if err != nil {
		server.Fail(c, svcErr.InvalidArgument("code expired or not requested"))
		return
	}
	if stored != req.Code {
		server.Fail(c, svcErr.InvalidArgument("incorrect code"))
		return
	}
	if err := s.appCtx.Users.SetPhoneVerified(c.Request.Context(), userID, time.Now()); err != nil {
		server.Fail(c, err)
		return
	}
	_ = s.appCtx.Cache.DeleteOTP(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword issues a password reset token. The response is identical
// whether or not the email exists.
func (s *Service) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}

	resp := gin.H{"status": "reset_requested"}

	user, err := s.appCtx.Users.GetByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	token, err := s.appCtx.Tokens.IssueReset(user.ID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	// TODO: deliver via email once an SMTP provider is configured. Until
	// then the token is logged and, outside production, returned.
	logger.Info("password reset issued", "user_id", user.ID)
	if s.appCtx.Config.App.ENV != "production" {
		resp["reset_token"] = token
	}
	c.JSON(http.StatusOK, resp)
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// ResetPassword consumes a reset token and replaces the password.
func (s *Service) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	claims, err := s.appCtx.Tokens.Verify(req.Token, authn.TokenReset)
	if err != nil {
		server.Fail(c, err)
		return
	}
	hash, err := authn.HashPassword(req.NewPassword)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if err := s.appCtx.Users.SetPassword(c.Request.Context(), claims.Subject, hash); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// ChangePassword replaces the password for the signed-in user.
func (s *Service) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.Fail(c, svcErr.InvalidArgument("%s", err.Error()))
		return
	}
	userID := authn.UserID(c)
	user, err := s.appCtx.Users.GetByID(c.Request.Context(), userID)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if !authn.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		server.Fail(c, svcErr.Unauthenticated("current password is incorrect"))
		return
	}
	hash, err := authn.HashPassword(req.NewPassword)
	if err != nil {
		server.Fail(c, err)
		return
	}
	if err := s.appCtx.Users.SetPassword(c.Request.Context(), userID, hash); err != nil {
		server.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
}

// Deactivate soft-deletes the account and hides the profile.
func (s *Service) Deactivate(c *gin.Context) {
	userID := authn.UserID(c)
	if err := s.appCtx.Users.Deactivate(c.Request.Context(), userID); err != nil {
		server.Fail(c, err)
		return
	}
	logger.Info("account deactivated", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (s *Service) sendOTP(c *gin.Context, userID string) {
	code := otpCode()
	if err := s.appCtx.Cache.SetOTP(c.Request.Context(), userID, code); err != nil {
		logger.Warn("store otp", "error", err)
		return
	}
	// SMS delivery is out of band; the code is logged for the dev stack.
	logger.Info("otp generated", "user_id", userID)
	if s.appCtx.Config.App.ENV != "production" {
		logger.Debug("otp code", "user_id", userID, "code", code)
	}
}

func otpCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}

func age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	return years
}
