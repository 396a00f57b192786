package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager("test-secret", 30*time.Minute, 7*24*time.Hour, time.Hour)
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestIssueAndVerifyPair(t *testing.T) {
	m := testManager()
	pair, err := m.IssuePair("user-1", "user")
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64(1800), pair.ExpiresIn)

	claims, err := m.Verify(pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user", claims.Role)

	claims, err = m.Verify(pair.RefreshToken, TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	m := testManager()
	pair, err := m.IssuePair("user-1", "user")
	require.NoError(t, err)

	_, err = m.Verify(pair.RefreshToken, TokenAccess)
	assert.Error(t, err)

	_, err = m.Verify(pair.AccessToken, TokenRefresh)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute, time.Hour, time.Hour)
	pair, err := m.IssuePair("user-1", "user")
	require.NoError(t, err)

	_, err = m.Verify(pair.AccessToken, TokenAccess)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a := testManager()
	b := NewManager("other-secret", 30*time.Minute, time.Hour, time.Hour)

	pair, err := a.IssuePair("user-1", "user")
	require.NoError(t, err)

	_, err = b.Verify(pair.AccessToken, TokenAccess)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := testManager()

	router := gin.New()
	router.GET("/me", Middleware(m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	router.GET("/admin", Middleware(m), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	pair, err := m.IssuePair("user-9", "user")
	require.NoError(t, err)

	// No credentials.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Bearer header.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-9")

	// Query parameter fallback.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me?token="+pair.AccessToken, nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Refresh token is not an access token.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Non-admin on admin route.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminPair, err := m.IssuePair("admin-1", "admin")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminPair.AccessToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
