package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAuth(t *testing.T, password string) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return New(Config{
		JWTSecret:     "test_secret",
		TokenDuration: time.Hour,
		Username:      "reviewer",
		PasswordHash:  string(hash),
	})
}

func TestNew(t *testing.T) {
	a := New(Config{JWTSecret: "test_secret", TokenDuration: time.Hour})
	assert.NotNil(t, a)
	assert.Equal(t, RoleObserver, a.GetConfig().Username)
}

func TestAuthenticate(t *testing.T) {
	a := testAuth(t, "S3cret!pass")

	observer, err := a.Authenticate("reviewer", "S3cret!pass")
	require.NoError(t, err)
	assert.Equal(t, "reviewer", observer.Username)
	assert.Equal(t, RoleObserver, observer.Role)

	_, err = a.Authenticate("reviewer", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate("someone", "S3cret!pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	admin := New(Config{JWTSecret: "test_secret", PasswordHash: testAuth(t, "pw").config.PasswordHash, Role: RoleAdmin})
	observer, err = admin.Authenticate("observer", "pw")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, observer.Role)

	disabled := New(Config{JWTSecret: "test_secret", TokenDuration: time.Hour})
	_, err = disabled.Authenticate("observer", "")
	assert.ErrorIs(t, err, ErrLoginDisabled)
}

func TestGenerateToken(t *testing.T) {
	a := testAuth(t, "pw")

	token, err := a.GenerateToken(Observer{Username: "reviewer", Role: RoleObserver})
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)

	claims, err := a.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", claims.Username)
	assert.Equal(t, RoleObserver, claims.Role)
	assert.Equal(t, "rapport", claims.Issuer)
}

func TestValidateToken(t *testing.T) {
	a := testAuth(t, "pw")
	token, err := a.GenerateToken(Observer{Username: "reviewer", Role: RoleObserver})
	require.NoError(t, err)

	other := New(Config{JWTSecret: "other_secret", TokenDuration: time.Hour})
	foreign, err := other.GenerateToken(Observer{Username: "reviewer", Role: RoleAdmin})
	require.NoError(t, err)

	testCases := []struct {
		name          string
		token         string
		expectedError bool
	}{
		{"Valid token", token.AccessToken, false},
		{"Empty token", "", true},
		{"Invalid token", "invalid.token.string", true},
		{"Malformed token", "malformedtoken", true},
		{"Wrong secret", foreign.AccessToken, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := a.ValidateToken(tc.token)
			if tc.expectedError {
				assert.Error(t, err)
				assert.Nil(t, claims)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "reviewer", claims.Username)
			}
		})
	}
}

func TestExpiredToken(t *testing.T) {
	a := testAuth(t, "pw")
	issued := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }

	token, err := a.GenerateToken(Observer{Username: "reviewer", Role: RoleObserver})
	require.NoError(t, err)

	a.now = func() time.Time { return issued.Add(2 * time.Hour) }
	claims, err := a.ValidateToken(token.AccessToken)
	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "token is expired")
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	a := testAuth(t, "pw")
	token, err := a.GenerateToken(Observer{Username: "reviewer", Role: RoleObserver})
	require.NoError(t, err)

	router := gin.New()
	router.Use(a.AuthMiddleware())
	router.GET("/protected", func(c *gin.Context) {
		username, _ := GetUsername(c)
		role, _ := GetUserRole(c)
		c.JSON(http.StatusOK, gin.H{"username": username, "role": role})
	})

	testCases := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{"No header", "", http.StatusUnauthorized},
		{"Wrong scheme", "Basic " + token.AccessToken, http.StatusUnauthorized},
		{"Invalid token", "Bearer nope", http.StatusUnauthorized},
		{"Valid token", "Bearer " + token.AccessToken, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedStatus == http.StatusOK {
				assert.JSONEq(t, `{"username":"reviewer","role":"observer"}`, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	a := testAuth(t, "pw")
	tokenFor := func(role string) string {
		token, err := a.GenerateToken(Observer{Username: "reviewer", Role: role})
		require.NoError(t, err)
		return token.AccessToken
	}

	router := gin.New()
	group := router.Group("/observer")
	group.Use(a.AuthMiddleware(), a.RequireRole(RoleObserver))
	group.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	unguarded := gin.New()
	unguarded.GET("/observer", a.RequireRole(RoleObserver), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	testCases := []struct {
		name           string
		router         *gin.Engine
		token          string
		expectedStatus int
	}{
		{"Observer", router, tokenFor(RoleObserver), http.StatusOK},
		{"Admin", router, tokenFor(RoleAdmin), http.StatusOK},
		{"Other role", router, tokenFor("trainee"), http.StatusForbidden},
		{"No auth middleware", unguarded, "", http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/observer", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			tc.router.ServeHTTP(w, req)
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("S3cret!pass")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "S3cret!pass"))
	assert.False(t, CheckPassword(hash, "s3cret!pass"))
	assert.False(t, CheckPassword("not-a-hash", "S3cret!pass"))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, PasswordCost, cost)
}

func TestIsStrongPassword(t *testing.T) {
	tests := map[string]bool{
		"S3cret!pass": true,
		"short1!A":    true,
		"Sh0rt!":      false,
		"alllower1!":  false,
		"ALLUPPER1!":  false,
		"NoDigits!!":  false,
		"NoSpecial12": false,
	}
	for password, want := range tests {
		assert.Equal(t, want, IsStrongPassword(password), password)
	}
}
