package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Observer roles
const (
	RoleObserver = "observer"
	RoleAdmin    = "admin"
)

var (
	// ErrInvalidCredentials is returned for a wrong username or password
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrLoginDisabled is returned when no observer password is configured
	ErrLoginDisabled = errors.New("observer login is not configured")
)

// Observer is an authenticated reviewer of training conversations
type Observer struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Config contains authentication configuration
type Config struct {
	JWTSecret     string
	TokenDuration time.Duration
	// Username and PasswordHash are the observer credentials; an empty
	// hash disables login
	Username     string
	PasswordHash string
	// Role is granted to the observer on login; admin also unlocks settings
	Role string
}

// Auth handles observer authentication
type Auth struct {
	config Config
	now    func() time.Time
}

// New creates a new Auth instance
func New(config Config) *Auth {
	if config.Username == "" {
		config.Username = RoleObserver
	}
	if config.Role == "" {
		config.Role = RoleObserver
	}
	return &Auth{
		config: config,
		now:    time.Now,
	}
}

// GetConfig returns the authentication configuration
func (a *Auth) GetConfig() Config {
	return a.config
}

// Token is an issued access token
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticate checks observer credentials
func (a *Auth) Authenticate(username, password string) (*Observer, error) {
	if a.config.PasswordHash == "" {
		return nil, ErrLoginDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.config.Username)) == 1
	// bcrypt runs even when the username is wrong
	passOK := CheckPassword(a.config.PasswordHash, password)
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}
	return &Observer{Username: a.config.Username, Role: a.config.Role}, nil
}

// GenerateToken generates a signed JWT for an observer
func (a *Auth) GenerateToken(observer Observer) (*Token, error) {
	now := a.now()
	expiresAt := now.Add(a.config.TokenDuration)

	claims := &Claims{
		Username: observer.Username,
		Role:     observer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "rapport",
			Subject:   observer.Username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// ValidateToken validates a JWT token
func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.JWTSecret), nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("failed to extract claims")
	}

	return claims, nil
}

// GenerateRandomKey generates a random key for JWT signing
func GenerateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// AuthMiddleware returns a middleware that checks for a valid JWT token
func (a *Auth) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := a.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid token: %v", err)})
			return
		}

		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// GetUsername gets the username from the context
func GetUsername(c *gin.Context) (string, bool) {
	username, exists := c.Get("username")
	if !exists {
		return "", false
	}
	return username.(string), true
}

// GetUserRole gets the user role from the context
func GetUserRole(c *gin.Context) (string, bool) {
	role, exists := c.Get("role")
	if !exists {
		return "", false
	}
	return role.(string), true
}

// RequireRole returns a middleware that requires a specific role. Admins
// pass every role check.
func (a *Auth) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := GetUserRole(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			return
		}

		if userRole != role && userRole != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}

		c.Next()
	}
}
