package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"studybuddy-backend/internal/models"
)

type contextKey string

const (
	UserKey  contextKey = "user"
	TokenKey contextKey = "token"
)

// RevocationChecker reports tokens invalidated by logout.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Claims) User() models.User {
	return models.User{ID: c.UserID, Name: c.Name, Email: c.Email}
}

type JWTAuth struct {
	Secret  []byte
	TTL     time.Duration
	revoked RevocationChecker
}

func NewJWTAuth(secret string, ttl time.Duration, revoked RevocationChecker) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret), TTL: ttl, revoked: revoked}
}

// GenerateAccessToken signs an HS256 token for user that expires after TTL.
func (j *JWTAuth) GenerateAccessToken(user models.User) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseToken verifies signature and expiry. It does not consult revocations.
func (j *JWTAuth) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Authenticate resolves a raw token to its claims, rejecting revoked tokens.
func (j *JWTAuth) Authenticate(ctx context.Context, tokenStr string) (*Claims, string, string) {
	claims, err := j.ParseToken(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, "TOKEN_EXPIRED", "Token has expired"
		}
		return nil, "UNAUTHORIZED", "Invalid token"
	}

	if j.revoked != nil {
		revoked, err := j.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, "UNAUTHORIZED", "Could not verify token"
		}
		if revoked {
			return nil, "TOKEN_REVOKED", "Token has been revoked"
		}
	}
	return claims, "", ""
}

// Middleware validates the bearer token and attaches the user to the context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		claims, code, msg := j.Authenticate(r.Context(), parts[1])
		if claims == nil {
			writeError(w, http.StatusUnauthorized, code, msg, r)
			return
		}

		ctx := WithUser(r.Context(), claims.User())
		ctx = context.WithValue(ctx, TokenKey, parts[1])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUser extracts the authenticated user from the request context.
func GetUser(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(UserKey).(models.User)
	return u, ok
}

func GetToken(ctx context.Context) string {
	t, _ := ctx.Value(TokenKey).(string)
	return t
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(r.Context()),
		},
	})
}
