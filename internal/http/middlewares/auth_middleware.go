package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/accounthub/internal/actorctx"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/gin-gonic/gin"
)

// Keep these small so tests can fake them easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AccountLookup interface {
	Get(ctx context.Context, id string) (account.Account, error)
}

type AuthMiddleware struct {
	jwt      TokenVerifier
	accounts AccountLookup
}

func NewAuthMiddleware(jwt TokenVerifier, accounts AccountLookup) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, accounts: accounts}
}

// RequireAuth admits requests carrying a valid bearer token whose subject
// still exists, and puts an actorctx.Caller on the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !hasBearerPrefix(authHeader) {
			unauthorized(c, "Not authenticated")
			return
		}

		raw := strings.TrimSpace(authHeader[len("Bearer "):])
		if raw == "" {
			unauthorized(c, "Not authenticated")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			msg := "Could not validate credentials"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "Token has expired"
			}
			invalidToken(c, msg)
			return
		}

		a, err := m.accounts.Get(c.Request.Context(), claims.AccountID())
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				invalidToken(c, "Could not validate credentials")
				return
			}
			slog.Default().ErrorContext(c.Request.Context(), "auth account lookup failed",
				"account_id", claims.AccountID(), "err", err)
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
			return
		}

		caller := actorctx.Caller{AccountID: a.ID, Username: a.Username}
		c.Request = c.Request.WithContext(actorctx.WithCaller(c.Request.Context(), caller))
		c.Set(CtxAccountID, a.ID)
		c.Set(CtxUsername, a.Username)

		c.Next()
	}
}

// CallerFromContext is a helper so handlers don't need to know where the caller lives.
func CallerFromContext(c *gin.Context) (actorctx.Caller, bool) {
	return actorctx.CallerFrom(c.Request.Context())
}

func hasBearerPrefix(h string) bool {
	return len(h) > len("Bearer ") && strings.EqualFold(h[:len("Bearer ")], "Bearer ")
}

// unauthorized is for requests without credentials.
func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	abortWithError(c, http.StatusUnauthorized, "unauthorized", message)
}

// invalidToken is for credentials that were presented but rejected.
func invalidToken(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	abortWithError(c, http.StatusUnauthorized, "invalid_token", message)
}
