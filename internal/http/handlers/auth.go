package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/geocoder89/accounthub/internal/service"
	"github.com/gin-gonic/gin"
)

type Registerer interface {
	Register(ctx context.Context, req account.RegisterRequest) (account.Account, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (service.Token, error)
}

type AuthHandler struct {
	registerer    Registerer
	authenticator Authenticator
	log           *slog.Logger
}

func NewAuthHandler(registerer Registerer, authenticator Authenticator, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		registerer:    registerer,
		authenticator: authenticator,
		log:           log,
	}
}

// TokenRequest is the OAuth2 password-grant form.
type TokenRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req account.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	a, err := h.registerer.Register(cctx, req)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUsernameTaken):
			RespondBadRequest(ctx, "username_taken", "Username already registered")
		case RespondAccountValidation(ctx, err):
		default:
			h.log.ErrorContext(ctx.Request.Context(), "register failed", "request_id", requestIDFrom(ctx), "err", err)
			RespondInternal(ctx, "Could not create user")
		}
		return
	}

	ctx.JSON(http.StatusOK, a)
}

func (h *AuthHandler) Token(ctx *gin.Context) {
	var req TokenRequest

	if !BindForm(ctx, &req) {
		return
	}

	// short timeout for the lookup; bcrypt dominates anyway
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	tok, err := h.authenticator.Authenticate(cctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			RespondUnauthorized(ctx, "invalid_credentials", "Incorrect username or password")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "authenticate failed", "request_id", requestIDFrom(ctx), "err", err)
		RespondInternal(ctx, "Could not authenticate")
		return
	}

	ctx.Header("Cache-Control", "no-store")
	ctx.JSON(http.StatusOK, tok)
}
