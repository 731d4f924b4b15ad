package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	List(ctx context.Context, skip, limit int) ([]account.Account, error)
	Get(ctx context.Context, id string) (account.Account, error)
	Update(ctx context.Context, id string, req account.UpdateRequest) (account.Account, error)
	Delete(ctx context.Context, id string) error
}

type UsersHandler struct {
	svc AccountService
	log *slog.Logger
}

func NewUsersHandler(svc AccountService, log *slog.Logger) *UsersHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UsersHandler{svc: svc, log: log}
}

type listQuery struct {
	Skip  int `form:"skip" binding:"min=0"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

func (h *UsersHandler) List(ctx *gin.Context) {
	var q listQuery
	if !BindQuery(ctx, &q) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := h.svc.List(cctx, q.Skip, q.Limit)
	if err != nil {
		h.respondServiceError(ctx, "list users", err)
		return
	}

	ctx.JSON(http.StatusOK, items)
}

func (h *UsersHandler) Me(ctx *gin.Context) {
	caller, ok := middlewares.CallerFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Not authenticated")
		return
	}
	h.get(ctx, caller.AccountID)
}

func (h *UsersHandler) UpdateMe(ctx *gin.Context) {
	caller, ok := middlewares.CallerFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Not authenticated")
		return
	}
	h.update(ctx, caller.AccountID)
}

func (h *UsersHandler) GetByID(ctx *gin.Context) {
	h.get(ctx, ctx.Param("id"))
}

func (h *UsersHandler) UpdateByID(ctx *gin.Context) {
	h.update(ctx, ctx.Param("id"))
}

func (h *UsersHandler) DeleteByID(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.svc.Delete(cctx, id); err != nil {
		h.respondServiceError(ctx, "delete user", err)
		return
	}

	caller, _ := middlewares.CallerFromContext(ctx)
	h.log.InfoContext(ctx.Request.Context(), "account deleted",
		"account_id", id, "by", caller.AccountID, "request_id", requestIDFrom(ctx))

	ctx.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *UsersHandler) get(ctx *gin.Context, id string) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	a, err := h.svc.Get(cctx, id)
	if err != nil {
		h.respondServiceError(ctx, "get user", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, a)
}

func (h *UsersHandler) update(ctx *gin.Context, id string) {
	var req account.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	a, err := h.svc.Update(cctx, id, req)
	if err != nil {
		h.respondServiceError(ctx, "update user", err)
		return
	}

	ctx.JSON(http.StatusOK, a)
}

func (h *UsersHandler) respondServiceError(ctx *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, account.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, account.ErrUsernameTaken):
		RespondBadRequest(ctx, "username_taken", "Username already registered")
	case RespondAccountValidation(ctx, err):
	default:
		h.log.ErrorContext(ctx.Request.Context(), op+" failed", "request_id", requestIDFrom(ctx), "err", err)
		RespondInternal(ctx, "Internal server error")
	}
}
