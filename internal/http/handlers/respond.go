package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func requestIDFrom(ctx *gin.Context) string {
	return middlewares.RequestIDOf(ctx)
}

// RespondError writes the shared error envelope; see middlewares.APIError.
func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	middlewares.AbortWithError(ctx, status, code, message, details)
}

func RespondBadRequest(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusBadRequest, code, message, nil)
}

// RespondValidation is 422 validation_error; details usually carries
// {"fields": [...]}.
func RespondValidation(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusUnprocessableEntity, "validation_error", message, details)
}

// RespondUnauthorized adds the Bearer challenge required on every 401.
// RespondAccountValidation writes a 422 for an account.ValidationError in
// the same shape as binding failures and reports whether err was one.
func RespondAccountValidation(ctx *gin.Context, err error) bool {
	var ve *account.ValidationError
	if !errors.As(err, &ve) {
		return false
	}

	RespondValidation(ctx, "Invalid request body", gin.H{"fields": []FieldError{{
		Field:   ve.Field,
		Rule:    ve.Rule,
		Param:   ve.Param,
		Message: ve.Message,
	}}})
	return true
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	ctx.Header("WWW-Authenticate", "Bearer")
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondTooLarge(ctx *gin.Context) {
	RespondError(ctx, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large", nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}
