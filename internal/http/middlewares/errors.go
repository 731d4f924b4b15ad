package middlewares

import (
	"github.com/gin-gonic/gin"
)

// APIError is the "error" member of every non-2xx body.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type errorBody struct {
	// Detail repeats the message for clients that read a flat string.
	Detail string   `json:"detail"`
	Error  APIError `json:"error"`
}

// RequestIDOf returns the id RequestID() assigned, or the inbound header when
// the middleware did not run.
func RequestIDOf(c *gin.Context) string {
	if id := c.GetString(CtxRequestID); id != "" {
		return id
	}
	return c.GetHeader(HeaderRequestID)
}

// AbortWithError writes the error envelope and stops the chain.
func AbortWithError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, errorBody{
		Detail: message,
		Error: APIError{
			Code:      code,
			Message:   message,
			RequestID: RequestIDOf(c),
			Details:   details,
		},
	})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	AbortWithError(c, status, code, message, nil)
}
