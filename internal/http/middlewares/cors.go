package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	corsAllowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}, ",")
	corsAllowHeaders  = strings.Join([]string{"Authorization", "Content-Type", "If-None-Match", HeaderRequestID}, ",")
	corsExposeHeaders = strings.Join([]string{"ETag", "Retry-After", HeaderRequestID}, ",")
)

// originMatcher knows which origins CORS_ORIGINS lets in. Entries are exact
// origins, "*", or a scheme plus "*." host suffix like "https://*.example.com".
type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: make(map[string]struct{}, len(origins))}

	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			// "https://*.example.com" matches "https://a.example.com"
			scheme, host, _ := strings.Cut(o, "://*")
			m.suffixes = append(m.suffixes, scheme+"://|"+host)
		default:
			m.exact[o] = struct{}{}
		}
	}
	return m
}

// credentialed reports whether origin is listed explicitly (or by
// pattern). Such origins are echoed back and may send credentials.
func (m originMatcher) credentialed(origin string) bool {
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, s := range m.suffixes {
		scheme, host, _ := strings.Cut(s, "|")
		rest, ok := strings.CutPrefix(origin, scheme)
		if ok && strings.HasSuffix(rest, host) && len(rest) > len(host) {
			return true
		}
	}
	return false
}

// CORSMiddleware sets CORS headers for allowed origins and answers every
// OPTIONS request with 204. A bare "*" allows any origin without
// credentials.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	m := newOriginMatcher(allowedOrigins)

	return func(ctx *gin.Context) {
		if origin := ctx.GetHeader("Origin"); origin != "" {
			switch {
			case m.credentialed(origin):
				ctx.Header("Access-Control-Allow-Origin", origin)
				ctx.Header("Access-Control-Allow-Credentials", "true")
				ctx.Writer.Header().Add("Vary", "Origin")
				setCORSHeaders(ctx)
			case m.any:
				ctx.Header("Access-Control-Allow-Origin", "*")
				setCORSHeaders(ctx)
			}
		}

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		ctx.Next()
	}
}

func setCORSHeaders(ctx *gin.Context) {
	ctx.Header("Access-Control-Allow-Methods", corsAllowMethods)
	ctx.Header("Access-Control-Allow-Headers", corsAllowHeaders)
	ctx.Header("Access-Control-Expose-Headers", corsExposeHeaders)
	ctx.Header("Access-Control-Max-Age", "600")
}
