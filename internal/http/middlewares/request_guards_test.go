package middlewares_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func TestRequireJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/register/", middlewares.RequireJSON(), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{name: "json", contentType: "application/json", body: `{}`, want: http.StatusOK},
		{name: "json_with_charset", contentType: "application/json; charset=utf-8", body: `{}`, want: http.StatusOK},
		{name: "form", contentType: "application/x-www-form-urlencoded", body: "a=b", want: http.StatusUnsupportedMediaType},
		{name: "lookalike", contentType: "application/jsonp", body: `{}`, want: http.StatusUnsupportedMediaType},
		{name: "missing_type_with_body", body: `{}`, want: http.StatusUnsupportedMediaType},
		{name: "no_body", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/register/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMaxBodyBytes_RejectsDeclaredLength(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middlewares.MaxBodyBytes(8))

	reached := false
	r.POST("/x", func(c *gin.Context) {
		reached = true
		_, _ = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(strings.Repeat("a", 64)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got %d, want 413", w.Code)
	}
	if reached {
		t.Fatalf("handler should not run")
	}

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("small"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
}
