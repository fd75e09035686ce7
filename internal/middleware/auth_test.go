package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"engagement-service/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret))
	r.GET("/me", func(c *gin.Context) {
		id, ok := GetUserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.String())
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "s3cret"
	userID := uuid.New()
	token, err := auth.GenerateToken(userID, secret, time.Hour, time.Now())
	require.NoError(t, err)
	other, err := auth.GenerateToken(userID, "other", time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "bearer header", header: "Bearer " + token, status: http.StatusOK},
		{name: "query token", query: "?token=" + token, status: http.StatusOK},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + other, status: http.StatusUnauthorized},
		{name: "no scheme", header: token, status: http.StatusUnauthorized},
	}
	router := newRouter(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, userID.String(), w.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS())
	r.OPTIONS("/posts", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/posts", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
