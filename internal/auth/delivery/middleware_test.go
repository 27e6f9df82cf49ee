package delivery

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	authdomain "mailwatch-backend/internal/auth/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubAuth struct{}

func (stubAuth) ValidateToken(token string) (*authdomain.Principal, error) {
	switch token {
	case "user":
		return &authdomain.Principal{UserID: "u1", Email: "jane@example.com"}, nil
	case "service":
		return &authdomain.Principal{Role: authdomain.RoleServiceRole}, nil
	}
	return nil, errors.New("invalid")
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(stubAuth{}), func(c *gin.Context) {
		c.String(http.StatusOK, GetPrincipal(c).Email)
	})
	r.GET("/admin", AuthMiddleware(stubAuth{}), RequireServiceRole(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic user", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"user", "/me", "Bearer user", http.StatusOK},
		{"user on admin route", "/admin", "Bearer user", http.StatusForbidden},
		{"service on admin route", "/admin", "Bearer service", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.name == "user" {
				assert.Equal(t, "jane@example.com", w.Body.String())
			}
		})
	}
}
