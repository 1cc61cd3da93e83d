package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	router := gin.New()
	router.GET("/whoami", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"owner": Owner(c)})
	})
	return router
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer token",
			header:     "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			header:     "Bearer garbage",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			header:     "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"userId": "u1"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing userId claim",
			header:     "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"email": "a@b.c"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "string userId",
			header:     "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"userId": "user-42"}),
			wantStatus: http.StatusOK,
			wantBody:   `"owner":"user-42"`,
		},
		{
			name:       "numeric userId is normalized",
			header:     "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"userId": 42}),
			wantStatus: http.StatusOK,
			wantBody:   `"owner":"42"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := authedRouter(t)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}
