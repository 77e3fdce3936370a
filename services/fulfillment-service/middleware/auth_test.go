package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/middleware"
)

var testSecret = []byte("test-admin-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func setupRouter(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/ping", middleware.AdminJWT(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sub": c.GetString(middleware.ContextSubject)})
	})
	return r
}

func do(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminJWT_Valid(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub":  "ops@example.com",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	w := do(setupRouter(testSecret), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ops@example.com")
}

func TestAdminJWT_Rejections(t *testing.T) {
	r := setupRouter(testSecret)

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer not.a.jwt").Code)

	expired := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer "+expired).Code)

	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"role": "admin"})
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer "+wrongKey).Code)

	customer := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"role": "customer"})
	assert.Equal(t, http.StatusForbidden, do(r, "Bearer "+customer).Code)
}

func TestAdminJWT_Unconfigured(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, do(setupRouter(nil), "Bearer x").Code)
}
