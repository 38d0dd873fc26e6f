package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newProtectedRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/hook", RequireAPIKey(key), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func TestRequireAPIKey_ValidKeyPasses(t *testing.T) {
	engine := newProtectedRouter("secret")

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(APIKeyHeader, "secret")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAPIKey_InvalidKeyRejected(t *testing.T) {
	engine := newProtectedRouter("secret")

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAPIKey_MissingKeyRejected(t *testing.T) {
	engine := newProtectedRouter("secret")

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAPIKey_UnconfiguredKeyDisablesRoute(t *testing.T) {
	engine := newProtectedRouter("")

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(APIKeyHeader, "anything")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
