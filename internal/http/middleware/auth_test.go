// README: Tests for Firebase auth middleware, driver ownership and panic recovery.
package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"courier/internal/http/middleware"
	"courier/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		uid := middleware.CallerUID(c)
		role := middleware.CallerRole(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "role": role})
	})
	return r
}

func TestAuth_MissingHeader(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "user1"}})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "user1"}})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Token sometoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_VerifierError(t *testing.T) {
	r := newTestRouter(&stubVerifier{err: errors.New("bad token")})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer invalidtoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken_UIDAndRolePopulated(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "driver123",
		Claims: map[string]interface{}{"role": "driver"},
	}
	r := newTestRouter(&stubVerifier{token: token})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer validtoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if body == "" {
		t.Error("expected non-empty body")
	}
	// Verify response contains the uid and role.
	if !strings.Contains(body, "driver123") {
		t.Errorf("expected uid driver123 in body, got %s", body)
	}
	if !strings.Contains(body, "driver") {
		t.Errorf("expected role driver in body, got %s", body)
	}
}

func TestAuth_ValidToken_NoRoleClaim(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:    "customer456",
		Claims: map[string]interface{}{},
	}
	r := newTestRouter(&stubVerifier{token: token})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer validtoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "customer456") {
		t.Errorf("expected uid customer456 in body")
	}
}

func newDriverRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/drivers/:driver_id", middleware.RequireDriver("driver_id"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireDriver(t *testing.T) {
	cases := []struct {
		name string
		uid  string
		role string
		path string
		want int
	}{
		{"own resource", "d1", "driver", "/drivers/d1", http.StatusNoContent},
		{"other driver", "d1", "driver", "/drivers/d2", http.StatusForbidden},
		{"not a driver", "d1", "customer", "/drivers/d1", http.StatusForbidden},
		{"no role", "d1", "", "/drivers/d1", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := map[string]interface{}{}
			if tc.role != "" {
				claims["role"] = tc.role
			}
			r := newDriverRouter(&stubVerifier{token: &infra.FirebaseToken{UID: tc.uid, Claims: claims}})
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set("Authorization", "Bearer validtoken")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
