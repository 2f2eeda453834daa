package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"courier/internal/infra"
	"courier/internal/modules/dispatch"
	"courier/internal/notify"
	"courier/internal/types"
)

type rejectAll struct{}

func (rejectAll) VerifyIDToken(context.Context, string) (*infra.FirebaseToken, error) {
	return nil, errors.New("expired")
}

type noDispatch struct{}

func (noDispatch) AcceptOrder(context.Context, dispatch.AcceptCommand) dispatch.Result {
	return dispatch.Result{}
}
func (noDispatch) AdvanceProgress(context.Context, dispatch.AdvanceCommand) dispatch.Result {
	return dispatch.Result{}
}
func (noDispatch) GetActiveStage(context.Context, types.ID) dispatch.Result {
	return dispatch.Result{}
}

func TestRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewServer(ServerDeps{Dispatch: noDispatch{}, Hub: notify.NewHub(nil), Verifier: rejectAll{}}).Routes()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/api/drivers/d1/orders/o1/accept", http.StatusUnauthorized},
		{http.MethodGet, "/api/drivers/d1/progress-stage", http.StatusUnauthorized},
		{http.MethodPost, "/api/progress-stages/s1/advance", http.StatusUnauthorized},
		{http.MethodGet, "/ws/drivers/d1", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, w.Code)
		}
	}
}
