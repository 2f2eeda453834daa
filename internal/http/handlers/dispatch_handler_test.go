// README: Handler tests for dispatch routes: status mapping, auth and request shaping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"courier/internal/http/handlers"
	httpmiddleware "courier/internal/http/middleware"
	"courier/internal/infra"
	"courier/internal/modules/dispatch"
	"courier/internal/types"
)

type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

// stubDispatch records the last command and answers with result.
type stubDispatch struct {
	mu      sync.Mutex
	result  dispatch.Result
	accept  *dispatch.AcceptCommand
	advance *dispatch.AdvanceCommand
	active  types.ID
}

func (s *stubDispatch) AcceptOrder(_ context.Context, cmd dispatch.AcceptCommand) dispatch.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accept = &cmd
	return s.result
}

func (s *stubDispatch) AdvanceProgress(_ context.Context, cmd dispatch.AdvanceCommand) dispatch.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance = &cmd
	return s.result
}

func (s *stubDispatch) GetActiveStage(_ context.Context, driverID types.ID) dispatch.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = driverID
	return s.result
}

const driverUID = "7d1f6b1e-7a51-4c1b-9d7e-0a0c2b7b1d11"

func buildTestRouter(svc handlers.DispatchService, verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier))
	h := handlers.NewDispatchHandler(svc)
	r.POST("/api/drivers/:driver_id/orders/:order_id/accept", httpmiddleware.RequireDriver("driver_id"), h.Accept)
	r.GET("/api/drivers/:driver_id/progress-stage", httpmiddleware.RequireDriver("driver_id"), h.ActiveStage)
	r.POST("/api/progress-stages/:stage_id/advance", httpmiddleware.RequireDriver(""), h.Advance)
	return r
}

func driverVerifier() *stubTokenVerifier {
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: driverUID, Claims: map[string]interface{}{"role": "driver"}}}
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAccept_StatusMapping(t *testing.T) {
	cases := []struct {
		kind dispatch.FailureKind
		want int
	}{
		{dispatch.KindValidation, http.StatusBadRequest},
		{dispatch.KindNotFound, http.StatusNotFound},
		{dispatch.KindConflict, http.StatusConflict},
		{dispatch.KindTimeout, http.StatusGatewayTimeout},
		{dispatch.KindServer, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &stubDispatch{result: dispatch.Result{Kind: tc.kind, Message: "nope"}}
		r := buildTestRouter(svc, driverVerifier())
		w := doRequest(r, http.MethodPost, "/api/drivers/"+driverUID+"/orders/o1/accept", nil)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.kind, tc.want, w.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body["error"] != "nope" || body["kind"] != string(tc.kind) {
			t.Errorf("%s: unexpected body %s", tc.kind, w.Body.String())
		}
	}
}

func TestAccept_Success(t *testing.T) {
	svc := &stubDispatch{result: dispatch.Result{Success: true}}
	r := buildTestRouter(svc, driverVerifier())
	w := doRequest(r, http.MethodPost, "/api/drivers/"+driverUID+"/orders/o1/accept", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.accept == nil || svc.accept.DriverID != driverUID || svc.accept.OrderID != "o1" {
		t.Errorf("unexpected command %+v", svc.accept)
	}
}

func TestAccept_OtherDriverForbidden(t *testing.T) {
	svc := &stubDispatch{result: dispatch.Result{Success: true}}
	r := buildTestRouter(svc, driverVerifier())
	w := doRequest(r, http.MethodPost, "/api/drivers/someone-else/orders/o1/accept", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if svc.accept != nil {
		t.Error("service must not be called")
	}
}

func TestAdvance_PassesOrderAndCaller(t *testing.T) {
	svc := &stubDispatch{result: dispatch.Result{Success: true}}
	r := buildTestRouter(svc, driverVerifier())

	w := doRequest(r, http.MethodPost, "/api/progress-stages/s1/advance", map[string]any{"order_id": "o2"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cmd := svc.advance
	if cmd == nil || cmd.StageID != "s1" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if cmd.OrderID == nil || *cmd.OrderID != "o2" {
		t.Errorf("expected order_id o2, got %v", cmd.OrderID)
	}
	if cmd.DriverID == nil || *cmd.DriverID != driverUID {
		t.Errorf("expected caller as driver, got %v", cmd.DriverID)
	}
}

func TestAdvance_EmptyBodyAndBadJSON(t *testing.T) {
	svc := &stubDispatch{result: dispatch.Result{Success: true}}
	r := buildTestRouter(svc, driverVerifier())

	w := doRequest(r, http.MethodPost, "/api/progress-stages/s1/advance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.advance.OrderID != nil {
		t.Errorf("expected no target order, got %v", *svc.advance.OrderID)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/progress-stages/s1/advance", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestActiveStage(t *testing.T) {
	svc := &stubDispatch{result: dispatch.Result{Kind: dispatch.KindNotFound, Message: "no active stage"}}
	r := buildTestRouter(svc, driverVerifier())
	w := doRequest(r, http.MethodGet, "/api/drivers/"+driverUID+"/progress-stage", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if svc.active != driverUID {
		t.Errorf("expected driver %s, got %s", driverUID, svc.active)
	}
}

func TestCustomerCannotAccept(t *testing.T) {
	svc := &stubDispatch{result: dispatch.Result{Success: true}}
	verifier := &stubTokenVerifier{token: &infra.FirebaseToken{UID: driverUID, Claims: map[string]interface{}{"role": "customer"}}}
	r := buildTestRouter(svc, verifier)
	w := doRequest(r, http.MethodPost, "/api/drivers/"+driverUID+"/orders/o1/accept", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}
