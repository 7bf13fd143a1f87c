package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"automata/internal/config"
	"automata/internal/core"
	"automata/internal/email"
	"automata/internal/external"
	"automata/internal/types"
)

const testAdminKey = "test-admin-key"

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

type mockTaskCreator struct {
	created     []types.TaskType
	lastPayload json.RawMessage
	lastPri     int
	err         error
}

func (m *mockTaskCreator) Create(_ context.Context, taskType types.TaskType, payload json.RawMessage, priority int) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.created = append(m.created, taskType)
	m.lastPayload = payload
	m.lastPri = priority
	return "task-42", nil
}

type mockVerifier struct {
	valid bool
	err   error
}

func (m *mockVerifier) Verify([]byte, string, string, string, string) (bool, error) {
	return m.valid, m.err
}

type mockReconciler struct {
	applied []email.WebhookEvent
	err     error
}

func (m *mockReconciler) Apply(_ context.Context, ev email.WebhookEvent) error {
	if m.err != nil {
		return m.err
	}
	m.applied = append(m.applied, ev)
	return nil
}

// ---------------------------------------------------------------------------
// Test server wiring
// ---------------------------------------------------------------------------

// newTestServer builds a core.Server with the full middleware chain mounted.
// wire receives the server so registrars can use its AdminAuth middleware.
func newTestServer(t *testing.T, wire func(s *core.Server) []core.RouteRegistrar) *core.Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.AdminAPIKey = config.SecretString(testAdminKey)

	srv, err := core.NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Registrars = wire(srv)
	srv.MountRoutes()
	return srv
}

func newAdminServer(t *testing.T, tasks *mockTaskCreator) *core.Server {
	t.Helper()
	h := NewAdminHandler(tasks, nil)
	return newTestServer(t, func(s *core.Server) []core.RouteRegistrar {
		return []core.RouteRegistrar{func(r chi.Router) { h.RegisterRoutes(r, s.AdminAuth) }}
	})
}

func newWebhookServer(t *testing.T, verifier WebhookVerifier, reconciler StatusReconciler, secret string) *core.Server {
	t.Helper()
	h := NewResendWebhookHandler(verifier, reconciler, secret, nil)
	return newTestServer(t, func(*core.Server) []core.RouteRegistrar {
		return []core.RouteRegistrar{h.RegisterRoutes}
	})
}

func decodeErrorResponse(t *testing.T, body io.Reader) core.APIErrorResponse {
	t.Helper()
	var resp core.APIErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return resp
}

// ---------------------------------------------------------------------------
// Admin trigger endpoint
// ---------------------------------------------------------------------------

func TestTriggerTask_EnqueuesTask(t *testing.T) {
	tasks := &mockTaskCreator{}
	srv := newAdminServer(t, tasks)

	req := httptest.NewRequest(http.MethodPost, "/admin/trigger-task/DAILY_ATTEND", nil)
	req.Header.Set("X-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data triggerTaskResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.TaskID != "task-42" {
		t.Errorf("taskId = %q, want task-42", resp.Data.TaskID)
	}
	if resp.Data.Message != "DAILY_ATTEND task queued" {
		t.Errorf("message = %q", resp.Data.Message)
	}

	if len(tasks.created) != 1 || tasks.created[0] != types.TaskDailyAttend {
		t.Errorf("created = %v, want [DAILY_ATTEND]", tasks.created)
	}
	if tasks.lastPri != adminTriggerPriority {
		t.Errorf("priority = %d, want %d", tasks.lastPri, adminTriggerPriority)
	}
}

func TestTriggerTask_ForwardsOptionalPayload(t *testing.T) {
	tasks := &mockTaskCreator{}
	srv := newAdminServer(t, tasks)

	body := `{"payload":{"dry_run":true}}`
	req := httptest.NewRequest(http.MethodPost, "/admin/trigger-task/EVENT_PARTICIPATE",
		bytes.NewReader([]byte(body)))
	req.Header.Set("X-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}
	if string(tasks.lastPayload) != `{"dry_run":true}` {
		t.Errorf("payload = %s", tasks.lastPayload)
	}
}

func TestTriggerTask_RejectsMalformedBody(t *testing.T) {
	tasks := &mockTaskCreator{}
	srv := newAdminServer(t, tasks)

	req := httptest.NewRequest(http.MethodPost, "/admin/trigger-task/DAILY_ATTEND",
		bytes.NewReader([]byte(`{broken`)))
	req.Header.Set("X-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(tasks.created) != 0 {
		t.Errorf("created = %v, want none", tasks.created)
	}
}

func TestTriggerTask_UnknownTaskType(t *testing.T) {
	tasks := &mockTaskCreator{}
	srv := newAdminServer(t, tasks)

	req := httptest.NewRequest(http.MethodPost, "/admin/trigger-task/MAKE_COFFEE", nil)
	req.Header.Set("X-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeErrorResponse(t, rec.Body)
	if resp.Error.Code != string(types.ErrCodeValidationUnknownTaskType) {
		t.Errorf("error code = %q", resp.Error.Code)
	}
	if len(tasks.created) != 0 {
		t.Errorf("created = %v, want none", tasks.created)
	}
}

func TestTriggerTask_RequiresAdminKey(t *testing.T) {
	tasks := &mockTaskCreator{}
	srv := newAdminServer(t, tasks)

	for name, key := range map[string]string{"missing": "", "wrong": "nope"} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/trigger-task/DAILY_ATTEND", nil)
			if key != "" {
				req.Header.Set("X-Api-Key", key)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
	if len(tasks.created) != 0 {
		t.Errorf("created = %v, want none", tasks.created)
	}
}

func TestTriggerTask_CreateFailure(t *testing.T) {
	tasks := &mockTaskCreator{err: errors.New("insert failed")}
	srv := newAdminServer(t, tasks)

	req := httptest.NewRequest(http.MethodPost, "/admin/trigger-task/GIFT_CODE_REDEEM", nil)
	req.Header.Set("X-Api-Key", testAdminKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeErrorResponse(t, rec.Body)
	if resp.Error.Message == "insert failed" {
		t.Error("internal error detail leaked to client")
	}
}

// ---------------------------------------------------------------------------
// Resend status webhook
// ---------------------------------------------------------------------------

func TestResendWebhook_AppliesEvent(t *testing.T) {
	reconciler := &mockReconciler{}
	srv := newWebhookServer(t, &mockVerifier{valid: true}, reconciler, "whsec_irrelevant")

	body := []byte(`{"type":"email.delivered","data":{"email_id":"re_1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/resend/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if len(reconciler.applied) != 1 {
		t.Fatalf("applied %d events, want 1", len(reconciler.applied))
	}
	got := reconciler.applied[0]
	if got.Type != "email.delivered" || got.Data.EmailID != "re_1" {
		t.Errorf("applied event = %+v", got)
	}
}

func TestResendWebhook_RejectsBadSignature(t *testing.T) {
	reconciler := &mockReconciler{}
	srv := newWebhookServer(t, &mockVerifier{valid: false}, reconciler, "whsec_irrelevant")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/resend/status",
		bytes.NewReader([]byte(`{"type":"email.delivered","data":{"email_id":"re_1"}}`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeErrorResponse(t, rec.Body)
	if resp.Error.Code != string(types.ErrCodeValidationBadSignature) {
		t.Errorf("error code = %q", resp.Error.Code)
	}
	if len(reconciler.applied) != 0 {
		t.Error("event applied despite bad signature")
	}
}

func TestResendWebhook_RejectsMalformedJSON(t *testing.T) {
	reconciler := &mockReconciler{}
	srv := newWebhookServer(t, &mockVerifier{valid: true}, reconciler, "whsec_irrelevant")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/resend/status",
		bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResendWebhook_ReconcilerFailureReturns500(t *testing.T) {
	srv := newWebhookServer(t, &mockVerifier{valid: true}, &mockReconciler{err: errors.New("db down")}, "whsec_irrelevant")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/resend/status",
		bytes.NewReader([]byte(`{"type":"email.bounced","data":{"email_id":"re_2"}}`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	// A 5xx tells Resend to retry the delivery event later.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

// TestResendWebhook_EndToEndSignature exercises the real verifier against a
// payload signed the way Svix signs them.
func TestResendWebhook_EndToEndSignature(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)

	reconciler := &mockReconciler{}
	srv := newWebhookServer(t, external.NewResendVerifier(), reconciler, secret)

	body := []byte(`{"type":"email.complained","data":{"email_id":"re_3"}}`)
	msgID := "msg_test"
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(body)
	signature := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/resend/status", bytes.NewReader(body))
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", timestamp)
	req.Header.Set("svix-signature", signature)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if len(reconciler.applied) != 1 || reconciler.applied[0].Data.EmailID != "re_3" {
		t.Fatalf("applied = %+v", reconciler.applied)
	}
}
