package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wagerSync/internal/ingest"
)

type stubWebhook struct {
	body []byte
	err  error
}

func (s *stubWebhook) Receive(_ context.Context, body []byte) (ingest.Ack, error) {
	s.body = body
	if s.err != nil {
		return ingest.Ack{}, s.err
	}
	return ingest.Ack{Status: "ok", Events: 2}, nil
}

type stubScan struct {
	err error
}

func (s *stubScan) Receive(context.Context, []byte) (ingest.Summary, error) {
	if s.err != nil {
		return ingest.Summary{}, s.err
	}
	return ingest.Summary{Message: "processed 1 events", Events: 1}, nil
}

func newTestEngine(webhook *stubWebhook, scan *stubScan, secret string, checks map[string]Check) http.Handler {
	engine := NewEngine(false, nil)
	(&IngressHandler{Webhook: webhook, Scan: scan, Secret: secret}).Register(engine)
	(&HealthHandler{Checks: checks}).Register(engine)
	return engine
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookEndpoint(t *testing.T) {
	webhook := &stubWebhook{}
	h := newTestEngine(webhook, &stubScan{}, "", nil)

	rec := do(h, http.MethodPost, "/webhooks/evm", `{"webhookId":"x"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ack ingest.Ack
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Events != 2 || string(webhook.body) != `{"webhookId":"x"}` {
		t.Fatalf("unexpected ack %+v body %s", ack, webhook.body)
	}
}

func TestBadRequestMapsTo400(t *testing.T) {
	bad := errors.New("missing meta.logMessages")
	h := newTestEngine(&stubWebhook{err: ingest.ErrBadRequest}, &stubScan{err: errors.Join(ingest.ErrBadRequest, bad)}, "", nil)

	if rec := do(h, http.MethodPost, "/webhooks/evm", `nope`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec := do(h, http.MethodPost, "/scan/solana", `[]`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body rejection
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Endpoint != "scan" || !strings.Contains(body.Error, "missing meta.logMessages") {
		t.Fatalf("unexpected rejection: %s", rec.Body.String())
	}
}

func TestReceiverFailureMapsTo500(t *testing.T) {
	h := newTestEngine(&stubWebhook{err: errors.New("kafka down")}, &stubScan{}, "", nil)

	rec := do(h, http.MethodPost, "/webhooks/evm", `{}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body rejection
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body != (rejection{Error: "internal error", Endpoint: "webhook"}) {
		t.Fatalf("internal details leaked: %+v", body)
	}
}

func TestScanEndpoint(t *testing.T) {
	h := newTestEngine(&stubWebhook{}, &stubScan{}, "", nil)
	rec := do(h, http.MethodPost, "/scan/solana", `[]`, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "processed 1 events") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookSecret(t *testing.T) {
	webhook := &stubWebhook{}
	h := newTestEngine(webhook, &stubScan{}, "s3cret", nil)

	if rec := do(h, http.MethodPost, "/webhooks/evm", `{}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}
	if webhook.body != nil {
		t.Fatalf("receiver must not run when unauthorized")
	}
	if rec := do(h, http.MethodPost, "/webhooks/evm", `{}`, map[string]string{"X-Webhook-Secret": "s3cret"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with secret, got %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	down := errors.New("dial tcp: refused")
	h := newTestEngine(&stubWebhook{}, &stubScan{}, "", map[string]Check{
		"outbox": func(context.Context) error { return nil },
		"store":  func(context.Context) error { return down },
	})

	if rec := do(h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec := do(h, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("readyz: %d %s", rec.Code, rec.Body.String())
	}

	ok := newTestEngine(&stubWebhook{}, &stubScan{}, "", nil)
	if rec := do(ok, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz without checks: %d", rec.Code)
	}
}
