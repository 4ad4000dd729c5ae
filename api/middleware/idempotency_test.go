package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func payoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/payouts", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotentRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotent(newFakeStore(), MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, key := range []string{"", strings.Repeat("k", maxIdemKeySize+1)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, payoutRequest(key, `{"amount_cents":100}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	}
	if called {
		t.Fatalf("handler should not run without a usable idempotency key")
	}
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotent(store, MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, payoutRequest("abc", `{"amount_cents":100}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, payoutRequest("abc", `{"amount_cents":100}`))
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", replay.Code)
	}
	if replay.Header().Get("Content-Type") != "application/json" || replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("unexpected replay headers %v", replay.Header())
	}
	if replay.Body.String() != `{"id":"p-1"}` {
		t.Fatalf("expected stored body got %s", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != MoneyReplayWindow {
			t.Fatalf("record %s stored with ttl %v", key, ttl)
		}
	}
}

func TestIdempotentRejectsChangedBody(t *testing.T) {
	handler := Idempotent(newFakeStore(), StandardReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), payoutRequest("xyz", `{"amount_cents":100}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, payoutRequest("xyz", `{"amount_cents":999}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeConflict, code)
	}
}

func TestIdempotentRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = Idempotent(store, MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A duplicate arrives while the first request is still running.
		if inner == nil {
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, payoutRequest("dup", `{"amount_cents":100}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, payoutRequest("dup", `{"amount_cents":100}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected first request to succeed, got %d", rec.Code)
	}
	if inner.Code != http.StatusConflict || !strings.Contains(inner.Body.String(), "still in progress") {
		t.Fatalf("expected in-progress conflict, got %d %s", inner.Code, inner.Body.String())
	}
}

func TestIdempotentReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotent(store, MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), payoutRequest("retry-me", `{"amount_cents":100}`))
	}
	if calls != 2 {
		t.Fatalf("expected retry after 503 to reach the handler, calls=%d", calls)
	}
}

func TestIdempotentReleasesKeyOnRetryableRejection(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotent(store, MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			busy := pkgerrors.New(pkgerrors.CodeConflict, "vendor is busy, retry shortly").WithRetryAfter(time.Second)
			responses.WriteError(r.Context(), nil, w, busy)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, payoutRequest("busy-then-ok", `{"amount_cents":100}`))
	if first.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, payoutRequest("busy-then-ok", `{"amount_cents":100}`))
	if second.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected the retry to reach the handler, status=%d calls=%d", second.Code, calls)
	}
	if second.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("retryable rejection must not be replayed")
	}
}

func TestIdempotentStoresFinalRejection(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotent(store, MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance"))
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), payoutRequest("final", `{"amount_cents":100}`))
	}
	if calls != 1 {
		t.Fatalf("expected the rejection to be replayed, calls=%d", calls)
	}
}

func TestIdempotentReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotent(store, MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected the panic to reach the outer recoverer")
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), payoutRequest("panics", `{"amount_cents":100}`))
	}()
	if len(store.data) != 0 {
		t.Fatalf("in-flight marker should be released, got %v", store.data)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, payoutRequest("panics", `{"amount_cents":100}`))
	if rec.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry after panic, status=%d calls=%d", rec.Code, calls)
	}
}

func TestIdempotentScopesKeysPerVendor(t *testing.T) {
	var calls int
	handler := Idempotent(newFakeStore(), MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	for _, vendor := range []string{"vendor-a", "vendor-b"} {
		req := payoutRequest("same", `{}`)
		req = req.WithContext(WithVendorID(req.Context(), vendor))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected one call per vendor, got %d", calls)
	}
}

func TestIdempotentNilStorePassesThrough(t *testing.T) {
	called := false
	handler := Idempotent(nil, MoneyReplayWindow, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), payoutRequest("", `{}`))
	if !called {
		t.Fatalf("nil store should not guard the route")
	}
}
