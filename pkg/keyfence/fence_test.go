package keyfence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/KanavDutta/keyfence/config"
	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/gate"
	"github.com/KanavDutta/keyfence/keys"
	"github.com/KanavDutta/keyfence/store"
)

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newFence(t *testing.T, opts ...Option) *Fence {
	t.Helper()
	opts = append([]Option{
		WithHashCost(bcrypt.MinCost),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	fence, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { fence.Close(context.Background()) })
	return fence
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})
}

func get(h http.Handler, credential string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if credential != "" {
		req.Header.Set("X-API-Key", credential)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	fence := newFence(t, WithDefaultLimit(5, 60))
	issued, err := fence.CreateKey(context.Background(), keys.CreateParams{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("CreateKey() failed: %v", err)
	}

	rr := get(fence.Middleware(okHandler()), issued.Secret)

	if rr.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "5" {
		t.Errorf("X-RateLimit-Limit = %s, want 5", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Errorf("X-RateLimit-Remaining = %s, want 4", rr.Header().Get("X-RateLimit-Remaining"))
	}
	if rr.Body.String() != "success" {
		t.Errorf("body = %s, want success", rr.Body.String())
	}
}

func TestMiddleware_RateLimited(t *testing.T) {
	fence := newFence(t)
	issued, _ := fence.CreateKey(context.Background(), keys.CreateParams{OwnerID: "user-1", Limit: 3, WindowSeconds: 30})
	handler := fence.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		if rr := get(handler, issued.Secret); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status code = %d, want 200", i+1, rr.Code)
		}
	}

	rr := get(handler, issued.Secret)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %s, want 30", rr.Header().Get("Retry-After"))
	}
}

func TestMiddleware_KeysAreIndependent(t *testing.T) {
	fence := newFence(t, WithDefaultLimit(1, 60))
	ctx := context.Background()
	first, _ := fence.CreateKey(ctx, keys.CreateParams{OwnerID: "user-1"})
	second, _ := fence.CreateKey(ctx, keys.CreateParams{OwnerID: "user-2"})
	handler := fence.Middleware(okHandler())

	get(handler, first.Secret)
	if rr := get(handler, first.Secret); rr.Code != http.StatusTooManyRequests {
		t.Errorf("first key second request: status = %d, want 429", rr.Code)
	}
	if rr := get(handler, second.Secret); rr.Code != http.StatusOK {
		t.Errorf("second key: status = %d, want 200", rr.Code)
	}
}

func TestMiddleware_MissingCredential(t *testing.T) {
	fence := newFence(t)

	rr := get(fence.Middleware(okHandler()), "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status code = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if rr.Header().Get("WWW-Authenticate") != keys.Scheme {
		t.Errorf("WWW-Authenticate = %q, want %q", rr.Header().Get("WWW-Authenticate"), keys.Scheme)
	}
}

func TestMiddleware_Concurrent(t *testing.T) {
	fence := newFence(t, WithDefaultLimit(25, 3600))
	issued, _ := fence.CreateKey(context.Background(), keys.CreateParams{OwnerID: "user-1"})
	handler := fence.Middleware(okHandler())

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if get(handler, issued.Secret).Code == http.StatusOK {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 25 {
		t.Errorf("allowed = %d, want 25", allowed.Load())
	}
}

func TestRevokeAndRotate(t *testing.T) {
	fence := newFence(t)
	ctx := context.Background()
	issued, _ := fence.CreateKey(ctx, keys.CreateParams{OwnerID: "user-1"})

	rotated, err := fence.RotateKey(ctx, issued.KeyID)
	if err != nil {
		t.Fatalf("RotateKey() failed: %v", err)
	}
	if _, err := fence.Admit(ctx, issued.Secret, gate.RequestMeta{}); !errors.Is(err, keys.ErrUnauthorized) {
		t.Errorf("old secret: err = %v, want ErrUnauthorized", err)
	}

	if err := fence.RevokeKey(ctx, issued.KeyID); err != nil {
		t.Fatalf("RevokeKey() failed: %v", err)
	}
	if _, err := fence.Admit(ctx, rotated.Secret, gate.RequestMeta{}); !errors.Is(err, keys.ErrUnauthorized) {
		t.Errorf("revoked key: err = %v, want ErrUnauthorized", err)
	}
}

func TestUsageIsCounted(t *testing.T) {
	fence := newFence(t, WithDefaultLimit(2, 60))
	ctx := context.Background()
	issued, _ := fence.CreateKey(ctx, keys.CreateParams{OwnerID: "user-1"})
	handler := fence.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		get(handler, issued.Secret)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		summary, err := fence.Usage(ctx, issued.KeyID, 1)
		if err != nil {
			t.Fatalf("Usage() failed: %v", err)
		}
		if summary.TotalCalls == 3 {
			if summary.SuccessfulCalls != 2 || summary.RateLimitedCalls != 1 {
				t.Errorf("summary = %+v, want 2 successful and 1 rate limited", summary)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("TotalCalls = %d after 5s, want 3", summary.TotalCalls)
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := fence.Stats()
	if stats.TotalRequests != 3 || stats.AllowedRequests != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

type downStore struct{}

func (downStore) Consume(context.Context, string, core.RateLimit) (core.Decision, error) {
	return core.Decision{}, store.ErrStoreUnavailable
}

func TestFailurePolicy(t *testing.T) {
	ctx := context.Background()

	open := newFence(t, WithBucketStore(downStore{}))
	issued, _ := open.CreateKey(ctx, keys.CreateParams{OwnerID: "user-1"})
	res, err := open.Admit(ctx, issued.Secret, gate.RequestMeta{})
	if err != nil || !res.Allowed || !res.Degraded {
		t.Errorf("fail open: res = %+v, err = %v", res, err)
	}

	closed := newFence(t, WithBucketStore(downStore{}), WithFailurePolicy(store.FailClosed))
	issued, _ = closed.CreateKey(ctx, keys.CreateParams{OwnerID: "user-1"})
	res, err = closed.Admit(ctx, issued.Secret, gate.RequestMeta{})
	if err != nil || res.Allowed || !res.Degraded {
		t.Errorf("fail closed: res = %+v, err = %v", res, err)
	}
}

func TestWithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyfence.yaml")
	err := os.WriteFile(path, []byte("rate_limit:\n  default_limit: 7\n  default_window_seconds: 70\n  failure_policy: closed\n"), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	fence := newFence(t, WithConfigFile(path))
	if fence.settings.limit != (core.RateLimit{Limit: 7, WindowSeconds: 70}) {
		t.Errorf("limit = %+v, want 7/70", fence.settings.limit)
	}
	if fence.settings.policy != store.FailClosed {
		t.Errorf("policy = %v, want closed", fence.settings.policy)
	}

	if _, err := New(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("missing file: err = %v, want ErrInvalidConfig", err)
	}
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero limit", WithDefaultLimit(0, 60)},
		{"zero window", WithDefaultLimit(10, 0)},
		{"nil bucket store", WithBucketStore(nil)},
		{"nil repository", WithRepository(nil)},
		{"nil analytics", WithAnalytics(nil)},
		{"nil extractor", WithCredentialExtractor(nil)},
		{"negative cleanup", WithCleanupInterval(-time.Second)},
		{"nil clock", WithClock(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("err = %v, want ErrInvalidOption", err)
			}
		})
	}
}

func TestClose_Idempotent(t *testing.T) {
	fence, err := New(WithHashCost(bcrypt.MinCost))
	if err != nil {
		t.Fatal(err)
	}
	if err := fence.Close(context.Background()); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := fence.Close(context.Background()); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
