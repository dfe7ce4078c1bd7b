package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func passing(_ context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, handler http.HandlerFunc, path string) (int, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", path, nil))

	var body response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s body: %v", path, err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "providers", Check: failing("down")})
	code, body := get(t, h.Healthz, "/healthz")

	// Liveness ignores the checkers entirely.
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz: got (%d, %q), want (200, ok)", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "providers", Check: passing},
				{Name: "audio", Check: passing},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"providers": "ok", "audio": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "providers", Check: failing("llm not initialized")},
				{Name: "audio", Check: passing},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{
				"providers": "fail: llm not initialized",
				"audio":     "ok",
			},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "providers", Check: failing("nothing registered")},
				{Name: "audio", Check: failing("capture stuck open")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{
				"providers": "fail: nothing registered",
				"audio":     "fail: capture stuck open",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, body := get(t, New(tt.checkers...).Readyz, "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz: got (%d, %q), want (%d, %q)",
					code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q: got %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ContentType(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type: got %q", ct)
	}
}

func TestReadyz_CheckerSeesRequestContext(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("cancelled request: got %d, want 503", rec.Code)
	}
}

func TestRegister_MountsRoutes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Checker{Name: "providers", Check: passing}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, rec.Code)
		}
	}
}
