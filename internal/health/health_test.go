package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "stt", Check: func(context.Context) error { return errors.New("down") }})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	ok := func(context.Context) error { return nil }
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "stt", Check: ok}, {Name: "sessions", Check: ok}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"stt": "ok", "sessions": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "stt", Check: func(context.Context) error { return errors.New("connection refused") }},
				{Name: "sessions", Check: ok},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"stt": "fail: connection refused", "sessions": "ok"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "stt", Check: func(context.Context) error { return errors.New("timeout") }},
				{Name: "sessions", Check: func(context.Context) error { return errors.New("full") }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"stt": "fail: timeout", "sessions": "fail: full"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tt.checkers...), context.Background())
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			wantBody := "ok"
			if tt.wantStatus != http.StatusOK {
				wantBody = "fail"
			}
			if body.Status != wantBody {
				t.Errorf("body status = %q, want %q", body.Status, wantBody)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestHealthy(t *testing.T) {
	t.Parallel()
	var up atomic.Bool
	c := Healthy("stt", up.Load)

	if err := c.Check(context.Background()); err == nil || !strings.Contains(err.Error(), "stt") {
		t.Errorf("unhealthy check = %v, want error naming stt", err)
	}
	up.Store(true)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("healthy check = %v, want nil", err)
	}
}

func TestCapacity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		active  int
		max     int
		wantErr bool
	}{
		{name: "room left", active: 3, max: 4},
		{name: "full", active: 4, max: 4, wantErr: true},
		{name: "over", active: 9, max: 4, wantErr: true},
		{name: "unlimited", active: 100, max: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Capacity("sessions", func() int { return tt.active }, tt.max).Check(context.Background())
			if tt.wantErr != errors.Is(err, ErrAtCapacity) {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "stt", Check: func(context.Context) error { return nil }})

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
