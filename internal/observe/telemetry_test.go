package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetup_ServesOwnRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	globalBefore := otel.GetMeterProvider()

	tel, err := Setup(ctx, WithService("vozbraille-test", "1.2.3"))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	if otel.GetMeterProvider() != globalBefore {
		t.Error("Setup without AsGlobal replaced the global meter provider")
	}

	tel.Metrics.ActiveSessions.Add(ctx, 1)
	tel.Metrics.PromptsPlayed.Add(ctx, 1)

	srv := httptest.NewServer(tel.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scrape status = %d", resp.StatusCode)
	}

	for _, want := range []string{"vozbraille_sessions_active", "go_goroutines", "vozbraille-test"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestTelemetry_ShutdownTwice(t *testing.T) {
	t.Parallel()
	tel, err := Setup(context.Background())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	// The SDK reports repeated shutdowns; the call itself must be safe.
	_ = tel.Shutdown(context.Background())
}
