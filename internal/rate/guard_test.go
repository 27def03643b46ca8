package rate

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGuardMinuteBudget(t *testing.T) {
	guard := newGuard(Provider("test").MaxRequestsPer(Minute, 2))
	now := time.Now()

	for i := 0; i < 2; i++ {
		if decision := guard.ShouldCall(now); !decision.Allowed {
			t.Fatalf("call %d: expected allowed, got %+v", i, decision)
		}
	}
	decision := guard.ShouldCall(now)
	if decision.Allowed {
		t.Fatalf("expected third call to be blocked")
	}
	if decision.Reason != "budget" {
		t.Fatalf("expected budget reason, got %q", decision.Reason)
	}
}

func TestGuardWithoutLimitsBlocks(t *testing.T) {
	guard := newGuard(Provider("test"))
	if decision := guard.ShouldCall(time.Now()); decision.Allowed || decision.Reason != "disabled" {
		t.Fatalf("expected disabled decision, got %+v", decision)
	}
}

func TestGuardRetryAfterCooldown(t *testing.T) {
	guard := newGuard(Provider("test").MaxRequestsPer(Minute, 10).ReadHeaders(StandardHeaders()))
	headers := http.Header{}
	headers.Set("Retry-After", "30")
	guard.RecordResponse(http.StatusTooManyRequests, headers)

	decision := guard.ShouldCall(time.Now())
	if decision.Allowed || decision.Reason != "cooldown" {
		t.Fatalf("expected cooldown, got %+v", decision)
	}
}

func TestWrapHTTPBlocksOverBudget(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	client := WrapHTTP(Provider("test").MaxRequestsPer(Minute, 1), server.Client())

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(server.URL)
	if err == nil {
		t.Fatalf("expected second request to be rate limited")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected 1 upstream hit, got %d", hits)
	}
}

func TestGuardHeaderBudgetFloor(t *testing.T) {
	guard := newGuard(Provider("test").
		MaxRequestsPer(Minute, 100).
		BudgetFloor(Minute, 5).
		ReadHeaders(StandardHeaders()))

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit-minute", "100")
	headers.Set("X-RateLimit-Remaining-minute", "6")
	guard.RecordResponse(http.StatusOK, headers)

	if decision := guard.ShouldCall(time.Now()); !decision.Allowed {
		t.Fatalf("expected call above floor to pass, got %+v", decision)
	}
	if decision := guard.ShouldCall(time.Now()); decision.Allowed {
		t.Fatalf("expected call at floor to be blocked")
	}
}

func TestGuardTooManyRequestsWithoutHeaders(t *testing.T) {
	guard := newGuard(Provider("test").MaxRequestsPer(Minute, 10))
	guard.RecordResponse(http.StatusTooManyRequests, http.Header{})

	decision := guard.ShouldCall(time.Now())
	if decision.Allowed || decision.Reason != "cooldown" {
		t.Fatalf("expected cooldown after 429, got %+v", decision)
	}
}
