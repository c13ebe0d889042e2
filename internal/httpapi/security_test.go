package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/service"
	"geyim/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
}

func TestMutationWithoutCSRFTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	c := newClient(t, api, "admin", "admin123")
	c.csrf = ""

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		res := c.do(method, "/api/v1/cart", nil)
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s without csrf expected 403, got %d", method, res.Code)
		}
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestLockedSessionReturns423UntilUnlocked(t *testing.T) {
	c := newClient(t, newTestAPI(t), "worker", "worker123")

	var status domain.LockStatus
	c.decode(c.do(http.MethodPost, "/api/v1/session/lock", nil), http.StatusOK, &status)
	if !status.Locked {
		t.Fatalf("expected locked status")
	}

	if res := c.do(http.MethodGet, "/api/v1/products", nil); res.Code != http.StatusLocked {
		t.Fatalf("expected 423 while locked, got %d", res.Code)
	}
	c.decode(c.do(http.MethodGet, "/api/v1/session/lock", nil), http.StatusOK, &status)
	if !status.Locked {
		t.Fatalf("lock status should still report locked")
	}

	if res := c.do(http.MethodPost, "/api/v1/session/unlock", domain.UnlockRequest{Password: "wrong"}); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong unlock secret, got %d", res.Code)
	}
	c.decode(c.do(http.MethodPost, "/api/v1/session/unlock", domain.UnlockRequest{Password: "worker123"}), http.StatusOK, &status)
	if status.Locked {
		t.Fatalf("expected unlocked status")
	}
	if res := c.do(http.MethodGet, "/api/v1/products", nil); res.Code != http.StatusOK {
		t.Fatalf("expected 200 after unlock, got %d", res.Code)
	}
}

func TestUnlockAcceptsStorePasscode(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	worker := newClient(t, api, "worker", "worker123")

	passcode := "2468"
	admin.decode(admin.do(http.MethodPatch, "/api/v1/settings", domain.SettingsUpdateRequest{LockPasscode: &passcode}), http.StatusOK, nil)

	worker.decode(worker.do(http.MethodPost, "/api/v1/session/lock", nil), http.StatusOK, nil)
	worker.decode(worker.do(http.MethodPost, "/api/v1/session/unlock", domain.UnlockRequest{Password: passcode}), http.StatusOK, nil)
}

func TestIdleSessionLocksItself(t *testing.T) {
	c := newClient(t, newTestAPIWithIdle(t, 50*time.Millisecond), "worker", "worker123")

	if res := c.do(http.MethodGet, "/api/v1/cart", nil); res.Code != http.StatusOK {
		t.Fatalf("expected 200 on first request, got %d", res.Code)
	}
	time.Sleep(200 * time.Millisecond)
	if res := c.do(http.MethodGet, "/api/v1/cart", nil); res.Code != http.StatusLocked {
		t.Fatalf("expected 423 after idle timeout, got %d", res.Code)
	}
}

func TestDeactivatedUserTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	worker := newClient(t, api, "worker", "worker123")

	var users []domain.User
	admin.decode(admin.do(http.MethodGet, "/api/v1/users", nil), http.StatusOK, &users)
	var workerID int64
	for _, u := range users {
		if u.Username == "worker" {
			workerID = u.ID
		}
	}
	inactive := false
	admin.decode(admin.do(http.MethodPatch, fmt.Sprintf("/api/v1/users/%d", workerID), domain.UserUpdateRequest{Active: &inactive}), http.StatusOK, nil)

	if res := worker.do(http.MethodGet, "/api/v1/products", nil); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated account, got %d", res.Code)
	}
}

func TestEventsAcceptQueryTokenButNeedHub(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api.Handler(), "worker", "worker123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?access_token="+token, nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without an event hub, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products?access_token="+token, nil)
	res = httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("query token must only work for events, got %d", res.Code)
	}
}

func TestStatusForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrInvalidTransaction, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", store.ErrNotFound), http.StatusNotFound},
		{store.ErrInsufficientStock, http.StatusConflict},
		{store.ErrReturnExceedsSale, http.StatusConflict},
		{store.ErrLastAdmin, http.StatusConflict},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}
