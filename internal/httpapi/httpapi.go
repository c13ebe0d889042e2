package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/printer"
	"geyim/backend/internal/service"
	"geyim/backend/internal/session"
	"geyim/backend/internal/store"
)

// EventStream upgrades an authenticated request into a live event feed.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, username string)
}

type Options struct {
	AllowedOrigin string
	Sessions      *session.Manager
	Events        EventStream
	Printers      printer.Browser
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	sessions      *session.Manager
	events        EventStream
	printers      printer.Browser
	allowedOrigin string
	loginLimiter  *attemptLimiter
	unlockLimiter *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(0)
	}
	if opts.Printers == nil {
		opts.Printers = printer.StaticBrowser(nil)
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		sessions:      opts.Sessions,
		events:        opts.Events,
		printers:      opts.Printers,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		unlockLimiter: newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	admin := domain.RoleAdmin

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("GET /api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("POST /api/v1/auth/logout", a.requireUnlocked(a.handleLogout))

	mux.HandleFunc("GET /api/v1/session/lock", a.requireUnlocked(a.handleLockStatus))
	mux.HandleFunc("POST /api/v1/session/lock", a.requireAuth(a.handleLock))
	mux.HandleFunc("POST /api/v1/session/unlock", a.requireUnlocked(a.handleUnlock))
	mux.HandleFunc("GET /api/v1/cart", a.requireAuth(a.handleCartGet))
	mux.HandleFunc("POST /api/v1/cart", a.requireAuth(a.handleCartAdd))
	mux.HandleFunc("DELETE /api/v1/cart", a.requireAuth(a.handleCartClear))
	mux.HandleFunc("PATCH /api/v1/cart/{product_id}/{size_id}", a.requireAuth(a.handleCartSetQuantity))
	mux.HandleFunc("DELETE /api/v1/cart/{product_id}/{size_id}", a.requireAuth(a.handleCartRemove))
	mux.HandleFunc("POST /api/v1/cart/checkout", a.requireAuth(a.handleCartCheckout))

	mux.HandleFunc("GET /api/v1/categories", a.requireAuth(a.handleCategoriesList))
	mux.HandleFunc("POST /api/v1/categories", a.requireAuth(a.handleCategoryCreate, admin))
	mux.HandleFunc("PATCH /api/v1/categories/{id}", a.requireAuth(a.handleCategoryRename, admin))
	mux.HandleFunc("DELETE /api/v1/categories/{id}", a.requireAuth(a.handleCategoryDelete, admin))
	mux.HandleFunc("GET /api/v1/sizes", a.requireAuth(a.handleSizesList))
	mux.HandleFunc("POST /api/v1/sizes", a.requireAuth(a.handleSizeCreate, admin))
	mux.HandleFunc("PATCH /api/v1/sizes/{id}", a.requireAuth(a.handleSizeRename, admin))
	mux.HandleFunc("DELETE /api/v1/sizes/{id}", a.requireAuth(a.handleSizeDelete, admin))
	mux.HandleFunc("GET /api/v1/colors", a.requireAuth(a.handleColorsList))
	mux.HandleFunc("POST /api/v1/colors", a.requireAuth(a.handleColorCreate, admin))
	mux.HandleFunc("PATCH /api/v1/colors/{id}", a.requireAuth(a.handleColorUpdate, admin))
	mux.HandleFunc("DELETE /api/v1/colors/{id}", a.requireAuth(a.handleColorDelete, admin))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleProductsList))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleProductCreate, admin))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleProductGet))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleProductUpdate, admin))
	mux.HandleFunc("DELETE /api/v1/products/{id}", a.requireAuth(a.handleProductDelete, admin))
	mux.HandleFunc("GET /api/v1/products/{id}/stock", a.requireAuth(a.handleProductStock))
	mux.HandleFunc("GET /api/v1/products/{id}/movements", a.requireAuth(a.handleProductMovements))
	mux.HandleFunc("GET /api/v1/barcodes/{barcode}", a.requireAuth(a.handleBarcodeLookup))

	mux.HandleFunc("GET /api/v1/stock", a.requireAuth(a.handleStockList))
	mux.HandleFunc("POST /api/v1/stock", a.requireAuth(a.handleStockAdd))
	mux.HandleFunc("GET /api/v1/stock/low", a.requireAuth(a.handleLowStock))
	mux.HandleFunc("GET /api/v1/stock/alerts", a.requireAuth(a.handleStockAlerts))
	mux.HandleFunc("PUT /api/v1/stock/{product_id}/{size_id}", a.requireAuth(a.handleStockSet, admin))
	mux.HandleFunc("DELETE /api/v1/stock/{product_id}/{size_id}", a.requireAuth(a.handleStockDelete, admin))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleSalesList))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleSaleCreate))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleSaleGet))
	mux.HandleFunc("GET /api/v1/sales/number/{number}", a.requireAuth(a.handleSaleByNumber))
	mux.HandleFunc("GET /api/v1/returns", a.requireAuth(a.handleReturnsList))
	mux.HandleFunc("POST /api/v1/returns", a.requireAuth(a.handleReturnCreate))
	mux.HandleFunc("GET /api/v1/returns/{id}", a.requireAuth(a.handleReturnGet))

	mux.HandleFunc("GET /api/v1/customers", a.requireAuth(a.handleCustomersList))
	mux.HandleFunc("POST /api/v1/customers", a.requireAuth(a.handleCustomerCreate))
	mux.HandleFunc("GET /api/v1/customers/{id}", a.requireAuth(a.handleCustomerGet))
	mux.HandleFunc("PATCH /api/v1/customers/{id}", a.requireAuth(a.handleCustomerUpdate))
	mux.HandleFunc("DELETE /api/v1/customers/{id}", a.requireAuth(a.handleCustomerDelete))
	mux.HandleFunc("GET /api/v1/customers/{id}/debt", a.requireAuth(a.handleCustomerDebt))
	mux.HandleFunc("GET /api/v1/customers/{id}/sales", a.requireAuth(a.handleCustomerSales))
	mux.HandleFunc("GET /api/v1/customers/{id}/payments", a.requireAuth(a.handleCustomerPayments))
	mux.HandleFunc("GET /api/v1/payments", a.requireAuth(a.handlePaymentsList))
	mux.HandleFunc("POST /api/v1/payments", a.requireAuth(a.handlePaymentCreate))
	mux.HandleFunc("GET /api/v1/debts", a.requireAuth(a.handleDebtSummaries))

	mux.HandleFunc("GET /api/v1/reports/daily", a.requireAuth(a.handleDailyReport))
	mux.HandleFunc("GET /api/v1/reports/monthly", a.requireAuth(a.handleMonthlyReport))
	mux.HandleFunc("GET /api/v1/reports/low-stock", a.requireAuth(a.handleLowStock))
	mux.HandleFunc("GET /api/v1/reports/sales", a.requireAuth(a.handleSalesByRange))
	mux.HandleFunc("GET /api/v1/reports/profit", a.requireAuth(a.handleProfitReport, admin))
	mux.HandleFunc("GET /api/v1/reports/stock-value", a.requireAuth(a.handleStockValueReport, admin))
	mux.HandleFunc("GET /api/v1/reports/product-statistics", a.requireAuth(a.handleProductStatistics, admin))

	mux.HandleFunc("GET /api/v1/settings", a.requireAuth(a.handleSettingsGet))
	mux.HandleFunc("PATCH /api/v1/settings", a.requireAuth(a.handleSettingsUpdate, admin))
	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleUsersList, admin))
	mux.HandleFunc("POST /api/v1/users", a.requireAuth(a.handleUserCreate, admin))
	mux.HandleFunc("PATCH /api/v1/users/{id}", a.requireAuth(a.handleUserUpdate, admin))
	mux.HandleFunc("DELETE /api/v1/users/{id}", a.requireAuth(a.handleUserDelete, admin))
	mux.HandleFunc("POST /api/v1/users/{id}/password", a.requireAuth(a.handlePasswordChange))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, admin))
	mux.HandleFunc("POST /api/v1/database/reset", a.requireAuth(a.handleDatabaseReset, admin))
	mux.HandleFunc("GET /api/v1/printers", a.requireAuth(a.handlePrinters))
	mux.HandleFunc("GET /api/v1/events", a.requireAuth(a.handleEvents))

	return a.withMiddleware(mux)
}

type sessionContextKey struct{}

func sessionFromContext(ctx context.Context) *session.State {
	st, _ := ctx.Value(sessionContextKey{}).(*session.State)
	return st
}

// requireAuth rejects locked sessions with 423 and counts the request as activity.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return a.authenticate(next, false, roles)
}

// requireUnlocked is for the few endpoints a locked session may still call.
func (a *API) requireUnlocked(next http.HandlerFunc) http.HandlerFunc {
	return a.authenticate(next, true, nil)
}

func (a *API) authenticate(next http.HandlerFunc, allowLocked bool, roles []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		claimed, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		actor, err := a.service.ResolveActor(r.Context(), claimed.Username)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrInactiveAccount) {
				a.sessions.End(claimed.Username)
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		st := a.sessions.Get(actor)
		if !allowLocked && !st.Lock().Touch() {
			writeError(w, http.StatusLocked, errors.New("session is locked"))
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = context.WithValue(ctx, sessionContextKey{}, st)
		next(w, r.WithContext(ctx))
	}
}

// bearerToken reads the Authorization header; websocket clients may pass access_token instead.
func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		token := strings.TrimSpace(authorization[len("Bearer "):])
		return token, token != ""
	}
	if r.Method == http.MethodGet && r.URL.Path == "/api/v1/events" {
		token := strings.TrimSpace(r.URL.Query().Get("access_token"))
		return token, token != ""
	}
	return "", false
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInactiveAccount):
			writeError(w, http.StatusUnauthorized, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header of mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": a.generateCSRFToken()})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Body != nil && r.Method != http.MethodGet {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeServiceError maps repository and service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrInUse),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrOverpayment),
		errors.Is(err, store.ErrReturnExceedsSale),
		errors.Is(err, store.ErrLastAdmin):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid %s", store.ErrInvalidTransaction, name)
	}
	return id, nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are shown to the operator as-is.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
