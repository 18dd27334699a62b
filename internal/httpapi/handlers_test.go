package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"glowpos/backend/internal/cache"
	"glowpos/backend/internal/domain"
	"glowpos/backend/internal/service"
	"glowpos/backend/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReceiptCache{}, time.Minute)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	return New(svc, auth, "http://localhost:5173").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body)
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("empty access token")
	}
	return resp.AccessToken
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	handler := newTestHandler(t)
	var last int
	for i := 0; i < 6; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
			Username: "admin",
			Password: "wrong",
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after repeated failures", last)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for garbage token", rec.Code)
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, map[string]any{
		"items":           []map[string]any{{"product_id": 1, "quantity": 2}},
		"amount_received": "2500.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}

	var resp domain.CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.Transaction.Code, "TXN-") {
		t.Fatalf("code = %q", resp.Transaction.Code)
	}
	if resp.Transaction.TotalAmount.StringFixed(2) != "2466.00" {
		t.Fatalf("total = %s", resp.Transaction.TotalAmount)
	}
	if resp.Transaction.CashierUsername != "cashier" {
		t.Fatalf("cashier = %q", resp.Transaction.CashierUsername)
	}
}

func TestCheckoutRejectsUnknownFields(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, map[string]any{
		"items":           []map[string]any{{"product_id": 1, "quantity": 1}},
		"amount_received": "2500.00",
		"surprise":        true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCheckoutInsufficientStockConflict(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, map[string]any{
		"items":           []map[string]any{{"product_id": 1, "quantity": 999}},
		"amount_received": "9999999.00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 body %s", rec.Code, rec.Body)
	}
}

func TestVoidRoleEnforcement(t *testing.T) {
	handler := newTestHandler(t)
	cashierToken := login(t, handler, "cashier", "cashier123")
	supervisorToken := login(t, handler, "supervisor", "super123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", cashierToken, map[string]any{
		"items":           []map[string]any{{"product_id": 8, "quantity": 1}},
		"amount_received": "150.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout status = %d body %s", rec.Code, rec.Body)
	}
	var resp domain.CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	voidPath := fmt.Sprintf("/api/v1/transactions/%s/void", resp.Transaction.Code)

	rec = doJSON(t, handler, http.MethodPost, voidPath, cashierToken, domain.VoidRequest{Reason: "oops"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier void status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, voidPath, supervisorToken, domain.VoidRequest{Reason: "wrong item rung up"})
	if rec.Code != http.StatusOK {
		t.Fatalf("supervisor void status = %d body %s", rec.Code, rec.Body)
	}

	// Voiding the same receipt again is a conflict.
	rec = doJSON(t, handler, http.MethodPost, voidPath, supervisorToken, domain.VoidRequest{Reason: "again"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("double void status = %d, want 409", rec.Code)
	}
}

func TestGetTransactionByCode(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, map[string]any{
		"items":           []map[string]any{{"product_id": 8, "quantity": 1}},
		"amount_received": "150.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout status = %d", rec.Code)
	}
	var resp domain.CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions/"+resp.Transaction.Code, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions/TXN-19990101000000", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing tx status = %d, want 404", rec.Code)
	}
}

func TestProductCreateRequiresAdmin(t *testing.T) {
	handler := newTestHandler(t)
	cashierToken := login(t, handler, "cashier", "cashier123")
	adminToken := login(t, handler, "admin", "admin123")

	body := domain.ProductCreateRequest{SKU: "SKU-NEW-01", Name: "Clay Mask", Category: "skincare"}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", cashierToken, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier create status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create status = %d body %s", rec.Code, rec.Body)
	}
}

func TestVoucherCreateForbiddenForCashier(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/vouchers", token, map[string]any{
		"code":           "STAFF20",
		"discount_type":  "percentage",
		"discount_value": "20",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d body %s, want 403", rec.Code, rec.Body)
	}
}

func TestVoucherValidatePreview(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/vouchers/validate", token, map[string]any{
		"code":   "BEAUTY10",
		"amount": "1000.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	var resp domain.VoucherValidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("voucher should be valid: %+v", resp)
	}
	if resp.Discount.StringFixed(2) != "100.00" {
		t.Fatalf("discount = %s, want 100.00", resp.Discount)
	}

	// Below minimum purchase reports the reason, not an error status.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/vouchers/validate", token, map[string]any{
		"code":   "BEAUTY10",
		"amount": "100.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Valid || resp.Reason == "" {
		t.Fatalf("want invalid with reason, got %+v", resp)
	}
}

func TestActivityLogsAdminOnly(t *testing.T) {
	handler := newTestHandler(t)
	cashierToken := login(t, handler, "cashier", "cashier123")
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/activity-logs", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/activity-logs", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
}

func TestSettingsPatch(t *testing.T) {
	handler := newTestHandler(t)
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPatch, "/api/v1/settings", adminToken, map[string]any{
		"tax_rate_percent": "12",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/settings", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var payload struct {
		Settings domain.Settings `json:"settings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Settings.TaxRatePercent.StringFixed(0) != "12" {
		t.Fatalf("tax rate = %s, want 12", payload.Settings.TaxRatePercent)
	}
}

func TestCheckoutSuggestion(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout/suggestion", token, map[string]any{
		"items": []map[string]any{{"product_id": 1, "quantity": 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	var payload struct {
		Suggestion *struct {
			SKU    string `json:"sku"`
			Reason string `json:"reason"`
		} `json:"suggestion"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Suggestion == nil || payload.Suggestion.SKU == "" {
		t.Fatalf("expected a suggestion against the seeded catalog, got %s", rec.Body)
	}
}

func TestOptionsPreflight(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}
