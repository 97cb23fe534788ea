package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"balcao/backend/internal/cache"
	"balcao/backend/internal/domain"
	"balcao/backend/internal/service"
	"balcao/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStatsCache{}, time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, api *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_ListWithToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products?limit=3&page=2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.ProductListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Pagination.Page != 2 || resp.Pagination.Limit != 3 {
		t.Fatalf("expected page=2 limit=3 in envelope, got %+v", resp.Pagination)
	}
	if resp.Pagination.Total != 7 {
		t.Fatalf("expected total 7, got %d", resp.Pagination.Total)
	}
}

func TestHandleProducts_RejectsNonPositivePagination(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	for _, path := range []string{
		"/api/v1/products?page=0",
		"/api/v1/products?limit=0",
		"/api/v1/products?page=-2",
		"/api/v1/products?limit=abc",
		"/api/v1/sales?page=0",
	} {
		rec := doJSON(t, api, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestHandleProducts_StaffCannotMutate(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:       "Torta Salgada",
		Category:   "snack",
		PriceCents: 1200,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff create, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/products/prod-pao-01", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff delete, got %d", rec.Code)
	}
}

func TestHandleProducts_AdminCRUD(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:       "Torta Salgada",
		Category:   "snack",
		PriceCents: 1200,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created product: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated product id")
	}

	newPrice := int64(1350)
	rec = doJSON(t, api, http.MethodPut, "/api/v1/products/"+created.ID, token, domain.ProductUpdateRequest{PriceCents: &newPrice})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for update, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/products/"+created.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/"+created.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestHandleProducts_HighlightViews(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	for _, path := range []string{"/api/v1/products/featured", "/api/v1/products/available?limit=2"} {
		rec := doJSON(t, api, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (body: %s)", path, rec.Code, rec.Body.String())
		}
		var body map[string][]domain.Product
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode body: %v", path, err)
		}
		if len(body["products"]) == 0 {
			t.Fatalf("%s: expected products in response", path)
		}
	}

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products/category/beverage", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for category listing, got %d", rec.Code)
	}
	var resp domain.ProductListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode category listing: %v", err)
	}
	if len(resp.Products) != 2 {
		t.Fatalf("expected 2 beverages, got %d", len(resp.Products))
	}
}

func TestHandleSales_CreateAndLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleCreateRequest{
		CustomerID:    "cust-ana-01",
		PaymentMethod: domain.PaymentPix,
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-cafe-01", Quantity: 2, UnitPriceCents: 650},
			{ProductID: "prod-pao-01", Quantity: 3, UnitPriceCents: 90},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.TotalCents != 2*650+3*90 {
		t.Fatalf("unexpected total %d", sale.TotalCents)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/"+sale.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for sale fetch, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPatch, "/api/v1/sales/"+sale.ID+"/status", token, domain.SaleStatusUpdateRequest{Status: domain.SaleStatusCompleted})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for status update, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Terminal state: a second transition is a 400.
	rec = doJSON(t, api, http.MethodPatch, "/api/v1/sales/"+sale.ID+"/status", token, domain.SaleStatusUpdateRequest{Status: domain.SaleStatusCancelled})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for transition out of completed, got %d", rec.Code)
	}
}

func TestHandleSales_ValidationMapsTo400(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleCreateRequest{
		PaymentMethod: "cheque",
		Items:         []domain.SaleItemRequest{{ProductID: "prod-pao-01", Quantity: 1, UnitPriceCents: 90}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown payment method, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/sale-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing sale, got %d", rec.Code)
	}
}

func TestHandleSalesStats(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/sales/stats?period=week", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var stats domain.SalesStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Period != domain.StatsPeriodWeek {
		t.Fatalf("expected week period, got %s", stats.Period)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/stats?period=decade", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period, got %d", rec.Code)
	}
}

func TestHandleSalesReport(t *testing.T) {
	api := newTestAPI(t)
	staffToken := loginAs(t, api, "staff", "staff123")
	adminToken := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/reports/sales?start=2026-01-01&end=2026-01-31", staffToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff report access, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/reports/sales?start=2026-01-01&end=2026-01-31", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var report domain.SalesReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/reports/sales?start=2026-01-31&end=2026-01-01", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/reports/sales", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing dates, got %d", rec.Code)
	}
}

func TestHandleCustomers_List(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/customers", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string][]domain.Customer
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode customers: %v", err)
	}
	if len(body["customers"]) != 3 {
		t.Fatalf("expected 3 seeded customers, got %d", len(body["customers"]))
	}
}
