package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"snackkit/backend/internal/domain"
	"snackkit/backend/internal/invoice"
	"snackkit/backend/internal/service"
	"snackkit/backend/internal/store/memory"
)

const (
	testEmail    = "owner@example.com"
	testPassword = "snacks-and-chai"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, repo, service.Options{
		Location: time.FixedZone("IST", 5*3600+1800),
		Renderer: invoice.Renderer{Title: invoice.DefaultTitle, Currency: invoice.DefaultCurrency},
	})
	auth := NewAuthManager("test-secret-key-that-is-long-enough", time.Hour, repo)
	auth.bcryptCost = bcrypt.MinCost

	return New(svc, auth, "*", nil)
}

// signIn registers the test account and returns a bearer token for it.
func signIn(t *testing.T, api *API) string {
	t.Helper()

	res := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/signup", "", domain.CredentialsRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("signup expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	var session domain.SessionResponse
	decodeBody(t, res, &session)
	if session.AccessToken == "" {
		t.Fatalf("expected access token in signup response")
	}
	return session.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload == nil {
		body = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

// createSale records a sale of two banana chips and one mixture for a new bakery.
func createSale(t *testing.T, handler http.Handler, token string) domain.Sale {
	t.Helper()

	res := doJSON(t, handler, http.MethodPost, "/api/v1/bakeries", token, domain.BakeryCreateRequest{
		Name:  "Anand Bakers",
		Phone: "+91 98765 43210",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create bakery expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var created struct {
		Bakery domain.Bakery `json:"bakery"`
	}
	decodeBody(t, res, &created)

	res = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleCreateRequest{
		BakeryID: created.Bakery.ID,
		Lines: []domain.SaleLine{
			{ItemID: "item-banana-chips", Qty: 2},
			{ItemID: "item-mixture", Qty: 1},
		},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create sale expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var recorded struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, res, &recorded)
	return recorded.Sale
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{"/api/v1/bakeries", "/api/v1/items", "/api/v1/sales", "/api/v1/dashboard", "/api/v1/admin"} {
		res := doJSON(t, handler, http.MethodGet, path, "", nil)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s expected 401 without token, got %d", path, res.Code)
		}
	}

	res := doJSON(t, handler, http.MethodGet, "/api/v1/items", "not-a-token", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", res.Code)
	}
}

func TestListItemsReturnsSeededCatalogue(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)

	res := doJSON(t, handler, http.MethodGet, "/api/v1/items", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		Items []domain.Item `json:"items"`
	}
	decodeBody(t, res, &body)
	if len(body.Items) != 5 {
		t.Fatalf("expected 5 seeded items, got %d", len(body.Items))
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/items?q=murukku", token, nil)
	decodeBody(t, res, &body)
	if len(body.Items) != 1 || body.Items[0].ID != "item-murukku" {
		t.Fatalf("expected only murukku for search, got %+v", body.Items)
	}
}

func TestBakeryCRUD(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)

	res := doJSON(t, handler, http.MethodPost, "/api/v1/bakeries", token, domain.BakeryCreateRequest{Name: "Sree Bakery", Phone: "90000 11111"})
	if res.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body struct {
		Bakery domain.Bakery `json:"bakery"`
	}
	decodeBody(t, res, &body)
	id := body.Bakery.ID

	res = doJSON(t, handler, http.MethodPatch, "/api/v1/bakeries/"+id, token, map[string]string{"address": "MG Road"})
	if res.Code != http.StatusOK {
		t.Fatalf("patch expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	decodeBody(t, res, &body)
	if body.Bakery.Address != "MG Road" || body.Bakery.Name != "Sree Bakery" {
		t.Fatalf("unexpected bakery after patch: %+v", body.Bakery)
	}

	res = doJSON(t, handler, http.MethodDelete, "/api/v1/bakeries/"+id, token, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/bakeries/"+id, token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("get after delete expected 404, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodPatch, "/api/v1/bakeries/"+id, token, map[string]string{"name": "Gone"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("patch of missing bakery expected 404, got %d", res.Code)
	}
}

func TestNestedRecordPathsAreRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)

	for _, path := range []string{"/api/v1/bakeries/b-1/x", "/api/v1/items/item-mixture/x"} {
		res := doJSON(t, handler, http.MethodGet, path, token, nil)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s expected 400, got %d", path, res.Code)
		}
	}
}

func TestCreateBakeryValidation(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)

	res := doJSON(t, handler, http.MethodPost, "/api/v1/bakeries", token, domain.BakeryCreateRequest{Name: "  ", Phone: "1"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bakeries", strings.NewReader(`{"name":"A","phone":"1","owner":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestCreateSaleAssignsInvoiceNumbers(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)

	first := createSale(t, handler, token)
	second := createSale(t, handler, token)

	if first.InvoiceNumber != "INV-1001" || second.InvoiceNumber != "INV-1002" {
		t.Fatalf("expected INV-1001 and INV-1002, got %s and %s", first.InvoiceNumber, second.InvoiceNumber)
	}
	if first.Status != domain.SaleStatusPending {
		t.Fatalf("expected pending status, got %s", first.Status)
	}
	if got := first.TotalAmount.StringFixed(2); got != "145.00" {
		t.Fatalf("expected total 145.00, got %s", got)
	}
	if first.BakerySnapshot.Name != "Anand Bakers" {
		t.Fatalf("expected bakery snapshot, got %+v", first.BakerySnapshot)
	}
}

func TestCreateSaleRejectsUnknownBakery(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)

	res := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleCreateRequest{
		BakeryID: "missing",
		Lines:    []domain.SaleLine{{ItemID: "item-mixture", Qty: 1}},
	})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown bakery, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestSaleStatusInvoiceAndShare(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)
	sale := createSale(t, handler, token)

	res := doJSON(t, handler, http.MethodPatch, "/api/v1/sales/"+sale.ID+"/status", token, domain.SaleStatusRequest{Status: domain.SaleStatusSent})
	if res.Code != http.StatusOK {
		t.Fatalf("status expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, handler, http.MethodPatch, "/api/v1/sales/"+sale.ID+"/status", token, domain.SaleStatusRequest{Status: "lost"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("invalid status expected 400, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+sale.ID+"/invoice", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("invoice expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain invoice, got %q", ct)
	}
	text := res.Body.String()
	if !strings.Contains(text, "Invoice #: INV-1001") || !strings.HasSuffix(text, "*Total: ₹145.00*") {
		t.Fatalf("unexpected invoice text:\n%s", text)
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+sale.ID+"/share", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("share expected 200, got %d", res.Code)
	}
	var share domain.InvoiceShare
	decodeBody(t, res, &share)
	if !strings.HasPrefix(share.Link, "https://wa.me/919876543210?text=") {
		t.Fatalf("unexpected share link %q", share.Link)
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/sales/missing/invoice", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("missing sale expected 404, got %d", res.Code)
	}
}

func TestPatchSaleSetsInvoiceID(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)
	sale := createSale(t, handler, token)

	res := doJSON(t, handler, http.MethodPatch, "/api/v1/sales/"+sale.ID, token, map[string]string{
		"status":     "sent",
		"invoice_id": "wa-msg-12",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("patch expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body struct {
		Sale domain.Sale `json:"sale"`
	}
	decodeBody(t, res, &body)
	if body.Sale.InvoiceID != "wa-msg-12" || body.Sale.Status != domain.SaleStatusSent {
		t.Fatalf("unexpected sale after patch: %+v", body.Sale)
	}
	if body.Sale.InvoiceNumber != sale.InvoiceNumber || !body.Sale.TotalAmount.Equal(sale.TotalAmount) {
		t.Fatalf("patch must not change the sale body")
	}

	res = doJSON(t, handler, http.MethodPatch, "/api/v1/sales/"+sale.ID, token, map[string]string{"total_amount": "1"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-patchable field, got %d", res.Code)
	}
}

func TestDashboardAndReports(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)
	createSale(t, handler, token)

	res := doJSON(t, handler, http.MethodGet, "/api/v1/dashboard", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("dashboard expected 200, got %d", res.Code)
	}
	var dashboard domain.Dashboard
	decodeBody(t, res, &dashboard)
	if dashboard.Today.TotalQty != 3 || dashboard.Today.UniqueBakeries != 1 {
		t.Fatalf("unexpected today stats: %+v", dashboard.Today)
	}
	if len(dashboard.TopItems) == 0 || dashboard.TopItems[0].Name != "Banana Chips 200g" {
		t.Fatalf("expected banana chips on top, got %+v", dashboard.TopItems)
	}
	if len(dashboard.RecentBakeries) != 1 {
		t.Fatalf("expected one recent bakery, got %d", len(dashboard.RecentBakeries))
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/summary", token, nil)
	var totals domain.SalesTotals
	decodeBody(t, res, &totals)
	if totals.Sales != 1 || totals.TotalRevenue.StringFixed(2) != "145.00" {
		t.Fatalf("unexpected totals: %+v", totals)
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/daily?format=csv", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("daily csv expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(res.Body.String()), "\n")
	if len(lines) != 2 || lines[0] != "date,revenue,qty,bakeries" {
		t.Fatalf("unexpected daily csv:\n%s", res.Body.String())
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/monthly", token, nil)
	var monthly struct {
		Months []domain.MonthlySummary `json:"months"`
	}
	decodeBody(t, res, &monthly)
	if len(monthly.Months) != 1 || monthly.Months[0].Days != 1 {
		t.Fatalf("unexpected monthly report: %+v", monthly.Months)
	}
}

func TestSalesExportXLSX(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)
	createSale(t, handler, token)

	res := doJSON(t, handler, http.MethodGet, "/api/v1/sales/export.xlsx", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("export expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != xlsxMimeType {
		t.Fatalf("unexpected content type %q", ct)
	}

	book, err := excelize.OpenReader(bytes.NewReader(res.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() {
		_ = book.Close()
	}()

	rows, err := book.GetRows(salesSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one sale, got %d rows", len(rows))
	}
	if rows[0][1] != "Invoice #" || rows[1][1] != "INV-1001" || rows[1][2] != "Anand Bakers" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestAdminProfile(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := signIn(t, api)

	res := doJSON(t, handler, http.MethodGet, "/api/v1/admin", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before admin is saved, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodPut, "/api/v1/admin", token, domain.AdminSaveRequest{Name: "Ravi", Phone: "98765", Email: "ravi@example.com"})
	if res.Code != http.StatusOK {
		t.Fatalf("save admin expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/admin", token, nil)
	var body struct {
		Admin domain.Admin `json:"admin"`
	}
	decodeBody(t, res, &body)
	if body.Admin.Name != "Ravi" {
		t.Fatalf("unexpected admin: %+v", body.Admin)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	token := signIn(t, api)

	res := doJSON(t, api.Handler(), http.MethodDelete, "/api/v1/dashboard", token, nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestParsePositiveLimit(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 5},
		{"3", 3},
		{"-1", 5},
		{"abc", 5},
		{"500", 50},
	}
	for _, tc := range cases {
		if got := parsePositiveLimit(tc.raw, 5, 50); got != tc.want {
			t.Fatalf("parsePositiveLimit(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
