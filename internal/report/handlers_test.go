package report_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-report/internal/report"
	"github.com/noah-isme/sales-report/internal/sales"
	"github.com/noah-isme/sales-report/internal/security"
)

type errorEnvelope struct {
	Error struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details []report.FieldError `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T, maxBody int64) http.Handler {
	t.Helper()
	svc, _ := newService(t, nil, prometheus.NewRegistry())
	h := report.NewHandler(svc)
	r := chi.NewRouter()
	r.Route("/api/v1/reports", func(rr chi.Router) {
		rr.Use(security.BodyLimit{Max: maxBody}.Middleware)
		h.Routes(rr)
	})
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const salesPayload = `{
  "sellers": [
    {"id": "seller_1", "first_name": "Alex", "last_name": "Reed"},
    {"id": "seller_2", "first_name": "Bea", "last_name": "Hart"}
  ],
  "products": [{"sku": "SKU_A", "purchase_price": 10}],
  "purchase_records": [
    {"seller_id": "seller_2", "total_amount": 270, "items": [{"sku": "SKU_A", "quantity": 3, "sale_price": 100, "discount": 10}]},
    {"seller_id": "seller_1", "total_amount": 50, "items": [{"sku": "SKU_A", "quantity": 1, "sale_price": 50, "discount": 0}]}
  ]
}`

func TestSalesHandlerReturnsRankedReport(t *testing.T) {
	rec := post(t, newRouter(t, 1<<20), "/api/v1/reports/sales", salesPayload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Data []sales.SellerReport `json:"data"`
		Meta struct {
			ReportID string `json:"report_id"`
			Cached   bool   `json:"cached"`
			Sellers  int    `json:"sellers"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, "seller_2", body.Data[0].SellerID)
	require.Equal(t, "Bea Hart", body.Data[0].Name)
	require.Equal(t, 270.0, body.Data[0].Revenue)
	require.Equal(t, 1, body.Data[0].SalesCount)
	require.Equal(t, []sales.ProductQuantity{{SKU: "SKU_A", Quantity: 3}}, body.Data[0].TopProducts)
	require.NotEmpty(t, body.Meta.ReportID)
	require.False(t, body.Meta.Cached)
	require.Equal(t, 2, body.Meta.Sellers)
}

func TestSalesHandlerRejectsMalformedJSON(t *testing.T) {
	rec := post(t, newRouter(t, 1<<20), "/api/v1/reports/sales", `{"sellers": [`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "BAD_REQUEST", decodeError(t, rec).Error.Code)
}

func TestSalesHandlerReportsFieldErrors(t *testing.T) {
	payload := strings.Replace(salesPayload, `"discount": 10`, `"discount": 150`, 1)
	rec := post(t, newRouter(t, 1<<20), "/api/v1/reports/sales", payload)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeError(t, rec)
	require.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	require.Equal(t, []report.FieldError{{
		Field: "purchase_records[0].items[0].discount",
		Rule:  "lte",
		Param: "100",
	}}, body.Error.Details)
}

func TestSalesHandlerMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		code    string
	}{
		{"empty sellers", `{"sellers": [], "products": [], "purchase_records": []}`, "INVALID_SELLER_DATA"},
		{"missing products", `{"sellers": [{"id": "s1"}], "purchase_records": []}`, "INVALID_DATA"},
		{"unknown sku", strings.Replace(salesPayload, `"sku": "SKU_A", "quantity": 1`, `"sku": "SKU_Z", "quantity": 1`, 1), "UNKNOWN_PRODUCT"},
	}
	router := newRouter(t, 1<<20)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, router, "/api/v1/reports/sales", tc.payload)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decodeError(t, rec).Error.Code)
		})
	}
}

func TestSalesHandlerRejectsOversizeBody(t *testing.T) {
	router := newRouter(t, 64)

	rec := post(t, router, "/api/v1/reports/sales", salesPayload)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, rec).Error.Code)

	// chunked bodies have no declared length and are cut off while decoding
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/sales", strings.NewReader(salesPayload))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRevenueHandler(t *testing.T) {
	router := newRouter(t, 1<<20)

	rec := post(t, router, "/api/v1/reports/sales/revenue",
		`{"item": {"sku": "SKU_A", "quantity": 3, "sale_price": 100, "discount": 10}, "product": {"sku": "SKU_A", "purchase_price": 10}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data struct {
			Revenue float64 `json:"revenue"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 270.0, body.Data.Revenue)

	rec = post(t, router, "/api/v1/reports/sales/revenue", `{"item": {"sku": "", "quantity": 1}, "product": {"sku": "SKU_A"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	details := decodeError(t, rec).Error.Details
	require.Len(t, details, 1)
	require.Equal(t, "item.sku", details[0].Field)
	require.Equal(t, "required", details[0].Rule)
}

func TestStrategiesHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/strategies", nil)
	rec := httptest.NewRecorder()
	newRouter(t, 1<<20).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data report.Strategies `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, sales.RevenueSimple, body.Data.Revenue)
	require.Equal(t, sales.BonusProfitRank, body.Data.Bonus)
	require.Contains(t, body.Data.Available["bonus"], sales.BonusProfitRank)
	require.Contains(t, body.Data.Available["revenue"], sales.RevenueSimple)
}

func TestHandlerWithoutService(t *testing.T) {
	r := chi.NewRouter()
	(&report.Handler{}).Routes(r)
	req := httptest.NewRequest(http.MethodGet, "/strategies", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
