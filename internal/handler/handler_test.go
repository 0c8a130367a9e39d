package handler

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/middleware"
	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/repository"
	"github.com/mmeshcher/clientbook/internal/service"
	"github.com/mmeshcher/clientbook/internal/validation"
	"github.com/mmeshcher/clientbook/internal/workbook"
)

const testToken = "test-token"

type stubService struct {
	err error

	client      model.Client
	clientInput model.ClientInput
	patch       model.ClientPatch
	clientID    int64
	clientFltr  model.ClientFilter

	order      model.Order
	orderInput model.OrderInput
	status     model.OrderStatus
	orderFltr  model.OrderFilter
	page       model.OrderPage

	periodDays  int
	statsClient *int64

	importKind workbook.Kind
	importBody string
	report     workbook.Report
	export     service.Export
}

func (s *stubService) AddClient(ctx context.Context, in model.ClientInput) (model.Client, error) {
	s.clientInput = in
	return s.client, s.err
}

func (s *stubService) GetClient(ctx context.Context, id int64) (model.Client, error) {
	s.clientID = id
	return s.client, s.err
}

func (s *stubService) SearchClients(ctx context.Context, f model.ClientFilter) ([]model.Client, error) {
	s.clientFltr = f
	return []model.Client{s.client}, s.err
}

func (s *stubService) UpdateClient(ctx context.Context, id int64, p model.ClientPatch) (model.Client, error) {
	s.clientID = id
	s.patch = p
	return s.client, s.err
}

func (s *stubService) DeleteClient(ctx context.Context, id int64) error {
	s.clientID = id
	return s.err
}

func (s *stubService) ClientStatistics(ctx context.Context) (model.ClientStats, error) {
	return model.ClientStats{TotalClients: 3}, s.err
}

func (s *stubService) CreateOrder(ctx context.Context, in model.OrderInput) (model.Order, error) {
	s.orderInput = in
	return s.order, s.err
}

func (s *stubService) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	return s.order, s.err
}

func (s *stubService) ClientOrders(ctx context.Context, clientID int64) ([]model.Order, error) {
	s.clientID = clientID
	return []model.Order{}, s.err
}

func (s *stubService) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	s.status = status
	return s.order, s.err
}

func (s *stubService) DeleteOrder(ctx context.Context, id int64) error {
	return s.err
}

func (s *stubService) SearchOrders(ctx context.Context, f model.OrderFilter) (model.OrderPage, error) {
	s.orderFltr = f
	return s.page, s.err
}

func (s *stubService) OrderStatistics(ctx context.Context, periodDays int, clientID *int64) (model.OrderStats, error) {
	s.periodDays = periodDays
	s.statsClient = clientID
	return model.OrderStats{}, s.err
}

func (s *stubService) DashboardData(ctx context.Context) (model.Dashboard, error) {
	return model.Dashboard{}, s.err
}

func (s *stubService) Import(ctx context.Context, kind workbook.Kind, r io.Reader) (workbook.Report, error) {
	s.importKind = kind
	body, _ := io.ReadAll(r)
	s.importBody = string(body)
	return s.report, s.err
}

func (s *stubService) Template(kind workbook.Kind) ([]byte, error) {
	return []byte("xlsx"), s.err
}

func (s *stubService) ExportClients(ctx context.Context, f model.ClientFilter) (service.Export, error) {
	s.clientFltr = f
	return s.export, s.err
}

func (s *stubService) ExportOrders(ctx context.Context, f model.OrderFilter) (service.Export, error) {
	s.orderFltr = f
	return s.export, s.err
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger, middleware.NewAuthMiddleware(testToken))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		target string
		body   string
		want   int
	}{
		{name: "client created", method: http.MethodPost, target: "/api/clients", body: `{"first_name":"Иван","last_name":"Петров"}`, want: http.StatusCreated},
		{name: "validation", err: validation.NewError([]validation.Violation{{Field: "email", Code: validation.CodeInvalidFormat}}),
			method: http.MethodPost, target: "/api/clients", body: `{}`, want: http.StatusUnprocessableEntity},
		{name: "duplicate email", err: fmt.Errorf("%w: a@b.ru", repository.ErrDuplicateEmail),
			method: http.MethodPost, target: "/api/clients", body: `{}`, want: http.StatusConflict},
		{name: "unknown field", method: http.MethodPost, target: "/api/clients", body: `{"age":3}`, want: http.StatusBadRequest},
		{name: "broken json", method: http.MethodPost, target: "/api/clients", body: `{`, want: http.StatusBadRequest},
		{name: "client not found", err: repository.ErrClientNotFound, method: http.MethodGet, target: "/api/clients/5", want: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, target: "/api/clients/abc", want: http.StatusBadRequest},
		{name: "zero id", method: http.MethodDelete, target: "/api/clients/0", want: http.StatusBadRequest},
		{name: "client deleted", method: http.MethodDelete, target: "/api/clients/5", want: http.StatusNoContent},
		{name: "client has orders", err: repository.ErrClientHasOrders, method: http.MethodDelete, target: "/api/clients/5", want: http.StatusConflict},
		{name: "order for missing client", err: repository.ErrClientNotFound,
			method: http.MethodPost, target: "/api/orders", body: `{"client_id":9,"total_amount":"10"}`, want: http.StatusUnprocessableEntity},
		{name: "order not found", err: repository.ErrOrderNotFound, method: http.MethodGet, target: "/api/orders/1", want: http.StatusNotFound},
		{name: "order deleted", method: http.MethodDelete, target: "/api/orders/1", want: http.StatusNoContent},
		{name: "storage failure", err: fmt.Errorf("%w: conn refused", repository.ErrStorage),
			method: http.MethodGet, target: "/api/clients", want: http.StatusInternalServerError},
		{name: "number exhausted", err: service.ErrOrderNumberExhausted,
			method: http.MethodPost, target: "/api/orders", body: `{"client_id":1,"total_amount":"10"}`, want: http.StatusInternalServerError},
		{name: "unknown export kind", method: http.MethodGet, target: "/api/export/invoices", want: http.StatusNotFound},
		{name: "nothing to export", err: workbook.ErrNoData, method: http.MethodGet, target: "/api/export/orders", want: http.StatusNotFound},
		{name: "bad query", method: http.MethodGet, target: "/api/orders?min_amount=lots", want: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, target: "/api/unknown", want: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPut, target: "/api/clients/1", want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{err: tt.err}
			r := newTestHandler(t, svc).SetupRouter()

			rec := do(t, r, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if rec.Code >= http.StatusBadRequest {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestValidationResponseListsViolations(t *testing.T) {
	svc := &stubService{err: validation.NewError([]validation.Violation{
		{Field: "first_name", Code: validation.CodeRequired, Message: "must not be empty"},
		{Field: "phone", Code: validation.CodeInvalidFormat, Message: "must be in the format +7XXXXXXXXXX"},
	})}
	r := newTestHandler(t, svc).SetupRouter()

	rec := do(t, r, http.MethodPatch, "/api/clients/3", `{"phone":"123"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Violations, 2)
	assert.Equal(t, "phone", resp.Violations[1].Field)

	require.NotNil(t, svc.patch.Phone)
	assert.Equal(t, "123", *svc.patch.Phone)
	assert.Nil(t, svc.patch.City)
	assert.Equal(t, int64(3), svc.clientID)
}

func TestRequiresToken(t *testing.T) {
	r := newTestHandler(t, &stubService{}).SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchQueryParsing(t *testing.T) {
	svc := &stubService{page: model.OrderPage{Orders: []model.Order{}, Page: 2, PerPage: 10}}
	r := newTestHandler(t, svc).SetupRouter()

	rec := do(t, r, http.MethodGet,
		"/api/orders?client_id=4&status=completed&min_amount=10.5&start_date=01.03.2024&sort_by=total_amount&sort_order=asc&page=2&per_page=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	f := svc.orderFltr
	require.NotNil(t, f.ClientID)
	assert.Equal(t, int64(4), *f.ClientID)
	assert.Equal(t, model.OrderStatusCompleted, f.Status)
	assert.True(t, f.MinAmount.Equal(decimal.RequireFromString("10.5")))
	assert.Nil(t, f.MaxAmount)
	require.NotNil(t, f.DateFrom)
	assert.Equal(t, "2024-03-01", f.DateFrom.Format("2006-01-02"))
	assert.Equal(t, model.SortByAmount, f.SortBy)
	assert.Equal(t, model.SortAsc, f.SortDir)
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, 10, f.PerPage)

	rec = do(t, r, http.MethodGet, "/api/clients?q=%D0%BF%D0%B5%D1%82%D1%80&city=%D0%9C%D0%BE%D1%81%D0%BA%D0%B2%D0%B0&min_orders=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "петр", svc.clientFltr.Query)
	assert.Equal(t, "Москва", svc.clientFltr.City)
	require.NotNil(t, svc.clientFltr.MinOrders)
	assert.Equal(t, int64(2), *svc.clientFltr.MinOrders)
}

func TestOrderStatisticsParams(t *testing.T) {
	svc := &stubService{}
	r := newTestHandler(t, svc).SetupRouter()

	rec := do(t, r, http.MethodGet, "/api/orders/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, svc.periodDays)
	assert.Nil(t, svc.statsClient)

	rec = do(t, r, http.MethodGet, "/api/orders/stats?period_days=7&client_id=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, svc.periodDays)
	require.NotNil(t, svc.statsClient)
	assert.Equal(t, int64(2), *svc.statsClient)

	rec = do(t, r, http.MethodGet, "/api/orders/stats?period_days=week", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderDecodesBody(t *testing.T) {
	svc := &stubService{order: model.Order{ID: 1, Number: "ORD-20240315-000001"}}
	r := newTestHandler(t, svc).SetupRouter()

	rec := do(t, r, http.MethodPost, "/api/orders",
		`{"client_id":2,"items":[{"product_name":"Чайник","quantity":2,"price":"150.25"}],"order_date":"2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, int64(2), svc.orderInput.ClientID)
	assert.Nil(t, svc.orderInput.TotalAmount)
	require.Len(t, svc.orderInput.Items, 1)
	assert.True(t, svc.orderInput.Items[0].Price.Equal(decimal.RequireFromString("150.25")))

	rec = do(t, r, http.MethodPatch, "/api/orders/1/status", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OrderStatusCancelled, svc.status)
}

func TestImportAndExport(t *testing.T) {
	svc := &stubService{
		report: workbook.Report{BatchID: "batch", Kind: workbook.KindClients, Imported: 2},
		export: service.Export{Data: []byte("xlsx-bytes"), Filename: "orders_export.xlsx", Location: "s3://bucket/key.xlsx"},
	}
	r := newTestHandler(t, svc).SetupRouter()

	rec := do(t, r, http.MethodPost, "/api/import/Clients", "workbook")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workbook.KindClients, svc.importKind)
	assert.Equal(t, "workbook", svc.importBody)
	var rep workbook.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 2, rep.Imported)

	rec = do(t, r, http.MethodGet, "/api/export/orders?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workbook.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "orders_export.xlsx")
	assert.Equal(t, "s3://bucket/key.xlsx", rec.Header().Get("X-Archive-Location"))
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
	assert.Equal(t, model.OrderStatusPending, svc.orderFltr.Status)

	rec = do(t, r, http.MethodGet, "/api/import/template/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "orders_template.xlsx")

	svc.err = errors.New("zip: not a valid zip file")
	rec = do(t, r, http.MethodPost, "/api/import/orders", "garbage")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = workbook.ErrEmptyWorkbook
	rec = do(t, r, http.MethodPost, "/api/import/orders", "garbage")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	instrumented := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	instrument := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			instrumented = true
			next.ServeHTTP(w, r)
		})
	}

	logger := zap.NewNop()
	h := NewHandler(&stubService{}, logger, middleware.NewAuthMiddleware(""), WithMetrics(metrics, instrument))
	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
	assert.True(t, instrumented)

	req = httptest.NewRequest(http.MethodGet, "/api/clients/stats", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "empty token disables auth")
}

func TestRouterCompression(t *testing.T) {
	svc := &stubService{
		client: model.Client{ID: 7, FirstName: "Иван", LastName: "Петров", Status: model.ClientStatusActive},
		export: service.Export{Data: []byte("xlsx-bytes"), Filename: "clients_export.xlsx"},
	}
	r := newTestHandler(t, svc).SetupRouter()

	send := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := send(http.MethodGet, "/api/clients/7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
	gr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	var got model.Client
	require.NoError(t, json.NewDecoder(gr).Decode(&got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "Петров", got.LastName)

	rec = send(http.MethodDelete, "/api/clients/7")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Zero(t, rec.Body.Len())

	rec = send(http.MethodGet, "/api/export/clients")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "xlsx-bytes", rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"client_id":1}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Encoding", "gzip")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.orderInput.ClientID, "service must not see an undecodable body")
}
