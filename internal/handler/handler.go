// Package handler содержит HTTP-обработчики API сервиса clientbook.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/middleware"
	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/repository"
	"github.com/mmeshcher/clientbook/internal/service"
	"github.com/mmeshcher/clientbook/internal/validation"
	"github.com/mmeshcher/clientbook/internal/workbook"
)

// maxImportSize ограничивает размер загружаемой книги.
const maxImportSize = 32 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	AddClient(ctx context.Context, in model.ClientInput) (model.Client, error)
	GetClient(ctx context.Context, id int64) (model.Client, error)
	SearchClients(ctx context.Context, f model.ClientFilter) ([]model.Client, error)
	UpdateClient(ctx context.Context, id int64, p model.ClientPatch) (model.Client, error)
	DeleteClient(ctx context.Context, id int64) error
	ClientStatistics(ctx context.Context) (model.ClientStats, error)

	CreateOrder(ctx context.Context, in model.OrderInput) (model.Order, error)
	GetOrder(ctx context.Context, id int64) (model.Order, error)
	ClientOrders(ctx context.Context, clientID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	SearchOrders(ctx context.Context, f model.OrderFilter) (model.OrderPage, error)
	OrderStatistics(ctx context.Context, periodDays int, clientID *int64) (model.OrderStats, error)

	DashboardData(ctx context.Context) (model.Dashboard, error)
	Import(ctx context.Context, kind workbook.Kind, r io.Reader) (workbook.Report, error)
	Template(kind workbook.Kind) ([]byte, error)
	ExportClients(ctx context.Context, f model.ClientFilter) (service.Export, error)
	ExportOrders(ctx context.Context, f model.OrderFilter) (service.Export, error)
}

// Handler реализует HTTP-обработчики API сервиса clientbook.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
	instrument     func(http.Handler) http.Handler
}

// Option настраивает Handler.
type Option func(*Handler)

// WithMetrics подключает сбор метрик HTTP и маршрут /metrics.
func WithMetrics(handler http.Handler, instrument func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.metrics = handler
		h.instrument = instrument
	}
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error      string                 `json:"error"`
	Violations []validation.Violation `json:"violations,omitempty"`
}

type statusRequest struct {
	Status model.OrderStatus `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError переводит ошибку сервиса в HTTP-ответ.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := validation.AsError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Violations: ve.Violations})
		return
	}

	switch {
	case errors.Is(err, repository.ErrClientNotFound), errors.Is(err, repository.ErrOrderNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateEmail), errors.Is(err, repository.ErrClientHasOrders):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, workbook.ErrUnknownKind):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workbook.ErrNoData):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workbook.ErrEmptyWorkbook):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// Клиент ушёл, отвечать некому.
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// AddClient создаёт клиента.
func (h *Handler) AddClient(w http.ResponseWriter, r *http.Request) {
	var in model.ClientInput
	if err := decode(r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.AddClient(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// SearchClients возвращает клиентов по параметрам запроса.
func (h *Handler) SearchClients(w http.ResponseWriter, r *http.Request) {
	f, err := clientFilter(r.URL.Query())
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	clients, err := h.service.SearchClients(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// GetClient возвращает клиента по идентификатору.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid client id")
		return
	}

	c, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateClient частично обновляет клиента.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid client id")
		return
	}
	var p model.ClientPatch
	if err := decode(r, &p); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.UpdateClient(r.Context(), id, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteClient удаляет клиента без заказов.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid client id")
		return
	}

	if err := h.service.DeleteClient(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClientOrders возвращает заказы клиента.
func (h *Handler) ClientOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid client id")
		return
	}

	orders, err := h.service.ClientOrders(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// ClientStatistics возвращает сводную статистику по клиентам.
func (h *Handler) ClientStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.ClientStatistics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CreateOrder создаёт заказ.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in model.OrderInput
	if err := decode(r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.service.CreateOrder(r.Context(), in)
	if errors.Is(err, repository.ErrClientNotFound) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: "validation failed",
			Violations: []validation.Violation{{
				Field: "client_id", Code: validation.CodeInvalidFormat, Message: "client does not exist",
			}},
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// SearchOrders возвращает страницу заказов по параметрам запроса.
func (h *Handler) SearchOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r.URL.Query())
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.SearchOrders(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetOrder возвращает заказ с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DeleteOrder удаляет заказ.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OrderStatistics возвращает статистику заказов за период.
func (h *Handler) OrderStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := 30
	if v := q.Get("period_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid period_days")
			return
		}
		days = n
	}
	clientID, err := optionalInt(q, "client_id")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.service.OrderStatistics(r.Context(), days, clientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Dashboard возвращает данные аналитической панели.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.DashboardData(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Import загружает книгу xlsx из тела запроса.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	kind, err := workbook.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer r.Body.Close()

	rep, err := h.service.Import(r.Context(), kind, http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeMessage(w, http.StatusRequestEntityTooLarge, "workbook is too large")
		case errors.Is(err, workbook.ErrEmptyWorkbook), errors.Is(err, workbook.ErrUnknownKind), errors.Is(err, context.Canceled):
			h.writeError(w, r, err)
		default:
			// Книгу не удалось прочитать.
			writeMessage(w, http.StatusBadRequest, "invalid workbook: "+err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Template отдаёт пример книги для импорта.
func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	kind, err := workbook.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := h.service.Template(kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeWorkbook(w, string(kind)+"_template.xlsx", data)
}

// Export выгружает клиентов или заказы в книгу xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	kind, err := workbook.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var exp service.Export
	switch kind {
	case workbook.KindClients:
		f, ferr := clientFilter(r.URL.Query())
		if ferr != nil {
			writeMessage(w, http.StatusBadRequest, ferr.Error())
			return
		}
		exp, err = h.service.ExportClients(r.Context(), f)
	case workbook.KindOrders:
		f, ferr := orderFilter(r.URL.Query())
		if ferr != nil {
			writeMessage(w, http.StatusBadRequest, ferr.Error())
			return
		}
		exp, err = h.service.ExportOrders(r.Context(), f)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if exp.Location != "" {
		w.Header().Set("X-Archive-Location", exp.Location)
	}
	writeWorkbook(w, exp.Filename, exp.Data)
}

func writeWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", workbook.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Health отвечает на проверку живости.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
