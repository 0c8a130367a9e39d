// Package service реализует бизнес-логику учёта клиентов и заказов.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateClient(ctx context.Context, c model.Client) (model.Client, error)
	GetClient(ctx context.Context, id int64) (model.Client, error)
	FindClientByEmail(ctx context.Context, email string) (model.Client, error)
	UpdateClient(ctx context.Context, id int64, p model.ClientPatch, now time.Time) (model.Client, error)
	DeleteClient(ctx context.Context, id int64) error
	SearchClients(ctx context.Context, f model.ClientFilter) ([]model.Client, error)

	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, id int64) (model.Order, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, now time.Time) (model.Order, error)
	DeleteOrder(ctx context.Context, id int64, now time.Time) error
	ClientOrders(ctx context.Context, clientID int64) ([]model.Order, error)
	SearchOrders(ctx context.Context, f model.OrderFilter) (model.OrderPage, error)

	Snapshot(ctx context.Context) (model.Snapshot, error)
}

// MetricsRecorder принимает длительность и результат операций сервиса.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// DashboardPusher отправляет данные панели во внешнюю систему.
type DashboardPusher interface {
	Push(ctx context.Context, d model.Dashboard) error
}

// Archiver сохраняет выгрузки и возвращает их адрес.
type Archiver interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
}

// Service содержит бизнес-логику учёта клиентов и заказов.
type Service struct {
	repo      Repository
	dashboard DashboardPusher
	archiver  Archiver
	metrics   MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
	numbers   func() int
}

// Option настраивает Service.
type Option func(*Service)

// WithDashboard подключает отправку данных во внешнюю панель.
func WithDashboard(p DashboardPusher) Option {
	return func(s *Service) { s.dashboard = p }
}

// WithArchiver подключает архив выгрузок.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithMetrics подключает сбор метрик.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNumberSource подменяет генератор случайной части номера заказа.
func WithNumberSource(next func() int) Option {
	return func(s *Service) { s.numbers = next }
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		logger:  zap.NewNop(),
		now:     time.Now,
		numbers: randomOrderSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// observe учитывает операцию в метриках и пишет в журнал сбои хранилища.
func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
	if err != nil && errors.Is(err, repository.ErrStorage) {
		s.logger.Error("storage operation failed", zap.String("operation", op), zap.Error(err))
	}
}
