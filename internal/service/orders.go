package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/repository"
	"github.com/mmeshcher/clientbook/internal/stats"
	"github.com/mmeshcher/clientbook/internal/validation"
)

const orderNumberAttempts = 10

// ErrOrderNumberExhausted возвращается, если не удалось подобрать свободный номер заказа.
var ErrOrderNumberExhausted = errors.New("could not generate a unique order number")

func randomOrderSuffix() int {
	return rand.IntN(1_000_000)
}

func formatOrderNumber(day time.Time, suffix int) string {
	return fmt.Sprintf("ORD-%s-%06d", day.Format("20060102"), suffix)
}

// GenerateOrderNumber подбирает свободный номер вида ORD-YYYYMMDD-NNNNNN.
func (s *Service) GenerateOrderNumber(ctx context.Context) (string, error) {
	day := s.now()
	for range orderNumberAttempts {
		number := formatOrderNumber(day, s.numbers())
		exists, err := s.repo.OrderNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", ErrOrderNumberExhausted
}

// CreateOrder проверяет заказ, присваивает номер и сохраняет его вместе с изменением счётчиков клиента.
func (s *Service) CreateOrder(ctx context.Context, in model.OrderInput) (o model.Order, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_order", start, err) }(time.Now())

	if err := validation.NewError(validation.OrderInput(in)); err != nil {
		return model.Order{}, err
	}

	now := s.now()
	order := model.Order{
		ClientID:    in.ClientID,
		OrderDate:   model.DateOnly(now),
		Status:      in.Status,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.Status == "" {
		order.Status = model.OrderStatusPending
	}
	if strings.TrimSpace(in.OrderDate) != "" {
		// Формат уже проверен валидацией.
		order.OrderDate, _ = validation.ParseDate(in.OrderDate)
	}

	total := decimal.Zero
	for _, item := range in.Items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		item.Price = item.Price.Round(2)
		order.Items = append(order.Items, item)
		total = total.Add(item.Total())
	}
	if in.TotalAmount != nil {
		total = *in.TotalAmount
	}
	order.TotalAmount = total.Round(2)
	if !order.TotalAmount.IsPositive() {
		return model.Order{}, validation.NewError([]validation.Violation{{
			Field: "total_amount", Code: validation.CodeOutOfRange, Message: "must be at least 0.01",
		}})
	}

	for range orderNumberAttempts {
		order.Number, err = s.GenerateOrderNumber(ctx)
		if err != nil {
			return model.Order{}, err
		}

		o, err = s.repo.CreateOrder(ctx, order)
		if errors.Is(err, repository.ErrDuplicateOrderNumber) {
			continue
		}
		if err != nil {
			return model.Order{}, err
		}

		s.logger.Debug("order created",
			zap.Int64("order_id", o.ID),
			zap.Int64("client_id", o.ClientID),
			zap.String("number", o.Number),
		)
		return o, nil
	}
	return model.Order{}, ErrOrderNumberExhausted
}

// GetOrder возвращает заказ вместе с позициями.
func (s *Service) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ClientOrders возвращает заказы клиента, начиная с новых.
func (s *Service) ClientOrders(ctx context.Context, clientID int64) ([]model.Order, error) {
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	orders, err := s.repo.ClientOrders(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// UpdateOrderStatus меняет статус заказа.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (o model.Order, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_order_status", start, err) }(time.Now())

	if err := validation.NewError(validation.CheckOrderStatus("status", status)); err != nil {
		return model.Order{}, err
	}
	return s.repo.UpdateOrderStatus(ctx, id, status, s.now())
}

// DeleteOrder удаляет заказ и уменьшает счётчики клиента.
func (s *Service) DeleteOrder(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { s.observe(ctx, "delete_order", start, err) }(time.Now())

	return s.repo.DeleteOrder(ctx, id, s.now())
}

// SearchOrders возвращает страницу заказов по фильтру.
func (s *Service) SearchOrders(ctx context.Context, f model.OrderFilter) (page model.OrderPage, err error) {
	defer func(start time.Time) { s.observe(ctx, "search_orders", start, err) }(time.Now())

	if err := validation.NewError(validation.OrderFilter(f)); err != nil {
		return model.OrderPage{}, err
	}
	f.Number = strings.TrimSpace(f.Number)
	f.ClientName = strings.TrimSpace(f.ClientName)
	return s.repo.SearchOrders(ctx, f.WithDefaults())
}

// OrderStatistics возвращает статистику заказов за periodDays дней, при необходимости по одному клиенту.
func (s *Service) OrderStatistics(ctx context.Context, periodDays int, clientID *int64) (model.OrderStats, error) {
	if periodDays <= 0 {
		return model.OrderStats{}, validation.NewError([]validation.Violation{{
			Field: "period_days", Code: validation.CodeOutOfRange, Message: "must be positive",
		}})
	}
	if clientID != nil {
		if _, err := s.repo.GetClient(ctx, *clientID); err != nil {
			return model.OrderStats{}, err
		}
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return model.OrderStats{}, err
	}
	return stats.Orders(snap, periodDays, clientID, s.now(), stats.TopClientsInPeriod), nil
}
