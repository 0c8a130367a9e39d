package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clientbook/internal/model"
)

// memoryState хранит всё состояние in-memory репозитория.
type memoryState struct {
	clients      map[int64]model.Client
	orders       map[int64]model.Order
	nextClientID int64
	nextOrderID  int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		clients:      make(map[int64]model.Client),
		orders:       make(map[int64]model.Order),
		nextClientID: 1,
		nextOrderID:  1,
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		clients:      make(map[int64]model.Client, len(s.clients)),
		orders:       make(map[int64]model.Order, len(s.orders)),
		nextClientID: s.nextClientID,
		nextOrderID:  s.nextOrderID,
	}
	for id, client := range s.clients {
		c.clients[id] = client
	}
	for id, order := range s.orders {
		order.Items = slices.Clone(order.Items)
		c.orders[id] = order
	}
	return c
}

func (s *memoryState) emailTaken(email string, exceptID int64) bool {
	if email == "" {
		return false
	}
	for id, c := range s.clients {
		if id != exceptID && strings.EqualFold(c.Email, email) {
			return true
		}
	}
	return false
}

// withClientName подставляет текущее имя клиента, как это делает JOIN в PostgreSQL.
func (s *memoryState) withClientName(o model.Order) model.Order {
	if c, ok := s.clients[o.ClientID]; ok {
		o.ClientName = c.DisplayName()
	}
	return o
}

func (s *memoryState) adjustClientAggregates(clientID, orders int64, revenue decimal.Decimal, now time.Time) error {
	c, ok := s.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	c.TotalOrders += orders
	c.TotalRevenue = c.TotalRevenue.Add(revenue)
	c.UpdatedAt = now
	s.clients[clientID] = c
	return nil
}

// MemoryRepository хранит клиентов и заказы в памяти процесса.
// Каждая запись работает над копией состояния и подменяет его только при успехе.
type MemoryRepository struct {
	mu      sync.RWMutex
	state   *memoryState
	persist func(ctx context.Context, s *memoryState) error
}

// NewMemoryRepository создаёт пустой in-memory репозиторий.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemoryState()}
}

// Close ничего не делает: ресурсов у in-memory репозитория нет.
func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) update(ctx context.Context, fn func(s *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	if r.persist != nil {
		if err := r.persist(ctx, next); err != nil {
			return storageError("persist state", err)
		}
	}
	r.state = next
	return nil
}

func (r *MemoryRepository) view(ctx context.Context, fn func(s *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return fn(r.state)
}

// CreateClient сохраняет нового клиента.
func (r *MemoryRepository) CreateClient(ctx context.Context, c model.Client) (model.Client, error) {
	err := r.update(ctx, func(s *memoryState) error {
		if s.emailTaken(c.Email, 0) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, c.Email)
		}
		c.ID = s.nextClientID
		s.nextClientID++
		s.clients[c.ID] = c
		return nil
	})
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

// GetClient возвращает клиента по идентификатору.
func (r *MemoryRepository) GetClient(ctx context.Context, id int64) (model.Client, error) {
	var c model.Client
	err := r.view(ctx, func(s *memoryState) error {
		var ok bool
		if c, ok = s.clients[id]; !ok {
			return ErrClientNotFound
		}
		return nil
	})
	return c, err
}

// FindClientByEmail ищет клиента по email без учёта регистра.
func (r *MemoryRepository) FindClientByEmail(ctx context.Context, email string) (model.Client, error) {
	var found model.Client
	err := r.view(ctx, func(s *memoryState) error {
		for _, c := range s.clients {
			if email != "" && strings.EqualFold(c.Email, email) {
				found = c
				return nil
			}
		}
		return ErrClientNotFound
	})
	return found, err
}

// UpdateClient применяет частичное обновление к клиенту.
func (r *MemoryRepository) UpdateClient(ctx context.Context, id int64, p model.ClientPatch, now time.Time) (model.Client, error) {
	var updated model.Client
	err := r.update(ctx, func(s *memoryState) error {
		c, ok := s.clients[id]
		if !ok {
			return ErrClientNotFound
		}
		if p.Email != nil && s.emailTaken(*p.Email, id) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, *p.Email)
		}
		p.Apply(&c)
		c.UpdatedAt = now
		s.clients[id] = c
		updated = c
		return nil
	})
	if err != nil {
		return model.Client{}, err
	}
	return updated, nil
}

// DeleteClient удаляет клиента без заказов.
func (r *MemoryRepository) DeleteClient(ctx context.Context, id int64) error {
	return r.update(ctx, func(s *memoryState) error {
		c, ok := s.clients[id]
		if !ok {
			return ErrClientNotFound
		}
		if c.TotalOrders > 0 {
			return fmt.Errorf("%w: %d orders", ErrClientHasOrders, c.TotalOrders)
		}
		for _, o := range s.orders {
			if o.ClientID == id {
				return ErrClientHasOrders
			}
		}
		delete(s.clients, id)
		return nil
	})
}

// SearchClients возвращает клиентов, удовлетворяющих фильтру.
func (r *MemoryRepository) SearchClients(ctx context.Context, f model.ClientFilter) ([]model.Client, error) {
	var res []model.Client
	err := r.view(ctx, func(s *memoryState) error {
		for _, c := range s.clients {
			if matchClient(c, f) {
				res = append(res, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortClients(res)
	return res, nil
}

// CreateOrder сохраняет заказ и увеличивает счётчики клиента атомарно.
func (r *MemoryRepository) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	err := r.update(ctx, func(s *memoryState) error {
		if _, ok := s.clients[o.ClientID]; !ok {
			return ErrClientNotFound
		}
		for _, existing := range s.orders {
			if existing.Number == o.Number {
				return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.Number)
			}
		}

		o.ID = s.nextOrderID
		s.nextOrderID++
		o.ClientName = ""
		o.Items = slices.Clone(o.Items)
		s.orders[o.ID] = o

		if err := s.adjustClientAggregates(o.ClientID, 1, o.TotalAmount, o.UpdatedAt); err != nil {
			return err
		}
		o = s.withClientName(o)
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// GetOrder возвращает заказ вместе с позициями.
func (r *MemoryRepository) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	var o model.Order
	err := r.view(ctx, func(s *memoryState) error {
		stored, ok := s.orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		o = s.withClientName(stored)
		o.Items = slices.Clone(stored.Items)
		return nil
	})
	return o, err
}

// OrderNumberExists сообщает, занят ли номер заказа.
func (r *MemoryRepository) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.view(ctx, func(s *memoryState) error {
		for _, o := range s.orders {
			if o.Number == number {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

// UpdateOrderStatus меняет статус заказа.
func (r *MemoryRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, now time.Time) (model.Order, error) {
	var updated model.Order
	err := r.update(ctx, func(s *memoryState) error {
		o, ok := s.orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		o.Status = status
		o.UpdatedAt = now
		s.orders[id] = o
		updated = listed(s.withClientName(o))
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	return updated, nil
}

// DeleteOrder удаляет заказ и уменьшает счётчики клиента атомарно.
func (r *MemoryRepository) DeleteOrder(ctx context.Context, id int64, now time.Time) error {
	return r.update(ctx, func(s *memoryState) error {
		o, ok := s.orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		delete(s.orders, id)
		return s.adjustClientAggregates(o.ClientID, -1, o.TotalAmount.Neg(), now)
	})
}

// ClientOrders возвращает заказы клиента, начиная с новых.
func (r *MemoryRepository) ClientOrders(ctx context.Context, clientID int64) ([]model.Order, error) {
	var res []model.Order
	err := r.view(ctx, func(s *memoryState) error {
		for _, o := range s.orders {
			if o.ClientID == clientID {
				res = append(res, listed(s.withClientName(o)))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortOrders(res, model.SortByOrderDate, model.SortDesc)
	return res, nil
}

// SearchOrders возвращает страницу заказов, удовлетворяющих фильтру.
func (r *MemoryRepository) SearchOrders(ctx context.Context, f model.OrderFilter) (model.OrderPage, error) {
	f = f.WithDefaults()

	var matched []model.Order
	err := r.view(ctx, func(s *memoryState) error {
		for _, o := range s.orders {
			o = listed(s.withClientName(o))
			if matchOrder(o, s.clients[o.ClientID], f) {
				matched = append(matched, o)
			}
		}
		return nil
	})
	if err != nil {
		return model.OrderPage{}, err
	}

	sortOrders(matched, f.SortBy, f.SortDir)

	total := len(matched)
	start := max(min(f.Offset(), total), 0)
	end := start + min(f.PerPage, total-start)
	return model.NewOrderPage(matched[start:end], total, f), nil
}

// Snapshot возвращает копию всех клиентов и заказов.
func (r *MemoryRepository) Snapshot(ctx context.Context) (model.Snapshot, error) {
	snap := model.Snapshot{TakenAt: time.Now().UTC()}
	err := r.view(ctx, func(s *memoryState) error {
		snap.Clients = make([]model.Client, 0, len(s.clients))
		for _, c := range s.clients {
			snap.Clients = append(snap.Clients, c)
		}
		snap.Orders = make([]model.Order, 0, len(s.orders))
		for _, o := range s.orders {
			snap.Orders = append(snap.Orders, listed(s.withClientName(o)))
		}
		return nil
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	sortClients(snap.Clients)
	sortOrders(snap.Orders, model.SortByOrderDate, model.SortAsc)
	return snap, nil
}

// listed убирает позиции: списки заказов возвращаются без них, как и в PostgreSQL.
func listed(o model.Order) model.Order {
	o.Items = nil
	return o
}
