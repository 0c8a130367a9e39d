// Package model содержит доменные сущности сервиса учёта клиентов и заказов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientStatus описывает статус клиента.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"
	ClientStatusInactive ClientStatus = "inactive"
)

// Valid сообщает, входит ли статус в допустимый набор.
func (s ClientStatus) Valid() bool {
	switch s {
	case ClientStatusActive, ClientStatusInactive:
		return true
	}
	return false
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses перечисляет статусы заказа в порядке отображения.
var OrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled}

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPending:   "in progress",
	OrderStatusCompleted: "completed",
	OrderStatusCancelled: "cancelled",
}

// Valid сообщает, входит ли статус в допустимый набор.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusLabels[s]
	return ok
}

// Label возвращает отображаемое название статуса для отчётов.
func (s OrderStatus) Label() string {
	if l, ok := orderStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Client описывает клиента и денормализованные агрегаты по его заказам.
type Client struct {
	ID               int64           `json:"id"`
	FirstName        string          `json:"first_name"`
	LastName         string          `json:"last_name"`
	Patronymic       string          `json:"patronymic,omitempty"`
	Email            string          `json:"email,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	City             string          `json:"city,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Status           ClientStatus    `json:"status"`
	TotalOrders      int64           `json:"total_orders"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	RegistrationDate time.Time       `json:"registration_date"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DisplayName возвращает имя клиента в формате «Фамилия Имя».
func (c Client) DisplayName() string {
	return c.LastName + " " + c.FirstName
}

// OrderItem описывает позицию заказа.
type OrderItem struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Total возвращает стоимость позиции.
func (i OrderItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order описывает заказ клиента.
type Order struct {
	ID          int64           `json:"id"`
	ClientID    int64           `json:"client_id"`
	ClientName  string          `json:"client_name,omitempty"`
	Number      string          `json:"order_number"`
	OrderDate   time.Time       `json:"order_date"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Description string          `json:"description,omitempty"`
	Items       []OrderItem     `json:"items,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Snapshot содержит согласованный срез состояния хранилища на момент чтения.
type Snapshot struct {
	Clients []Client
	Orders  []Order
	TakenAt time.Time
}

// DateOnly отбрасывает время суток, оставляя календарную дату в UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
