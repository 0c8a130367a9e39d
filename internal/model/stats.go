package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CityStats содержит число клиентов и выручку по городу.
type CityStats struct {
	City    string          `json:"city"`
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ClientStats содержит сводную статистику по клиентам.
type ClientStats struct {
	TotalClients   int64           `json:"total_clients"`
	ActiveClients  int64           `json:"active_clients"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalOrders    int64           `json:"total_orders"`
	AverageRevenue decimal.Decimal `json:"average_revenue"`
	AverageOrders  float64         `json:"average_orders"`
	Cities         []CityStats     `json:"city_stats"`
}

// Period описывает окно статистики.
type Period struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      int       `json:"days"`
}

// StatusStats содержит число заказов и выручку по статусу.
type StatusStats struct {
	Status  OrderStatus     `json:"status"`
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// DailyStats содержит число заказов и выручку за день.
type DailyStats struct {
	Date    time.Time       `json:"date"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ClientRevenue описывает вклад клиента в выручку за период.
type ClientRevenue struct {
	ClientID int64           `json:"client_id"`
	Name     string          `json:"name"`
	Orders   int64           `json:"orders"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// OrderStats содержит статистику заказов за период.
type OrderStats struct {
	Period            Period          `json:"period"`
	ClientID          *int64          `json:"client_id,omitempty"`
	TotalOrders       int64           `json:"total_orders"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	ByStatus          []StatusStats   `json:"status_stats"`
	Daily             []DailyStats    `json:"daily_stats"`
	TopClients        []ClientRevenue `json:"top_clients"`
}

// Dashboard содержит данные для внешней аналитической панели.
type Dashboard struct {
	ClientStats  ClientStats `json:"client_stats"`
	OrderStats   OrderStats  `json:"order_stats"`
	RecentOrders []Order     `json:"recent_orders"`
	TopClients   []Client    `json:"top_clients"`
	GeneratedAt  time.Time   `json:"generated_at"`
}
