package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ClientInput содержит данные для создания клиента. Пустые необязательные поля считаются отсутствующими.
type ClientInput struct {
	FirstName  string       `json:"first_name"`
	LastName   string       `json:"last_name"`
	Patronymic string       `json:"patronymic,omitempty"`
	Email      string       `json:"email,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	City       string       `json:"city,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	Status     ClientStatus `json:"status,omitempty"`
}

// ClientPatch содержит частичное обновление клиента: nil означает «поле не передано».
// Пустая строка в необязательном поле очищает его.
type ClientPatch struct {
	FirstName  *string       `json:"first_name,omitempty"`
	LastName   *string       `json:"last_name,omitempty"`
	Patronymic *string       `json:"patronymic,omitempty"`
	Email      *string       `json:"email,omitempty"`
	Phone      *string       `json:"phone,omitempty"`
	City       *string       `json:"city,omitempty"`
	Notes      *string       `json:"notes,omitempty"`
	Status     *ClientStatus `json:"status,omitempty"`
}

// IsEmpty сообщает, что в обновлении нет ни одного поля.
func (p ClientPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Patronymic == nil && p.Email == nil &&
		p.Phone == nil && p.City == nil && p.Notes == nil && p.Status == nil
}

// Apply присваивает переданные поля клиенту.
func (p ClientPatch) Apply(c *Client) {
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Patronymic != nil {
		c.Patronymic = *p.Patronymic
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.City != nil {
		c.City = *p.City
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
}

// OrderInput содержит данные для создания заказа.
// Если сумма не передана, она вычисляется по позициям.
type OrderInput struct {
	ClientID    int64            `json:"client_id"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
	OrderDate   string           `json:"order_date,omitempty"`
	Status      OrderStatus      `json:"status,omitempty"`
	Description string           `json:"description,omitempty"`
	Items       []OrderItem      `json:"items,omitempty"`
}

// ClientFilter описывает критерии поиска клиентов. Пустые критерии не ограничивают выборку.
type ClientFilter struct {
	Query      string
	FirstName  string
	LastName   string
	Patronymic string
	Email      string
	Phone      string
	City       string
	Status     ClientStatus
	MinOrders  *int64
	MaxOrders  *int64
}

// SortField задаёт поле сортировки заказов.
type SortField string

const (
	SortByOrderDate  SortField = "order_date"
	SortByAmount     SortField = "total_amount"
	SortByClientName SortField = "client_name"
)

// SortDirection задаёт направление сортировки.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// OrderFilter описывает критерии поиска, сортировку и пагинацию заказов.
type OrderFilter struct {
	ClientID   *int64
	Status     OrderStatus
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	DateFrom   *time.Time
	DateTo     *time.Time
	Number     string
	ClientName string
	SortBy     SortField
	SortDir    SortDirection
	Page       int
	PerPage    int
}

// WithDefaults подставляет значения сортировки и пагинации по умолчанию.
func (f OrderFilter) WithDefaults() OrderFilter {
	if f.SortBy == "" {
		f.SortBy = SortByOrderDate
	}
	if f.SortDir == "" {
		f.SortDir = SortDesc
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	return f
}

// Offset возвращает смещение первой записи страницы.
// При переполнении смещение ограничивается math.MaxInt.
func (f OrderFilter) Offset() int {
	if f.Page <= 1 || f.PerPage <= 0 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.PerPage {
		return math.MaxInt
	}
	return (f.Page - 1) * f.PerPage
}

// OrderPage содержит страницу результатов поиска заказов.
type OrderPage struct {
	Orders     []Order `json:"orders"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalPages int     `json:"total_pages"`
}

// NewOrderPage собирает страницу и вычисляет число страниц.
func NewOrderPage(orders []Order, total int, f OrderFilter) OrderPage {
	if orders == nil {
		orders = []Order{}
	}
	return OrderPage{
		Orders:     orders,
		TotalCount: total,
		Page:       f.Page,
		PerPage:    f.PerPage,
		TotalPages: (total + f.PerPage - 1) / f.PerPage,
	}
}
