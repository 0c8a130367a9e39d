package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clientbook/internal/model"
)

// DateLayouts перечисляет допустимые форматы календарной даты.
var DateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006"}

// ErrInvalidDate возвращается, если строку не удалось разобрать ни в одном формате.
var ErrInvalidDate = errors.New("invalid date format, use YYYY-MM-DD, DD.MM.YYYY or DD/MM/YYYY")

// ParseDate разбирает календарную дату в одном из форматов DateLayouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// ParseAmount разбирает денежную сумму, допуская запятую в качестве десятичного разделителя.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Суммы и цены ограничены точностью столбцов NUMERIC(14, 2).
const (
	amountTag      = "gte=0,lte=999999999999.99"
	orderStatusTag = "oneof=pending completed cancelled"
	sortByTag      = "oneof=order_date total_amount client_name"
	sortDirTag     = "oneof=asc desc"
	perPageTag     = "gte=0,lte=500"
)

// orderRules собирает поля заказа в порядке, в котором о нарушениях сообщается клиенту.
type orderRules struct {
	ClientID    int64             `json:"client_id" validate:"required,gt=0"`
	Items       []itemRules       `json:"items" validate:"dive"`
	TotalAmount *decimal.Decimal  `json:"total_amount" validate:"required,gt=0,lte=999999999999.99"`
	Status      model.OrderStatus `json:"status" validate:"omitempty,oneof=pending completed cancelled"`
	OrderDate   string            `json:"order_date" validate:"omitempty,calendar_date"`
}

type itemRules struct {
	ProductName string          `json:"product_name" validate:"required,max=200"`
	Quantity    int             `json:"quantity" validate:"gt=0,lte=2147483647"`
	Price       decimal.Decimal `json:"price" validate:"gte=0,lte=999999999999.99"`
}

// CheckAmount проверяет неотрицательную сумму в пределах точности хранилища.
func CheckAmount(field string, amount decimal.Decimal) []Violation {
	return checkVar(field, amount, amountTag)
}

// CheckOrderStatus проверяет статус заказа.
func CheckOrderStatus(field string, s model.OrderStatus) []Violation {
	return checkVar(field, s, orderStatusTag)
}

// OrderInput проверяет данные для создания заказа.
// Если сумма не передана, проверяется сумма позиций.
func OrderInput(in model.OrderInput) []Violation {
	rules := orderRules{
		ClientID:    in.ClientID,
		TotalAmount: in.TotalAmount,
		Status:      in.Status,
		OrderDate:   strings.TrimSpace(in.OrderDate),
	}
	total := decimal.Zero
	for _, item := range in.Items {
		rules.Items = append(rules.Items, itemRules{
			ProductName: strings.TrimSpace(item.ProductName),
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
		total = total.Add(item.Total())
	}
	if rules.TotalAmount == nil && len(in.Items) > 0 {
		rules.TotalAmount = &total
	}
	return checkStruct(rules)
}

// OrderFilter проверяет критерии поиска заказов.
func OrderFilter(f model.OrderFilter) []Violation {
	var vs []Violation
	if f.Status != "" {
		vs = append(vs, CheckOrderStatus("status", f.Status)...)
	}
	if f.MinAmount != nil {
		vs = append(vs, CheckAmount("min_amount", *f.MinAmount)...)
	}
	if f.MaxAmount != nil {
		vs = append(vs, CheckAmount("max_amount", *f.MaxAmount)...)
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		vs = append(vs, violation("min_amount", CodeOutOfRange, "must not exceed max_amount"))
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		vs = append(vs, violation("start_date", CodeOutOfRange, "must not be after end_date"))
	}
	if f.SortBy != "" {
		vs = append(vs, checkVar("sort_by", f.SortBy, sortByTag)...)
	}
	if f.SortDir != "" {
		vs = append(vs, checkVar("sort_order", f.SortDir, sortDirTag)...)
	}
	perPage := checkVar("per_page", f.PerPage, perPageTag)
	vs = append(vs, perPage...)
	if len(perPage) == 0 {
		vs = append(vs, checkVar("page", f.Page, fmt.Sprintf("gte=0,lte=%d", maxPage(f.PerPage)))...)
	}
	return vs
}

// maxPage возвращает наибольший номер страницы, смещение которой помещается в int.
func maxPage(perPage int) int {
	if perPage <= 0 {
		perPage = model.DefaultPerPage
	}
	return math.MaxInt / perPage
}
