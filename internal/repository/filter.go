package repository

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mmeshcher/clientbook/internal/model"
)

// containsFold повторяет семантику ILIKE '%needle%' в базе с UTF-8 LC_CTYPE.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matchLike(value, needle string) bool {
	return needle == "" || containsFold(value, needle)
}

func matchClient(c model.Client, f model.ClientFilter) bool {
	if f.Query != "" {
		found := false
		for _, v := range []string{c.FirstName, c.LastName, c.Patronymic, c.Email, c.Phone, c.City} {
			if containsFold(v, f.Query) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if !matchLike(c.FirstName, f.FirstName) ||
		!matchLike(c.LastName, f.LastName) ||
		!matchLike(c.Patronymic, f.Patronymic) ||
		!matchLike(c.Email, f.Email) ||
		!matchLike(c.Phone, f.Phone) ||
		!matchLike(c.City, f.City) {
		return false
	}

	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.MinOrders != nil && c.TotalOrders < *f.MinOrders {
		return false
	}
	if f.MaxOrders != nil && c.TotalOrders > *f.MaxOrders {
		return false
	}
	return true
}

func matchOrder(o model.Order, c model.Client, f model.OrderFilter) bool {
	if f.ClientID != nil && o.ClientID != *f.ClientID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.MinAmount != nil && o.TotalAmount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && o.TotalAmount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.DateFrom != nil && o.OrderDate.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && o.OrderDate.After(*f.DateTo) {
		return false
	}
	if !matchLike(o.Number, f.Number) {
		return false
	}
	if f.ClientName != "" && !containsFold(c.FirstName, f.ClientName) && !containsFold(c.LastName, f.ClientName) {
		return false
	}
	return true
}

// Строки сравниваются побайтно, что совпадает с COLLATE "C" в PostgreSQL.
func sortClients(clients []model.Client) {
	slices.SortFunc(clients, func(a, b model.Client) int {
		return cmp.Or(
			strings.Compare(a.LastName, b.LastName),
			strings.Compare(a.FirstName, b.FirstName),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// sortOrders упорядочивает заказы по полю by; при равенстве порядок задаёт идентификатор.
func sortOrders(orders []model.Order, by model.SortField, dir model.SortDirection) {
	slices.SortFunc(orders, func(a, b model.Order) int {
		var c int
		switch by {
		case model.SortByAmount:
			c = a.TotalAmount.Cmp(b.TotalAmount)
		case model.SortByClientName:
			c = strings.Compare(a.ClientName, b.ClientName)
		default:
			c = a.OrderDate.Compare(b.OrderDate)
		}
		c = cmp.Or(c, cmp.Compare(a.ID, b.ID))
		if dir == model.SortDesc {
			return -c
		}
		return c
	})
}
