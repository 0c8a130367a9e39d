package handler

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/validation"
)

func clientFilter(q url.Values) (model.ClientFilter, error) {
	f := model.ClientFilter{
		Query:      q.Get("q"),
		FirstName:  q.Get("first_name"),
		LastName:   q.Get("last_name"),
		Patronymic: q.Get("patronymic"),
		Email:      q.Get("email"),
		Phone:      q.Get("phone"),
		City:       q.Get("city"),
		Status:     model.ClientStatus(q.Get("status")),
	}

	var err error
	if f.MinOrders, err = optionalInt(q, "min_orders"); err != nil {
		return model.ClientFilter{}, err
	}
	if f.MaxOrders, err = optionalInt(q, "max_orders"); err != nil {
		return model.ClientFilter{}, err
	}
	return f, nil
}

func orderFilter(q url.Values) (model.OrderFilter, error) {
	f := model.OrderFilter{
		Status:     model.OrderStatus(q.Get("status")),
		Number:     q.Get("order_number"),
		ClientName: q.Get("client_name"),
		SortBy:     model.SortField(q.Get("sort_by")),
		SortDir:    model.SortDirection(q.Get("sort_order")),
	}

	var err error
	if f.ClientID, err = optionalInt(q, "client_id"); err != nil {
		return model.OrderFilter{}, err
	}
	if f.MinAmount, err = optionalAmount(q, "min_amount"); err != nil {
		return model.OrderFilter{}, err
	}
	if f.MaxAmount, err = optionalAmount(q, "max_amount"); err != nil {
		return model.OrderFilter{}, err
	}
	if f.DateFrom, err = optionalDate(q, "start_date"); err != nil {
		return model.OrderFilter{}, err
	}
	if f.DateTo, err = optionalDate(q, "end_date"); err != nil {
		return model.OrderFilter{}, err
	}
	if f.Page, err = intParam(q, "page"); err != nil {
		return model.OrderFilter{}, err
	}
	if f.PerPage, err = intParam(q, "per_page"); err != nil {
		return model.OrderFilter{}, err
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func optionalInt(q url.Values, name string) (*int64, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, v)
	}
	return &n, nil
}

func optionalAmount(q url.Values, name string) (*decimal.Decimal, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	d, err := validation.ParseAmount(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, v)
	}
	return &d, nil
}

func optionalDate(q url.Values, name string) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := validation.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}
