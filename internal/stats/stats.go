// Package stats вычисляет статистику по клиентам и заказам на согласованном снимке хранилища.
// Все функции чистые: они не обращаются к хранилищу и не меняют снимок.
package stats

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clientbook/internal/model"
)

const (
	// DefaultPeriodDays задаёт окно статистики заказов по умолчанию.
	DefaultPeriodDays = 30
	// TopClientsInPeriod ограничивает список лучших клиентов в статистике заказов.
	TopClientsInPeriod = 10
)

// Clients считает сводную статистику по клиентам.
func Clients(snap model.Snapshot) model.ClientStats {
	res := model.ClientStats{
		TotalRevenue:   decimal.Zero,
		AverageRevenue: decimal.Zero,
		Cities:         []model.CityStats{},
	}

	cities := map[string]*model.CityStats{}
	for _, c := range snap.Clients {
		res.TotalClients++
		if c.Status == model.ClientStatusActive {
			res.ActiveClients++
		}
		res.TotalOrders += c.TotalOrders
		res.TotalRevenue = res.TotalRevenue.Add(c.TotalRevenue)

		if c.City == "" {
			continue
		}
		cs, ok := cities[c.City]
		if !ok {
			cs = &model.CityStats{City: c.City, Revenue: decimal.Zero}
			cities[c.City] = cs
		}
		cs.Count++
		cs.Revenue = cs.Revenue.Add(c.TotalRevenue)
	}

	if res.TotalClients > 0 {
		res.AverageRevenue = res.TotalRevenue.Div(decimal.NewFromInt(res.TotalClients)).Round(2)
		res.AverageOrders = float64(res.TotalOrders) / float64(res.TotalClients)
	}

	for _, cs := range cities {
		res.Cities = append(res.Cities, *cs)
	}
	slices.SortFunc(res.Cities, func(a, b model.CityStats) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.City, b.City))
	})

	return res
}

// Window возвращает окно [today-periodDays, today] по календарной дате now.
func Window(now time.Time, periodDays int) model.Period {
	end := model.DateOnly(now)
	return model.Period{
		StartDate: end.AddDate(0, 0, -periodDays),
		EndDate:   end,
		Days:      periodDays,
	}
}

// Orders считает статистику заказов за periodDays дней до now включительно.
// Если clientID задан, все показатели считаются только по заказам этого клиента.
func Orders(snap model.Snapshot, periodDays int, clientID *int64, now time.Time, topN int) model.OrderStats {
	period := Window(now, periodDays)
	res := model.OrderStats{
		Period:            period,
		ClientID:          clientID,
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		ByStatus:          []model.StatusStats{},
		Daily:             []model.DailyStats{},
		TopClients:        []model.ClientRevenue{},
	}

	byStatus := map[model.OrderStatus]*model.StatusStats{}
	byDay := map[time.Time]*model.DailyStats{}
	byClient := map[int64]*model.ClientRevenue{}

	for _, o := range snap.Orders {
		if clientID != nil && o.ClientID != *clientID {
			continue
		}
		day := model.DateOnly(o.OrderDate)
		if day.Before(period.StartDate) || day.After(period.EndDate) {
			continue
		}

		res.TotalOrders++
		res.TotalRevenue = res.TotalRevenue.Add(o.TotalAmount)

		ss, ok := byStatus[o.Status]
		if !ok {
			ss = &model.StatusStats{Status: o.Status, Revenue: decimal.Zero}
			byStatus[o.Status] = ss
		}
		ss.Count++
		ss.Revenue = ss.Revenue.Add(o.TotalAmount)

		ds, ok := byDay[day]
		if !ok {
			ds = &model.DailyStats{Date: day, Revenue: decimal.Zero}
			byDay[day] = ds
		}
		ds.Orders++
		ds.Revenue = ds.Revenue.Add(o.TotalAmount)

		cr, ok := byClient[o.ClientID]
		if !ok {
			cr = &model.ClientRevenue{ClientID: o.ClientID, Name: o.ClientName, Revenue: decimal.Zero}
			byClient[o.ClientID] = cr
		}
		cr.Orders++
		cr.Revenue = cr.Revenue.Add(o.TotalAmount)
	}

	if res.TotalOrders > 0 {
		res.AverageOrderValue = res.TotalRevenue.Div(decimal.NewFromInt(res.TotalOrders)).Round(2)
	}

	for _, s := range model.OrderStatuses {
		if ss, ok := byStatus[s]; ok {
			res.ByStatus = append(res.ByStatus, *ss)
		}
	}

	for _, ds := range byDay {
		res.Daily = append(res.Daily, *ds)
	}
	slices.SortFunc(res.Daily, func(a, b model.DailyStats) int {
		return a.Date.Compare(b.Date)
	})

	for _, cr := range byClient {
		res.TopClients = append(res.TopClients, *cr)
	}
	slices.SortFunc(res.TopClients, func(a, b model.ClientRevenue) int {
		return cmp.Or(b.Revenue.Cmp(a.Revenue), cmp.Compare(a.ClientID, b.ClientID))
	})
	if topN > 0 && len(res.TopClients) > topN {
		res.TopClients = res.TopClients[:topN]
	}

	return res
}

// TopClientsByRevenue возвращает n клиентов с наибольшей накопленной выручкой.
func TopClientsByRevenue(snap model.Snapshot, n int) []model.Client {
	clients := slices.Clone(snap.Clients)
	slices.SortFunc(clients, func(a, b model.Client) int {
		return cmp.Or(b.TotalRevenue.Cmp(a.TotalRevenue), cmp.Compare(a.ID, b.ID))
	})
	if len(clients) > n {
		clients = clients[:n]
	}
	if clients == nil {
		clients = []model.Client{}
	}
	return clients
}

// RecentOrders возвращает n последних заказов по дате заказа.
func RecentOrders(snap model.Snapshot, n int) []model.Order {
	orders := slices.Clone(snap.Orders)
	slices.SortFunc(orders, func(a, b model.Order) int {
		return cmp.Or(b.OrderDate.Compare(a.OrderDate), cmp.Compare(b.ID, a.ID))
	})
	if len(orders) > n {
		orders = orders[:n]
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders
}

// WeekdayStats содержит число заказов и выручку по дню недели.
type WeekdayStats struct {
	Weekday time.Weekday
	Orders  int64
	Revenue decimal.Decimal
}

// Weekdays распределяет заказы по дням недели, начиная с понедельника.
func Weekdays(orders []model.Order) []WeekdayStats {
	res := make([]WeekdayStats, 7)
	for i := range res {
		res[i] = WeekdayStats{Weekday: time.Weekday((i + 1) % 7), Revenue: decimal.Zero}
	}
	for _, o := range orders {
		i := (int(o.OrderDate.Weekday()) + 6) % 7
		res[i].Orders++
		res[i].Revenue = res[i].Revenue.Add(o.TotalAmount)
	}
	return res
}
