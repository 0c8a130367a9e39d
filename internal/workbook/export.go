package workbook

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/stats"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	statsTopRows   = 10
)

var (
	clientColumns = []string{
		"id", "last_name", "first_name", "patronymic", "email", "phone", "city", "status",
		"total_orders", "total_revenue", "registration_date", "last_order_date", "notes",
	}
	orderColumns = []string{
		"id", "order_number", "client_id", "client_name", "order_date", "status",
		"total_amount", "description", "created_at", "updated_at",
	}
	statsColumns   = []string{"metric", "value"}
	weekdayColumns = []string{"weekday", "orders", "revenue"}
)

// ExportClients формирует книгу с листами Clients и Statistics.
// lastOrders содержит дату последнего заказа по идентификатору клиента.
func ExportClients(clients []model.Client, lastOrders map[int64]time.Time) ([]byte, error) {
	if len(clients) == 0 {
		return nil, ErrNoData
	}

	rows := make([][]any, 0, len(clients))
	for _, c := range clients {
		last := ""
		if t, ok := lastOrders[c.ID]; ok {
			last = t.Format(dateLayout)
		}
		rows = append(rows, []any{
			c.ID, c.LastName, c.FirstName, c.Patronymic, c.Email, c.Phone, c.City, string(c.Status),
			c.TotalOrders, money(c.TotalRevenue), c.RegistrationDate.Format(dateLayout), last, c.Notes,
		})
	}

	st := stats.Clients(model.Snapshot{Clients: clients})
	statRows := [][]any{
		{"Total clients", st.TotalClients},
		{"Active clients", st.ActiveClients},
		{"Total revenue", money(st.TotalRevenue)},
		{"Total orders", st.TotalOrders},
		{"Average revenue per client", money(st.AverageRevenue)},
		{"Average orders per client", st.AverageOrders},
	}
	for i, city := range st.Cities {
		if i == statsTopRows {
			break
		}
		statRows = append(statRows, []any{fmt.Sprintf("Clients in %s", city.City), city.Count})
	}

	b, err := newBuilder()
	if err != nil {
		return nil, err
	}
	defer b.close()
	if err := b.sheet("Clients", clientColumns, rows); err != nil {
		return nil, err
	}
	if err := b.sheet("Statistics", statsColumns, statRows); err != nil {
		return nil, err
	}
	return b.bytes()
}

// ExportOrders формирует книгу с листами Orders, Order statistics и Weekdays.
func ExportOrders(orders []model.Order) ([]byte, error) {
	if len(orders) == 0 {
		return nil, ErrNoData
	}

	rows := make([][]any, 0, len(orders))
	total := decimal.Zero
	byStatus := map[model.OrderStatus]int{}
	byDate := map[time.Time]int{}
	for _, o := range orders {
		rows = append(rows, []any{
			o.ID, o.Number, o.ClientID, o.ClientName, o.OrderDate.Format(dateLayout), o.Status.Label(),
			money(o.TotalAmount), o.Description, o.CreatedAt.UTC().Format(dateTimeLayout), o.UpdatedAt.UTC().Format(dateTimeLayout),
		})
		total = total.Add(o.TotalAmount)
		byStatus[o.Status]++
		byDate[model.DateOnly(o.OrderDate)]++
	}

	average := total.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	statRows := [][]any{
		{"Total orders", len(orders)},
		{"Total revenue", money(total)},
		{"Average order value", money(average)},
	}
	for _, s := range model.OrderStatuses {
		if n, ok := byStatus[s]; ok {
			statRows = append(statRows, []any{fmt.Sprintf("Orders with status %q", s.Label()), n})
		}
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return cmp.Compare(b.Unix(), a.Unix()) })
	for i, d := range dates {
		if i == statsTopRows {
			break
		}
		statRows = append(statRows, []any{"Orders on " + d.Format(dateLayout), byDate[d]})
	}

	var weekdayRows [][]any
	for _, w := range stats.Weekdays(orders) {
		weekdayRows = append(weekdayRows, []any{w.Weekday.String(), w.Orders, money(w.Revenue)})
	}

	b, err := newBuilder()
	if err != nil {
		return nil, err
	}
	defer b.close()
	if err := b.sheet("Orders", orderColumns, rows); err != nil {
		return nil, err
	}
	if err := b.sheet("Order statistics", statsColumns, statRows); err != nil {
		return nil, err
	}
	if err := b.sheet("Weekdays", weekdayColumns, weekdayRows); err != nil {
		return nil, err
	}
	return b.bytes()
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
