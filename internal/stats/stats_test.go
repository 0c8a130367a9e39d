package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/clientbook/internal/model"
)

var now = time.Date(2024, time.March, 31, 15, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixture() model.Snapshot {
	return model.Snapshot{
		Clients: []model.Client{
			{ID: 1, FirstName: "Иван", LastName: "Петров", City: "Москва", Status: model.ClientStatusActive, TotalOrders: 2, TotalRevenue: dec("300")},
			{ID: 2, FirstName: "Анна", LastName: "Сидорова", City: "Казань", Status: model.ClientStatusActive, TotalOrders: 1, TotalRevenue: dec("500")},
			{ID: 3, FirstName: "Олег", LastName: "Смирнов", City: "Москва", Status: model.ClientStatusInactive, TotalOrders: 1, TotalRevenue: dec("50")},
			{ID: 4, FirstName: "Пётр", LastName: "Иванов", Status: model.ClientStatusActive, TotalRevenue: decimal.Zero},
		},
		Orders: []model.Order{
			{ID: 1, ClientID: 1, ClientName: "Петров Иван", OrderDate: day(30), Status: model.OrderStatusCompleted, TotalAmount: dec("100")},
			{ID: 2, ClientID: 1, ClientName: "Петров Иван", OrderDate: day(30), Status: model.OrderStatusPending, TotalAmount: dec("200")},
			{ID: 3, ClientID: 2, ClientName: "Сидорова Анна", OrderDate: day(5), Status: model.OrderStatusCompleted, TotalAmount: dec("500")},
			{ID: 4, ClientID: 3, ClientName: "Смирнов Олег", OrderDate: time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), Status: model.OrderStatusCancelled, TotalAmount: dec("50")},
		},
	}
}

func TestClients(t *testing.T) {
	s := Clients(fixture())

	assert.Equal(t, int64(4), s.TotalClients)
	assert.Equal(t, int64(3), s.ActiveClients)
	assert.Equal(t, int64(4), s.TotalOrders)
	assert.Equal(t, "850.00", s.TotalRevenue.StringFixed(2))
	assert.Equal(t, "212.50", s.AverageRevenue.StringFixed(2))
	assert.InDelta(t, 1.0, s.AverageOrders, 1e-9)

	require.Len(t, s.Cities, 2)
	assert.Equal(t, "Москва", s.Cities[0].City)
	assert.Equal(t, int64(2), s.Cities[0].Count)
	assert.Equal(t, "350.00", s.Cities[0].Revenue.StringFixed(2))
}

func TestClientsEmpty(t *testing.T) {
	s := Clients(model.Snapshot{})
	assert.Zero(t, s.TotalClients)
	assert.True(t, s.AverageRevenue.IsZero())
	assert.NotNil(t, s.Cities)
}

func TestOrdersWindow(t *testing.T) {
	s := Orders(fixture(), 30, nil, now, TopClientsInPeriod)

	assert.Equal(t, day(1), s.Period.StartDate)
	assert.Equal(t, day(31), s.Period.EndDate)
	assert.Equal(t, int64(3), s.TotalOrders)
	assert.Equal(t, "800.00", s.TotalRevenue.StringFixed(2))
	assert.Equal(t, "266.67", s.AverageOrderValue.StringFixed(2))

	require.Len(t, s.ByStatus, 2)
	assert.Equal(t, model.OrderStatusPending, s.ByStatus[0].Status)
	assert.Equal(t, model.OrderStatusCompleted, s.ByStatus[1].Status)
	assert.Equal(t, int64(2), s.ByStatus[1].Count)

	require.Len(t, s.Daily, 2)
	assert.Equal(t, day(5), s.Daily[0].Date)
	assert.Equal(t, int64(2), s.Daily[1].Orders)

	require.Len(t, s.TopClients, 2)
	assert.Equal(t, int64(2), s.TopClients[0].ClientID)
	assert.Equal(t, "Петров Иван", s.TopClients[1].Name)
}

func TestOrdersRespectClientRestriction(t *testing.T) {
	id := int64(1)
	s := Orders(fixture(), 30, &id, now, TopClientsInPeriod)

	assert.Equal(t, int64(2), s.TotalOrders)
	assert.Equal(t, "300.00", s.TotalRevenue.StringFixed(2))
	require.Len(t, s.TopClients, 1)
	assert.Equal(t, id, s.TopClients[0].ClientID)
	for _, st := range s.ByStatus {
		assert.NotEqual(t, int64(500), st.Revenue.IntPart())
	}
}

func TestOrdersTopNLimit(t *testing.T) {
	s := Orders(fixture(), 365, nil, now, 1)
	require.Len(t, s.TopClients, 1)
	assert.Equal(t, int64(2), s.TopClients[0].ClientID)
	assert.Equal(t, int64(4), s.TotalOrders)
}

func TestTopClientsAndRecentOrders(t *testing.T) {
	snap := fixture()

	top := TopClientsByRevenue(snap, 2)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].ID)
	assert.Equal(t, int64(1), top[1].ID)

	recent := RecentOrders(snap, 3)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(2), recent[0].ID)
	assert.Equal(t, int64(1), recent[1].ID)
	assert.Equal(t, int64(3), recent[2].ID)

	assert.Empty(t, RecentOrders(model.Snapshot{}, 10))
}

func TestWeekdays(t *testing.T) {
	w := Weekdays(fixture().Orders)
	require.Len(t, w, 7)
	assert.Equal(t, time.Monday, w[0].Weekday)
	assert.Equal(t, time.Sunday, w[6].Weekday)

	var total int64
	for _, d := range w {
		total += d.Orders
	}
	assert.Equal(t, int64(4), total)
	// 30 марта 2024 года была суббота.
	assert.Equal(t, int64(2), w[5].Orders)
}
