package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/stats"
)

const (
	dashboardRecentOrders = 10
	dashboardTopClients   = 5
)

// DashboardData собирает данные панели из одного согласованного среза хранилища.
func (s *Service) DashboardData(ctx context.Context) (d model.Dashboard, err error) {
	defer func(start time.Time) { s.observe(ctx, "dashboard", start, err) }(time.Now())

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return model.Dashboard{}, err
	}
	now := s.now()
	return model.Dashboard{
		ClientStats:  stats.Clients(snap),
		OrderStats:   stats.Orders(snap, stats.DefaultPeriodDays, nil, now, stats.TopClientsInPeriod),
		RecentOrders: stats.RecentOrders(snap, dashboardRecentOrders),
		TopClients:   stats.TopClientsByRevenue(snap, dashboardTopClients),
		GeneratedAt:  now,
	}, nil
}

// StartDashboardSync периодически отправляет данные панели во внешнюю систему.
// Без настроенной панели возвращается сразу.
func (s *Service) StartDashboardSync(ctx context.Context, interval time.Duration) {
	if s.dashboard == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.SyncDashboard(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("dashboard sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// SyncDashboard один раз отправляет текущие данные панели.
func (s *Service) SyncDashboard(ctx context.Context) error {
	if s.dashboard == nil {
		return nil
	}
	d, err := s.DashboardData(ctx)
	if err != nil {
		return err
	}
	return s.dashboard.Push(ctx, d)
}
