package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/archive"
	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/workbook"
)

// Export содержит сформированную книгу и адрес её копии в архиве, если архив настроен.
type Export struct {
	Data     []byte
	Filename string
	Location string
}

// Import загружает клиентов или заказы из книги xlsx.
// Каждая строка проходит через обычные операции сервиса, ошибки строк попадают в отчёт.
func (s *Service) Import(ctx context.Context, kind workbook.Kind, r io.Reader) (rep workbook.Report, err error) {
	defer func(start time.Time) { s.observe(ctx, "import_"+string(kind), start, err) }(time.Now())

	switch kind {
	case workbook.KindClients:
		rep, err = workbook.ImportClients(ctx, r, s)
	case workbook.KindOrders:
		rep, err = workbook.ImportOrders(ctx, r, s)
	default:
		return workbook.Report{}, workbook.ErrUnknownKind
	}
	if err != nil {
		return workbook.Report{}, err
	}

	s.logger.Info("import finished",
		zap.String("batch_id", rep.BatchID),
		zap.String("kind", string(kind)),
		zap.Int("total", rep.TotalRows),
		zap.Int("imported", rep.Imported),
		zap.Int("updated", rep.Updated),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

// ExportClients выгружает клиентов по фильтру вместе с датой последнего заказа.
func (s *Service) ExportClients(ctx context.Context, f model.ClientFilter) (e Export, err error) {
	defer func(start time.Time) { s.observe(ctx, "export_clients", start, err) }(time.Now())

	clients, err := s.SearchClients(ctx, f)
	if err != nil {
		return Export{}, err
	}
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return Export{}, err
	}

	lastOrders := make(map[int64]time.Time)
	for _, o := range snap.Orders {
		if last, ok := lastOrders[o.ClientID]; !ok || o.OrderDate.After(last) {
			lastOrders[o.ClientID] = o.OrderDate
		}
	}

	data, err := workbook.ExportClients(clients, lastOrders)
	if err != nil {
		return Export{}, err
	}
	return s.finishExport(ctx, workbook.KindClients, data)
}

// ExportOrders выгружает все страницы заказов по фильтру.
func (s *Service) ExportOrders(ctx context.Context, f model.OrderFilter) (e Export, err error) {
	defer func(start time.Time) { s.observe(ctx, "export_orders", start, err) }(time.Now())

	f.Page = 1
	f.PerPage = model.MaxPerPage

	var orders []model.Order
	for {
		page, err := s.SearchOrders(ctx, f)
		if err != nil {
			return Export{}, err
		}
		orders = append(orders, page.Orders...)
		if len(page.Orders) == 0 || len(orders) >= page.TotalCount {
			break
		}
		f.Page++
	}

	data, err := workbook.ExportOrders(orders)
	if err != nil {
		return Export{}, err
	}
	return s.finishExport(ctx, workbook.KindOrders, data)
}

// Template возвращает пример книги для импорта.
func (s *Service) Template(kind workbook.Kind) ([]byte, error) {
	return workbook.Template(kind, s.now())
}

func (s *Service) finishExport(ctx context.Context, kind workbook.Kind, data []byte) (Export, error) {
	now := s.now()
	e := Export{
		Data:     data,
		Filename: fmt.Sprintf("%s_export_%s.xlsx", kind, now.UTC().Format("20060102_150405")),
	}
	if s.archiver == nil {
		return e, nil
	}

	location, err := s.archiver.Store(ctx, archive.Key(string(kind), now), data)
	if err != nil {
		// Выгрузка уже сформирована, сбой архива её не отменяет.
		s.logger.Warn("export archive failed", zap.String("kind", string(kind)), zap.Error(err))
		return e, nil
	}
	e.Location = location
	s.logger.Info("export archived", zap.String("kind", string(kind)), zap.String("location", location))
	return e, nil
}
