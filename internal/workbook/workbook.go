// Package workbook читает и формирует книги xlsx для импорта и экспорта клиентов и заказов.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Kind задаёт тип данных книги.
type Kind string

const (
	KindClients Kind = "clients"
	KindOrders  Kind = "orders"
)

var (
	// ErrUnknownKind возвращается для неизвестного типа данных.
	ErrUnknownKind = errors.New("unknown data kind, use clients or orders")
	// ErrNoData возвращается при попытке выгрузить пустой набор.
	ErrNoData = errors.New("no data to export")
	// ErrEmptyWorkbook возвращается, если в книге нет строки заголовков.
	ErrEmptyWorkbook = errors.New("workbook has no header row")
)

// ParseKind разбирает тип данных из строки.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindClients, KindOrders:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ContentType задаёт MIME-тип книги xlsx.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const maxColumnWidth = 50

// builder заполняет листы книги и подбирает ширину колонок.
type builder struct {
	f      *excelize.File
	bold   int
	sheets int
}

func newBuilder() (*builder, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	return &builder{f: f, bold: bold}, nil
}

// sheet добавляет лист с заголовком и строками данных.
func (b *builder) sheet(name string, header []string, rows [][]any) error {
	if b.sheets == 0 {
		if err := b.f.SetSheetName(b.f.GetSheetName(0), name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	b.sheets++

	widths := make([]int, len(header))
	track := func(i int, v any) {
		if i >= len(widths) {
			return
		}
		if n := utf8.RuneCountInString(fmt.Sprint(v)); n > widths[i] {
			widths[i] = n
		}
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
		track(i, h)
	}
	if err := b.f.SetSheetRow(name, "A1", &headerRow); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := b.f.SetRowStyle(name, 1, 1, b.bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		for i, v := range row {
			track(i, v)
		}
		if err := b.f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := b.f.SetColWidth(name, col, col, float64(min(w+2, maxColumnWidth))); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return nil
}

func (b *builder) close() {
	_ = b.f.Close()
}

func (b *builder) bytes() ([]byte, error) {
	b.f.SetActiveSheet(0)
	var buf bytes.Buffer
	if _, err := b.f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
