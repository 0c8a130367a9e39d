package workbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/repository"
	"github.com/mmeshcher/clientbook/internal/validation"
)

// ClientWriter описывает операции над клиентами, которые нужны импорту.
type ClientWriter interface {
	FindClientByEmail(ctx context.Context, email string) (model.Client, error)
	AddClient(ctx context.Context, in model.ClientInput) (model.Client, error)
	UpdateClient(ctx context.Context, id int64, p model.ClientPatch) (model.Client, error)
}

// OrderWriter описывает операции над заказами, которые нужны импорту.
type OrderWriter interface {
	CreateOrder(ctx context.Context, in model.OrderInput) (model.Order, error)
}

// RowError описывает ошибку в строке книги. Row считается от строки заголовков, у которой номер 1.
type RowError struct {
	Row     int                    `json:"row"`
	Error   string                 `json:"error"`
	Details []validation.Violation `json:"details,omitempty"`
}

// Report содержит итоги импорта.
type Report struct {
	BatchID   string     `json:"batch_id"`
	Kind      Kind       `json:"kind"`
	TotalRows int        `json:"total_rows"`
	Imported  int        `json:"imported"`
	Updated   int        `json:"updated"`
	Skipped   int        `json:"skipped"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors"`
}

func (r *Report) fail(row int, err error) {
	re := RowError{Row: row, Error: err.Error()}
	if ve, ok := validation.AsError(err); ok {
		re.Error = "validation failed"
		re.Details = ve.Violations
	}
	r.Errors = append(r.Errors, re)
	r.Failed++
}

// sheetRows читает первый лист книги: заголовки приводятся к нижнему регистру.
type sheetRows struct {
	f      *excelize.File
	header map[string]int
	rows   [][]string
}

func readSheet(r io.Reader) (*sheetRows, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	rows, err := f.GetRows(f.GetSheetName(0), excelize.Options{RawCellValue: true})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		_ = f.Close()
		return nil, ErrEmptyWorkbook
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			header[h] = i
		}
	}
	return &sheetRows{f: f, header: header, rows: rows[1:]}, nil
}

func (s *sheetRows) Close() error {
	return s.f.Close()
}

// cell возвращает обрезанное значение колонки name в строке row.
func (s *sheetRows) cell(row []string, name string) string {
	i, ok := s.header[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// date разбирает дату из текста или из серийного номера Excel.
func (s *sheetRows) date(v string) (time.Time, error) {
	if t, err := validation.ParseDate(v); err == nil {
		return t, nil
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, validation.ErrInvalidDate
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, validation.ErrInvalidDate
	}
	return model.DateOnly(t), nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// ImportClients добавляет клиентов из книги. Клиент с уже известным email обновляется.
// Ошибка в строке не прерывает импорт.
func ImportClients(ctx context.Context, r io.Reader, w ClientWriter) (Report, error) {
	sheet, err := readSheet(r)
	if err != nil {
		return Report{}, err
	}
	defer sheet.Close()

	rep := Report{BatchID: uuid.NewString(), Kind: KindClients, Errors: []RowError{}}
	for i, row := range sheet.rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rowNum := i + 2
		rep.TotalRows++
		if blank(row) {
			rep.Skipped++
			continue
		}

		in := model.ClientInput{
			FirstName:  sheet.cell(row, "first_name"),
			LastName:   sheet.cell(row, "last_name"),
			Patronymic: sheet.cell(row, "patronymic"),
			Email:      sheet.cell(row, "email"),
			Phone:      sheet.cell(row, "phone"),
			City:       sheet.cell(row, "city"),
			Notes:      sheet.cell(row, "notes"),
		}
		if vs := validation.ClientInput(in); len(vs) > 0 {
			rep.fail(rowNum, validation.NewError(vs))
			continue
		}

		if in.Email != "" {
			existing, err := w.FindClientByEmail(ctx, in.Email)
			switch {
			case err == nil:
				// Пустые необязательные ячейки не затирают сохранённые значения.
				patch := model.ClientPatch{
					FirstName:  &in.FirstName,
					LastName:   &in.LastName,
					Patronymic: optional(in.Patronymic),
					Phone:      optional(in.Phone),
					City:       optional(in.City),
					Notes:      optional(in.Notes),
				}
				if _, err := w.UpdateClient(ctx, existing.ID, patch); err != nil {
					rep.fail(rowNum, fmt.Errorf("update client %s: %w", in.Email, err))
					continue
				}
				rep.Updated++
				continue
			case !errors.Is(err, repository.ErrClientNotFound):
				rep.fail(rowNum, err)
				continue
			}
		}

		if _, err := w.AddClient(ctx, in); err != nil {
			rep.fail(rowNum, err)
			continue
		}
		rep.Imported++
	}
	return rep, nil
}

// ImportOrders создаёт заказы из книги. Ошибка в строке не прерывает импорт.
func ImportOrders(ctx context.Context, r io.Reader, w OrderWriter) (Report, error) {
	sheet, err := readSheet(r)
	if err != nil {
		return Report{}, err
	}
	defer sheet.Close()

	rep := Report{BatchID: uuid.NewString(), Kind: KindOrders, Errors: []RowError{}}
	for i, row := range sheet.rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rowNum := i + 2
		rep.TotalRows++
		if blank(row) {
			rep.Skipped++
			continue
		}

		in, err := sheet.orderInput(row)
		if err != nil {
			rep.fail(rowNum, err)
			continue
		}
		if _, err := w.CreateOrder(ctx, in); err != nil {
			rep.fail(rowNum, err)
			continue
		}
		rep.Imported++
	}
	return rep, nil
}

func (s *sheetRows) orderInput(row []string) (model.OrderInput, error) {
	var (
		in model.OrderInput
		vs []validation.Violation
	)

	switch v := s.cell(row, "client_id"); {
	case v == "":
		vs = append(vs, validation.Violation{Field: "client_id", Code: validation.CodeRequired, Message: "must reference a client"})
	default:
		id, err := parseID(v)
		if err != nil {
			vs = append(vs, validation.Violation{Field: "client_id", Code: validation.CodeInvalidFormat, Message: "must be an integer"})
		}
		in.ClientID = id
	}

	switch v := s.cell(row, "total_amount"); {
	case v == "":
		vs = append(vs, validation.Violation{Field: "total_amount", Code: validation.CodeRequired, Message: "must not be empty"})
	default:
		amount, err := validation.ParseAmount(v)
		if err != nil {
			vs = append(vs, validation.Violation{Field: "total_amount", Code: validation.CodeInvalidFormat, Message: "must be a number"})
		}
		in.TotalAmount = &amount
	}

	if v := s.cell(row, "status"); v != "" {
		in.Status = parseStatus(v)
	}

	if v := s.cell(row, "order_date"); v != "" {
		d, err := s.date(v)
		if err != nil {
			vs = append(vs, validation.Violation{Field: "order_date", Code: validation.CodeInvalidFormat, Message: err.Error()})
		} else {
			in.OrderDate = d.Format(dateLayout)
		}
	}

	in.Description = s.cell(row, "description")

	if err := validation.NewError(vs); err != nil {
		return model.OrderInput{}, err
	}
	return in, nil
}

// parseID принимает целые числа, в том числе записанные Excel как 12.0.
func parseID(v string) (int64, error) {
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid id %q", v)
	}
	return int64(f), nil
}

// parseStatus принимает как код статуса, так и его отображаемое название из выгрузки.
func parseStatus(v string) model.OrderStatus {
	v = strings.ToLower(v)
	for _, s := range model.OrderStatuses {
		if v == string(s) || v == s.Label() {
			return s
		}
	}
	return model.OrderStatus(v)
}
