package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/clientbook/internal/model"
	"github.com/mmeshcher/clientbook/internal/repository"
	"github.com/mmeshcher/clientbook/internal/stats"
	"github.com/mmeshcher/clientbook/internal/validation"
)

// AddClient проверяет и сохраняет нового клиента.
func (s *Service) AddClient(ctx context.Context, in model.ClientInput) (c model.Client, err error) {
	defer func(start time.Time) { s.observe(ctx, "add_client", start, err) }(time.Now())

	if err := validation.NewError(validation.ClientInput(in)); err != nil {
		return model.Client{}, err
	}

	in = normalizeClientInput(in)
	if err := s.ensureEmailFree(ctx, in.Email, 0); err != nil {
		return model.Client{}, err
	}

	now := s.now()
	status := in.Status
	if status == "" {
		status = model.ClientStatusActive
	}

	return s.repo.CreateClient(ctx, model.Client{
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Patronymic:       in.Patronymic,
		Email:            in.Email,
		Phone:            in.Phone,
		City:             in.City,
		Notes:            in.Notes,
		Status:           status,
		TotalRevenue:     decimal.Zero,
		RegistrationDate: model.DateOnly(now),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

// GetClient возвращает клиента по идентификатору.
func (s *Service) GetClient(ctx context.Context, id int64) (model.Client, error) {
	return s.repo.GetClient(ctx, id)
}

// FindClientByEmail ищет клиента по email без учёта регистра.
func (s *Service) FindClientByEmail(ctx context.Context, email string) (model.Client, error) {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return model.Client{}, repository.ErrClientNotFound
	}
	return s.repo.FindClientByEmail(ctx, email)
}

// SearchClients возвращает клиентов по фильтру. Пустой фильтр возвращает всех.
func (s *Service) SearchClients(ctx context.Context, f model.ClientFilter) (res []model.Client, err error) {
	defer func(start time.Time) { s.observe(ctx, "search_clients", start, err) }(time.Now())

	if err := validation.NewError(validation.ClientFilter(f)); err != nil {
		return nil, err
	}

	f.Query = strings.TrimSpace(f.Query)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Patronymic = strings.TrimSpace(f.Patronymic)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	f.City = strings.TrimSpace(f.City)

	res, err = s.repo.SearchClients(ctx, f)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []model.Client{}
	}
	return res, nil
}

// UpdateClient применяет частичное обновление. Счётчики заказов так изменить нельзя.
func (s *Service) UpdateClient(ctx context.Context, id int64, p model.ClientPatch) (c model.Client, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_client", start, err) }(time.Now())

	if err := validation.NewError(validation.ClientPatch(p)); err != nil {
		return model.Client{}, err
	}
	if p.IsEmpty() {
		return s.repo.GetClient(ctx, id)
	}

	p = normalizeClientPatch(p)
	if p.Email != nil {
		if err := s.ensureEmailFree(ctx, *p.Email, id); err != nil {
			return model.Client{}, err
		}
	}

	return s.repo.UpdateClient(ctx, id, p, s.now())
}

// DeleteClient удаляет клиента, у которого нет заказов.
func (s *Service) DeleteClient(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { s.observe(ctx, "delete_client", start, err) }(time.Now())

	if err := s.repo.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.logger.Info("client deleted", zap.Int64("client_id", id))
	return nil
}

// ClientStatistics возвращает сводную статистику по клиентам.
func (s *Service) ClientStatistics(ctx context.Context) (model.ClientStats, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return model.ClientStats{}, err
	}
	return stats.Clients(snap), nil
}

// ensureEmailFree проверяет, что email не занят другим клиентом.
// Уникальный индекс хранилища остаётся последней проверкой при гонке.
func (s *Service) ensureEmailFree(ctx context.Context, email string, ownID int64) error {
	if email == "" {
		return nil
	}
	existing, err := s.repo.FindClientByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrClientNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != ownID:
		return fmt.Errorf("%w: %s", repository.ErrDuplicateEmail, email)
	}
	return nil
}

func normalizeClientInput(in model.ClientInput) model.ClientInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Patronymic = strings.TrimSpace(in.Patronymic)
	in.Email = validation.NormalizeEmail(in.Email)
	in.Phone = normalizePhone(in.Phone)
	in.City = strings.TrimSpace(in.City)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

func normalizeClientPatch(p model.ClientPatch) model.ClientPatch {
	trim := func(v *string, fn func(string) string) *string {
		if v == nil {
			return nil
		}
		n := fn(*v)
		return &n
	}
	p.FirstName = trim(p.FirstName, strings.TrimSpace)
	p.LastName = trim(p.LastName, strings.TrimSpace)
	p.Patronymic = trim(p.Patronymic, strings.TrimSpace)
	p.Email = trim(p.Email, validation.NormalizeEmail)
	p.Phone = trim(p.Phone, normalizePhone)
	p.City = trim(p.City, strings.TrimSpace)
	p.Notes = trim(p.Notes, strings.TrimSpace)
	return p
}

func normalizePhone(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return ""
	}
	return validation.NormalizePhone(phone)
}
