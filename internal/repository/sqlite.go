package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/mmeshcher/clientbook/internal/model"
)

const (
	bucketClients   = "clients"
	bucketOrders    = "orders"
	bucketSequences = "sequences"
)

type sequences struct {
	NextClientID int64 `json:"next_client_id"`
	NextOrderID  int64 `json:"next_order_id"`
}

// SQLiteRepository хранит состояние в памяти и сохраняет его снимок в SQLite после каждой записи.
type SQLiteRepository struct {
	*MemoryRepository
	db *sql.DB
}

// NewSQLiteRepository открывает (или создаёт) файл базы и загружает сохранённое состояние.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if path == "" {
		path = "clientbook.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	r := &SQLiteRepository{MemoryRepository: NewMemoryRepository(), db: db}
	if err := r.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	r.MemoryRepository.persist = r.persist

	return r, nil
}

// Close закрывает файл базы.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) load(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		clients []model.Client
		orders  []model.Order
		seq     sequences
	)
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		switch bucket {
		case bucketClients:
			err = json.Unmarshal(payload, &clients)
		case bucketOrders:
			err = json.Unmarshal(payload, &orders)
		case bucketSequences:
			err = json.Unmarshal(payload, &seq)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	s := newMemoryState()
	for _, c := range clients {
		s.clients[c.ID] = c
		s.nextClientID = max(s.nextClientID, c.ID+1)
	}
	for _, o := range orders {
		s.orders[o.ID] = o
		s.nextOrderID = max(s.nextOrderID, o.ID+1)
	}
	// Идентификаторы удалённых записей повторно не выдаются.
	s.nextClientID = max(s.nextClientID, seq.NextClientID)
	s.nextOrderID = max(s.nextOrderID, seq.NextOrderID)

	r.MemoryRepository.state = s
	return nil
}

// persist вызывается под блокировкой записи MemoryRepository, поэтому снимки не перемешиваются.
func (r *SQLiteRepository) persist(ctx context.Context, s *memoryState) (retErr error) {
	clients := make([]model.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	sortClients(clients)

	orders := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	sortOrders(orders, model.SortByOrderDate, model.SortAsc)

	payloads := map[string]any{
		bucketClients:   clients,
		bucketOrders:    orders,
		bucketSequences: sequences{NextClientID: s.nextClientID, NextOrderID: s.nextOrderID},
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for bucket, v := range payloads {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket, payload) VALUES(?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`,
			bucket, data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}

	return tx.Commit()
}
