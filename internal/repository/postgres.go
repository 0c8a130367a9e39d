package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clientbook/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	clientEmailIndex      = "clients_email_key"
	orderNumberConstraint = "orders_order_number_key"
)

const clientColumns = `id, first_name, last_name, patronymic, email, phone, city, notes, status,
	total_orders, total_revenue, registration_date, created_at, updated_at`

const orderSelect = `SELECT o.id, o.client_id, c.last_name || ' ' || c.first_name, o.order_number,
	o.order_date, o.status, o.total_amount, o.description, o.created_at, o.updated_at
	FROM orders o JOIN clients c ON c.id = o.client_id`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (model.Client, error) {
	var (
		c                                     model.Client
		patronymic, email, phone, city, notes *string
		status                                string
	)
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &patronymic, &email, &phone, &city, &notes, &status,
		&c.TotalOrders, &c.TotalRevenue, &c.RegistrationDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Client{}, err
	}
	c.Patronymic = deref(patronymic)
	c.Email = deref(email)
	c.Phone = deref(phone)
	c.City = deref(city)
	c.Notes = deref(notes)
	c.Status = model.ClientStatus(status)
	return c, nil
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o           model.Order
		status      string
		description *string
	)
	err := row.Scan(&o.ID, &o.ClientID, &o.ClientName, &o.Number, &o.OrderDate, &status, &o.TotalAmount,
		&description, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = model.OrderStatus(status)
	o.Description = deref(description)
	return o, nil
}

func collectClients(rows pgx.Rows) ([]model.Client, error) {
	defer rows.Close()

	var res []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateClient сохраняет нового клиента и возвращает его с присвоенным идентификатором.
func (r *PostgresRepository) CreateClient(ctx context.Context, c model.Client) (model.Client, error) {
	var created model.Client
	err := withRetry(ctx, func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO clients (first_name, last_name, patronymic, email, phone, city, notes, status,
				registration_date, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING `+clientColumns,
			c.FirstName, c.LastName, nullable(c.Patronymic), nullable(c.Email), nullable(c.Phone),
			nullable(c.City), nullable(c.Notes), string(c.Status), c.RegistrationDate, c.CreatedAt, c.UpdatedAt,
		)
		var err error
		created, err = scanClient(row)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, clientEmailIndex) {
			return model.Client{}, fmt.Errorf("%w: %s", ErrDuplicateEmail, c.Email)
		}
		return model.Client{}, storageError("create client", err)
	}
	return created, nil
}

// GetClient возвращает клиента по идентификатору.
func (r *PostgresRepository) GetClient(ctx context.Context, id int64) (model.Client, error) {
	c, err := scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Client{}, ErrClientNotFound
		}
		return model.Client{}, storageError("get client", err)
	}
	return c, nil
}

// FindClientByEmail ищет клиента по email без учёта регистра.
func (r *PostgresRepository) FindClientByEmail(ctx context.Context, email string) (model.Client, error) {
	c, err := scanClient(r.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Client{}, ErrClientNotFound
		}
		return model.Client{}, storageError("find client by email", err)
	}
	return c, nil
}

// UpdateClient применяет частичное обновление к клиенту.
func (r *PostgresRepository) UpdateClient(ctx context.Context, id int64, p model.ClientPatch, now time.Time) (model.Client, error) {
	args := []any{id}
	var sets []string
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if p.FirstName != nil {
		set("first_name", *p.FirstName)
	}
	if p.LastName != nil {
		set("last_name", *p.LastName)
	}
	if p.Patronymic != nil {
		set("patronymic", nullable(*p.Patronymic))
	}
	if p.Email != nil {
		set("email", nullable(*p.Email))
	}
	if p.Phone != nil {
		set("phone", nullable(*p.Phone))
	}
	if p.City != nil {
		set("city", nullable(*p.City))
	}
	if p.Notes != nil {
		set("notes", nullable(*p.Notes))
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	set("updated_at", now)

	query := `UPDATE clients SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + clientColumns

	var updated model.Client
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		updated, err = scanClient(r.pool.QueryRow(ctx, query, args...))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Client{}, ErrClientNotFound
		}
		if isUniqueViolation(err, clientEmailIndex) {
			return model.Client{}, fmt.Errorf("%w: %s", ErrDuplicateEmail, deref(p.Email))
		}
		return model.Client{}, storageError("update client", err)
	}
	return updated, nil
}

// DeleteClient удаляет клиента. Клиента с заказами удалить нельзя.
func (r *PostgresRepository) DeleteClient(ctx context.Context, id int64) error {
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var totalOrders int64
		err = tx.QueryRow(ctx, `SELECT total_orders FROM clients WHERE id = $1 FOR UPDATE`, id).Scan(&totalOrders)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrClientNotFound
			}
			return fmt.Errorf("lock client: %w", err)
		}
		if totalOrders > 0 {
			return fmt.Errorf("%w: %d orders", ErrClientHasOrders, totalOrders)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return ErrClientHasOrders
			}
			return fmt.Errorf("delete client: %w", err)
		}

		return commitTx(ctx, tx)
	})
	return storageError("delete client", err)
}

// SearchClients возвращает клиентов, удовлетворяющих фильтру, отсортированных по фамилии и имени.
func (r *PostgresRepository) SearchClients(ctx context.Context, f model.ClientFilter) ([]model.Client, error) {
	var w where
	if f.Query != "" {
		w.add(`(first_name ILIKE ? OR last_name ILIKE ? OR patronymic ILIKE ? OR email ILIKE ?
			OR phone ILIKE ? OR city ILIKE ?)`, likePattern(f.Query))
	}
	w.addLike("first_name", f.FirstName)
	w.addLike("last_name", f.LastName)
	w.addLike("patronymic", f.Patronymic)
	w.addLike("email", f.Email)
	w.addLike("phone", f.Phone)
	w.addLike("city", f.City)
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.MinOrders != nil {
		w.add("total_orders >= ?", *f.MinOrders)
	}
	if f.MaxOrders != nil {
		w.add("total_orders <= ?", *f.MaxOrders)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients`+w.clause()+` ORDER BY last_name COLLATE "C", first_name COLLATE "C", id`,
		w.args...,
	)
	if err != nil {
		return nil, storageError("search clients", err)
	}

	clients, err := collectClients(rows)
	if err != nil {
		return nil, storageError("search clients", err)
	}
	return clients, nil
}

// adjustClientAggregates сдвигает счётчики клиента на дельту в рамках транзакции tx.
// Создание заказа передаёт (+1, +сумма), удаление передаёт (-1, -сумма).
func adjustClientAggregates(ctx context.Context, tx pgx.Tx, clientID, orders int64, revenue decimal.Decimal, now time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE clients
		 SET total_orders = total_orders + $2, total_revenue = total_revenue + $3, updated_at = $4
		 WHERE id = $1`,
		clientID, orders, revenue, now,
	)
	if err != nil {
		return fmt.Errorf("adjust client aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

// CreateOrder сохраняет заказ и увеличивает счётчики клиента в одной транзакции.
// Строка клиента блокируется, чтобы параллельные заказы одного клиента не теряли приращения.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	var created model.Order
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var clientName string
		err = tx.QueryRow(ctx,
			`SELECT last_name || ' ' || first_name FROM clients WHERE id = $1 FOR UPDATE`,
			o.ClientID,
		).Scan(&clientName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrClientNotFound
			}
			return fmt.Errorf("lock client for update: %w", err)
		}

		var description *string
		var status string
		err = tx.QueryRow(ctx,
			`INSERT INTO orders (client_id, order_number, order_date, status, total_amount, description, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, client_id, order_number, order_date, status, total_amount, description, created_at, updated_at`,
			o.ClientID, o.Number, o.OrderDate, string(o.Status), o.TotalAmount, nullable(o.Description), o.CreatedAt, o.UpdatedAt,
		).Scan(&created.ID, &created.ClientID, &created.Number, &created.OrderDate, &status, &created.TotalAmount,
			&description, &created.CreatedAt, &created.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, orderNumberConstraint) {
				return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.Number)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		created.Status = model.OrderStatus(status)
		created.Description = deref(description)
		created.ClientName = clientName

		for i, item := range o.Items {
			_, err := tx.Exec(ctx,
				`INSERT INTO order_items (order_id, position, product_name, quantity, price) VALUES ($1, $2, $3, $4, $5)`,
				created.ID, i, item.ProductName, item.Quantity, item.Price,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		created.Items = o.Items

		if err := adjustClientAggregates(ctx, tx, o.ClientID, 1, created.TotalAmount, o.UpdatedAt); err != nil {
			return err
		}

		return commitTx(ctx, tx)
	})
	if err != nil {
		return model.Order{}, storageError("create order", err)
	}
	return created, nil
}

// GetOrder возвращает заказ вместе с именем клиента и позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, storageError("get order", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_name, quantity, price FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return model.Order{}, storageError("select order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ProductName, &item.Quantity, &item.Price); err != nil {
			return model.Order{}, storageError("scan order item", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return model.Order{}, storageError("select order items", err)
	}

	return o, nil
}

// OrderNumberExists сообщает, занят ли номер заказа.
func (r *PostgresRepository) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, storageError("check order number", err)
	}
	return exists, nil
}

// UpdateOrderStatus меняет только статус заказа и время обновления.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, now time.Time) (model.Order, error) {
	var updated model.Order
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		updated, err = scanOrder(r.pool.QueryRow(ctx,
			`UPDATE orders o SET status = $2, updated_at = $3
			 FROM clients c
			 WHERE o.id = $1 AND c.id = o.client_id
			 RETURNING o.id, o.client_id, c.last_name || ' ' || c.first_name, o.order_number,
				o.order_date, o.status, o.total_amount, o.description, o.created_at, o.updated_at`,
			id, string(status), now,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, storageError("update order status", err)
	}
	return updated, nil
}

// DeleteOrder удаляет заказ и уменьшает счётчики клиента в одной транзакции.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, id int64, now time.Time) error {
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			clientID int64
			amount   decimal.Decimal
		)
		err = tx.QueryRow(ctx,
			`DELETE FROM orders WHERE id = $1 RETURNING client_id, total_amount`, id,
		).Scan(&clientID, &amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("delete order: %w", err)
		}

		if err := adjustClientAggregates(ctx, tx, clientID, -1, amount.Neg(), now); err != nil {
			return err
		}

		return commitTx(ctx, tx)
	})
	return storageError("delete order", err)
}

// ClientOrders возвращает заказы клиента, начиная с новых.
func (r *PostgresRepository) ClientOrders(ctx context.Context, clientID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, orderSelect+` WHERE o.client_id = $1 ORDER BY o.order_date DESC, o.id DESC`, clientID)
	if err != nil {
		return nil, storageError("select client orders", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, storageError("select client orders", err)
	}
	return orders, nil
}

// Текстовые столбцы сортируются в COLLATE "C", то есть по байтам UTF-8, как и в хранилище в памяти.
var orderSortColumns = map[model.SortField]string{
	model.SortByOrderDate:  "o.order_date",
	model.SortByAmount:     "o.total_amount",
	model.SortByClientName: `c.last_name COLLATE "C" %[1]s, c.first_name COLLATE "C"`,
}

// SearchOrders возвращает страницу заказов. Подсчёт и выборка выполняются в одном снимке.
func (r *PostgresRepository) SearchOrders(ctx context.Context, f model.OrderFilter) (model.OrderPage, error) {
	f = f.WithDefaults()

	var w where
	if f.ClientID != nil {
		w.add("o.client_id = ?", *f.ClientID)
	}
	if f.Status != "" {
		w.add("o.status = ?", string(f.Status))
	}
	if f.MinAmount != nil {
		w.add("o.total_amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		w.add("o.total_amount <= ?", *f.MaxAmount)
	}
	if f.DateFrom != nil {
		w.add("o.order_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		w.add("o.order_date <= ?", *f.DateTo)
	}
	w.addLike("o.order_number", f.Number)
	if f.ClientName != "" {
		w.add("(c.first_name ILIKE ? OR c.last_name ILIKE ?)", likePattern(f.ClientName))
	}

	dir := "DESC"
	if f.SortDir == model.SortAsc {
		dir = "ASC"
	}
	column, ok := orderSortColumns[f.SortBy]
	if !ok {
		column = orderSortColumns[model.SortByOrderDate]
	}
	if strings.Contains(column, "%[1]s") {
		column = fmt.Sprintf(column, dir)
	}
	orderBy := fmt.Sprintf(" ORDER BY %s %s, o.id %s", column, dir, dir)

	var page model.OrderPage
	err := r.readOnly(ctx, func(tx pgx.Tx) error {
		var total int
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM orders o JOIN clients c ON c.id = o.client_id`+w.clause(), w.args...,
		).Scan(&total)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}

		args := append(append([]any{}, w.args...), f.PerPage, f.Offset())
		rows, err := tx.Query(ctx,
			orderSelect+w.clause()+orderBy+
				fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)+1, len(w.args)+2),
			args...,
		)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}
		orders, err := collectOrders(rows)
		if err != nil {
			return err
		}

		page = model.NewOrderPage(orders, total, f)
		return nil
	})
	if err != nil {
		return model.OrderPage{}, storageError("search orders", err)
	}
	return page, nil
}

// Snapshot читает всех клиентов и все заказы в одной транзакции REPEATABLE READ.
func (r *PostgresRepository) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := r.readOnly(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT now()`).Scan(&snap.TakenAt); err != nil {
			return fmt.Errorf("select now: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY last_name COLLATE "C", first_name COLLATE "C", id`)
		if err != nil {
			return fmt.Errorf("select clients: %w", err)
		}
		if snap.Clients, err = collectClients(rows); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, orderSelect+` ORDER BY o.order_date, o.id`)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}
		if snap.Orders, err = collectOrders(rows); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return model.Snapshot{}, storageError("snapshot", err)
	}
	return snap, nil
}

func (r *PostgresRepository) readOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// where собирает условие WHERE с позиционными параметрами. Все «?» условия получают один параметр.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) addLike(column, value string) {
	if value == "" {
		return
	}
	w.add(column+" ILIKE ?", likePattern(value))
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
