// Package postgres stores orders, order notes, order meta and carts in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// Queryable is the subset of pgxpool.Pool and pgx.Tx the store uses.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements ports.OrderRepository and ports.Cart.
type Store struct {
	db Queryable
}

// NewPool parses the connection string and returns a verified pool.
func NewPool(ctx context.Context, connectionString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// NewStore creates a store on an open pool or transaction.
func NewStore(db Queryable) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateOrder inserts an order and returns its id. A zero order.ID lets the
// database assign one.
func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) (int64, error) {
	status := order.Status
	if status == "" {
		status = domain.StatusPending
	}

	var id int64
	var err error
	if order.ID != 0 {
		err = s.db.QueryRow(ctx, `
			INSERT INTO orders (id, customer_id, total, currency, billing_phone, billing_first_name, billing_last_name, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			order.ID, order.CustomerID, order.Total.String(), order.Currency, order.BillingPhone,
			order.BillingFirstName, order.BillingLastName, string(status)).Scan(&id)
	} else {
		err = s.db.QueryRow(ctx, `
			INSERT INTO orders (customer_id, total, currency, billing_phone, billing_first_name, billing_last_name, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			order.CustomerID, order.Total.String(), order.Currency, order.BillingPhone,
			order.BillingFirstName, order.BillingLastName, string(status)).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	for k, v := range order.Metadata {
		if err := s.SetMeta(ctx, id, k, v); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetOrder loads an order with its metadata.
func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var (
		o      domain.Order
		total  string
		status string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, customer_id, total::text, currency, billing_phone, billing_first_name,
			billing_last_name, status, transaction_id
		FROM orders WHERE id = $1`, id).Scan(
		&o.ID, &o.CustomerID, &total, &o.Currency, &o.BillingPhone,
		&o.BillingFirstName, &o.BillingLastName, &status, &o.TransactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order %d: %w", id, err)
	}
	o.Status = domain.OrderStatus(status)

	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %d has an invalid total %q: %w", id, total, err)
	}

	rows, err := s.db.Query(ctx, `SELECT meta_key, meta_value FROM order_meta WHERE order_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query meta for order %d: %w", id, err)
	}
	defer rows.Close()

	o.Metadata = map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		o.Metadata[k] = v
	}
	return &o, rows.Err()
}

// UpdateStatus sets the order status.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", id, err)
	}
	return requireRow(tag)
}

// AddNote appends a note to the order.
func (s *Store) AddNote(ctx context.Context, id int64, note string) error {
	tag, err := s.db.Exec(ctx, `INSERT INTO order_notes (order_id, note) SELECT id, $1 FROM orders WHERE id = $2`, note, id)
	if err != nil {
		return fmt.Errorf("failed to add note to order %d: %w", id, err)
	}
	return requireRow(tag)
}

// Notes returns the order's notes, oldest first.
func (s *Store) Notes(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT note FROM order_notes WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes for order %d: %w", id, err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// SetMeta writes or replaces one metadata value.
func (s *Store) SetMeta(ctx context.Context, id int64, key, value string) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO order_meta (order_id, meta_key, meta_value)
		SELECT id, $1, $2 FROM orders WHERE id = $3
		ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
		key, value, id)
	if err != nil {
		return fmt.Errorf("failed to set %s on order %d: %w", key, id, err)
	}
	return requireRow(tag)
}

// MarkPaid records the transaction id and payment time.
func (s *Store) MarkPaid(ctx context.Context, id int64, transactionID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE orders SET transaction_id = $1, paid_at = NOW(), updated_at = NOW() WHERE id = $2`,
		transactionID, id)
	if err != nil {
		return fmt.Errorf("failed to mark order %d paid: %w", id, err)
	}
	return requireRow(tag)
}

// AddCartItem puts a product in the customer's cart.
func (s *Store) AddCartItem(ctx context.Context, customerID, productID string, quantity int) error {
	_, err := s.db.Exec(ctx, `INSERT INTO cart_items (customer_id, product_id, quantity) VALUES ($1, $2, $3)`,
		customerID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

// CartSize counts the items in the customer's cart.
func (s *Store) CartSize(ctx context.Context, customerID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::int FROM cart_items WHERE customer_id = $1`, customerID).Scan(&n)
	return n, err
}

// Empty removes every item from the customer's cart.
func (s *Store) Empty(ctx context.Context, customerID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("failed to empty cart for %s: %w", customerID, err)
	}
	return nil
}

func requireRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
