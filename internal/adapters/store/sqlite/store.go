// Package sqlite stores orders, order notes, order meta and carts in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store implements ports.OrderRepository and ports.Cart.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (creating if needed) the database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent callbacks.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// CreateOrder inserts an order and returns its id. A zero order.ID lets the
// database assign one.
func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) (int64, error) {
	status := order.Status
	if status == "" {
		status = domain.StatusPending
	}
	ts := s.timestamp()

	var id any
	if order.ID != 0 {
		id = order.ID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total, currency, billing_phone,
			billing_first_name, billing_last_name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, order.CustomerID, order.Total.String(), order.Currency, order.BillingPhone,
		order.BillingFirstName, order.BillingLastName, string(status), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for k, v := range order.Metadata {
		if err := s.SetMeta(ctx, newID, k, v); err != nil {
			return 0, err
		}
	}
	return newID, nil
}

// GetOrder loads an order with its metadata.
func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var (
		o     domain.Order
		total string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, total, currency, billing_phone, billing_first_name,
			billing_last_name, status, transaction_id
		FROM orders WHERE id = ?`, id).Scan(
		&o.ID, &o.CustomerID, &total, &o.Currency, &o.BillingPhone,
		&o.BillingFirstName, &o.BillingLastName, &o.Status, &o.TransactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order %d: %w", id, err)
	}

	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %d has an invalid total %q: %w", id, total, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT meta_key, meta_value FROM order_meta WHERE order_id = ?`, id)
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
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", id, err)
	}
	return requireRow(res)
}

// AddNote appends a note to the order.
func (s *Store) AddNote(ctx context.Context, id int64, note string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_notes (order_id, note, created_at)
		SELECT id, ?, ? FROM orders WHERE id = ?`, note, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to add note to order %d: %w", id, err)
	}
	return requireRow(res)
}

// Notes returns the order's notes, oldest first.
func (s *Store) Notes(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT note FROM order_notes WHERE order_id = ? ORDER BY id`, id)
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_meta (order_id, meta_key, meta_value)
		SELECT id, ?, ? FROM orders WHERE id = ?
		ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		key, value, id)
	if err != nil {
		return fmt.Errorf("failed to set %s on order %d: %w", key, id, err)
	}
	return requireRow(res)
}

// MarkPaid records the transaction id and payment time.
func (s *Store) MarkPaid(ctx context.Context, id int64, transactionID string) error {
	ts := s.timestamp()
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET transaction_id = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
		transactionID, ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to mark order %d paid: %w", id, err)
	}
	return requireRow(res)
}

// AddCartItem puts a product in the customer's cart.
func (s *Store) AddCartItem(ctx context.Context, customerID, productID string, quantity int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO cart_items (customer_id, product_id, quantity) VALUES (?, ?, ?)`,
		customerID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

// CartSize counts the items in the customer's cart.
func (s *Store) CartSize(ctx context.Context, customerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE customer_id = ?`, customerID).Scan(&n)
	return n, err
}

// Empty removes every item from the customer's cart.
func (s *Store) Empty(ctx context.Context, customerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE customer_id = ?`, customerID); err != nil {
		return fmt.Errorf("failed to empty cart for %s: %w", customerID, err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
