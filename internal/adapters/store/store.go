// Package store opens the configured order store.
package store

import (
	"context"
	"fmt"

	"github.com/irandargah/irandargah-payments/internal/adapters/store/postgres"
	"github.com/irandargah/irandargah-payments/internal/adapters/store/sqlite"
	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/core/ports"
)

// Store is an order store that also holds carts.
type Store interface {
	ports.OrderRepository
	ports.Cart

	Migrate(ctx context.Context) error
	CreateOrder(ctx context.Context, order *domain.Order) (int64, error)
	AddCartItem(ctx context.Context, customerID, productID string, quantity int) error
	Notes(ctx context.Context, id int64) ([]string, error)
}

// Open connects to the store selected by driver ("sqlite" or "postgres").
// The returned func releases it.
func Open(ctx context.Context, driver, dsn string) (Store, func(), error) {
	switch driver {
	case "", "sqlite":
		s, err := sqlite.NewStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.NewStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
