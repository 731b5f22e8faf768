package repository

import (
	"context"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	db dbtx
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: pool}
}

// ListByPhone returns the customer's orders, newest first.
func (r *OrderRepository) ListByPhone(ctx context.Context, phone string) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT order_id, customer_phone, status, delivery_date, created_at
		 FROM orders WHERE customer_phone = $1
		 ORDER BY created_at DESC`,
		domain.NormalizePhone(phone),
	)
	if err != nil {
		return nil, domain.StorageError("failed to list orders", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.OrderID, &o.CustomerPhone, &o.Status, &o.DeliveryDate, &o.CreatedAt); err != nil {
			return nil, domain.StorageError("failed to scan order", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("failed to read orders", err)
	}
	return orders, nil
}
