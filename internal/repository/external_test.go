//go:build integration

package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/database"
	"github.com/cloo-solutions/supportdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalSource_ListAndReadTables(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	_, err := pool.Exec(ctx, `
		CREATE TABLE products (sku TEXT PRIMARY KEY, price NUMERIC(10,2), note TEXT);
		INSERT INTO products VALUES ('A-1', 10.50, NULL), ('B-2', 3.00, 'fragile');
		CREATE VIEW cheap_products AS SELECT * FROM products WHERE price < 5;`)
	require.NoError(t, err)

	port, err := strconv.Atoi(pc.Port)
	require.NoError(t, err)

	src, err := NewPostgresConnector().Connect(ctx, database.Config{
		Host:     pc.Host,
		Port:     port,
		User:     pc.User,
		Password: pc.Password,
		Database: pc.Database,
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	defer src.Close()

	tables, err := src.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"campaigns", "knowledge_chunks", "orders", "products"}, tables)

	snapshot, err := src.ReadTable(ctx, "products", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "price", "note"}, snapshot.Columns)
	require.Len(t, snapshot.Rows, 2)
	assert.Equal(t, "Table: products\nsku: A-1\nprice: 10.50\nnote: ", snapshot.RenderRow(0))
	assert.Equal(t, "Table: products\nsku: B-2\nprice: 3.00\nnote: fragile", snapshot.RenderRow(1))

	limited, err := src.ReadTable(ctx, "products", 1)
	require.NoError(t, err)
	assert.Len(t, limited.Rows, 1)
}

func TestPostgresConnector_InvalidParams(t *testing.T) {
	_, err := NewPostgresConnector().Connect(context.Background(), database.Config{Host: "", Database: "x"})

	assert.Error(t, err)
}

func TestOrderRepository_ListByPhone(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	delivery := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	_, err := pool.Exec(ctx,
		`INSERT INTO orders (order_id, customer_phone, status, delivery_date, created_at) VALUES
		 ('1001', '+15551110001', 'shipped', $1, NOW() - INTERVAL '2 days'),
		 ('1002', '+15551110001', 'processing', NULL, NOW()),
		 ('2001', '+15552220002', 'delivered', NULL, NOW())`, delivery)
	require.NoError(t, err)

	orders, err := NewOrderRepository(pool).ListByPhone(ctx, "15551110001")

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "1002", orders[0].OrderID)
	assert.Nil(t, orders[0].DeliveryDate)
	assert.Equal(t, "1001", orders[1].OrderID)
	require.NotNil(t, orders[1].DeliveryDate)
	assert.True(t, delivery.Equal(*orders[1].DeliveryDate))
}
