package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/database"
	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConnector opens read-only sessions against external Postgres databases.
type PostgresConnector struct{}

func NewPostgresConnector() *PostgresConnector {
	return &PostgresConnector{}
}

func (c *PostgresConnector) Connect(ctx context.Context, cfg database.Config) (service.ExternalSource, error) {
	cfg.MaxConns = 2
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ExternalSource{pool: pool}, nil
}

// ExternalSource reads whole tables from an external database.
type ExternalSource struct {
	pool *pgxpool.Pool
}

// ListTables returns the base tables of the public schema ordered by name.
func (s *ExternalSource) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ReadTable reads up to limit rows of table, rendering every value as text.
func (s *ExternalSource) ReadTable(ctx context.Context, table string, limit int) (*domain.TableSnapshot, error) {
	query := fmt.Sprintf(`SELECT * FROM %s LIMIT $1`, pgx.Identifier{"public", table}.Sanitize())
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := &domain.TableSnapshot{Name: table}
	for _, fd := range rows.FieldDescriptions() {
		snapshot.Columns = append(snapshot.Columns, fd.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rendered := make([]string, len(values))
		for i, v := range values {
			rendered[i] = renderValue(v)
		}
		snapshot.Rows = append(snapshot.Rows, rendered)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *ExternalSource) Close() {
	s.pool.Close()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(val).String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil || dv == nil {
			return ""
		}
		return renderValue(dv)
	default:
		return fmt.Sprint(val)
	}
}
