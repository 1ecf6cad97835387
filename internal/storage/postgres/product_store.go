// Package postgres persists harvested product records into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Specoptor/trendyol/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for product rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "products"

type txBeginCloser interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ProductStore upserts completed records of a run in one transaction.
type ProductStore struct {
	pool  txBeginCloser
	table string
}

// NewProductStore connects a pgx pool using the provided config.
func NewProductStore(ctx context.Context, cfg Config) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: pool, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(pool txBeginCloser, table string) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ProductStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name identifies the writer in run summaries.
func (s *ProductStore) Name() string {
	return "postgres"
}

// EnsureSchema creates the product table when it does not exist.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	source_url      TEXT PRIMARY KEY,
	product_id      TEXT,
	run_id          TEXT NOT NULL,
	brand_and_title TEXT,
	name            TEXT,
	brand           TEXT,
	price           TEXT,
	description     TEXT,
	images          JSONB NOT NULL DEFAULT '[]',
	attributes      JSONB NOT NULL DEFAULT '{}',
	in_stock        BOOLEAN,
	barcode         TEXT,
	size            TEXT,
	harvested_at    TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Write upserts every completed record of the run and returns a postgres:// URI
// naming the table. Either all rows land or none do.
func (s *ProductStore) Write(ctx context.Context, result harvest.RunResult) (string, error) {
	if s == nil || s.pool == nil {
		return "", fmt.Errorf("product store is not configured")
	}
	records := result.Records()
	uri := fmt.Sprintf("postgres://%s", s.table)
	if len(records) == 0 {
		return uri, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	source_url,
	product_id,
	run_id,
	brand_and_title,
	name,
	brand,
	price,
	description,
	images,
	attributes,
	in_stock,
	barcode,
	size,
	harvested_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (source_url) DO UPDATE SET
	product_id = EXCLUDED.product_id,
	run_id = EXCLUDED.run_id,
	brand_and_title = EXCLUDED.brand_and_title,
	name = EXCLUDED.name,
	brand = EXCLUDED.brand,
	price = EXCLUDED.price,
	description = EXCLUDED.description,
	images = EXCLUDED.images,
	attributes = EXCLUDED.attributes,
	in_stock = EXCLUDED.in_stock,
	barcode = EXCLUDED.barcode,
	size = EXCLUDED.size,
	harvested_at = EXCLUDED.harvested_at`, s.table)

	for _, rec := range records {
		args, err := rowArgs(result, rec)
		if err != nil {
			return "", err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return "", fmt.Errorf("upsert %s: %w", rec.SourceURL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return uri, nil
}

func rowArgs(result harvest.RunResult, rec harvest.ProductRecord) ([]any, error) {
	images := rec.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshal images: %w", err)
	}
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	return []any{
		rec.SourceURL,
		rec.ProductID,
		result.RunID,
		rec.BrandAndTitle,
		rec.Name,
		rec.Brand,
		rec.Price,
		rec.Description,
		imagesJSON,
		attrsJSON,
		rec.InStock,
		rec.Barcode,
		rec.Size,
		result.FinishedAt,
	}, nil
}
