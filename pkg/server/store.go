// Package server hosts the dataset tree and the detail-lookup endpoints
// the map engine consumes.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"price-map/pkg/detail"
)

// Store is the Postgres-backed price-paid dataset behind the
// transactions endpoint. Rows are keyed by month plus the region codes
// precomputed at ingest time.
type Store struct {
	db *sql.DB
}

// OpenStore connects with the given DSN and configures the pool.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Transactions returns the recorded sales for one region (or postcode)
// and month, newest first, capped at q.Limit.
func (s *Store) Transactions(ctx context.Context, q detail.TransactionQuery) (*detail.TransactionPage, error) {
	var where string
	var code string
	switch q.Mode {
	case detail.QueryModeArea:
		where = "area = $2"
		code = strings.ToUpper(q.Code)
	case detail.QueryModeDistrict:
		where = "district = $2"
		code = strings.ToUpper(q.Code)
	case detail.QueryModeSector:
		where = "sector = $2"
		code = strings.ToUpper(q.Code)
	case detail.QueryModePostcode:
		where = "replace(postcode, ' ', '') = $2"
		code = strings.ToUpper(strings.ReplaceAll(q.Code, " ", ""))
	default:
		return nil, fmt.Errorf("unknown query mode %q", q.Mode)
	}

	page := &detail.TransactionPage{Transactions: []detail.Transaction{}}

	countQ := "SELECT count(*) FROM price_paid WHERE month = $1 AND " + where
	if err := s.db.QueryRowContext(ctx, countQ, q.Month, code).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}

	rowsQ := `SELECT price, to_char(date_of_transfer, 'YYYY-MM-DD'), postcode,
		coalesce(property_type, ''), coalesce(street, ''), coalesce(town, '')
		FROM price_paid WHERE month = $1 AND ` + where + `
		ORDER BY date_of_transfer DESC, price DESC LIMIT $3`
	rows, err := s.db.QueryContext(ctx, rowsQ, q.Month, code, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t detail.Transaction
		if err := rows.Scan(&t.Price, &t.Date, &t.Postcode, &t.PropertyType, &t.Street, &t.Town); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		page.Transactions = append(page.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	page.Shown = len(page.Transactions)
	return page, nil
}
