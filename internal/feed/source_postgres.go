package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 10 * time.Second
)

var postgresColumns = []string{
	ColumnSKU,
	ColumnCategory,
	ColumnName,
	ColumnPrice,
	ColumnImageFileID,
	ColumnLastUpdated,
}

// PostgresSource reads the catalog from a table instead of a published sheet.
// It only ever issues SELECTs.
type PostgresSource struct {
	db    *sql.DB
	query string
}

func OpenPostgres(dsn, table string) (*PostgresSource, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres feed: %w", err)
	}
	return NewPostgresSource(db, table), nil
}

// NewPostgresSource reads from table, which may be schema-qualified ("shop.products").
func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()

	cols := make([]string, len(postgresColumns))
	for i, c := range postgresColumns {
		cols[i] = fmt.Sprintf("COALESCE(%s::text, '')", pgx.Identifier{c}.Sanitize())
	}

	return &PostgresSource{
		db:    db,
		query: "SELECT " + strings.Join(cols, ", ") + " FROM " + ident,
	}
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return classify(s.db.PingContext(ctx))
	})
}

func (s *PostgresSource) Close() error { return s.db.Close() }

func (s *PostgresSource) Fetch(ctx context.Context) (Document, error) {
	headers := append([]string(nil), postgresColumns...)
	var out []Record

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.query)
		if err != nil {
			return classify(err)
		}
		defer rows.Close()

		out = make([]Record, 0, 64)
		for rows.Next() {
			v := make([]string, len(headers))
			if err := rows.Scan(&v[0], &v[1], &v[2], &v[3], &v[4], &v[5]); err != nil {
				return classify(err)
			}
			out = append(out, Record{Headers: headers, Values: v})
		}
		return classify(rows.Err())
	})

	if err != nil {
		return Document{}, err
	}
	return Document{Headers: headers, Records: out}, nil
}

// classify maps server-side errors to ErrMalformed (retrying the same query
// will not help) and everything else to ErrTransport.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (sqlstate %s)", ErrMalformed, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
