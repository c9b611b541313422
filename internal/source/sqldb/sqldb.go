// Package sqldb loads tabular data out of a SQL database and into the
// ingestion pipeline, as an alternative to file upload. Rows come back
// as strings; typing is the inferencer's job, same as for files.
//
// Supported backend kinds mirror the rest of the stack: "postgres"
// (pgx), "mssql" (go-mssqldb), and "sqlite" (modernc).
//
// This package only ever reads. Pipeline output is never written back.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"  // database/sql driver: pgx
	_ "github.com/microsoft/go-mssqldb" // database/sql driver: sqlserver
	_ "modernc.org/sqlite"              // database/sql driver: sqlite
)

// Config selects the backend and bounds the read.
type Config struct {
	// Kind: "postgres", "mssql", or "sqlite".
	Kind string
	// DSN is backend-specific and passed through unchanged.
	DSN string
	// MaxRows bounds how many rows are fetched. Zero means
	// DefaultMaxRows; the cap is a guardrail, not pagination.
	MaxRows int
}

// DefaultMaxRows bounds table reads when the caller does not say
// otherwise. Dashboards work on bounded extracts, not full replicas.
const DefaultMaxRows = 100_000

func (c Config) maxRows() int {
	if c.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return c.MaxRows
}

func driverName(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "postgres", "postgresql":
		return "pgx", nil
	case "mssql", "sqlserver":
		return "sqlserver", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported sql source kind=%q", kind)
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// LoadTable reads up to the configured row cap from a single table.
// The table name must be a plain (optionally schema-qualified)
// identifier; anything else is rejected before touching the database.
func LoadTable(ctx context.Context, cfg Config, table string) ([]string, [][]string, error) {
	if !identRe.MatchString(table) {
		return nil, nil, fmt.Errorf("invalid table name %q", table)
	}
	return Query(ctx, cfg, "SELECT * FROM "+table)
}

// Query runs a read-only query and returns the column names plus all
// result rows rendered as strings. NULLs come back as empty strings,
// which the normalizer records as nulls rather than coercion failures.
func Query(ctx context.Context, cfg Config, query string) ([]string, [][]string, error) {
	driver, err := driverName(cfg.Kind)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Kind, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", cfg.Kind, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("columns: %w", err)
	}

	max := cfg.maxRows()
	var out [][]string
	vals := make([]sql.NullString, len(header))
	ptrs := make([]any, len(header))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if len(out) >= max {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row %d: %w", len(out)+1, err)
		}
		rec := make([]string, len(vals))
		for i, v := range vals {
			if v.Valid {
				rec[i] = v.String
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return header, out, nil
}
