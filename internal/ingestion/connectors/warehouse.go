package connectors

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

/* WarehouseSource streams rows from a single Postgres-wire-compatible
   warehouse table via database/sql's row cursor, grounded on the donor's
   redshift.go dial-via-lib/pq idiom (its DiscoverSchema/Sync COUNT-based
   bulk-sync abstraction is not reused; this connector streams rows
   directly instead of counting them). */
type WarehouseSource struct {
	dsn   string
	query string
	db    *sql.DB
	rows  *sql.Rows
	cols  []string
}

/* NewWarehouseSource builds a dataWarehouse source connector from a
   ConnectorRef config: {"dsn": string, "table": string} or
   {"dsn": string, "query": string} for a custom selection. */
func NewWarehouseSource(cfg map[string]interface{}) (*WarehouseSource, error) {
	dsn, _ := cfg["dsn"].(string)
	if dsn == "" {
		return nil, fmt.Errorf("dataWarehouse connector: missing required config key \"dsn\"")
	}
	query, _ := cfg["query"].(string)
	if query == "" {
		table, _ := cfg["table"].(string)
		if table == "" {
			return nil, fmt.Errorf("dataWarehouse connector: config must set \"query\" or \"table\"")
		}
		query = fmt.Sprintf("SELECT * FROM %s", table)
	}
	return &WarehouseSource{dsn: dsn, query: query}, nil
}

func (s *WarehouseSource) Open(ctx context.Context) error {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("dataWarehouse connector: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("dataWarehouse connector: ping: %w", err)
	}
	s.db = db

	rows, err := db.QueryContext(ctx, s.query)
	if err != nil {
		return fmt.Errorf("dataWarehouse connector: query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return fmt.Errorf("dataWarehouse connector: columns: %w", err)
	}
	s.rows = rows
	s.cols = cols
	return nil
}

func (s *WarehouseSource) Next(ctx context.Context) (map[string]interface{}, bool, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, false, fmt.Errorf("dataWarehouse connector: rows: %w", err)
		}
		return nil, false, nil
	}

	values := make([]interface{}, len(s.cols))
	pointers := make([]interface{}, len(s.cols))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := s.rows.Scan(pointers...); err != nil {
		return nil, false, fmt.Errorf("dataWarehouse connector: scan: %w", err)
	}

	row := make(map[string]interface{}, len(s.cols))
	for i, col := range s.cols {
		row[col] = values[i]
	}
	return row, true, nil
}

func (s *WarehouseSource) Close(ctx context.Context) error {
	if s.rows != nil {
		s.rows.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

/* WarehouseDestination appends each transformed record as a row into a
   single target table, column order following the record's own keys. */
type WarehouseDestination struct {
	dsn   string
	table string
	db    *sql.DB
}

/* NewWarehouseDestination builds a dataWarehouse destination connector. */
func NewWarehouseDestination(cfg map[string]interface{}) (*WarehouseDestination, error) {
	dsn, _ := cfg["dsn"].(string)
	table, _ := cfg["table"].(string)
	if dsn == "" || table == "" {
		return nil, fmt.Errorf("dataWarehouse connector: config must set \"dsn\" and \"table\"")
	}
	return &WarehouseDestination{dsn: dsn, table: table}, nil
}

func (d *WarehouseDestination) Open(ctx context.Context) error {
	db, err := sql.Open("postgres", d.dsn)
	if err != nil {
		return fmt.Errorf("dataWarehouse connector: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("dataWarehouse connector: ping: %w", err)
	}
	d.db = db
	return nil
}

func (d *WarehouseDestination) Write(ctx context.Context, record map[string]interface{}) error {
	cols := make([]string, 0, len(record))
	placeholders := make([]string, 0, len(record))
	values := make([]interface{}, 0, len(record))
	i := 1
	for col, val := range record {
		cols = append(cols, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		values = append(values, val)
		i++
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.table, join(cols, ", "), join(placeholders, ", "))
	_, err := d.db.ExecContext(ctx, query, values...)
	return err
}

func (d *WarehouseDestination) Close(ctx context.Context) error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
