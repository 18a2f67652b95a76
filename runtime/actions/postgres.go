package actions

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"

	"github.com/BDNK1/stepflow/runtime"
)

// PostgresBinding is the context key the database handlers are bound under.
const PostgresBinding = "db"

type PostgresConfig struct {
	Enabled          bool          `yaml:"enabled" default:"false"`
	ConnectionString string        `yaml:"connection_string" validate:"required_if=Enabled true,postgres_dsn"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m" validate:"gte=0"`
	QueryTimeout     time.Duration `yaml:"query_timeout" default:"30s" validate:"gt=0"`
}

func init() {
	if err := runtime.RegisterCustomValidator("postgres_dsn", validPostgresDSN); err != nil {
		panic(err)
	}
}

// validPostgresDSN accepts a postgres:// URL or a key=value connection
// string. Empty is left to required_if.
func validPostgresDSN(fl validator.FieldLevel) bool {
	dsn := strings.TrimSpace(fl.Field().String())
	if dsn == "" {
		return true
	}
	if strings.Contains(dsn, "://") {
		_, err := pq.ParseURL(dsn)
		return err == nil
	}
	return strings.Contains(dsn, "=")
}

func LoadPostgresConfig(raw map[string]any) (PostgresConfig, error) {
	var cfg PostgresConfig
	if err := runtime.InitializeConfig(&cfg, raw); err != nil {
		return PostgresConfig{}, fmt.Errorf("postgres actions: %w", err)
	}
	return cfg, nil
}

// Postgres runs queries on behalf of workflow steps.
type Postgres struct {
	l       *slog.Logger
	db      *sql.DB
	timeout time.Duration
}

// OpenPostgres opens the pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, l *slog.Logger, cfg PostgresConfig) (*Postgres, error) {
	l.InfoContext(ctx, "Opening postgres pool",
		"connection_string", maskConnectionString(cfg.ConnectionString),
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns)

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	return &Postgres{l: l, db: db, timeout: cfg.QueryTimeout}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Handlers returns the functions exposed to steps:
//
//	get(query, params...)   -> {row, found}
//	query(query, params...) -> [row, ...]
//	exec(query, params...)  -> {affected_rows}
func (p *Postgres) Handlers() map[string]any {
	return map[string]any{
		"get":   p.Get,
		"query": p.Query,
		"exec":  p.Exec,
	}
}

func (p *Postgres) Get(query string, params ...any) (map[string]any, error) {
	rows, err := p.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("postgres.get: %w", err)
	}
	if len(rows) == 0 {
		return map[string]any{"found": false, "row": map[string]any{}}, nil
	}
	return map[string]any{"found": true, "row": rows[0]}, nil
}

func (p *Postgres) Query(query string, params ...any) ([]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.l.DebugContext(ctx, "postgres query", "query", query, "params", len(params))

	rows, err := p.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	out := []any{}
	for rows.Next() {
		row, err := scanRow(cols, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *Postgres) Exec(query string, params ...any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	result, err := p.db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("postgres.exec: query failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("postgres.exec: failed to get affected rows: %w", err)
	}
	return map[string]any{"affected_rows": affected}, nil
}

func scanRow(cols []*sql.ColumnType, rows *sql.Rows) (map[string]any, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col.Name()] = columnValue(col.DatabaseTypeName(), values[i])
	}
	return row, nil
}

// columnValue turns driver bytes into strings for textual types lib/pq
// returns raw, and times into RFC 3339 so scripts can handle them.
func columnValue(dbType string, v any) any {
	switch val := v.(type) {
	case []byte:
		switch dbType {
		case "BYTEA":
			return val
		default:
			return string(val)
		}
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return v
	}
}

// maskConnectionString hides the password in URL-style connection strings.
func maskConnectionString(conn string) string {
	scheme := strings.Index(conn, "://")
	if scheme < 0 {
		return conn
	}
	rest := conn[scheme+3:]
	at := strings.Index(rest, "@")
	if at < 0 {
		return conn
	}
	colon := strings.Index(rest[:at], ":")
	if colon < 0 {
		return conn
	}
	return conn[:scheme+3] + rest[:colon+1] + "***" + rest[at:]
}
