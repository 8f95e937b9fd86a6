package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists one domain's records in a dedicated table with the
// same column layout as the CSV file. Appends only; rows are never updated.
type PostgresStore struct {
	spec   Spec
	table  string
	pool   *pgxpool.Pool
	logger *slog.Logger
	ids    *idGenerator
}

func NewPostgresStore(ctx context.Context, spec Spec, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{
		spec:   spec,
		table:  spec.Domain + "_records",
		pool:   pool,
		logger: logger,
		ids:    newIDGenerator(),
	}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	cols := make([]string, 0, len(s.spec.Columns))
	for _, col := range s.spec.Columns {
		def := col + " TEXT NOT NULL DEFAULT ''"
		if col == s.spec.IDField {
			def = col + " TEXT PRIMARY KEY"
		}
		cols = append(cols, def)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", s.table, strings.Join(cols, ", "))
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init %s schema: %w", s.spec.Domain, err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, fields map[string]string) Result {
	if missing := s.spec.missingRequired(fields); len(missing) > 0 {
		return Result{Success: false, Missing: missing}
	}

	id, now := s.ids.next(s.spec.Prefix)
	rec := s.spec.row(id, fields, now)

	placeholders := make([]string, len(s.spec.Columns))
	args := make([]any, len(s.spec.Columns))
	for i, col := range s.spec.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[col]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(s.spec.Columns, ", "), strings.Join(placeholders, ", "))
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return Result{Err: fmt.Errorf("insert %s record: %w", s.spec.Domain, err)}
	}

	s.logger.Info("record saved", "domain", s.spec.Domain, "id", id)
	return Result{Success: true, ID: id}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (map[string]string, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(s.spec.Columns, ", "), s.table, s.spec.IDField)
	row := s.pool.QueryRow(ctx, stmt, id)

	values := make([]string, len(s.spec.Columns))
	scan := make([]any, len(s.spec.Columns))
	for i := range values {
		scan[i] = &values[i]
	}
	if err := row.Scan(scan...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("query %s record: %w", s.spec.Domain, err)
	}

	rec := make(map[string]string, len(s.spec.Columns))
	for i, col := range s.spec.Columns {
		rec[col] = values[i]
	}
	return rec, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
