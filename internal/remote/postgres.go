package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = "id, coalesce(row_id, '') AS row_id, grau_satisfacao, data, hora, dia_semana, created_at, client_timestamp"

// Schema creates the feedback table used by PostgresStore when it does not exist yet.
const Schema = `CREATE TABLE IF NOT EXISTS %s (
	id bigint PRIMARY KEY,
	row_id text DEFAULT gen_random_uuid()::text,
	grau_satisfacao text NOT NULL CHECK (grau_satisfacao IN ('muito_satisfeito', 'satisfeito', 'insatisfeito')),
	data text NOT NULL,
	hora text NOT NULL,
	dia_semana text NOT NULL,
	created_at timestamptz NOT NULL,
	client_timestamp timestamptz NOT NULL
)`

// PostgresStore implements Service directly on a Postgres pool. Driver errors are
// surfaced as *Error carrying the SQLSTATE, so policy failures (42501) classify the
// same way they do over HTTP.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool for dsn.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context, table string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(Schema, pgx.Identifier{table}.Sanitize()))
	return translatePgError(err)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return translatePgError(s.pool.Ping(ctx))
}

func (s *PostgresStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return Row{}, fmt.Errorf("remote: created_at: %w", err)
	}
	clientTimestamp, err := time.Parse(time.RFC3339Nano, row.ClientTimestamp)
	if err != nil {
		return Row{}, fmt.Errorf("remote: client_timestamp: %w", err)
	}

	statement := "INSERT INTO " + pgx.Identifier{table}.Sanitize() +
		" (id, grau_satisfacao, data, hora, dia_semana, created_at, client_timestamp)" +
		" VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING " + selectColumns

	rows, err := s.pool.Query(ctx, statement,
		row.ID, row.Grade, row.Date, row.Time, row.Weekday, createdAt, clientTimestamp)
	if err != nil {
		return Row{}, translatePgError(err)
	}
	inserted, err := collectRows(rows)
	if err != nil {
		return Row{}, err
	}
	if len(inserted) == 0 {
		return row, nil
	}
	return inserted[0], nil
}

func (s *PostgresStore) Select(ctx context.Context, table string, query Query) ([]Row, error) {
	where, args, err := buildWhere(query.Filters)
	if err != nil {
		return nil, err
	}
	statement := "SELECT " + selectColumns + " FROM " + pgx.Identifier{table}.Sanitize() + where

	if len(query.Order) > 0 {
		parts := make([]string, 0, len(query.Order))
		for _, order := range query.Order {
			if err := validateColumn(order.Column); err != nil {
				return nil, err
			}
			direction := " ASC"
			if order.Descending {
				direction = " DESC"
			}
			parts = append(parts, pgx.Identifier{order.Column}.Sanitize()+direction)
		}
		statement += " ORDER BY " + strings.Join(parts, ", ")
	}
	if query.Limit > 0 {
		args = append(args, query.Limit)
		statement += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if query.Offset > 0 {
		args = append(args, query.Offset)
		statement += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	return collectRows(rows)
}

func (s *PostgresStore) Count(ctx context.Context, table string, filters []Filter) (int64, error) {
	where, args, err := buildWhere(filters)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{table}.Sanitize()+where, args...).Scan(&count)
	if err != nil {
		return 0, translatePgError(err)
	}
	return count, nil
}

type pgRow struct {
	ID              int64     `db:"id"`
	RowID           string    `db:"row_id"`
	Grade           string    `db:"grau_satisfacao"`
	Date            string    `db:"data"`
	Time            string    `db:"hora"`
	Weekday         string    `db:"dia_semana"`
	CreatedAt       time.Time `db:"created_at"`
	ClientTimestamp time.Time `db:"client_timestamp"`
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[pgRow])
	if err != nil {
		return nil, translatePgError(err)
	}
	result := make([]Row, 0, len(collected))
	for _, item := range collected {
		result = append(result, Row{
			ID:              item.ID,
			RowID:           item.RowID,
			Grade:           item.Grade,
			Date:            item.Date,
			Time:            item.Time,
			Weekday:         item.Weekday,
			CreatedAt:       item.CreatedAt.UTC().Format(time.RFC3339Nano),
			ClientTimestamp: item.ClientTimestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return result, nil
}

// buildWhere renders filters as a parameterised WHERE clause. Timestamp columns are
// compared as timestamptz so ISO strings order correctly.
func buildWhere(filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, filter := range filters {
		if err := validateColumn(filter.Column); err != nil {
			return "", nil, err
		}
		var operator string
		switch filter.Op {
		case OpEq:
			operator = "="
		case OpGte:
			operator = ">="
		case OpLte:
			operator = "<="
		default:
			return "", nil, fmt.Errorf("remote: unsupported operator %q", filter.Op)
		}
		args = append(args, filter.Value)
		placeholder := fmt.Sprintf("$%d::text", len(args))
		switch filter.Column {
		case "created_at", "client_timestamp":
			placeholder += "::timestamptz"
		case "id":
			placeholder += "::bigint"
		}
		clauses = append(clauses, pgx.Identifier{filter.Column}.Sanitize()+" "+operator+" "+placeholder)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
			Err:     err,
		}
	}
	return &Error{Message: "postgres request failed", Err: err}
}
