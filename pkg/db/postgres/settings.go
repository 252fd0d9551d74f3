// Package postgres stores settings records in the table "scalar_settings".
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/opst/scalarboard/pkg/db"
	"github.com/opst/scalarboard/pkg/db/postgres/pool"
	xe "github.com/opst/scalarboard/pkg/errors"
)

// ErrSchemaNotInstalled is returned when the table is not there. Call Install.
var ErrSchemaNotInstalled = errors.New("postgres: settings table is not installed")

const schema = `
CREATE TABLE IF NOT EXISTS "scalar_settings" (
	"key" varchar PRIMARY KEY,
	"body" jsonb NOT NULL,
	"updated_at" timestamp with time zone NOT NULL DEFAULT now()
);
`

type pgSettings struct {
	pool pool.Pool
}

var _ db.SettingsInterface = &pgSettings{}

// Settings is a db.SettingsInterface backed by Postgres.
type Settings interface {
	db.SettingsInterface

	// Install creates the table if it does not exist.
	Install(ctx context.Context) error

	Close()
}

// New connects to the database at url and installs the table.
func New(ctx context.Context, url string) (Settings, error) {
	p, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	s := Wrap(pool.Wrap(p))
	if err := s.Install(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// Wrap makes Settings on a connection pool.
func Wrap(p pool.Pool) Settings {
	return &pgSettings{pool: p}
}

func (s *pgSettings) Install(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, schema); err != nil {
		return xe.WrapWithNote("installing schema", err)
	}
	return nil
}

func (s *pgSettings) Load(ctx context.Context, key string) ([]byte, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer conn.Release()

	rows, err := conn.Query(
		ctx, `select "body" from "scalar_settings" where "key" = $1`, key,
	)
	if err != nil {
		return nil, wrapPgErr(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapPgErr(err)
		}
		return nil, fmt.Errorf("%w: %s", db.ErrMissing, key)
	}

	var body pgtype.JSONB
	if err := rows.Scan(&body); err != nil {
		return nil, xe.Wrap(err)
	}
	if body.Status != pgtype.Present {
		return nil, fmt.Errorf("%w: %s (null)", db.ErrMissing, key)
	}
	return body.Bytes, nil
}

func (s *pgSettings) Save(ctx context.Context, key string, body []byte) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer conn.Release()

	_, err = conn.Exec(
		ctx,
		`
		insert into "scalar_settings" ("key", "body") values ($1, $2)
		on conflict ("key") do update
		set "body" = excluded."body", "updated_at" = now()
		`,
		key, pgtype.JSONB{Bytes: body, Status: pgtype.Present},
	)
	return wrapPgErr(err)
}

func (s *pgSettings) Delete(ctx context.Context, key string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `delete from "scalar_settings" where "key" = $1`, key)
	return wrapPgErr(err)
}

func (s *pgSettings) Close() {
	s.pool.Close()
}

func wrapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UndefinedTable {
		return xe.Wrap(fmt.Errorf("%w: %w", ErrSchemaNotInstalled, err))
	}
	return xe.WrapAsOuter(err, 1)
}
