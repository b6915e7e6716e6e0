// Package pool narrows pgxpool into interfaces the document store depends on.
package pool

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Queryer sends SQL. Implemented by Pool and Tx.
type Queryer interface {
	// Exec runs a command without result rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Begin starts a transaction.
type Begin interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the subset of pgx.Tx used for document writes.
type Tx interface {
	Queryer

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Pool is the subset of *pgxpool.Pool shared by delegates of a node.
type Pool interface {
	Queryer
	Begin

	Ping(ctx context.Context) error
	Close()
}

type tx struct {
	pgx.Tx
}

type pgxPool struct {
	*pgxpool.Pool
}

var _ Pool = pgxPool{}

func (p pgxPool) Begin(ctx context.Context) (Tx, error) {
	t, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx{t}, nil
}

// Wrap makes p a Pool.
func Wrap(p *pgxpool.Pool) Pool {
	return pgxPool{p}
}

// Connect opens a pool to the database at url.
func Connect(ctx context.Context, url string) (Pool, error) {
	p, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return Wrap(p), nil
}

// InTx runs f in a transaction, and commits when f returns nil. Otherwise, it rolls back.
func InTx(ctx context.Context, b Begin, f func(Tx) error) error {
	t, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer t.Rollback(ctx)

	if err := f(t); err != nil {
		return err
	}
	return t.Commit(ctx)
}
