package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrStatusConflict is returned by a guarded status write when the row no
// longer holds the status the caller read.
var ErrStatusConflict = errors.New("status changed concurrently")

// inTx runs fn in a transaction and commits when fn succeeds.
func inTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const (
	pgInvalidText         = "22P02"
	pgForeignKeyViolation = "23503"
)

// notFound 把查不到的行和非 UUID 的 id（22P02）都当作 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || hasPgCode(err, pgInvalidText) {
		return ErrNotFound
	}
	return err
}

// notFoundOnFK maps a foreign key violation (missing parent row) to ErrNotFound.
func notFoundOnFK(err error) error {
	if hasPgCode(err, pgForeignKeyViolation) || hasPgCode(err, pgInvalidText) {
		return ErrNotFound
	}
	return err
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// mustAffect turns a zero-row write into ErrNotFound.
func mustAffect(n int64) error {
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// dateOnly drops the clock part so DATE columns round-trip.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
