package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when a reduction ID does not exist.
var ErrNotFound = errors.New("reduction not found")

// MaxPageSize caps ListReductions.
const MaxPageSize = 200

// HashSource returns the hex BLAKE2b-256 digest of a source's bytes.
func HashSource(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RecordReduction inserts r. A missing ID or CreatedAt is filled in, and
// DurationMs is derived from Duration when unset.
func (d *Database) RecordReduction(ctx context.Context, r *Reduction) (err error) {
	start := time.Now()
	defer func() { recordQuery("record_reduction", start, err) }()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.DurationMs == 0 && r.Duration > 0 {
		r.DurationMs = r.Duration.Milliseconds()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO reductions (id, name, source_hash, source_size, result_size, mime_type,
		attempts, outcome, error_kind, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.SourceHash, r.SourceSize, r.ResultSize, r.MimeType,
		r.Attempts, string(r.Outcome), r.ErrorKind, r.DurationMs, r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert reduction %s: %w", r.ID, err)
	}
	return nil
}

// ListReductions returns history newest first. limit is clamped to
// [1, MaxPageSize] and a negative offset is treated as zero.
func (d *Database) ListReductions(ctx context.Context, limit, offset int) (page *ReductionPage, err error) {
	start := time.Now()
	defer func() { recordQuery("list_reductions", start, err) }()

	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
	SELECT id, name, source_hash, source_size, result_size, mime_type,
		attempts, outcome, error_kind, duration_ms, created_at
	FROM reductions
	ORDER BY created_at DESC, id
	LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page = &ReductionPage{Items: []Reduction{}, Limit: limit, Offset: offset}
	for rows.Next() {
		r, scanErr := scanReduction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		page.Items = append(page.Items, *r)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reductions").Scan(&page.Total); err != nil {
		return nil, err
	}
	return page, nil
}

// CountReductions returns the number of history rows.
func (d *Database) CountReductions(ctx context.Context) (count int, err error) {
	start := time.Now()
	defer func() { recordQuery("count_reductions", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reductions").Scan(&count)
	return count, err
}

// GetReduction returns a single row or ErrNotFound.
func (d *Database) GetReduction(ctx context.Context, id string) (r *Reduction, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			recordQuery("get_reduction", start, nil)
			return
		}
		recordQuery("get_reduction", start, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
	SELECT id, name, source_hash, source_size, result_size, mime_type,
		attempts, outcome, error_kind, duration_ms, created_at
	FROM reductions WHERE id = ?`, id)

	r, err = scanReduction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReduction(s scanner) (*Reduction, error) {
	var r Reduction
	var outcome string
	var created int64

	if err := s.Scan(&r.ID, &r.Name, &r.SourceHash, &r.SourceSize, &r.ResultSize, &r.MimeType,
		&r.Attempts, &outcome, &r.ErrorKind, &r.DurationMs, &created); err != nil {
		return nil, err
	}

	r.Outcome = Outcome(outcome)
	r.Duration = time.Duration(r.DurationMs) * time.Millisecond
	r.CreatedAt = time.UnixMilli(created).UTC()
	return &r, nil
}
