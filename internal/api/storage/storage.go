package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/model"
	"github.com/llmquality/verbatim-api/shared/postgresql"
)

// Storage handles all database operations for verbatims
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// ContentDraft is the caller-supplied part of a new verbatim; the
// store assigns id, status and created_at.
type ContentDraft struct {
	Content string
	Year    int
}

// CreateVerbatims inserts one record per draft inside a single
// transaction and returns the fully-populated records in input
// order. On any insert failure nothing is committed.
func (s *Storage) CreateVerbatims(ctx context.Context, drafts []ContentDraft) ([]model.Verbatim, error) {
	if len(drafts) == 0 {
		return []model.Verbatim{}, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO verbatims (
			verbatim_id, content, year, status, result, created_at
		) VALUES (
			$1, $2, $3, $4, NULL, $5
		)
	`

	now := time.Now().UTC()
	verbatims := make([]model.Verbatim, 0, len(drafts))

	for _, draft := range drafts {
		v := model.Verbatim{
			VerbatimID: uuid.New().String(),
			Content:    draft.Content,
			Year:       draft.Year,
			Status:     domain.StatusQueued,
			CreatedAt:  now,
		}

		if _, err := tx.ExecContext(ctx, query, v.VerbatimID, v.Content, v.Year, v.Status, v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to create verbatim: %w", err)
		}

		verbatims = append(verbatims, v)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit verbatim batch: %w", err)
	}

	return verbatims, nil
}

// FindByID retrieves a single verbatim. A missing record is not an
// error: both return values are nil.
func (s *Storage) FindByID(ctx context.Context, verbatimID string) (*model.Verbatim, error) {
	query := `
		SELECT verbatim_id, content, year, status, result, created_at
		FROM verbatims
		WHERE verbatim_id = $1
	`

	var verbatims []model.Verbatim
	if err := s.db.SelectContext(ctx, &verbatims, query, verbatimID); err != nil {
		return nil, fmt.Errorf("failed to find verbatim: %w", err)
	}

	if len(verbatims) == 0 {
		return nil, nil
	}

	return &verbatims[0], nil
}

// VerbatimFilter is a conjunction over the optional fields; zero
// values mean "no constraint". Page is 1-indexed.
type VerbatimFilter struct {
	Year      int
	Status    string
	CreatedAt string // date in 2006-01-02 form, matches the whole day
	Page      int
	PageSize  int
}

// BuildListQuery assembles the filtered SELECT and its args. Split
// out of List so the clause construction is testable without a
// database.
func BuildListQuery(filter VerbatimFilter) (string, []interface{}) {
	query := `
		SELECT verbatim_id, content, year, status, result, created_at
		FROM verbatims
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Year != 0 {
		query += fmt.Sprintf(" AND year = $%d", argIdx)
		args = append(args, filter.Year)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.CreatedAt != "" {
		query += fmt.Sprintf(" AND created_at::date = $%d", argIdx)
		args = append(args, filter.CreatedAt)
		argIdx++
	}

	// Stable tiebreak only; no ordering contract beyond that
	query += " ORDER BY created_at, verbatim_id"

	page := filter.Page
	if page < 1 {
		page = 1
	}

	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.PageSize, (page-1)*filter.PageSize)

	return query, args
}

// List returns one page of verbatims matching the filter.
func (s *Storage) List(ctx context.Context, filter VerbatimFilter) ([]model.Verbatim, error) {
	query, args := BuildListQuery(filter)

	verbatims := []model.Verbatim{}
	if err := s.db.SelectContext(ctx, &verbatims, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list verbatims: %w", err)
	}

	return verbatims, nil
}

// UpdateResult carries the two outcomes callers must tell apart:
// whether the record exists at all, and whether the write changed
// anything. A duplicate completion lands as Matched && !Modified.
type UpdateResult struct {
	Matched  bool
	Modified bool
}

// UpdateStatus sets status and result on one record. A nil result
// clears the column, which every transition except SUCCEEDED
// requires. The UPDATE only touches rows whose state actually
// differs, so re-applying identical state reports Modified=false.
func (s *Storage) UpdateStatus(ctx context.Context, verbatimID, status string, result []byte) (UpdateResult, error) {
	query := `
		UPDATE verbatims
		SET status = $1,
		    result = $2
		WHERE verbatim_id = $3
		  AND (status IS DISTINCT FROM $1 OR result IS DISTINCT FROM $2::jsonb)
	`

	res, err := s.db.ExecContext(ctx, query, status, result, verbatimID)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to update verbatim status: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return UpdateResult{Matched: true, Modified: true}, nil
	}

	// Nothing changed: distinguish "no such record" from a no-op
	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM verbatims WHERE verbatim_id = $1)`
	if err := s.db.GetContext(ctx, &exists, probe, verbatimID); err != nil {
		return UpdateResult{}, fmt.Errorf("failed to check verbatim existence: %w", err)
	}

	return UpdateResult{Matched: exists, Modified: false}, nil
}

// Delete removes the given verbatims. Ids not present are silently
// ignored; the returned count covers rows actually removed.
func (s *Storage) Delete(ctx context.Context, verbatimIDs []string) (int64, error) {
	if len(verbatimIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`DELETE FROM verbatims WHERE verbatim_id IN (?)`, verbatimIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete verbatims: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// StatusCounts holds collection totals broken down by status.
type StatusCounts struct {
	Total     int64 `db:"total"`
	Queued    int64 `db:"total_queued"`
	Succeeded int64 `db:"total_succeeded"`
	Failed    int64 `db:"total_failed"`
}

// Count returns the collection totals in a single query.
func (s *Storage) Count(ctx context.Context) (StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = $1) AS total_queued,
			COUNT(*) FILTER (WHERE status = $2) AS total_succeeded,
			COUNT(*) FILTER (WHERE status = $3) AS total_failed
		FROM verbatims
	`

	var counts StatusCounts
	err := s.db.GetContext(ctx, &counts, query,
		domain.StatusQueued, domain.StatusSucceeded, domain.StatusFailed)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("failed to count verbatims: %w", err)
	}

	return counts, nil
}
