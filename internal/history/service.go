// Package history records task submissions and their per-task outcomes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slipstream/homecloud/internal/remote/types"
)

const (
	timeLayout = "2006-01-02 15:04:05.000000"

	defaultLimit = 50
	maxLimit     = 500
)

// Service provides submission history storage.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
		now:    time.Now,
	}
}

// Record stores every submitted descriptor under a new batch id, paired with the
// per-task outcome the server reported for it. Nothing is stored for an empty
// submission and the returned batch id is empty.
func (s *Service) Record(ctx context.Context, peerID, path string, descriptors []types.TaskDescriptor, result *types.SubmitResult) (string, error) {
	if len(descriptors) == 0 {
		return "", nil
	}

	batchID := uuid.NewString()
	createdAt := s.now().UTC().Format(timeLayout)
	outcomes := matchOutcomes(descriptors, result)

	rtn := 0
	if result != nil {
		rtn = result.Rtn
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO submissions (batch_id, peer_id, path, url, name, filesize, rtn, result, task_id, msg, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range descriptors {
		var (
			res    sql.NullInt64
			taskID sql.NullString
			msg    sql.NullString
		)
		if o := outcomes[i]; o != nil {
			res = sql.NullInt64{Int64: int64(o.Result), Valid: true}
			taskID = sql.NullString{String: o.TaskID, Valid: o.TaskID != ""}
			msg = sql.NullString{String: o.Msg, Valid: o.Msg != ""}
		}

		if _, err := stmt.ExecContext(ctx, batchID, peerID, path, d.URL, d.Name, d.FileSize, rtn, res, taskID, msg, createdAt); err != nil {
			return "", fmt.Errorf("failed to insert submission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit submissions: %w", err)
	}

	s.logger.Debug().
		Str("batchId", batchID).
		Str("pid", peerID).
		Int("count", len(descriptors)).
		Msg("recorded submission batch")

	return batchID, nil
}

// matchOutcomes pairs each descriptor with the server's per-task entry, by URL
// first and by position when the URL was rewritten.
func matchOutcomes(descriptors []types.TaskDescriptor, result *types.SubmitResult) []*types.SubmittedTask {
	outcomes := make([]*types.SubmittedTask, len(descriptors))
	if result == nil || len(result.Tasks) == 0 {
		return outcomes
	}

	used := make([]bool, len(result.Tasks))
	for i, d := range descriptors {
		for j := range result.Tasks {
			if !used[j] && result.Tasks[j].URL == d.URL {
				outcomes[i] = &result.Tasks[j]
				used[j] = true
				break
			}
		}
	}

	for i := range descriptors {
		if outcomes[i] == nil && i < len(result.Tasks) && !used[i] {
			outcomes[i] = &result.Tasks[i]
			used[i] = true
		}
	}

	return outcomes
}

// List returns the most recent entries, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	limit := opts.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var (
		where []string
		args  []any
	)
	if opts.PeerID != "" {
		where = append(where, "peer_id = ?")
		args = append(args, opts.PeerID)
	}
	if opts.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, opts.BatchID)
	}

	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions"+filter, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, peer_id, path, url, name, filesize, rtn, result, task_id, msg, created_at
		FROM submissions`+filter+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}

	return &ListResponse{Items: items, Total: total}, nil
}

// DeleteOlderThan removes entries recorded before cutoff and returns how many went.
func (s *Service) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM submissions WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old submissions: %w", err)
	}
	return res.RowsAffected()
}

// Cleanup deletes entries older than retentionDays. Zero or less keeps everything.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted, err := s.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Int64("deleted", deleted).
		Int("retentionDays", retentionDays).
		Msg("cleaned up submission history")
	return deleted, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e         Entry
		result    sql.NullInt64
		taskID    sql.NullString
		msg       sql.NullString
		createdAt string
	)

	if err := rows.Scan(&e.ID, &e.BatchID, &e.PeerID, &e.Path, &e.URL, &e.Name, &e.FileSize, &e.Rtn, &result, &taskID, &msg, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	if result.Valid {
		r := int(result.Int64)
		e.Result = &r
	}
	e.TaskID = taskID.String
	e.Msg = msg.String

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	e.CreatedAt = t

	return &e, nil
}
