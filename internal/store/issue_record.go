package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalalland/topcoder-x-processor/common/id"
	"github.com/lalalland/topcoder-x-processor/internal/model"
)

const issueRecordColumns = `id, number, provider, repository_id, title, body, prizes, labels,
	assignee, assigned_at, challenge_id, status, project_id, created_at, updated_at`

type issueRecordStore struct {
	pool *pgxpool.Pool
}

func newIssueRecordStore(pool *pgxpool.Pool) IssueRecordStore {
	return &issueRecordStore{pool: pool}
}

func (s *issueRecordStore) GetByKey(ctx context.Context, key IssueKey) (*model.IssueRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM issue_records
		WHERE number = $1 AND provider = $2 AND repository_id = $3`, issueRecordColumns)

	row := s.pool.QueryRow(ctx, query, key.Number, string(key.Provider), key.RepositoryID)
	record, err := scanIssueRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *issueRecordStore) CreatePending(ctx context.Context, record *model.IssueRecord) (*model.IssueRecord, error) {
	query := fmt.Sprintf(`INSERT INTO issue_records
		(id, number, provider, repository_id, title, body, prizes, labels, status, project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s`, issueRecordColumns)

	recordID := record.ID
	if recordID == 0 {
		recordID = id.New()
	}

	row := s.pool.QueryRow(ctx, query,
		recordID,
		record.Number,
		string(record.Provider),
		record.RepositoryID,
		record.Title,
		record.Body,
		intsToInt32(record.Prizes),
		record.Labels,
		string(model.ChallengeCreationPending),
		record.ProjectID,
	)

	created, err := scanIssueRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation on the issue key
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return created, nil
}

func (s *issueRecordStore) Update(ctx context.Context, key IssueKey, patch IssueRecordUpdate) (*model.IssueRecord, error) {
	sets := []string{"updated_at = now()"}
	args := []any{key.Number, string(key.Provider), key.RepositoryID}

	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Title != nil {
		add("title = $%d", *patch.Title)
	}
	if patch.Body != nil {
		add("body = $%d", *patch.Body)
	}
	if patch.Prizes != nil {
		add("prizes = $%d", intsToInt32(patch.Prizes))
	}
	if patch.Labels != nil {
		add("labels = $%d", patch.Labels)
	}
	if patch.Assignee != nil {
		add("assignee = $%d", *patch.Assignee)
	}
	if patch.AssignedAt != nil {
		if *patch.AssignedAt == nil {
			sets = append(sets, "assigned_at = NULL")
		} else {
			add("assigned_at = to_timestamp($%d)", **patch.AssignedAt)
		}
	}
	if patch.ChallengeID != nil {
		add("challenge_id = $%d", *patch.ChallengeID)
	}
	if patch.Status != nil {
		add("status = $%d", string(*patch.Status))
	}

	query := fmt.Sprintf(`UPDATE issue_records SET %s
		WHERE number = $1 AND provider = $2 AND repository_id = $3
		RETURNING %s`, strings.Join(sets, ", "), issueRecordColumns)

	row := s.pool.QueryRow(ctx, query, args...)
	record, err := scanIssueRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *issueRecordStore) Delete(ctx context.Context, key IssueKey) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM issue_records WHERE number = $1 AND provider = $2 AND repository_id = $3`,
		key.Number, string(key.Provider), key.RepositoryID)
	return err
}

func (s *issueRecordStore) ListByRepository(ctx context.Context, provider model.Provider, repositoryID int64) ([]model.IssueRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM issue_records
		WHERE provider = $1 AND repository_id = $2
		ORDER BY created_at DESC`, issueRecordColumns)

	rows, err := s.pool.Query(ctx, query, string(provider), repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.IssueRecord
	for rows.Next() {
		record, err := scanIssueRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func scanIssueRecord(row pgx.Row) (*model.IssueRecord, error) {
	var (
		record     model.IssueRecord
		provider   string
		status     string
		prizes     []int32
		assignedAt *time.Time
	)

	err := row.Scan(
		&record.ID,
		&record.Number,
		&provider,
		&record.RepositoryID,
		&record.Title,
		&record.Body,
		&prizes,
		&record.Labels,
		&record.Assignee,
		&assignedAt,
		&record.ChallengeID,
		&status,
		&record.ProjectID,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Provider = model.Provider(provider)
	record.Status = model.ChallengeStatus(status)
	record.Prizes = int32sToInts(prizes)
	record.AssignedAt = assignedAt
	return &record, nil
}

func intsToInt32(values []int) []int32 {
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = int32(v)
	}
	return out
}

func int32sToInts(values []int32) []int {
	if values == nil {
		return nil
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
