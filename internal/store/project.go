package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalalland/topcoder-x-processor/internal/model"
)

type projectStore struct {
	pool *pgxpool.Pool
}

func newProjectStore(pool *pgxpool.Pool) ProjectStore {
	return &projectStore{pool: pool}
}

func (s *projectStore) GetByRepoURL(ctx context.Context, repoURL string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, repo_url, tc_direct_id, billing_account_id, copilot, archived, created_at, updated_at
		 FROM projects WHERE repo_url = $1 AND archived = false`,
		repoURL)

	var project model.Project
	err := row.Scan(
		&project.ID,
		&project.RepoURL,
		&project.TCDirectID,
		&project.BillingAccountID,
		&project.Copilot,
		&project.Archived,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}
