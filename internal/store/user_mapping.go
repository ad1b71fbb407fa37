package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalalland/topcoder-x-processor/internal/model"
)

type userMappingStore struct {
	pool *pgxpool.Pool
}

func newUserMappingStore(pool *pgxpool.Pool) UserMappingStore {
	return &userMappingStore{pool: pool}
}

func (s *userMappingStore) GetByProviderUserID(ctx context.Context, provider model.Provider, providerUserID int64) (*model.UserMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, provider, provider_user_id, provider_user_login, topcoder_handle, created_at
		 FROM user_mappings WHERE provider = $1 AND provider_user_id = $2`,
		string(provider), providerUserID)

	var (
		mapping     model.UserMapping
		providerCol string
	)
	err := row.Scan(
		&mapping.ID,
		&providerCol,
		&mapping.ProviderUserID,
		&mapping.ProviderUserLogin,
		&mapping.TopcoderHandle,
		&mapping.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	mapping.Provider = model.Provider(providerCol)
	return &mapping, nil
}
