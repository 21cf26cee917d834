package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

type SchoolsRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.School, error)
}

type SchoolsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSchoolsRepository(db *sqlx.DB) *SchoolsRepositoryImpl {
	return &SchoolsRepositoryImpl{db: db}
}

var _ SchoolsRepository = (*SchoolsRepositoryImpl)(nil)

// GetByAPIKey returns nil, nil for an unknown key.
func (r *SchoolsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.School, error) {
	var s model.School
	err := r.db.GetContext(ctx, &s, `
		SELECT id, name, api_key, status, rate_limit_rps, phone, email, address, created_at, updated_at
		  FROM schools
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
