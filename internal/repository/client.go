package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/healthy-mentoring/server-go/internal/model"
)

type ClientRepository interface {
	FindByID(ctx context.Context, id string) (*model.ClientProfile, error)
	FindByAccountID(ctx context.Context, accountID string) (*model.ClientProfile, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ClientRepository
}

type clientRepo struct {
	db sqlxDB
}

func NewClientRepository(db *sqlx.DB) ClientRepository {
	return &clientRepo{db: db}
}

func (r *clientRepo) WithTx(tx *sqlx.Tx) ClientRepository {
	return &clientRepo{db: tx}
}

func (r *clientRepo) FindByID(ctx context.Context, id string) (*model.ClientProfile, error) {
	var client model.ClientProfile
	err := r.db.GetContext(ctx, &client, `
		SELECT * FROM client_profiles WHERE id = $1
	`, id)
	return HandleNotFound(&client, err)
}

func (r *clientRepo) FindByAccountID(ctx context.Context, accountID string) (*model.ClientProfile, error) {
	var client model.ClientProfile
	err := r.db.GetContext(ctx, &client, `
		SELECT * FROM client_profiles WHERE account_id = $1
	`, accountID)
	return HandleNotFound(&client, err)
}
