package repos

import (
	"github.com/jmoiron/sqlx"

	"keycrate/internal/domain"
)

type OwnerRepo struct{ db *sqlx.DB }

func NewOwnerRepo(db *sqlx.DB) *OwnerRepo { return &OwnerRepo{db: db} }

func (r *OwnerRepo) Get(id string) (domain.Owner, error) {
	var o domain.Owner
	err := r.db.Get(&o, `SELECT id, user_id, name, token_hash FROM owners WHERE id = ?`, id)
	return o, err
}

func (r *OwnerRepo) List() ([]domain.Owner, error) {
	var out []domain.Owner
	err := r.db.Select(&out, `SELECT id, user_id, name, token_hash FROM owners ORDER BY id`)
	return out, err
}
