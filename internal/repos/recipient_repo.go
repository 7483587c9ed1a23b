package repos

import (
	"github.com/jmoiron/sqlx"

	"keycrate/internal/domain"
)

type RecipientRepo struct{ db *sqlx.DB }

func NewRecipientRepo(db *sqlx.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// Upsert records a user the transport has seen and bumps last_seen. The
// blocked flag is preserved across upserts.
func (r *RecipientRepo) Upsert(userID int64, username, firstName string) error {
	_, err := r.db.Exec(`
	  INSERT INTO recipients(user_id, username, first_name, joined_at, last_seen)
	  VALUES(?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	  ON CONFLICT(user_id) DO UPDATE SET
	    username = excluded.username,
	    first_name = excluded.first_name,
	    last_seen = CURRENT_TIMESTAMP
	`, userID, username, firstName)
	return err
}

func (r *RecipientRepo) Get(userID int64) (domain.Recipient, error) {
	var rec domain.Recipient
	err := r.db.Get(&rec, `
	  SELECT user_id, username, first_name, blocked, joined_at, COALESCE(last_seen,'') AS last_seen
	  FROM recipients WHERE user_id = ?
	`, userID)
	return rec, err
}

// ListReachable returns every recipient not marked blocked; this is the
// snapshot a broadcast job is built from.
func (r *RecipientRepo) ListReachable() ([]domain.Recipient, error) {
	var out []domain.Recipient
	err := r.db.Select(&out, `
	  SELECT user_id, username, first_name, blocked, joined_at, COALESCE(last_seen,'') AS last_seen
	  FROM recipients WHERE blocked = 0
	  ORDER BY user_id
	`)
	return out, err
}

// MarkBlocked is set on permanent delivery failure; no job attempts the
// recipient again.
func (r *RecipientRepo) MarkBlocked(userID int64) error {
	_, err := r.db.Exec(`UPDATE recipients SET blocked = 1 WHERE user_id = ?`, userID)
	return err
}

func (r *RecipientRepo) Count() (int, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM recipients WHERE blocked = 0`)
	return n, err
}
