package repos

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type SettingsRepo struct{ db *sqlx.DB }

func NewSettingsRepo(db *sqlx.DB) *SettingsRepo { return &SettingsRepo{db: db} }

func (r *SettingsRepo) Get(key, fallback string) (string, error) {
	var v string
	err := r.db.Get(&v, `SELECT value FROM settings WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *SettingsRepo) Set(key, value string) error {
	_, err := r.db.Exec(`
	  INSERT INTO settings(key, value) VALUES(?, ?)
	  ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
