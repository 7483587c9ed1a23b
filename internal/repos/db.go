package repos

import (
	"log"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"keycrate/internal/config"
)

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	// Seed demo catalog if DB is empty (idempotent; safe to run every start)
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}

	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;
PRAGMA busy_timeout = 5000;

-- Products
CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  category TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  features TEXT,
  price NUMERIC NOT NULL CHECK (price >= 0),
  artifact_ref TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_title    ON products(LOWER(title));

-- Orders (the ledger; rows are never deleted)
CREATE TABLE IF NOT EXISTS orders(
  id TEXT PRIMARY KEY,
  buyer_id INTEGER NOT NULL,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
  state TEXT NOT NULL CHECK (state IN
    ('CREATED','AWAITING_EVIDENCE','UNDER_REVIEW','APPROVED','REJECTED','FULFILLED','CANCELLED')),
  payment_ref TEXT NOT NULL,
  evidence_ref TEXT NOT NULL DEFAULT '',
  reason TEXT NOT NULL DEFAULT '',
  decided_by TEXT NOT NULL DEFAULT '',
  decided_at TEXT NOT NULL DEFAULT '',
  fulfill_attempts INTEGER NOT NULL DEFAULT 0,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_buyer      ON orders(buyer_id);
CREATE INDEX IF NOT EXISTS idx_orders_state      ON orders(state);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

-- Recipients (everyone the transport has seen)
CREATE TABLE IF NOT EXISTS recipients(
  user_id INTEGER PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  first_name TEXT NOT NULL DEFAULT '',
  blocked INTEGER NOT NULL DEFAULT 0,
  joined_at TEXT DEFAULT CURRENT_TIMESTAMP,
  last_seen TEXT
);

-- Owners (the two administrators)
CREATE TABLE IF NOT EXISTS owners(
  id TEXT PRIMARY KEY,
  user_id INTEGER NOT NULL UNIQUE,
  name TEXT NOT NULL,
  token_hash TEXT NOT NULL
);

-- Broadcast jobs with one status row per snapshotted recipient
CREATE TABLE IF NOT EXISTS broadcast_jobs(
  id TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  created_by TEXT NOT NULL,
  total INTEGER NOT NULL DEFAULT 0,
  completed INTEGER NOT NULL DEFAULT 0,
  cancelled INTEGER NOT NULL DEFAULT 0,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  finished_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS broadcast_targets(
  job_id TEXT NOT NULL REFERENCES broadcast_jobs(id) ON DELETE CASCADE,
  user_id INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending'
    CHECK (status IN ('pending','delivered','failed','blocked','skipped')),
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT NOT NULL DEFAULT '',
  updated_at TEXT,
  PRIMARY KEY (job_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_targets_status ON broadcast_targets(job_id, status);

-- Settings (welcome message and other copy)
CREATE TABLE IF NOT EXISTS settings(
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	return err
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo products")

	tx := db.MustBegin()
	tx.MustExec(`INSERT INTO products(id,category,title,description,features,price,artifact_ref) VALUES
	  ('diuwin-premium','Diuwin','Diuwin Premium','Complete premium access to the Diuwin application','Premium features, Ad-free experience, Priority support',299,'artifacts/diuwin-premium.zip'),
	  ('cricket24-pro','Cricket 24','Cricket 24 Pro','Professional cricket tracking and statistics','Live scores, Premium stats, Ad-free viewing',199,'artifacts/cricket24-pro.zip')`)

	tx.MustExec(`INSERT INTO settings(key,value) VALUES
	  ('welcome_message','Welcome to the store! Send "catalog" to browse, "buy <product-id>" to order.')
	  ON CONFLICT(key) DO NOTHING`)

	return tx.Commit()
}

// SeedOwners upserts the two configured administrators with bcrypt-hashed
// API tokens. Safe to run on every startup.
func SeedOwners(db *sqlx.DB, owners []config.OwnerCred) error {
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	for _, o := range owners {
		h, err := bcrypt.GenerateFromPassword([]byte(o.Token), 12)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO owners(id,user_id,name,token_hash)
			VALUES(?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, name=excluded.name, token_hash=excluded.token_hash
		`, o.ID, o.UserID, o.Name, h); err != nil {
			return err
		}
	}

	return tx.Commit()
}
