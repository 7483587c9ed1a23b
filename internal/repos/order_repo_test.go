package repos_test

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"keycrate/internal/domain"
	"keycrate/internal/repos"
)

func testdb(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "kc.db") + "?_pragma=busy_timeout(10000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	schema := `
	CREATE TABLE products(id TEXT PRIMARY KEY, category TEXT, title TEXT, description TEXT,
	  features TEXT, price NUMERIC, artifact_ref TEXT, active INTEGER DEFAULT 1,
	  created_at TEXT DEFAULT CURRENT_TIMESTAMP);
	CREATE TABLE orders(id TEXT PRIMARY KEY, buyer_id INTEGER, product_id TEXT, state TEXT,
	  payment_ref TEXT, evidence_ref TEXT DEFAULT '', reason TEXT DEFAULT '',
	  decided_by TEXT DEFAULT '', decided_at TEXT DEFAULT '', fulfill_attempts INTEGER DEFAULT 0,
	  created_at TEXT DEFAULT CURRENT_TIMESTAMP, updated_at TEXT);

	INSERT INTO products(id,category,title,features,price,artifact_ref)
	  VALUES ('app-001','Apps','Test App','Feature list',99,'artifacts/app-001.zip');
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestCompareAndTransition(t *testing.T) {
	db := testdb(t)
	orders := repos.NewOrderRepo(db)

	o := domain.Order{ID: "o-1", BuyerID: 7, ProductID: "app-001", PaymentRef: "ref-1"}
	if err := orders.Create(o); err != nil {
		t.Fatal(err)
	}

	// legal edge commits
	ok, err := orders.CompareAndTransition("o-1", domain.StateCreated, domain.StateAwaitingEvidence, repos.TransitionMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected transition to commit")
	}

	// stale expected state fails the precondition, changes nothing
	ok, err = orders.CompareAndTransition("o-1", domain.StateCreated, domain.StateAwaitingEvidence, repos.TransitionMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("stale precondition should not commit")
	}
	got, err := orders.Get("o-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StateAwaitingEvidence {
		t.Fatalf("want AWAITING_EVIDENCE, got %s", got.State)
	}

	// edges outside the graph are refused outright
	if _, err := orders.CompareAndTransition("o-1", domain.StateAwaitingEvidence, domain.StateFulfilled, repos.TransitionMeta{}); err == nil {
		t.Fatal("expected illegal transition error")
	}
}

func TestTransitionWritesMetadataAtomically(t *testing.T) {
	db := testdb(t)
	orders := repos.NewOrderRepo(db)

	if err := orders.Create(domain.Order{ID: "o-2", BuyerID: 8, ProductID: "app-001", PaymentRef: "ref-2"}); err != nil {
		t.Fatal(err)
	}
	mustTransition(t, orders, "o-2", domain.StateCreated, domain.StateAwaitingEvidence, repos.TransitionMeta{})
	mustTransition(t, orders, "o-2", domain.StateAwaitingEvidence, domain.StateUnderReview, repos.TransitionMeta{EvidenceRef: "evidence/o-2.jpg"})
	mustTransition(t, orders, "o-2", domain.StateUnderReview, domain.StateRejected, repos.TransitionMeta{DecidedBy: "owner-a", Reason: "amount mismatch"})

	got, err := orders.Get("o-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StateRejected || got.DecidedBy != "owner-a" || got.Reason != "amount mismatch" {
		t.Fatalf("decision metadata not written: %+v", got)
	}
	if got.EvidenceRef != "evidence/o-2.jpg" {
		t.Fatalf("evidence ref lost: %+v", got)
	}
	if got.DecidedAt == "" {
		t.Fatal("decided_at should be set on decision")
	}
}

func mustTransition(t *testing.T, orders *repos.OrderRepo, id string, from, to domain.OrderState, meta repos.TransitionMeta) {
	t.Helper()
	ok, err := orders.CompareAndTransition(id, from, to, meta)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("transition %s -> %s did not commit", from, to)
	}
}
