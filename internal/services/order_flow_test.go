package services_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"keycrate/internal/blob"
	"keycrate/internal/domain"
	"keycrate/internal/repos"
	"keycrate/internal/services"
	"keycrate/internal/transport"
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
	CREATE TABLE recipients(user_id INTEGER PRIMARY KEY, username TEXT DEFAULT '',
	  first_name TEXT DEFAULT '', blocked INTEGER DEFAULT 0,
	  joined_at TEXT DEFAULT CURRENT_TIMESTAMP, last_seen TEXT);
	CREATE TABLE owners(id TEXT PRIMARY KEY, user_id INTEGER UNIQUE, name TEXT, token_hash TEXT);
	CREATE TABLE broadcast_jobs(id TEXT PRIMARY KEY, payload TEXT, created_by TEXT,
	  total INTEGER DEFAULT 0, completed INTEGER DEFAULT 0, cancelled INTEGER DEFAULT 0,
	  created_at TEXT DEFAULT CURRENT_TIMESTAMP, finished_at TEXT DEFAULT '');
	CREATE TABLE broadcast_targets(job_id TEXT, user_id INTEGER, status TEXT DEFAULT 'pending',
	  attempts INTEGER DEFAULT 0, last_error TEXT DEFAULT '', updated_at TEXT,
	  PRIMARY KEY(job_id, user_id));
	CREATE TABLE settings(key TEXT PRIMARY KEY, value TEXT);

	INSERT INTO products(id,category,title,features,price,artifact_ref)
	  VALUES ('app-001','Apps','Test App','Feature list',99,'artifacts/app-001.zip');
	INSERT INTO owners(id,user_id,name,token_hash) VALUES
	  ('owner-a',1001,'Alice',''),
	  ('owner-b',1002,'Bruno','');
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}
	return db
}

type sentMsg struct {
	UserID int64
	Msg    transport.Message
}

// fakeSender records every send and plays back scripted outcomes per user;
// users without a script always receive Delivered.
type fakeSender struct {
	mu       sync.Mutex
	calls    []sentMsg
	outcomes map[int64][]transport.Outcome
}

func newFakeSender() *fakeSender {
	return &fakeSender{outcomes: map[int64][]transport.Outcome{}}
}

func (f *fakeSender) script(userID int64, outcomes ...transport.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[userID] = append(f.outcomes[userID], outcomes...)
}

func (f *fakeSender) Send(_ context.Context, userID int64, msg transport.Message) (transport.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentMsg{UserID: userID, Msg: msg})
	if q := f.outcomes[userID]; len(q) > 0 {
		out := q[0]
		f.outcomes[userID] = q[1:]
		if out != transport.Delivered {
			return out, errors.New("send failed")
		}
		return out, nil
	}
	return transport.Delivered, nil
}

func (f *fakeSender) totalSent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) sentTo(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

func testBlobs(t *testing.T) blob.Store {
	t.Helper()
	store, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put("artifacts/app-001.zip", []byte("artifact-bytes")); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestOrderFlow_BuyEvidenceApproveFulfill(t *testing.T) {
	db := testdb(t)
	sender := newFakeSender()
	blobs := testBlobs(t)

	orderRepo := repos.NewOrderRepo(db)
	productRepo := repos.NewProductRepo(db)
	recipientRepo := repos.NewRecipientRepo(db)
	ownerRepo := repos.NewOwnerRepo(db)

	orderSvc := services.NewOrderService(orderRepo, productRepo, ownerRepo, blobs, sender, time.Hour)
	fulfillSvc := services.NewFulfillmentService(orderRepo, productRepo, recipientRepo, blobs, sender, 3, time.Millisecond)
	approvalSvc := services.NewApprovalService(orderRepo, ownerRepo, sender, fulfillSvc)

	ctx := context.Background()
	buyer := int64(42)

	o, err := orderSvc.Start(ctx, buyer, "app-001")
	if err != nil {
		t.Fatal(err)
	}
	if o.State != domain.StateAwaitingEvidence {
		t.Fatalf("want AWAITING_EVIDENCE, got %s", o.State)
	}
	if o.PaymentRef == "" {
		t.Fatal("payment reference missing")
	}
	if sender.sentTo(buyer) != 1 {
		t.Fatalf("buyer should get payment instructions, got %d sends", sender.sentTo(buyer))
	}

	o, err = orderSvc.AttachEvidence(ctx, buyer, "evidence/shot.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if o.State != domain.StateUnderReview || o.EvidenceRef != "evidence/shot.jpg" {
		t.Fatalf("bad order after evidence: %+v", o)
	}
	// both owners get the identical review prompt
	if sender.sentTo(1001) != 1 || sender.sentTo(1002) != 1 {
		t.Fatalf("both owners must be notified, got %d/%d", sender.sentTo(1001), sender.sentTo(1002))
	}

	// a second upload while under review is told so
	if _, err := orderSvc.AttachEvidence(ctx, buyer, "evidence/dupe.jpg"); !errors.Is(err, services.ErrAlreadyUnderReview) {
		t.Fatalf("want ErrAlreadyUnderReview, got %v", err)
	}

	if _, err := approvalSvc.Decide(ctx, domain.OwnerDecision{
		OrderID: o.ID, OwnerID: "owner-a", Verdict: domain.VerdictApprove,
	}); err != nil {
		t.Fatal(err)
	}

	// fulfillment runs async off the decision; wait for the terminal state
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := orderRepo.Get(o.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State == domain.StateFulfilled {
			if got.DecidedBy != "owner-a" {
				t.Fatalf("decided_by lost: %+v", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("order never fulfilled, state=%s", got.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// the artifact itself reached the buyer
	last := func() sentMsg {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		for i := len(sender.calls) - 1; i >= 0; i-- {
			if sender.calls[i].UserID == buyer {
				return sender.calls[i]
			}
		}
		return sentMsg{}
	}()
	if string(last.Msg.Attachment) != "artifact-bytes" {
		t.Fatalf("buyer did not receive the artifact: %+v", last.Msg)
	}
}

func TestOrderFlow_UnknownProductAndNoOpenOrder(t *testing.T) {
	db := testdb(t)
	sender := newFakeSender()
	blobs := testBlobs(t)

	orderRepo := repos.NewOrderRepo(db)
	productRepo := repos.NewProductRepo(db)
	ownerRepo := repos.NewOwnerRepo(db)
	orderSvc := services.NewOrderService(orderRepo, productRepo, ownerRepo, blobs, sender, time.Hour)

	ctx := context.Background()
	if _, err := orderSvc.Start(ctx, 42, "nope"); !errors.Is(err, services.ErrUnknownProduct) {
		t.Fatalf("want ErrUnknownProduct, got %v", err)
	}
	if _, err := orderSvc.AttachEvidence(ctx, 42, "evidence/x.jpg"); !errors.Is(err, services.ErrNoOpenOrder) {
		t.Fatalf("want ErrNoOpenOrder, got %v", err)
	}
}

func TestOrderFlow_UnderReviewReplyUnaffectedByQueueDepth(t *testing.T) {
	db := testdb(t)
	sender := newFakeSender()
	blobs := testBlobs(t)

	orderRepo := repos.NewOrderRepo(db)
	productRepo := repos.NewProductRepo(db)
	ownerRepo := repos.NewOwnerRepo(db)
	orderSvc := services.NewOrderService(orderRepo, productRepo, ownerRepo, blobs, sender, time.Hour)

	// a deep review queue from other buyers
	for i := 0; i < 120; i++ {
		db.MustExec(`INSERT INTO orders(id,buyer_id,product_id,state,payment_ref,evidence_ref)
		  VALUES(?,?,'app-001','UNDER_REVIEW','ref','evidence/x.jpg')`,
			fmt.Sprintf("o-other-%03d", i), int64(10000+i))
	}
	db.MustExec(`INSERT INTO orders(id,buyer_id,product_id,state,payment_ref,evidence_ref)
	  VALUES('o-mine',42,'app-001','UNDER_REVIEW','ref','evidence/mine.jpg')`)

	_, err := orderSvc.AttachEvidence(context.Background(), 42, "evidence/dupe.jpg")
	if !errors.Is(err, services.ErrAlreadyUnderReview) {
		t.Fatalf("want ErrAlreadyUnderReview, got %v", err)
	}
}

func TestOrderFlow_EvidenceTimeoutSweep(t *testing.T) {
	db := testdb(t)
	sender := newFakeSender()
	blobs := testBlobs(t)

	orderRepo := repos.NewOrderRepo(db)
	productRepo := repos.NewProductRepo(db)
	ownerRepo := repos.NewOwnerRepo(db)
	orderSvc := services.NewOrderService(orderRepo, productRepo, ownerRepo, blobs, sender, time.Hour)

	// an order that has been waiting for evidence for two days
	db.MustExec(`INSERT INTO orders(id,buyer_id,product_id,state,payment_ref,created_at)
	  VALUES('o-old',42,'app-001','AWAITING_EVIDENCE','ref', datetime('now','-2 days'))`)

	n, err := orderSvc.CancelStale(context.Background(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("want 1 cancelled, got %d", n)
	}
	got, err := orderRepo.Get("o-old")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StateCancelled {
		t.Fatalf("want CANCELLED, got %s", got.State)
	}
	if sender.sentTo(42) != 1 {
		t.Fatal("buyer should be told about the cancellation")
	}
}
