package repos_test

import (
	"database/sql"
	"errors"
	"testing"

	"keycrate/internal/domain"
	"keycrate/internal/repos"
)

func TestDeleteRefusedOnceSold(t *testing.T) {
	db := testdb(t)
	products := repos.NewProductRepo(db)
	orders := repos.NewOrderRepo(db)

	// one sale against the seeded product
	if err := orders.Create(domain.Order{ID: "o-sold", BuyerID: 7, ProductID: "app-001", PaymentRef: "ref"}); err != nil {
		t.Fatal(err)
	}

	if err := products.Delete("app-001"); !errors.Is(err, repos.ErrProductSold) {
		t.Fatalf("want ErrProductSold, got %v", err)
	}
	if _, err := products.Get("app-001"); err != nil {
		t.Fatalf("sold product must keep its row: %v", err)
	}

	// deactivation is the allowed way out; the artifact ref stays resolvable
	if err := products.Deactivate("app-001"); err != nil {
		t.Fatal(err)
	}
	p, err := products.Get("app-001")
	if err != nil {
		t.Fatal(err)
	}
	if p.Active {
		t.Fatal("product should be inactive")
	}
	if p.ArtifactRef != "artifacts/app-001.zip" {
		t.Fatalf("artifact ref changed: %q", p.ArtifactRef)
	}
	if got, err := orders.Get("o-sold"); err != nil || got.ProductID != "app-001" {
		t.Fatalf("order must still resolve its product: %+v, %v", got, err)
	}
}

func TestDeleteUnsoldProduct(t *testing.T) {
	db := testdb(t)
	products := repos.NewProductRepo(db)

	if err := products.Add(domain.Product{
		ID: "app-002", Category: "Apps", Title: "Other App",
		Price: 49, ArtifactRef: "artifacts/app-002.zip",
	}); err != nil {
		t.Fatal(err)
	}
	if err := products.Delete("app-002"); err != nil {
		t.Fatal(err)
	}
	if _, err := products.Get("app-002"); err != sql.ErrNoRows {
		t.Fatalf("want ErrNoRows after delete, got %v", err)
	}
}
