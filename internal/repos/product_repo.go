package repos

import (
	"errors"

	"github.com/jmoiron/sqlx"

	"keycrate/internal/domain"
)

// ErrProductSold refuses mutations that would change what a paying buyer
// already purchased.
var ErrProductSold = errors.New("product has sales; artifact is frozen")

type ProductRepo struct {
	db     *sqlx.DB
	orders *OrderRepo
}

func NewProductRepo(db *sqlx.DB) *ProductRepo {
	return &ProductRepo{db: db, orders: NewOrderRepo(db)}
}

func (r *ProductRepo) Get(id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.Get(&p, `
	  SELECT id, category, title, COALESCE(description,'') AS description, COALESCE(features,'') AS features, price, artifact_ref, active, created_at
	  FROM products WHERE id = ?
	`, id)
	return p, err
}

func (r *ProductRepo) ListActive() ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.Select(&out, `
	  SELECT id, category, title, COALESCE(description,'') AS description, COALESCE(features,'') AS features, price, artifact_ref, active, created_at
	  FROM products WHERE active = 1
	  ORDER BY category, title
	`)
	return out, err
}

func (r *ProductRepo) ListByCategory(category string) ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.Select(&out, `
	  SELECT id, category, title, COALESCE(description,'') AS description, COALESCE(features,'') AS features, price, artifact_ref, active, created_at
	  FROM products WHERE category = ? AND active = 1
	  ORDER BY title
	`, category)
	return out, err
}

func (r *ProductRepo) Categories() ([]string, error) {
	var out []string
	err := r.db.Select(&out, `SELECT DISTINCT category FROM products WHERE active = 1 ORDER BY category`)
	return out, err
}

func (r *ProductRepo) Add(p domain.Product) error {
	_, err := r.db.Exec(`
	  INSERT INTO products(id, category, title, description, features, price, artifact_ref, active)
	  VALUES(?, ?, ?, ?, ?, ?, ?, 1)
	`, p.ID, p.Category, p.Title, p.Description, p.Features, p.Price, p.ArtifactRef)
	return err
}

// Delete removes a product, but only while nothing has been sold against it.
// Products with sales are deactivated instead so the order history stays
// resolvable.
func (r *ProductRepo) Delete(id string) error {
	n, err := r.orders.CountSalesForProduct(id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrProductSold
	}
	_, err = r.db.Exec(`DELETE FROM products WHERE id = ?`, id)
	return err
}

func (r *ProductRepo) Deactivate(id string) error {
	_, err := r.db.Exec(`UPDATE products SET active = 0 WHERE id = ?`, id)
	return err
}

func (r *ProductRepo) Count() (int, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM products WHERE active = 1`)
	return n, err
}
