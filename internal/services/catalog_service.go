package services

import (
	"database/sql"

	"keycrate/internal/domain"
	"keycrate/internal/repos"
)

type CatalogService struct {
	Products *repos.ProductRepo
}

func NewCatalogService(products *repos.ProductRepo) *CatalogService {
	return &CatalogService{Products: products}
}

func (s *CatalogService) Categories() ([]string, error) {
	return s.Products.Categories()
}

func (s *CatalogService) ProductsByCategory(category string) ([]domain.Product, error) {
	return s.Products.ListByCategory(category)
}

func (s *CatalogService) ActiveProducts() ([]domain.Product, error) {
	return s.Products.ListActive()
}

func (s *CatalogService) Product(id string) (domain.Product, error) {
	p, err := s.Products.Get(id)
	if err == sql.ErrNoRows {
		return domain.Product{}, ErrUnknownProduct
	}
	if err != nil {
		return domain.Product{}, err
	}
	if !p.Active {
		return domain.Product{}, ErrUnknownProduct
	}
	return p, nil
}

func (s *CatalogService) Add(p domain.Product) error {
	return s.Products.Add(p)
}

// Remove deletes a never-sold product outright; a sold product keeps its row
// (orders reference it) and is deactivated instead.
func (s *CatalogService) Remove(id string) error {
	return s.Products.Delete(id)
}

func (s *CatalogService) Deactivate(id string) error {
	return s.Products.Deactivate(id)
}
