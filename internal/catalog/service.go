package catalog

import (
	"context"

	"github.com/meridian-retail/meridian/internal/shared"
)

// RepositoryPort abstracts product storage for the service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, storeID, productID int64) (Product, error)
}

// Service resolves products through the cache.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Lookup returns the product for (store, product), consulting the cache
// first.
func (s *Service) Lookup(ctx context.Context, storeID, productID int64) (Product, error) {
	if p, ok := s.cache.Get(ctx, storeID, productID); ok {
		return p, nil
	}
	p, err := s.repo.GetProduct(ctx, storeID, productID)
	if err != nil {
		return Product{}, err
	}
	s.cache.Set(ctx, p)
	return p, nil
}

// RequireActive resolves the product and rejects inactive ones. Posting
// coordinators call this before any ledger write.
func (s *Service) RequireActive(ctx context.Context, storeID, productID int64) (Product, error) {
	p, err := s.Lookup(ctx, storeID, productID)
	if err != nil {
		return Product{}, err
	}
	if !p.Active {
		return Product{}, shared.Conflict("catalog.require", "product %d is inactive", productID)
	}
	return p, nil
}
