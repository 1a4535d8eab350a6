package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/atelier-erp/atelier-erp/internal/catalog"
	"github.com/atelier-erp/atelier-erp/internal/shared"
)

// CatalogAdapter adapts the catalog service to the stock module's CatalogPort.
type CatalogAdapter struct {
	catalog *catalog.Service
}

// NewCatalogAdapter builds the adapter.
func NewCatalogAdapter(svc *catalog.Service) *CatalogAdapter {
	return &CatalogAdapter{catalog: svc}
}

// Resolve maps an external material code to the identity stock receipts need.
func (a *CatalogAdapter) Resolve(ctx context.Context, externalCode string) (MaterialInfo, error) {
	ref, err := a.catalog.Resolve(ctx, externalCode)
	if err != nil {
		if errors.Is(err, catalog.ErrReferenceNotFound) {
			return MaterialInfo{}, fmt.Errorf("%w: material %s", shared.ErrNotFound, externalCode)
		}
		return MaterialInfo{}, err
	}
	return MaterialInfo{
		InternalCode:    ref.InternalCode,
		Category:        ref.Category,
		DefaultSupplier: ref.DefaultSupplier,
	}, nil
}
