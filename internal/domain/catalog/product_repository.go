package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository resolves scanned codes to products
type ProductRepository interface {
	// FindByBarcode finds a product by its barcode within a tenant.
	// Returns shared.ErrNotFound when no product carries the barcode.
	FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*Product, error)
	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error
}
