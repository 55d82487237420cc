package catalog

import (
	"strings"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// Product is a sellable SKU as seen by the point of sale
type Product struct {
	shared.TenantEntity
	Code         string          `gorm:"type:varchar(50);not null"`
	Name         string          `gorm:"type:varchar(200);not null"`
	Barcode      string          `gorm:"type:varchar(50);index"`
	Unit         string          `gorm:"type:varchar(20);not null"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status       ProductStatus   `gorm:"type:varchar(20);not null;default:'active'"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new active product
func NewProduct(tenantID uuid.UUID, code, name, unit string) (*Product, error) {
	if strings.TrimSpace(code) == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Product code cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if strings.TrimSpace(unit) == "" {
		return nil, shared.NewDomainError("INVALID_UNIT", "Product unit cannot be empty")
	}
	return &Product{
		TenantEntity: shared.NewTenantEntity(tenantID),
		Code:         strings.ToUpper(code),
		Name:         name,
		Unit:         unit,
		SellingPrice: decimal.Zero,
		Status:       ProductStatusActive,
	}, nil
}

// SetBarcode assigns the product's barcode
func (p *Product) SetBarcode(barcode string) error {
	if len(barcode) > 50 {
		return shared.NewDomainError("INVALID_BARCODE", "Barcode cannot exceed 50 characters")
	}
	p.Barcode = strings.TrimSpace(barcode)
	return nil
}

// SetSellingPrice sets the selling price
func (p *Product) SetSellingPrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Selling price cannot be negative")
	}
	p.SellingPrice = price
	return nil
}

// IsSellable reports whether the product can be rung up
func (p *Product) IsSellable() bool {
	return p.Status == ProductStatusActive
}
