package scanning

import (
	"time"

	"github.com/erp/pos/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeedResult is the outcome of running a batch of key events through a terminal
type FeedResult struct {
	// Suppressed holds the indices of events whose default action must be cancelled
	Suppressed []int        `json:"suppressed"`
	Scans      []ScanResult `json:"scans"`
}

// ScanResult is an accepted scan resolved against the catalog
type ScanResult struct {
	Code              string           `json:"code"`
	FromEditableField bool             `json:"from_editable_field"`
	At                time.Time        `json:"at"`
	Matched           bool             `json:"matched"`
	Product           *ProductResponse `json:"product,omitempty"`
	// LookupError is set when the catalog could not be queried
	LookupError       string           `json:"lookup_error,omitempty"`
}

// ProductResponse is the catalog view returned with a matched scan
type ProductResponse struct {
	ID           uuid.UUID       `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode"`
	Unit         string          `json:"unit"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Sellable     bool            `json:"sellable"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *catalog.Product) *ProductResponse {
	return &ProductResponse{
		ID:           p.ID,
		Code:         p.Code,
		Name:         p.Name,
		Barcode:      p.Barcode,
		Unit:         p.Unit,
		SellingPrice: p.SellingPrice,
		Sellable:     p.IsSellable(),
	}
}

// TerminalStatus describes a terminal's classifier session
type TerminalStatus struct {
	TerminalID uuid.UUID `json:"terminal_id"`
	Active     bool      `json:"active"`
	Enabled    bool      `json:"enabled"`
	State      string    `json:"state"`
	Buffered   int       `json:"buffered"`
}
