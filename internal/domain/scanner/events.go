package scanner

import (
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
)

// AggregateTypeTerminal is the aggregate type for scanner terminals
const AggregateTypeTerminal = "Terminal"

// EventTypeScanDetected is published for every accepted scan
const EventTypeScanDetected = "ScanDetected"

// ScanDetectedEvent is published when a terminal's classifier accepts a scan
type ScanDetectedEvent struct {
	shared.BaseDomainEvent
	TerminalID        uuid.UUID  `json:"terminal_id"`
	Code              string     `json:"code"`
	FromEditableField bool       `json:"from_editable_field"`
	ProductID         *uuid.UUID `json:"product_id,omitempty"`
}

// NewScanDetectedEvent creates a new ScanDetectedEvent
func NewScanDetectedEvent(tenantID, terminalID uuid.UUID, scan Scan, productID *uuid.UUID) *ScanDetectedEvent {
	return &ScanDetectedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeScanDetected, AggregateTypeTerminal, terminalID, tenantID),
		TerminalID:        terminalID,
		Code:              scan.Code,
		FromEditableField: scan.FromEditableField,
		ProductID:         productID,
	}
}
