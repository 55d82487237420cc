package handler

import (
	"errors"
	"net/http"

	"github.com/erp/pos/internal/application/scanning"
	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/erp/pos/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScannerHandler exposes terminal classifier sessions over HTTP
type ScannerHandler struct {
	BaseHandler
	service *scanning.TerminalService
}

// NewScannerHandler creates a new ScannerHandler
func NewScannerHandler(service *scanning.TerminalService) *ScannerHandler {
	return &ScannerHandler{service: service}
}

// FeedKeys runs a batch of key events through a terminal's classifier.
// The response lists the indices of events whose default action the terminal must
// cancel and the scans that were accepted. A catalog outage still answers 200 so
// the terminal learns which events to suppress; affected scans carry lookup_error.
func (h *ScannerHandler) FeedKeys(c *gin.Context) {
	terminalID, ok := h.terminalID(c)
	if !ok {
		return
	}
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req dto.FeedKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.ErrorWithCode(c, dto.ErrCodeTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		h.ErrorWithCode(c, dto.ErrCodeValidation, "Invalid request body: "+err.Error())
		return
	}
	events, err := req.ToKeyEvents()
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeValidation, err.Error())
		return
	}

	result := h.service.Feed(c.Request.Context(), tenantID, terminalID, events)
	if len(result.Scans) > 0 {
		logger.GetGinLogger(c).Debug("Scans accepted",
			zap.String("terminal_id", terminalID.String()),
			zap.Int("count", len(result.Scans)),
		)
	}
	h.Success(c, result)
}

// SetEnabled turns a terminal's classifier on or off
func (h *ScannerHandler) SetEnabled(c *gin.Context) {
	terminalID, ok := h.terminalID(c)
	if !ok {
		return
	}

	var req dto.SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeValidation, "Invalid request body: "+err.Error())
		return
	}

	h.Success(c, h.service.SetEnabled(terminalID, *req.Enabled))
}

// Status reports a terminal's classifier session
func (h *ScannerHandler) Status(c *gin.Context) {
	terminalID, ok := h.terminalID(c)
	if !ok {
		return
	}
	h.Success(c, h.service.Status(terminalID))
}

// Close drops a terminal's session
func (h *ScannerHandler) Close(c *gin.Context) {
	terminalID, ok := h.terminalID(c)
	if !ok {
		return
	}
	h.service.Close(terminalID)
	h.NoContent(c)
}

func (h *ScannerHandler) terminalID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.TerminalIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid terminal ID")
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}
