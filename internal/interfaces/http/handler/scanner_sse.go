package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/pos/internal/domain/scanner"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sseMessageBufferSize = 64

// SSEMessage is one Server-Sent Event
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// sseClient is a connected stream watching one terminal
type sseClient struct {
	id         string
	terminalID uuid.UUID
	ch         chan SSEMessage
}

// ScanStreamHandler pushes ScanDetected events to SSE clients watching a terminal.
// It is an event bus handler: subscribe it for scanner.EventTypeScanDetected.
type ScanStreamHandler struct {
	BaseHandler
	logger     *zap.Logger
	clients    sync.Map // map[string]*sseClient
	count      atomic.Int64
	heartbeat  time.Duration
	maxClients int

	ctx     context.Context
	cancel  context.CancelFunc
	startMu sync.Mutex
	started bool
}

// ScanStreamOption configures a ScanStreamHandler
type ScanStreamOption func(*ScanStreamHandler)

// WithSSELogger sets the logger
func WithSSELogger(logger *zap.Logger) ScanStreamOption {
	return func(h *ScanStreamHandler) {
		h.logger = logger
	}
}

// WithSSEHeartbeat sets the heartbeat interval
func WithSSEHeartbeat(interval time.Duration) ScanStreamOption {
	return func(h *ScanStreamHandler) {
		h.heartbeat = interval
	}
}

// WithSSEMaxClients caps concurrent streams; zero means unlimited
func WithSSEMaxClients(limit int) ScanStreamOption {
	return func(h *ScanStreamHandler) {
		h.maxClients = limit
	}
}

// NewScanStreamHandler creates a new ScanStreamHandler
func NewScanStreamHandler(opts ...ScanStreamOption) *ScanStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &ScanStreamHandler{
		logger:     zap.NewNop(),
		heartbeat:  30 * time.Second,
		maxClients: 1000,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start begins sending heartbeats
func (h *ScanStreamHandler) Start() error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.started {
		return fmt.Errorf("scan stream handler already started")
	}
	go h.sendHeartbeats()
	h.started = true
	h.logger.Info("Scan stream handler started")
	return nil
}

// Stop disconnects every client and stops heartbeats
func (h *ScanStreamHandler) Stop() {
	h.cancel()
	h.logger.Info("Scan stream handler stopped")
}

// Handle implements shared.EventHandler
func (h *ScanStreamHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	scan, ok := event.(*scanner.ScanDetectedEvent)
	if !ok {
		return nil
	}

	data, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("failed to marshal scan event: %w", err)
	}

	h.broadcast(scan.TerminalID, SSEMessage{
		Event: "scan",
		Data:  string(data),
		ID:    scan.EventID().String(),
	})
	return nil
}

// EventTypes implements shared.EventHandler
func (h *ScanStreamHandler) EventTypes() []string {
	return []string{scanner.EventTypeScanDetected}
}

// broadcast delivers msg to clients of terminalID; uuid.Nil targets everyone
func (h *ScanStreamHandler) broadcast(terminalID uuid.UUID, msg SSEMessage) {
	h.clients.Range(func(_, value any) bool {
		client := value.(*sseClient)
		if terminalID != uuid.Nil && client.terminalID != terminalID {
			return true
		}
		select {
		case client.ch <- msg:
		default:
			h.logger.Warn("Client channel full, dropping message",
				zap.String("client_id", client.id),
				zap.String("event", msg.Event))
		}
		return true
	})
}

func (h *ScanStreamHandler) sendHeartbeats() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(uuid.Nil, SSEMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
		}
	}
}

// Stream serves GET /scanner/terminals/:id/stream
func (h *ScanStreamHandler) Stream(c *gin.Context) {
	var req dto.TerminalIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid terminal ID")
		return
	}

	if n := h.count.Add(1); h.maxClients > 0 && n > int64(h.maxClients) {
		h.count.Add(-1)
		h.ErrorWithCode(c, dto.ErrCodeTooManyConns, "Maximum number of stream connections reached")
		return
	}
	defer h.count.Add(-1)

	client := &sseClient{
		id:         uuid.NewString(),
		terminalID: uuid.MustParse(req.ID),
		ch:         make(chan SSEMessage, sseMessageBufferSize),
	}
	// The channel is never closed: broadcast may still hold a reference after Delete
	h.clients.Store(client.id, client)
	defer h.clients.Delete(client.id)

	// Streams outlive the server's write timeout
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.logger.Info("Scan stream client connected",
		zap.String("client_id", client.id),
		zap.String("terminal_id", req.ID))

	writeEvent(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"client_id":%q,"terminal_id":%q}`, client.id, req.ID),
	})
	c.Writer.Flush()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			h.logger.Info("Scan stream client disconnected", zap.String("client_id", client.id))
			return
		case <-h.ctx.Done():
			return
		case msg := <-client.ch:
			writeEvent(c.Writer, msg)
			c.Writer.Flush()
		}
	}
}

// ClientCount returns the number of connected stream clients
func (h *ScanStreamHandler) ClientCount() int {
	return int(h.count.Load())
}

func writeEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

var _ shared.EventHandler = (*ScanStreamHandler)(nil)
