package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/pos/internal/domain/scanner"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ScanMessage is the JSON payload published for each accepted scan
type ScanMessage struct {
	EventID           string  `json:"event_id"`
	TenantID          string  `json:"tenant_id"`
	TerminalID        string  `json:"terminal_id"`
	Code              string  `json:"code"`
	FromEditableField bool    `json:"from_editable_field"`
	ProductID         *string `json:"product_id,omitempty"`
	Timestamp         int64   `json:"timestamp"`
}

// NewScanMessage converts a ScanDetectedEvent into its wire form
func NewScanMessage(e *scanner.ScanDetectedEvent) ScanMessage {
	msg := ScanMessage{
		EventID:           e.EventID().String(),
		TenantID:          e.TenantID().String(),
		TerminalID:        e.TerminalID.String(),
		Code:              e.Code,
		FromEditableField: e.FromEditableField,
		Timestamp:         e.OccurredAt().UnixNano(),
	}
	if e.ProductID != nil {
		id := e.ProductID.String()
		msg.ProductID = &id
	}
	return msg
}

// publisher is the subset of the redis client the forwarder needs
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisScanForwarder republishes ScanDetected events on a Redis Pub/Sub channel so
// other instances (receipt printers, loyalty kiosks) can react to scans.
type RedisScanForwarder struct {
	client  publisher
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

// RedisScanForwarderOption configures the forwarder
type RedisScanForwarderOption func(*RedisScanForwarder)

// WithForwarderLogger sets the logger
func WithForwarderLogger(logger *zap.Logger) RedisScanForwarderOption {
	return func(f *RedisScanForwarder) {
		f.logger = logger
	}
}

// WithForwarderTimeout bounds each publish call
func WithForwarderTimeout(timeout time.Duration) RedisScanForwarderOption {
	return func(f *RedisScanForwarder) {
		f.timeout = timeout
	}
}

// NewRedisScanForwarder creates a forwarder on an existing client.
// The caller keeps ownership of the client.
func NewRedisScanForwarder(client *redis.Client, channel string, opts ...RedisScanForwarderOption) *RedisScanForwarder {
	return newRedisScanForwarder(client, channel, opts...)
}

func newRedisScanForwarder(client publisher, channel string, opts ...RedisScanForwarderOption) *RedisScanForwarder {
	f := &RedisScanForwarder{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handle implements shared.EventHandler
func (f *RedisScanForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	scan, ok := event.(*scanner.ScanDetectedEvent)
	if !ok {
		return nil
	}

	data, err := json.Marshal(NewScanMessage(scan))
	if err != nil {
		return fmt.Errorf("failed to marshal scan message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish scan to %s: %w", f.channel, err)
	}

	f.logger.Debug("Forwarded scan",
		zap.String("channel", f.channel),
		zap.String("terminal_id", scan.TerminalID.String()),
	)
	return nil
}

// EventTypes implements shared.EventHandler
func (f *RedisScanForwarder) EventTypes() []string {
	return []string{scanner.EventTypeScanDetected}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
