package scanner

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is the classifier's position in the scan state machine
type State int

const (
	// StateIdle means the buffer is empty
	StateIdle State = iota
	// StateAccumulating means a candidate scan is being buffered
	StateAccumulating
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// ScanFunc receives every accepted scan
type ScanFunc func(code string, fromEditableField bool)

// FieldScanFunc receives scans that happened while an editable field had focus
type FieldScanFunc func(code string)

// Classifier splits a key-press stream into scanner bursts and human typing.
// An instance is not safe for concurrent use: the host delivers one key event at a
// time and each event is fully processed before HandleKey returns.
type Classifier struct {
	cfg         Config
	enabled     bool
	onScan      ScanFunc
	onFieldScan FieldScanFunc
	logger      *zap.Logger

	buffer  strings.Builder
	lastKey time.Time
	seen    bool
}

// Option configures a Classifier
type Option func(*Classifier)

// WithOnScan sets the callback invoked for every accepted scan
func WithOnScan(fn ScanFunc) Option {
	return func(c *Classifier) {
		c.onScan = fn
	}
}

// WithOnFieldScan sets the callback invoked for scans inside an editable field
func WithOnFieldScan(fn FieldScanFunc) Option {
	return func(c *Classifier) {
		c.onFieldScan = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithEnabled sets the initial enabled flag (default true)
func WithEnabled(enabled bool) Option {
	return func(c *Classifier) {
		c.enabled = enabled
	}
}

// New creates a classifier. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Classifier {
	c := &Classifier{
		cfg:     cfg.withDefaults(),
		enabled: true,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure reinstalls the callbacks and enabled flag and resets all state
func (c *Classifier) Configure(enabled bool, onScan ScanFunc, onFieldScan FieldScanFunc) {
	c.enabled = enabled
	c.onScan = onScan
	c.onFieldScan = onFieldScan
	c.Reset()
}

// SetEnabled toggles the classifier. Any change drops the buffer without flushing it.
func (c *Classifier) SetEnabled(enabled bool) {
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.Reset()
}

// Enabled reports whether key events are being classified
func (c *Classifier) Enabled() bool {
	return c.enabled
}

// Config returns the effective configuration
func (c *Classifier) Config() Config {
	return c.cfg
}

// Reset returns the classifier to StateIdle and forgets the last key timestamp
func (c *Classifier) Reset() {
	c.buffer.Reset()
	c.lastKey = time.Time{}
	c.seen = false
}

// State returns the current state
func (c *Classifier) State() State {
	if c.buffer.Len() == 0 {
		return StateIdle
	}
	return StateAccumulating
}

// Buffered returns the characters accumulated for the current candidate
func (c *Classifier) Buffered() string {
	return c.buffer.String()
}

// HandleKey processes one key event and reports whether the host should suppress
// the event's default action.
func (c *Classifier) HandleKey(ev KeyEvent) bool {
	if !c.enabled {
		return false
	}

	// Elapsed is measured against the immediately preceding key, accepted or not.
	// A clock that went backwards gives no evidence of a burst.
	elapsed := ev.At.Sub(c.lastKey)
	fast := c.seen && elapsed >= 0 && elapsed <= c.cfg.FastTypingThreshold
	c.lastKey = ev.At
	c.seen = true

	editable := ev.Target.Editable()

	if ev.Key == c.cfg.TerminatorKey {
		return c.flush(editable)
	}

	if ev.Printable() {
		if !fast {
			c.buffer.Reset()
		}
		c.buffer.WriteString(ev.Key)
	}
	return false
}

// flush terminates the current candidate; it never adds the terminator to the buffer
func (c *Classifier) flush(editable bool) bool {
	code := c.buffer.String()
	c.buffer.Reset()

	if len([]rune(code)) < c.cfg.MinLength {
		return false
	}

	c.logger.Debug("scan accepted",
		zap.String("code", code),
		zap.Bool("editable_target", editable),
	)

	if c.onScan != nil {
		c.onScan(code, editable)
	}
	if editable && c.onFieldScan != nil {
		c.onFieldScan(code)
	}
	return editable
}
