package scanning

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/erp/pos/internal/domain/catalog"
	"github.com/erp/pos/internal/domain/scanner"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductFinder resolves scanned codes to catalog products
type ProductFinder interface {
	FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*catalog.Product, error)
}

// Session limits
const (
	DefaultMaxSessions = 10000
	DefaultSessionTTL  = 30 * time.Minute
)

// LookupErrorCatalogUnavailable marks a scan whose catalog lookup failed
const LookupErrorCatalogUnavailable = "CATALOG_UNAVAILABLE"

// TerminalService runs one scan classifier per POS terminal
type TerminalService struct {
	cfg              scanner.Config
	enabledByDefault bool
	products         ProductFinder
	publisher        shared.EventPublisher
	logger           *zap.Logger
	maxSessions      int
	sessionTTL       time.Duration
	now              func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// session serialises key batches for one terminal. Overlapping requests for the
// same terminal queue on mu so events are classified in arrival order.
type session struct {
	mu         sync.Mutex
	classifier *scanner.Classifier
	pending    []scanner.Scan
	current    scanner.KeyEvent

	// lastUsed is guarded by TerminalService.mu
	lastUsed time.Time
}

// Option configures a TerminalService
type Option func(*TerminalService)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *TerminalService) {
		s.logger = logger
	}
}

// WithEnabledByDefault sets whether new terminal sessions start enabled (default true)
func WithEnabledByDefault(enabled bool) Option {
	return func(s *TerminalService) {
		s.enabledByDefault = enabled
	}
}

// WithMaxSessions caps the number of live terminal sessions; zero means unlimited.
// When the cap is reached the least recently used session is dropped.
func WithMaxSessions(limit int) Option {
	return func(s *TerminalService) {
		s.maxSessions = limit
	}
}

// WithSessionTTL sets how long an unused session survives; zero disables expiry
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *TerminalService) {
		s.sessionTTL = ttl
	}
}

// NewTerminalService creates a new TerminalService.
// products and publisher may be nil, in which case scans are never matched or published.
func NewTerminalService(cfg scanner.Config, products ProductFinder, publisher shared.EventPublisher, opts ...Option) *TerminalService {
	s := &TerminalService{
		cfg:              cfg,
		enabledByDefault: true,
		products:         products,
		publisher:        publisher,
		logger:           zap.NewNop(),
		maxSessions:      DefaultMaxSessions,
		sessionTTL:       DefaultSessionTTL,
		now:              time.Now,
		sessions:         make(map[uuid.UUID]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feed classifies events for a terminal in order and resolves every accepted scan.
// Catalog failures never drop a suppress decision or a scan: the affected scan is
// returned unmatched with LookupError set.
func (s *TerminalService) Feed(ctx context.Context, tenantID, terminalID uuid.UUID, events []scanner.KeyEvent) *FeedResult {
	sess := s.session(terminalID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	result := &FeedResult{
		Suppressed: []int{},
		Scans:      []ScanResult{},
	}
	for i, ev := range events {
		sess.current = ev
		if sess.classifier.HandleKey(ev) {
			result.Suppressed = append(result.Suppressed, i)
		}
	}
	scans := sess.pending
	sess.pending = nil

	for _, scan := range scans {
		res := s.resolve(ctx, tenantID, terminalID, scan)
		result.Scans = append(result.Scans, res)
		s.publish(ctx, tenantID, terminalID, scan, res)
	}

	return result
}

// SetEnabled toggles a terminal's classifier. A change of state discards any
// buffered candidate.
func (s *TerminalService) SetEnabled(terminalID uuid.UUID, enabled bool) TerminalStatus {
	sess := s.session(terminalID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.classifier.SetEnabled(enabled)
	s.logger.Info("Terminal scanner toggled",
		zap.String("terminal_id", terminalID.String()),
		zap.Bool("enabled", enabled),
	)
	return statusOf(terminalID, sess)
}

// Status reports a terminal's session without creating one
func (s *TerminalService) Status(terminalID uuid.UUID) TerminalStatus {
	s.mu.Lock()
	sess, ok := s.sessions[terminalID]
	s.mu.Unlock()

	if !ok {
		return TerminalStatus{
			TerminalID: terminalID,
			Enabled:    s.enabledByDefault,
			State:      scanner.StateIdle.String(),
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return statusOf(terminalID, sess)
}

// Close drops a terminal's session and anything it had buffered.
// It reports whether a session existed.
func (s *TerminalService) Close(terminalID uuid.UUID) bool {
	s.mu.Lock()
	sess, ok := s.sessions[terminalID]
	delete(s.sessions, terminalID)
	s.mu.Unlock()

	if ok {
		sess.mu.Lock()
		sess.classifier.SetEnabled(false)
		sess.mu.Unlock()
	}
	return ok
}

// Count returns the number of live terminal sessions
func (s *TerminalService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// PruneIdle drops sessions unused for longer than the session TTL and returns how
// many were removed
func (s *TerminalService) PruneIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneIdleLocked(s.now())
}

func (s *TerminalService) pruneIdleLocked(now time.Time) int {
	if s.sessionTTL <= 0 {
		return 0
	}
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.sessionTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("Expired idle terminal sessions", zap.Int("count", removed))
	}
	return removed
}

// evictOldestLocked drops the least recently used session
func (s *TerminalService) evictOldestLocked() {
	var (
		oldestID uuid.UUID
		oldest   *session
	)
	for id, sess := range s.sessions {
		if oldest == nil || sess.lastUsed.Before(oldest.lastUsed) {
			oldestID, oldest = id, sess
		}
	}
	if oldest != nil {
		delete(s.sessions, oldestID)
		s.logger.Warn("Terminal session limit reached, dropping least recently used",
			zap.String("terminal_id", oldestID.String()),
			zap.Int("max_sessions", s.maxSessions),
		)
	}
}

func (s *TerminalService) session(terminalID uuid.UUID) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[terminalID]; ok {
		sess.lastUsed = now
		return sess
	}

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.pruneIdleLocked(now)
		for len(s.sessions) >= s.maxSessions {
			s.evictOldestLocked()
		}
	}

	sess := &session{lastUsed: now}
	sess.classifier = scanner.New(s.cfg,
		scanner.WithEnabled(s.enabledByDefault),
		scanner.WithLogger(s.logger.With(zap.String("terminal_id", terminalID.String()))),
		scanner.WithOnScan(func(code string, fromEditable bool) {
			sess.pending = append(sess.pending, scanner.Scan{
				Code:              code,
				FromEditableField: fromEditable,
				At:                sess.current.At,
			})
		}),
	)
	s.sessions[terminalID] = sess
	return sess
}

func (s *TerminalService) resolve(ctx context.Context, tenantID, terminalID uuid.UUID, scan scanner.Scan) ScanResult {
	res := ScanResult{
		Code:              scan.Code,
		FromEditableField: scan.FromEditableField,
		At:                scan.At,
	}
	if s.products == nil {
		return res
	}

	product, err := s.products.FindByBarcode(ctx, tenantID, scan.Code)
	if err != nil {
		var domainErr *shared.DomainError
		if !errors.As(err, &domainErr) {
			s.logger.Warn("Failed to resolve scanned code",
				zap.String("terminal_id", terminalID.String()),
				zap.String("code", scan.Code),
				zap.Error(err),
			)
			res.LookupError = LookupErrorCatalogUnavailable
		}
		// unknown or unusable barcode: the scan stands, it just has no product
		return res
	}

	res.Matched = true
	res.Product = ToProductResponse(product)
	return res
}

func (s *TerminalService) publish(ctx context.Context, tenantID, terminalID uuid.UUID, scan scanner.Scan, res ScanResult) {
	if s.publisher == nil {
		return
	}
	var productID *uuid.UUID
	if res.Product != nil {
		id := res.Product.ID
		productID = &id
	}
	event := scanner.NewScanDetectedEvent(tenantID, terminalID, scan, productID)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish scan event",
			zap.String("terminal_id", terminalID.String()),
			zap.Error(err),
		)
	}
}

func statusOf(terminalID uuid.UUID, sess *session) TerminalStatus {
	return TerminalStatus{
		TerminalID: terminalID,
		Active:     true,
		Enabled:    sess.classifier.Enabled(),
		State:      sess.classifier.State().String(),
		Buffered:   utf8.RuneCountInString(sess.classifier.Buffered()),
	}
}
