package scanning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/pos/internal/domain/catalog"
	"github.com/erp/pos/internal/domain/scanner"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProductFinder is a mock implementation of ProductFinder
type MockProductFinder struct {
	mock.Mock
}

func (m *MockProductFinder) FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*catalog.Product, error) {
	args := m.Called(ctx, tenantID, barcode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func burst(text string, startMs int, target scanner.Target) []scanner.KeyEvent {
	events := make([]scanner.KeyEvent, 0, len(text)+1)
	ms := startMs
	for _, r := range text {
		events = append(events, scanner.KeyEvent{Key: string(r), At: epoch.Add(time.Duration(ms) * time.Millisecond), Target: target})
		ms += 5
	}
	return append(events, scanner.KeyEvent{Key: "Enter", At: epoch.Add(time.Duration(ms) * time.Millisecond), Target: target})
}

func createTestProduct(tenantID uuid.UUID, barcode string) *catalog.Product {
	p, _ := catalog.NewProduct(tenantID, "SKU001", "Sparkling Water", "btl")
	_ = p.SetBarcode(barcode)
	_ = p.SetSellingPrice(decimal.NewFromFloat(1.25))
	return p
}

func TestTerminalService_Feed(t *testing.T) {
	tenantID := uuid.New()
	terminalID := uuid.New()
	ctx := context.Background()

	t.Run("resolves an accepted scan and publishes it", func(t *testing.T) {
		finder := new(MockProductFinder)
		pub := new(MockEventPublisher)
		svc := NewTerminalService(scanner.DefaultConfig(), finder, pub)

		product := createTestProduct(tenantID, "4006381333931")
		finder.On("FindByBarcode", ctx, tenantID, "4006381333931").Return(product, nil)
		pub.On("Publish", ctx, mock.MatchedBy(func(events []shared.DomainEvent) bool {
			if len(events) != 1 {
				return false
			}
			e, ok := events[0].(*scanner.ScanDetectedEvent)
			return ok && e.Code == "4006381333931" && e.TerminalID == terminalID &&
				e.ProductID != nil && *e.ProductID == product.ID && e.TenantID() == tenantID
		})).Return(nil).Once()

		events := burst("4006381333931", 0, scanner.TargetInput)
		result := svc.Feed(ctx, tenantID, terminalID, events)

		assert.Equal(t, []int{len(events) - 1}, result.Suppressed)
		require.Len(t, result.Scans, 1)
		scan := result.Scans[0]
		assert.True(t, scan.Matched)
		assert.True(t, scan.FromEditableField)
		assert.Equal(t, events[len(events)-1].At, scan.At)
		require.NotNil(t, scan.Product)
		assert.Equal(t, "Sparkling Water", scan.Product.Name)
		assert.True(t, scan.Product.Sellable)
		finder.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("unknown barcode is an unmatched scan", func(t *testing.T) {
		finder := new(MockProductFinder)
		pub := new(MockEventPublisher)
		svc := NewTerminalService(scanner.DefaultConfig(), finder, pub)

		finder.On("FindByBarcode", ctx, tenantID, "999").Return(nil, shared.ErrNotFound)
		pub.On("Publish", ctx, mock.Anything).Return(nil)

		result := svc.Feed(ctx, tenantID, uuid.New(), burst("999", 0, scanner.TargetNone))

		assert.Empty(t, result.Suppressed, "outside an editable field nothing is suppressed")
		require.Len(t, result.Scans, 1)
		assert.False(t, result.Scans[0].Matched)
		assert.Nil(t, result.Scans[0].Product)
	})

	t.Run("lookup failure keeps the suppress decision and later scans", func(t *testing.T) {
		finder := new(MockProductFinder)
		pub := new(MockEventPublisher)
		svc := NewTerminalService(scanner.DefaultConfig(), finder, pub)

		finder.On("FindByBarcode", ctx, tenantID, "12345").Return(nil, errors.New("db down"))
		finder.On("FindByBarcode", ctx, tenantID, "67890").Return(nil, shared.ErrNotFound)
		pub.On("Publish", ctx, mock.Anything).Return(nil).Twice()

		first := burst("12345", 0, scanner.TargetInput)
		events := append(first, burst("67890", 1000, scanner.TargetInput)...)
		result := svc.Feed(ctx, tenantID, uuid.New(), events)

		require.NotNil(t, result)
		assert.Equal(t, []int{len(first) - 1, len(events) - 1}, result.Suppressed)
		require.Len(t, result.Scans, 2)
		assert.False(t, result.Scans[0].Matched)
		assert.Equal(t, LookupErrorCatalogUnavailable, result.Scans[0].LookupError)
		assert.False(t, result.Scans[1].Matched)
		assert.Empty(t, result.Scans[1].LookupError, "an unknown barcode is not a lookup error")
		pub.AssertExpectations(t)
	})

	t.Run("human typing produces no scans", func(t *testing.T) {
		svc := NewTerminalService(scanner.DefaultConfig(), nil, nil)

		events := []scanner.KeyEvent{
			{Key: "a", At: epoch, Target: scanner.TargetInput},
			{Key: "b", At: epoch.Add(200 * time.Millisecond), Target: scanner.TargetInput},
			{Key: "c", At: epoch.Add(400 * time.Millisecond), Target: scanner.TargetInput},
			{Key: "Enter", At: epoch.Add(600 * time.Millisecond), Target: scanner.TargetInput},
		}
		result := svc.Feed(ctx, tenantID, uuid.New(), events)

		assert.Empty(t, result.Suppressed)
		assert.Empty(t, result.Scans)
	})

	t.Run("a burst split across batches is still one scan", func(t *testing.T) {
		svc := NewTerminalService(scanner.DefaultConfig(), nil, nil)
		id := uuid.New()
		events := burst("ABC123", 0, scanner.TargetNone)

		first := svc.Feed(ctx, tenantID, id, events[:3])
		assert.Empty(t, first.Scans)
		assert.Equal(t, 3, svc.Status(id).Buffered)

		second := svc.Feed(ctx, tenantID, id, events[3:])
		require.Len(t, second.Scans, 1)
		assert.Equal(t, "ABC123", second.Scans[0].Code)
	})

	t.Run("terminals are independent", func(t *testing.T) {
		svc := NewTerminalService(scanner.DefaultConfig(), nil, nil)
		a, b := uuid.New(), uuid.New()
		events := burst("7777", 0, scanner.TargetNone)

		svc.Feed(ctx, tenantID, a, events[:2])
		svc.Feed(ctx, tenantID, b, events[:1])

		assert.Equal(t, 2, svc.Status(a).Buffered)
		assert.Equal(t, 1, svc.Status(b).Buffered)
		assert.Equal(t, 2, svc.Count())
	})
}

func TestTerminalService_SetEnabled(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	id := uuid.New()
	svc := NewTerminalService(scanner.DefaultConfig(), nil, nil)
	events := burst("12345", 0, scanner.TargetInput)

	svc.Feed(ctx, tenantID, id, events[:3])

	status := svc.SetEnabled(id, false)
	assert.False(t, status.Enabled)
	assert.Equal(t, "idle", status.State)
	assert.Zero(t, status.Buffered)

	result := svc.Feed(ctx, tenantID, id, events[3:])
	assert.Empty(t, result.Scans)
	assert.Empty(t, result.Suppressed)

	svc.SetEnabled(id, true)
	result = svc.Feed(ctx, tenantID, id, events[3:])
	assert.Empty(t, result.Scans, "the pre-disable prefix must not survive")
}

func TestTerminalService_EnabledByDefault(t *testing.T) {
	svc := NewTerminalService(scanner.DefaultConfig(), nil, nil, WithEnabledByDefault(false))
	id := uuid.New()

	assert.False(t, svc.Status(id).Enabled)

	result := svc.Feed(context.Background(), uuid.New(), id, burst("12345", 0, scanner.TargetNone))
	assert.Empty(t, result.Scans)
}

func TestTerminalService_StatusAndClose(t *testing.T) {
	svc := NewTerminalService(scanner.DefaultConfig(), nil, nil)
	id := uuid.New()

	status := svc.Status(id)
	assert.False(t, status.Active)
	assert.True(t, status.Enabled)
	assert.Equal(t, 0, svc.Count(), "status does not create a session")

	svc.Feed(context.Background(), uuid.New(), id, burst("12", 0, scanner.TargetNone)[:2])
	status = svc.Status(id)
	assert.True(t, status.Active)
	assert.Equal(t, "accumulating", status.State)

	assert.True(t, svc.Close(id))
	assert.False(t, svc.Close(id))
	assert.False(t, svc.Status(id).Active)
}

func TestTerminalService_ConcurrentFeeds(t *testing.T) {
	svc := NewTerminalService(scanner.DefaultConfig(), nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()

	var wg sync.WaitGroup
	results := make([]*FeedResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.Feed(ctx, tenantID, uuid.New(), burst("55555", 0, scanner.TargetNone))
		}()
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		require.Len(t, res.Scans, 1)
		assert.Equal(t, "55555", res.Scans[0].Code)
	}
	assert.Equal(t, 8, svc.Count())
}

func TestTerminalService_ClockResetBetweenBatches(t *testing.T) {
	svc := NewTerminalService(scanner.DefaultConfig(), nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	id := uuid.New()

	svc.Feed(ctx, tenantID, id, burst("12345", 60000, scanner.TargetInput)[:4])
	require.Equal(t, 4, svc.Status(id).Buffered)

	result := svc.Feed(ctx, tenantID, id, burst("9", 0, scanner.TargetInput))

	assert.Empty(t, result.Scans, "a restarted clock must not extend the earlier buffer")
	assert.Empty(t, result.Suppressed)
}

func TestTerminalService_SessionLimits(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	now := epoch
	clock := func() time.Time { return now }

	t.Run("idle sessions expire", func(t *testing.T) {
		svc := NewTerminalService(scanner.DefaultConfig(), nil, nil, WithSessionTTL(time.Minute))
		svc.now = clock
		stale, fresh := uuid.New(), uuid.New()

		svc.Feed(ctx, tenantID, stale, nil)
		now = now.Add(50 * time.Second)
		svc.Feed(ctx, tenantID, fresh, nil)
		now = now.Add(20 * time.Second)

		assert.Equal(t, 1, svc.PruneIdle())
		assert.False(t, svc.Status(stale).Active)
		assert.True(t, svc.Status(fresh).Active)
	})

	t.Run("the cap drops the least recently used session", func(t *testing.T) {
		svc := NewTerminalService(scanner.DefaultConfig(), nil, nil,
			WithMaxSessions(2), WithSessionTTL(0))
		svc.now = clock
		a, b, c := uuid.New(), uuid.New(), uuid.New()

		svc.Feed(ctx, tenantID, a, nil)
		now = now.Add(time.Second)
		svc.Feed(ctx, tenantID, b, nil)
		now = now.Add(time.Second)
		svc.SetEnabled(a, true) // touches a, leaving b the oldest
		now = now.Add(time.Second)
		svc.Feed(ctx, tenantID, c, nil)

		assert.Equal(t, 2, svc.Count())
		assert.True(t, svc.Status(a).Active)
		assert.False(t, svc.Status(b).Active)
		assert.True(t, svc.Status(c).Active)
	})

	t.Run("expired sessions are reclaimed before evicting live ones", func(t *testing.T) {
		svc := NewTerminalService(scanner.DefaultConfig(), nil, nil,
			WithMaxSessions(2), WithSessionTTL(time.Minute))
		svc.now = clock
		a, b, c := uuid.New(), uuid.New(), uuid.New()

		svc.Feed(ctx, tenantID, a, nil)
		now = now.Add(2 * time.Minute)
		svc.Feed(ctx, tenantID, b, nil)
		svc.Feed(ctx, tenantID, c, nil)

		assert.Equal(t, 2, svc.Count())
		assert.False(t, svc.Status(a).Active)
		assert.True(t, svc.Status(b).Active)
		assert.True(t, svc.Status(c).Active)
	})
}
