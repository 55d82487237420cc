package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/erp/pos/internal/domain/catalog"
	"github.com/erp/pos/internal/domain/scanner"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxLogEntries = 50

// ProductLookup resolves codes against the catalog
type ProductLookup interface {
	FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*catalog.Product, error)
}

// EntrySource tells how a code reached the console
type EntrySource string

const (
	SourceScan   EntrySource = "scan"
	SourceManual EntrySource = "manual"
)

// EntryStatus is the catalog resolution state of a log entry
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusMatched EntryStatus = "matched"
	StatusUnknown EntryStatus = "unknown"
	StatusOffline EntryStatus = "offline"
	StatusFailed  EntryStatus = "failed"
)

// Entry is one line of the scan log
type Entry struct {
	ID        int
	Code      string
	Source    EntrySource
	FromField bool
	Status    EntryStatus
	Product   *catalog.Product
	Err       error
}

// lookupDoneMsg carries a finished catalog lookup back into Update
type lookupDoneMsg struct {
	entryID int
	product *catalog.Product
	err     error
}

// scanSink collects classifier callbacks between key messages. Models are copied
// by value, so the callbacks write here instead of into the model.
type scanSink struct {
	scans      []scanner.Scan
	fieldScans int
	at         time.Time
}

func (s *scanSink) onScan(code string, fromEditable bool) {
	s.scans = append(s.scans, scanner.Scan{Code: code, FromEditableField: fromEditable, At: s.at})
}

func (s *scanSink) onFieldScan(string) {
	s.fieldScans++
}

func (s *scanSink) drain() ([]scanner.Scan, bool) {
	scans, field := s.scans, s.fieldScans > 0
	s.scans, s.fieldScans = nil, 0
	return scans, field
}

// Model is the scan console: a focusable entry field, the keystroke classifier and
// a log of scanned and typed codes.
type Model struct {
	input    textinput.Model
	source   *keySource
	listener *scanner.Listener
	sink     *scanSink
	enabled  bool

	lookup     ProductLookup
	tenantID   uuid.UUID
	terminalID uuid.UUID
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger

	entries []Entry
	nextID  int
}

// ModelOption configures a Model
type ModelOption func(*Model)

// WithLookup resolves codes against a catalog for tenantID
func WithLookup(lookup ProductLookup, tenantID uuid.UUID) ModelOption {
	return func(m *Model) {
		m.lookup = lookup
		m.tenantID = tenantID
	}
}

// WithTerminalID names the terminal in the header and logs
func WithTerminalID(id uuid.UUID) ModelOption {
	return func(m *Model) {
		m.terminalID = id
	}
}

// WithClock overrides the key timestamp source
func WithClock(now func() time.Time) ModelOption {
	return func(m *Model) {
		m.now = now
	}
}

// WithModelLogger sets the logger
func WithModelLogger(logger *zap.Logger) ModelOption {
	return func(m *Model) {
		m.logger = logger
	}
}

// WithScannerEnabled sets whether the classifier starts enabled (default true)
func WithScannerEnabled(enabled bool) ModelOption {
	return func(m *Model) {
		m.enabled = enabled
	}
}

// NewModel creates the scan console
func NewModel(cfg scanner.Config, opts ...ModelOption) Model {
	input := textinput.New()
	input.Placeholder = "scan or type a barcode"
	input.CharLimit = 64
	input.Width = 40
	input.Focus()

	m := Model{
		input:   input,
		source:  &keySource{},
		sink:    &scanSink{},
		enabled: true,
		timeout: 3 * time.Second,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&m)
	}

	m.listener = scanner.NewListener(m.source, cfg, scanner.WithLogger(m.logger))
	m.listener.Configure(m.enabled, m.sink.onScan, m.sink.onFieldScan)
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case lookupDoneMsg:
		m.resolve(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.listener.Close()
		return m, tea.Quit
	case tea.KeyCtrlS:
		m.enabled = !m.enabled
		m.listener.Configure(m.enabled, m.sink.onScan, m.sink.onFieldScan)
		m.logger.Info("Scanner toggled", zap.Bool("enabled", m.enabled))
		return m, nil
	}

	target := scanner.TargetNone
	if m.input.Focused() {
		target = scanner.TargetInput
	}

	// The classifier sees every key, including the ones the console acts on
	suppressed := false
	for _, ev := range EventsFromKeyMsg(msg, m.now(), target) {
		m.sink.at = ev.At
		if m.source.dispatch(ev) {
			suppressed = true
		}
	}
	scans, fieldScan := m.sink.drain()

	var cmds []tea.Cmd
	switch {
	case msg.Type == tea.KeyTab:
		cmds = append(cmds, m.toggleFocus())
	case msg.Type == tea.KeyEnter:
		if !suppressed && m.input.Focused() {
			if code := strings.TrimSpace(m.input.Value()); code != "" {
				cmds = append(cmds, m.record(code, SourceManual, true))
			}
			m.input.SetValue("")
		}
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	for _, s := range scans {
		cmds = append(cmds, m.record(s.Code, SourceScan, s.FromEditableField))
	}
	if fieldScan {
		m.input.SetValue("")
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) toggleFocus() tea.Cmd {
	if m.input.Focused() {
		m.input.Blur()
		return nil
	}
	return m.input.Focus()
}

// record appends a log entry and starts its catalog lookup
func (m *Model) record(code string, source EntrySource, fromField bool) tea.Cmd {
	entry := Entry{
		ID:        m.nextID,
		Code:      code,
		Source:    source,
		FromField: fromField,
		Status:    StatusPending,
	}
	m.nextID++
	if m.lookup == nil {
		entry.Status = StatusOffline
	}
	m.entries = append(m.entries, entry)
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[len(m.entries)-maxLogEntries:]
	}

	m.logger.Info("Code captured",
		zap.String("terminal_id", m.terminalID.String()),
		zap.String("code", code),
		zap.String("source", string(source)),
		zap.Bool("from_field", fromField),
	)

	if m.lookup == nil {
		return nil
	}
	lookup, tenantID, timeout, id := m.lookup, m.tenantID, m.timeout, entry.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		product, err := lookup.FindByBarcode(ctx, tenantID, code)
		return lookupDoneMsg{entryID: id, product: product, err: err}
	}
}

func (m *Model) resolve(msg lookupDoneMsg) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.ID != msg.entryID {
			continue
		}
		var domainErr *shared.DomainError
		switch {
		case msg.err == nil:
			e.Status = StatusMatched
			e.Product = msg.product
		case errors.As(msg.err, &domainErr):
			e.Status = StatusUnknown
		default:
			e.Status = StatusFailed
			e.Err = msg.err
			m.logger.Warn("Catalog lookup failed", zap.String("code", e.Code), zap.Error(msg.err))
		}
		return
	}
}

// Entries returns the scan log, oldest first
func (m Model) Entries() []Entry {
	return m.entries
}

// Value returns the entry field's content
func (m Model) Value() string {
	return m.input.Value()
}

// Focused reports whether the entry field has focus
func (m Model) Focused() bool {
	return m.input.Focused()
}

// ScannerEnabled reports whether the classifier is attached
func (m Model) ScannerEnabled() bool {
	return m.enabled
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	title := "POS scan console"
	if m.terminalID != uuid.Nil {
		title += " · " + m.terminalID.String()[:8]
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if m.enabled {
		b.WriteString(statusOnStyle.Render("scanner on"))
	} else {
		b.WriteString(statusOffStyle.Render("scanner off"))
	}
	focus := "field blurred"
	if m.input.Focused() {
		focus = "field focused"
	}
	b.WriteString(mutedStyle.Render("  " + focus))
	b.WriteString("\n")
	b.WriteString(fieldStyle.Render(m.input.View()))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(mutedStyle.Render("no codes yet"))
		b.WriteString("\n")
	}
	for i := len(m.entries) - 1; i >= 0 && i >= len(m.entries)-10; i-- {
		b.WriteString(renderEntry(m.entries[i]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("tab focus · ctrl+s scanner on/off · esc quit"))
	return b.String()
}

func renderEntry(e Entry) string {
	where := "page"
	if e.FromField {
		where = "field"
	}
	head := fmt.Sprintf("%-7s %-5s %-20s", e.Source, where, e.Code)

	switch e.Status {
	case StatusMatched:
		return head + matchStyle.Render(fmt.Sprintf("%s  %s/%s", e.Product.Name, e.Product.SellingPrice.StringFixed(2), e.Product.Unit))
	case StatusUnknown:
		return head + missStyle.Render("not in catalog")
	case StatusFailed:
		return head + errorStyle.Render("lookup failed")
	case StatusOffline:
		return head + mutedStyle.Render("offline")
	default:
		return head + mutedStyle.Render("looking up…")
	}
}
