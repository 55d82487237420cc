package scanner

import (
	"iter"
)

// Source is the host's key-press stream.
// Subscribe must deliver events synchronously and in order. A true return from fn
// asks the host to suppress the event's default action. The returned function
// detaches fn; after it returns fn is never called again.
type Source interface {
	Subscribe(fn func(KeyEvent) bool) (unsubscribe func())
}

// Listener binds a Classifier to a Source
type Listener struct {
	src         Source
	classifier  *Classifier
	unsubscribe func()
}

// NewListener creates a listener. It does not subscribe until Configure is called.
func NewListener(src Source, cfg Config, opts ...Option) *Listener {
	return &Listener{
		src:        src,
		classifier: New(cfg, opts...),
	}
}

// Configure (re)installs the subscription. Any previous subscription is detached and
// its in-flight buffer discarded; a new one is attached only when enabled is true.
func (l *Listener) Configure(enabled bool, onScan ScanFunc, onFieldScan FieldScanFunc) {
	l.detach()
	l.classifier.Configure(enabled, onScan, onFieldScan)
	if enabled {
		l.unsubscribe = l.src.Subscribe(l.classifier.HandleKey)
	}
}

// Attached reports whether the listener currently holds a subscription
func (l *Listener) Attached() bool {
	return l.unsubscribe != nil
}

// Classifier exposes the underlying classifier for inspection
func (l *Listener) Classifier() *Classifier {
	return l.classifier
}

// Close detaches from the source and drops any buffered candidate
func (l *Listener) Close() {
	l.detach()
	l.classifier.Reset()
}

func (l *Listener) detach() {
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
}

// Classify turns a key event sequence into a sequence of accepted scans.
// Each iteration runs a fresh classifier, so the result can be ranged over again.
func Classify(cfg Config, events iter.Seq[KeyEvent]) iter.Seq[Scan] {
	return func(yield func(Scan) bool) {
		var (
			pending []Scan
			at      KeyEvent
		)
		c := New(cfg, WithOnScan(func(code string, fromEditable bool) {
			pending = append(pending, Scan{Code: code, FromEditableField: fromEditable, At: at.At})
		}))
		for ev := range events {
			at = ev
			c.HandleKey(ev)
			for _, s := range pending {
				if !yield(s) {
					return
				}
			}
			pending = pending[:0]
		}
	}
}
