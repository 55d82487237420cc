package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/erp/pos/internal/domain/scanner"
)

// EventsFromKeyMsg maps one bubbletea key message to logical key events.
// A terminal read can carry several runes at once (a scanner burst, or a paste);
// each rune becomes its own event at the same instant, which the classifier treats
// as zero-gap typing.
func EventsFromKeyMsg(msg tea.KeyMsg, at time.Time, target scanner.Target) []scanner.KeyEvent {
	switch msg.Type {
	case tea.KeyRunes:
		if msg.Alt {
			return []scanner.KeyEvent{{Key: msg.String(), At: at, Target: target}}
		}
		events := make([]scanner.KeyEvent, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			events = append(events, scanner.KeyEvent{Key: string(r), At: at, Target: target})
		}
		return events
	case tea.KeySpace:
		return []scanner.KeyEvent{{Key: " ", At: at, Target: target}}
	case tea.KeyEnter:
		return []scanner.KeyEvent{{Key: "Enter", At: at, Target: target}}
	case tea.KeyTab:
		return []scanner.KeyEvent{{Key: "Tab", At: at, Target: target}}
	default:
		return []scanner.KeyEvent{{Key: msg.String(), At: at, Target: target}}
	}
}

// keySource fans key events out to subscribers in subscription order
type keySource struct {
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(scanner.KeyEvent) bool
}

// Subscribe implements scanner.Source
func (s *keySource) Subscribe(fn func(scanner.KeyEvent) bool) func() {
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// dispatch delivers ev and reports whether any subscriber asked to suppress it
func (s *keySource) dispatch(ev scanner.KeyEvent) bool {
	suppress := false
	for _, sub := range s.subs {
		if sub.fn(ev) {
			suppress = true
		}
	}
	return suppress
}

var _ scanner.Source = (*keySource)(nil)
