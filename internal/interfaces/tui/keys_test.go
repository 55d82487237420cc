package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/erp/pos/internal/domain/scanner"
	"github.com/stretchr/testify/assert"
)

func TestEventsFromKeyMsg(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  tea.KeyMsg
		want []string
	}{
		{"single rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'7'}}, []string{"7"}},
		{"burst in one read", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("400638")}, []string{"4", "0", "0", "6", "3", "8"}},
		{"space", tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, []string{" "}},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, []string{"Enter"}},
		{"tab", tea.KeyMsg{Type: tea.KeyTab}, []string{"Tab"}},
		{"arrow", tea.KeyMsg{Type: tea.KeyUp}, []string{"up"}},
		{"alt rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}, Alt: true}, []string{"alt+x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := EventsFromKeyMsg(tt.msg, at, scanner.TargetInput)

			keys := make([]string, len(events))
			for i, ev := range events {
				keys[i] = ev.Key
				assert.Equal(t, at, ev.At)
				assert.Equal(t, scanner.TargetInput, ev.Target)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestEventsFromKeyMsg_OnlyRunesArePrintable(t *testing.T) {
	at := time.Now()

	assert.True(t, EventsFromKeyMsg(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}, at, scanner.TargetNone)[0].Printable())
	assert.False(t, EventsFromKeyMsg(tea.KeyMsg{Type: tea.KeyEnter}, at, scanner.TargetNone)[0].Printable())
	assert.False(t, EventsFromKeyMsg(tea.KeyMsg{Type: tea.KeyBackspace}, at, scanner.TargetNone)[0].Printable())
	assert.False(t, EventsFromKeyMsg(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}, Alt: true}, at, scanner.TargetNone)[0].Printable())
}

func TestKeySource(t *testing.T) {
	src := &keySource{}
	var calls []string

	unsubA := src.Subscribe(func(scanner.KeyEvent) bool { calls = append(calls, "a"); return false })
	src.Subscribe(func(scanner.KeyEvent) bool { calls = append(calls, "b"); return true })

	assert.True(t, src.dispatch(scanner.KeyEvent{Key: "x"}))
	assert.Equal(t, []string{"a", "b"}, calls)

	unsubA()
	calls = nil
	src.dispatch(scanner.KeyEvent{Key: "y"})
	assert.Equal(t, []string{"b"}, calls)
}
