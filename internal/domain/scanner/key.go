package scanner

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Default tuning values. Scanners usually inject a whole code within a few
// milliseconds per character, while people rarely type two keys 50ms apart.
const (
	DefaultFastTypingThreshold = 50 * time.Millisecond
	DefaultMinLength           = 3
	DefaultTerminatorKey       = "Enter"
)

// Config holds the classification heuristics
type Config struct {
	FastTypingThreshold time.Duration // max gap between keys of one burst
	MinLength           int           // min characters for a buffer to count as a scan
	TerminatorKey       string        // logical key that ends a scan
}

// DefaultConfig returns the stock heuristics
func DefaultConfig() Config {
	return Config{
		FastTypingThreshold: DefaultFastTypingThreshold,
		MinLength:           DefaultMinLength,
		TerminatorKey:       DefaultTerminatorKey,
	}
}

func (c Config) withDefaults() Config {
	if c.FastTypingThreshold <= 0 {
		c.FastTypingThreshold = DefaultFastTypingThreshold
	}
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	if c.TerminatorKey == "" {
		c.TerminatorKey = DefaultTerminatorKey
	}
	return c
}

// Target is the kind of UI element that had focus when a key was pressed
type Target string

const (
	TargetNone     Target = ""
	TargetInput    Target = "input"
	TargetTextArea Target = "textarea"
	TargetOther    Target = "other"
)

// ParseTarget maps an element tag name to a Target. Unknown names become TargetOther.
func ParseTarget(name string) Target {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return TargetNone
	case "input":
		return TargetInput
	case "textarea":
		return TargetTextArea
	default:
		return TargetOther
	}
}

// Editable reports whether the element accepts typed text
func (t Target) Editable() bool {
	return t == TargetInput || t == TargetTextArea
}

// KeyEvent is a single key press as delivered by the host
type KeyEvent struct {
	// Key is the logical key value: the character itself for printable keys,
	// otherwise a name such as "Enter", "Shift" or "ArrowLeft".
	Key    string
	At     time.Time
	Target Target
}

// Printable reports whether the key produces exactly one displayable character
func (e KeyEvent) Printable() bool {
	if utf8.RuneCountInString(e.Key) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(e.Key)
	return r != utf8.RuneError && unicode.IsPrint(r)
}

// Scan is an accepted scanner burst
type Scan struct {
	Code              string
	FromEditableField bool
	At                time.Time
}
