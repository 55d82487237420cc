package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry(t *testing.T) {
	t.Run("returns typed handlers before wildcard handlers", func(t *testing.T) {
		r := NewHandlerRegistry()
		typed := newTestHandler("A")
		wildcard := newTestHandler()

		r.Register(wildcard)
		r.Register(typed, "A")

		handlers := r.GetHandlers("A")
		assert.Len(t, handlers, 2)
		assert.Same(t, typed, handlers[0])
		assert.Same(t, wildcard, handlers[1])

		assert.Len(t, r.GetHandlers("B"), 1)
	})

	t.Run("counts distinct handlers", func(t *testing.T) {
		r := NewHandlerRegistry()
		h := newTestHandler("A", "B")
		r.Register(h, "A", "B")
		r.Register(newTestHandler())

		assert.Equal(t, 2, r.Count())
	})

	t.Run("unregister removes from every type", func(t *testing.T) {
		r := NewHandlerRegistry()
		h := newTestHandler("A", "B")
		other := newTestHandler("A")
		r.Register(h, "A", "B")
		r.Register(other, "A")

		r.Unregister(h)

		assert.Len(t, r.GetHandlers("A"), 1)
		assert.Empty(t, r.GetHandlers("B"))
		assert.Equal(t, 1, r.Count())
	})
}
