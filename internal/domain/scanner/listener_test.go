package scanner

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a synchronous in-memory key stream
type fakeSource struct {
	handlers     map[int]func(KeyEvent) bool
	nextID       int
	unsubscribed int
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[int]func(KeyEvent) bool)}
}

func (s *fakeSource) Subscribe(fn func(KeyEvent) bool) func() {
	id := s.nextID
	s.nextID++
	s.handlers[id] = fn
	return func() {
		delete(s.handlers, id)
		s.unsubscribed++
	}
}

// emit delivers ev to all subscribers and reports whether any asked to suppress
func (s *fakeSource) emit(ev KeyEvent) bool {
	suppress := false
	for _, fn := range s.handlers {
		if fn(ev) {
			suppress = true
		}
	}
	return suppress
}

func (s *fakeSource) emitAll(events []KeyEvent) []bool {
	out := make([]bool, len(events))
	for i, ev := range events {
		out[i] = s.emit(ev)
	}
	return out
}

func TestListener_Configure(t *testing.T) {
	t.Run("does not subscribe before Configure", func(t *testing.T) {
		src := newFakeSource()
		l := NewListener(src, DefaultConfig())

		assert.False(t, l.Attached())
		assert.Empty(t, src.handlers)
	})

	t.Run("subscribes when enabled", func(t *testing.T) {
		src := newFakeSource()
		rec := &recorder{}
		l := NewListener(src, DefaultConfig())

		l.Configure(true, rec.onScan, rec.onFieldScan)
		suppressed := src.emitAll(burst("4006381333931", 0, 3, TargetInput))

		assert.True(t, l.Attached())
		require.Len(t, rec.scans, 1)
		assert.Equal(t, "4006381333931", rec.scans[0].code)
		assert.Equal(t, []string{"4006381333931"}, rec.fieldScans)
		assert.True(t, suppressed[len(suppressed)-1])
	})

	t.Run("disabled configuration detaches and emits nothing", func(t *testing.T) {
		src := newFakeSource()
		rec := &recorder{}
		l := NewListener(src, DefaultConfig())

		l.Configure(true, rec.onScan, nil)
		l.Configure(false, rec.onScan, nil)
		src.emitAll(burst("12345", 0, 3, TargetNone))

		assert.False(t, l.Attached())
		assert.Empty(t, src.handlers)
		assert.Equal(t, 1, src.unsubscribed)
		assert.Empty(t, rec.scans)
	})

	t.Run("reconfiguring keeps a single subscription", func(t *testing.T) {
		src := newFakeSource()
		rec := &recorder{}
		l := NewListener(src, DefaultConfig())

		l.Configure(true, rec.onScan, nil)
		l.Configure(true, rec.onScan, nil)
		src.emitAll(burst("12345", 0, 3, TargetNone))

		assert.Len(t, src.handlers, 1)
		assert.Len(t, rec.scans, 1)
	})

	t.Run("re-enabling drops the in-flight buffer", func(t *testing.T) {
		src := newFakeSource()
		rec := &recorder{}
		l := NewListener(src, DefaultConfig())

		l.Configure(true, rec.onScan, nil)
		src.emitAll([]KeyEvent{key("9", 0, TargetNone), key("8", 5, TargetNone)})
		require.Equal(t, "98", l.Classifier().Buffered())

		l.Configure(false, rec.onScan, nil)
		l.Configure(true, rec.onScan, nil)
		src.emitAll(burst("777", 8, 3, TargetNone))

		require.Len(t, rec.scans, 1)
		assert.Equal(t, "777", rec.scans[0].code)
	})
}

func TestListener_Close(t *testing.T) {
	src := newFakeSource()
	rec := &recorder{}
	l := NewListener(src, DefaultConfig())

	l.Configure(true, rec.onScan, nil)
	src.emitAll([]KeyEvent{key("1", 0, TargetNone), key("2", 5, TargetNone), key("3", 10, TargetNone)})
	l.Close()
	src.emit(key("Enter", 12, TargetNone))

	assert.False(t, l.Attached())
	assert.Empty(t, rec.scans)
	assert.Equal(t, StateIdle, l.Classifier().State())

	// closing twice is harmless
	l.Close()
	assert.Equal(t, 1, src.unsubscribed)
}

func TestClassify(t *testing.T) {
	events := slices.Concat(
		burst("111", 0, 5, TargetNone),
		[]KeyEvent{key("x", 500, TargetInput), key("Enter", 900, TargetInput)},
		burst("22222", 1000, 5, TargetInput),
	)

	t.Run("yields accepted scans in order", func(t *testing.T) {
		var got []Scan
		for s := range Classify(DefaultConfig(), slices.Values(events)) {
			got = append(got, s)
		}

		require.Len(t, got, 2)
		assert.Equal(t, Scan{Code: "111", FromEditableField: false, At: at(15)}, got[0])
		assert.Equal(t, Scan{Code: "22222", FromEditableField: true, At: at(1025)}, got[1])
	})

	t.Run("is restartable", func(t *testing.T) {
		seq := Classify(DefaultConfig(), slices.Values(events))

		first := slices.Collect(seq)
		second := slices.Collect(seq)

		assert.Equal(t, first, second)
	})

	t.Run("stops early when the consumer breaks", func(t *testing.T) {
		count := 0
		for range Classify(DefaultConfig(), slices.Values(events)) {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})

	t.Run("empty stream yields nothing", func(t *testing.T) {
		assert.Empty(t, slices.Collect(Classify(DefaultConfig(), slices.Values([]KeyEvent(nil)))))
	})
}

func TestKeyEvent_Printable(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"a", true},
		{"Z", true},
		{"7", true},
		{" ", true},
		{"-", true},
		{"é", true},
		{"Enter", false},
		{"Shift", false},
		{"ArrowUp", false},
		{"F5", false},
		{"", false},
		{"\t", false},
		{"\x1b", false},
		{"ab", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyEvent{Key: tt.key}.Printable())
		})
	}
}

func TestParseTarget(t *testing.T) {
	assert.Equal(t, TargetInput, ParseTarget("INPUT"))
	assert.Equal(t, TargetTextArea, ParseTarget("textarea"))
	assert.Equal(t, TargetNone, ParseTarget(""))
	assert.Equal(t, TargetOther, ParseTarget("button"))

	assert.True(t, TargetInput.Editable())
	assert.True(t, TargetTextArea.Editable())
	assert.False(t, TargetOther.Editable())
	assert.False(t, TargetNone.Editable())
}
