package debounce

import (
	"testing"
	"time"
)

func TestDebouncerLastValueWins(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := New[int](100 * time.Millisecond)

	d.Push(base, 100)
	d.Push(base.Add(20*time.Millisecond), 101)
	d.Push(base.Add(50*time.Millisecond), 105)

	if _, ok := d.Settle(base.Add(120 * time.Millisecond)); ok {
		t.Fatalf("value settled before the quiet window elapsed")
	}

	got, ok := d.Settle(base.Add(150 * time.Millisecond))
	if !ok {
		t.Fatalf("expected settled value")
	}
	if got != 105 {
		t.Fatalf("settled value mismatch: %d", got)
	}

	if _, ok := d.Settle(base.Add(time.Second)); ok {
		t.Fatalf("value settled twice")
	}
}

func TestDebouncerDeadlineSlides(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := New[string](100 * time.Millisecond)

	if _, ok := d.Deadline(); ok {
		t.Fatalf("empty debouncer reported a deadline")
	}

	d.Push(base, "a")
	first, _ := d.Deadline()
	d.Push(base.Add(80*time.Millisecond), "b")
	second, _ := d.Deadline()

	if !second.After(first) {
		t.Fatalf("deadline did not slide: %v <= %v", second, first)
	}
	if want := base.Add(180 * time.Millisecond); !second.Equal(want) {
		t.Fatalf("deadline mismatch: %v != %v", second, want)
	}
}

func TestDebouncerReset(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := New[int](10 * time.Millisecond)
	d.Push(base, 7)
	d.Reset()

	if _, ok := d.Settle(base.Add(time.Second)); ok {
		t.Fatalf("reset value settled")
	}
}

func TestDebouncerZeroWindow(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := New[int](-time.Second)
	d.Push(base, 3)

	got, ok := d.Settle(base)
	if !ok || got != 3 {
		t.Fatalf("zero window should settle immediately: %d %v", got, ok)
	}
}
