package transport

import (
	"strings"
	"testing"
	"time"
)

func yeastDecode(s string) int64 {
	var n int64
	for _, c := range s {
		n = n*int64(len(yeastAlphabet)) + int64(strings.IndexRune(yeastAlphabet, c))
	}
	return n
}

func TestYeastEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{9, "9"},
		{10, "A"},
		{63, "_"},
		{64, "10"},
		{4095, "__"},
	}
	for _, tt := range tests {
		if got := yeastEncode(tt.n); got != tt.want {
			t.Errorf("yeastEncode(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	if got := yeastDecode(yeastEncode(stamp)); got != stamp {
		t.Errorf("decode(encode(%d)) = %d", stamp, got)
	}
}

func TestYeast_SameMillisecondAddsSeed(t *testing.T) {
	t.Parallel()

	fixed := time.UnixMilli(1_700_000_000_000)
	y := NewYeast(func() time.Time { return fixed })

	first := y.Next()
	second := y.Next()
	third := y.Next()

	if strings.Contains(first, ".") {
		t.Errorf("first token %q should not carry a seed", first)
	}
	if second != first+".0" {
		t.Errorf("second token = %q, want %q", second, first+".0")
	}
	if third != first+".1" {
		t.Errorf("third token = %q, want %q", third, first+".1")
	}
}

func TestYeast_NewMillisecondResetsSeed(t *testing.T) {
	t.Parallel()

	ms := int64(1_700_000_000_000)
	y := NewYeast(func() time.Time { return time.UnixMilli(ms) })

	a := y.Next()
	_ = y.Next()
	ms++
	b := y.Next()

	if a == b {
		t.Fatalf("tokens repeated across milliseconds: %q", a)
	}
	if strings.Contains(b, ".") {
		t.Errorf("token %q after clock advance should not carry a seed", b)
	}
}

func TestYeast_Unique(t *testing.T) {
	t.Parallel()

	y := NewYeast(nil)
	seen := make(map[string]bool)
	for i := 0; i < 2000; i++ {
		tok := y.Next()
		if seen[tok] {
			t.Fatalf("duplicate token %q at iteration %d", tok, i)
		}
		seen[tok] = true
	}
}
