package taxonomy

import (
	"math"
	"testing"
)

func TestSequenceRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"", "abc", 0},
		{"chest", "chest", 1},
		{"abcd", "bcde", 0.75},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		got := SequenceRatio(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("SequenceRatio(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSequenceRatio_Symmetric(t *testing.T) {
	a, b := "chest width", "chest circumference"
	if SequenceRatio(a, b) != SequenceRatio(b, a) {
		t.Error("ratio should be symmetric")
	}
}

func TestSequenceRatio_MoreOverlapScoresHigher(t *testing.T) {
	base := "chest width"
	close := SequenceRatio(base, "chest widt")
	far := SequenceRatio(base, "collar size")
	if close <= far {
		t.Errorf("closer string scored %f, farther scored %f", close, far)
	}
	if close < 0.85 {
		t.Errorf("one-character deletion scored %f, expected above the default threshold", close)
	}
}

func TestSequenceRatio_Runes(t *testing.T) {
	// Multi-byte runes are compared as characters, not bytes.
	if got := SequenceRatio("größe", "größe"); got != 1 {
		t.Errorf("identical multi-byte strings = %f, want 1", got)
	}
}
