package idhash

import (
	"testing"
)

func TestFingerprinter_Deterministic(t *testing.T) {
	build := func() string {
		f := NewFingerprinter()
		f.Add("ch1", FormatInt(86400000), FormatFloat(120.5))
		f.Add("ch1", FormatInt(172800000), FormatFloat(0))
		f.Add("ch2", FormatInt(86400000), FormatFloat(99.25))
		return f.Sum()
	}

	first := build()
	if first == "" {
		t.Fatal("Sum() returned empty fingerprint")
	}
	for i := 0; i < 10; i++ {
		if got := build(); got != first {
			t.Errorf("Determinism failed: %s != %s", got, first)
		}
	}
}

func TestFingerprinter_OrderSensitive(t *testing.T) {
	a := NewFingerprinter()
	a.Add("ch1", "1")
	a.Add("ch2", "2")

	b := NewFingerprinter()
	b.Add("ch2", "2")
	b.Add("ch1", "1")

	if a.Sum() == b.Sum() {
		t.Error("Different record order should produce different fingerprint")
	}
}

func TestFingerprinter_RecordBoundaries(t *testing.T) {
	// Two records must not collide with one record holding the same bytes.
	a := NewFingerprinter()
	a.Add("ab")
	a.Add("cd")

	b := NewFingerprinter()
	b.Add("ab", "cd")

	if a.Sum() == b.Sum() {
		t.Error("Record boundary should affect the fingerprint")
	}
}

func TestFormatFloat_RoundTrip(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "0"},
		{0.5, "0.5"},
		{120.5, "120.5"},
		{0.4096, "0.4096"},
		{3.0096, "3.0096"},
	}

	for _, tt := range tests {
		if got := FormatFloat(tt.value); got != tt.want {
			t.Errorf("FormatFloat(%v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}
