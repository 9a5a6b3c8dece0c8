package telem

import "testing"

func TestFrameValidateMismatchedLengths(t *testing.T) {
	f := NewFrame(2)
	f.Add(1, NewTimestampSeries([]TimeStamp{1, 2, 3}))
	f.Add(2, NewFloat32Series([]float32{1, 2}))

	if err := f.Validate(); err == nil {
		t.Fatalf("expected mismatched series lengths to fail validation")
	}
}

func TestFrameValidateConsistent(t *testing.T) {
	f := NewFrame(2)
	f.Add(1, NewTimestampSeries([]TimeStamp{1, 2, 3}))
	f.Add(2, NewFloat32Series([]float32{1, 2, 3}))

	if err := f.Validate(); err != nil {
		t.Fatalf("expected consistent frame to validate, got %v", err)
	}
	if f.SampleCount() != 3 {
		t.Fatalf("expected sample count 3, got %d", f.SampleCount())
	}
}

func TestFrameGet(t *testing.T) {
	f := NewFrame(1)
	f.Add(42, NewFloat32Series([]float32{9}))

	s, ok := f.Get(42)
	if !ok || s.Len() != 1 {
		t.Fatalf("expected to find channel 42 with one sample")
	}
	if _, ok := f.Get(99); ok {
		t.Fatalf("expected channel 99 to be absent")
	}
}
