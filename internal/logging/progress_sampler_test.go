package logging

import "testing"

func TestProgressSamplerDefaults(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucketSize != 5 {
		t.Fatalf("bucketSize = %v, want 5", s.bucketSize)
	}
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(10, "import") {
		t.Fatal("nil sampler should always log")
	}
	nilSampler.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		phase   string
		want    bool
	}{
		{0, "import", true},
		{4, "import", false},
		{9.9, "import", false},
		{10, "import", true},
		{15, "import", false},
		{35, "import", true},
		{-1, "import", false},
		{36, "checkpoint", true},
		{36, "checkpoint", false},
		{150, "checkpoint", true},
		{100, "checkpoint", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.phase); got != step.want {
			t.Fatalf("step %d (%v, %q): got %v want %v", i, step.percent, step.phase, got, step.want)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(25)
	s.ShouldLog(50, "import")
	if s.ShouldLog(60, " import ") {
		t.Fatal("expected trimmed phase to match and bucket to be unchanged")
	}
	s.Reset()
	if !s.ShouldLog(60, "import") {
		t.Fatal("expected emit after reset")
	}
}
