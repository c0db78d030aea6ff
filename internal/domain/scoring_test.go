package domain

import "testing"

func TestScorerV1(t *testing.T) {
	s := NewScorerV1()
	if s.Version() != "v1" {
		t.Fatalf("unexpected version %q", s.Version())
	}

	cases := []struct {
		name string
		in   IngestInput
		want int64
	}{
		{
			name: "freestyle pool swim",
			in:   IngestInput{DistanceMeters: 2000, DurationSeconds: 3600, Stroke: StrokeFreestyle},
			// 10 + 20 + 6 + 0
			want: 36,
		},
		{
			name: "butterfly adds the heaviest stroke weight",
			in:   IngestInput{DistanceMeters: 1000, DurationSeconds: 1800, Stroke: StrokeButterfly},
			// 10 + 10 + 3 + 5
			want: 28,
		},
		{
			name: "open water premium is a quarter on top",
			in:   IngestInput{DistanceMeters: 2000, DurationSeconds: 3600, Stroke: StrokeFreestyle, OpenWater: true},
			// 36 + 36/4
			want: 45,
		},
		{
			name: "short swim still earns the session bonus",
			in:   IngestInput{DistanceMeters: 50, DurationSeconds: 120, Stroke: StrokeMixed},
			// 10 + 0 + 0 + 1
			want: 11,
		},
	}
	for _, tc := range cases {
		if got := s.Score(tc.in); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestScorerV1Deterministic(t *testing.T) {
	s := NewScorerV1()
	in := IngestInput{DistanceMeters: 1500, DurationSeconds: 2400, Stroke: StrokeBackstroke}
	if s.Score(in) != s.Score(in) {
		t.Fatal("same input must always score identically")
	}
}
