package mathutil

import "testing"

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{83.333333, 83.33},
		{83.335, 83.34},
		{2.675, 2.68},
		{75, 75},
		{0.005, 0.01},
		{0.004, 0},
		{-1.005, -1.01},
		{99.999, 100},
	}

	for _, tc := range tests {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
