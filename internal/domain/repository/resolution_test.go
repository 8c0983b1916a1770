package repository

import "testing"

func TestIsValidResolution(t *testing.T) {
	for _, sec := range []int{5, 60, 3600, 86400} {
		if !IsValidResolution(sec) {
			t.Fatalf("%d should be a valid resolution", sec)
		}
	}
	for _, sec := range []int{0, 7, 120, 100000} {
		if IsValidResolution(sec) {
			t.Fatalf("%d should not be a valid resolution", sec)
		}
	}
}

func TestNormalizeResolution(t *testing.T) {
	cases := map[int]int{
		-1:     60,
		0:      60,
		1:      5,
		5:      5,
		45:     60,
		61:     300,
		86400:  86400,
		500000: 86400,
	}
	for in, want := range cases {
		if got := NormalizeResolution(in); got != want {
			t.Fatalf("NormalizeResolution(%d) = %d, want %d", in, got, want)
		}
	}
}
