package repository

// Supported chart resolutions in seconds.
var resolutions = []int{5, 15, 30, 60, 300, 900, 1800, 3600, 14400, 86400}

// IsValidResolution returns true if sec is a supported bar resolution.
func IsValidResolution(sec int) bool {
	for _, r := range resolutions {
		if r == sec {
			return true
		}
	}
	return false
}

// DefaultResolution returns the default bar resolution in seconds.
func DefaultResolution() int { return 60 }

// NormalizeResolution snaps an arbitrary request to the nearest
// supported resolution at or above it (or the default for non-positive
// input).
func NormalizeResolution(sec int) int {
	if sec <= 0 {
		return DefaultResolution()
	}
	for _, r := range resolutions {
		if sec <= r {
			return r
		}
	}
	return resolutions[len(resolutions)-1]
}
