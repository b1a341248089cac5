package enums

import "fmt"

// PerformanceTier ranks a product by its share of total sales within the
// analyzed population.
type PerformanceTier string

const (
	PerformanceTierA PerformanceTier = "A"
	PerformanceTierB PerformanceTier = "B"
	PerformanceTierC PerformanceTier = "C"
)

var validPerformanceTiers = []PerformanceTier{
	PerformanceTierA,
	PerformanceTierB,
	PerformanceTierC,
}

// PerformanceTiers returns the tiers from best to worst.
func PerformanceTiers() []PerformanceTier {
	out := make([]PerformanceTier, len(validPerformanceTiers))
	copy(out, validPerformanceTiers)
	return out
}

// String implements fmt.Stringer.
func (t PerformanceTier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PerformanceTier.
func (t PerformanceTier) IsValid() bool {
	for _, candidate := range validPerformanceTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// Rank orders tiers so that A < B < C. Unknown tiers sort last.
func (t PerformanceTier) Rank() int {
	for i, candidate := range validPerformanceTiers {
		if candidate == t {
			return i
		}
	}
	return len(validPerformanceTiers)
}

// ParsePerformanceTier converts raw input into a PerformanceTier.
func ParsePerformanceTier(value string) (PerformanceTier, error) {
	for _, candidate := range validPerformanceTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid performance tier %q", value)
}
