// Package reconcile checks that a receipt's line items plus tax add up to
// its stated total. All comparisons happen in integer cents so binary
// floating-point representation error cannot fail an otherwise correct
// receipt.
package reconcile

import "math"

// Cents converts a monetary value to integer minor currency units,
// rounding to the nearest cent.
func Cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// Sum returns the cent-rounded sum of the item costs plus gst, expressed
// back in major units. A nil gst counts as zero.
func Sum(costs []float64, gst *float64) float64 {
	var cents int64
	for _, c := range costs {
		cents += Cents(c)
	}
	if gst != nil {
		cents += Cents(*gst)
	}
	return float64(cents) / 100
}

// Consistent reports whether the item costs plus gst equal the stated total.
// A receipt with no stated total can never be confirmed valid, so a nil
// total is always inconsistent. Each value is rounded to cents before the
// comparison; equality in cents is the pass criterion, not an epsilon.
func Consistent(total *float64, gst *float64, costs []float64) bool {
	if total == nil {
		return false
	}
	var sum int64
	for _, c := range costs {
		sum += Cents(c)
	}
	if gst != nil {
		sum += Cents(*gst)
	}
	return sum == Cents(*total)
}
