package snapshot

import "fmt"

// Placeholder is rendered for absent values. A fixed word rather than "0"
// or an empty cell, so a missing sensor is never mistaken for a real zero
// reading.
const Placeholder = "unknown"

// FormatMagnitude renders a magnitude (MB, W, °C) to one decimal place.
func FormatMagnitude(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.1f", *v)
}

// FormatPercent renders a percentage to the nearest integer with a % sign.
func FormatPercent(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.0f%%", *v)
}
