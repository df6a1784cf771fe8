package format

import (
	"fmt"
	"time"
)

// Pct formats a percentage with one decimal: 12.5 -> "12.5%".
func Pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// Ratio formats a compression ratio: 4 -> "4.0x". Zero renders as "-".
func Ratio(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fx", v)
}

// FmtDuration formats a duration as "Xm Ys", "Ys" or "Nms" below a second.
func FmtDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// BoolMark returns "✓" for true and "✗" for false.
func BoolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}
