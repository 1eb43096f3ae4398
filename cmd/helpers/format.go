package helpers

import (
	"fmt"
	"time"
)

// FormatTTL renders a remaining lifetime compactly for table output
func FormatTTL(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	if d.Minutes() >= 1 {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.0fs", d.Seconds())
}
