package render

import "fmt"

// FormatCents formats an integer cent amount as a dollar string, e.g.
// 150000 -> "$1500.00". A nil amount renders as an empty string so a
// missing balance never leaks "$NaN" style artifacts into a message.
func FormatCents(cents *int64) string {
	if cents == nil {
		return ""
	}
	return fmt.Sprintf("$%.2f", float64(*cents)/100)
}
