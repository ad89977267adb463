package utils

import "fmt"

// FormatBytes renders a byte count in a human-readable binary unit, e.g.
// "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TransferSpeed renders an average transfer rate for the given byte count
// and duration.
func TransferSpeed(bytes int64, seconds float64) string {
	if seconds <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%s/s", FormatBytes(int64(float64(bytes)/seconds)))
}
