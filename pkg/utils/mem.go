package utils

import "strconv"

// FmtMem renders a byte count with a binary unit suffix, e.g. 1536 -> "1.50KB".
func FmtMem(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatInt(bytes, 10) + "B"
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 2, 64) + string("KMGTPE"[exp]) + "B"
}
