package lens

import (
	"math"

	"github.com/dustin/go-humanize"
)

var byteUnits = []struct {
	size   uint64
	symbol string
}{
	{humanize.GiByte, "GB"},
	{humanize.MiByte, "MB"},
	{humanize.KiByte, "KB"},
}

// HumanizeBytes formats a byte count with the largest unit (B, KB, MB, GB, base 1024) that keeps
// the value at or above one, rounded to two decimals. Negative counts are reported as zero.
func HumanizeBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	for _, unit := range byteUnits {
		if uint64(bytes) >= unit.size {
			return formatScaled(float64(bytes)/float64(unit.size)) + " " + unit.symbol
		}
	}
	return formatScaled(float64(bytes)) + " B"
}

// formatScaled rounds to two decimals, FtoaWithDigits alone truncates.
func formatScaled(val float64) string {
	return humanize.FtoaWithDigits(math.Round(val*100)/100, 2)
}
