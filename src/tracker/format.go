package tracker

import (
	"fmt"
	"strings"
)

// formatWatts renders milliwatt samples as a compact watts list for log lines
func formatWatts(milliwatts []float64) string {
	parts := make([]string, len(milliwatts))
	for i, mw := range milliwatts {
		parts[i] = fmt.Sprintf("%.3f", mw/1000)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
