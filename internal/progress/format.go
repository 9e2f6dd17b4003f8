package progress

import (
	"math"
	"strconv"
)

var byteUnits = []string{"B", "KB", "MB", "GB"}

// FormatBytes renders n in binary units with at most two decimals, e.g.
// "1.5 MB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + byteUnits[i]
}

// Describe is the one-line status text shown next to the progress bar.
func Describe(st State) string {
	switch st.Phase {
	case StatusStarting, StatusStarted:
		return "Starting download..."
	case StatusFinished:
		return "Processing video..."
	case StatusDownloading:
		text := ""
		if st.Downloaded != 0 && st.Total != 0 {
			text = FormatBytes(st.Downloaded) + " / " + FormatBytes(st.Total)
		}
		if st.Speed != "" {
			text = join(text, st.Speed)
		}
		if st.ETA != "" && st.ETA != "Unknown" {
			text = join(text, "ETA: "+st.ETA)
		}
		return text
	case StatusComplete:
		return "Download complete"
	case StatusError:
		return st.Message
	}
	return ""
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + "  " + b
}
