package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/snipper/snipper/internal/project"
)

const DefaultFrameRate = 30.0

// GenerateEDL lays the segments end to end on the record side, in the
// order given, each one sourced from media.
func GenerateEDL(segs []project.Segment, title, media string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	record := 0.0
	for i, seg := range segs {
		length := seg.End - seg.Start

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				timecode(seg.Start, fps), timecode(seg.End, fps),
				timecode(record, fps), timecode(record+length, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  Clip %d", i+1),
			fmt.Sprintf("* MEDIA PATH:  %s", media),
		)

		record += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// timecode renders seconds as HH:MM:SS:FF.
func timecode(seconds float64, fps int) string {
	totalFrames := int(math.Round(seconds * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, secs, frames)
}
