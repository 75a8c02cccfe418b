package sprint

import (
	"math"
)

const wpmFloorSeconds = 60

// CalculateWPM is the words per minute recorded on completion. Writing
// times under a minute count as a full minute.
func CalculateWPM(words int, seconds int64) int {
	if seconds < wpmFloorSeconds {
		seconds = wpmFloorSeconds
	}
	return wpm(words, seconds)
}

// LiveWPM is the rate used to sanity check a word count update. It uses
// the raw elapsed time so short bursts are not smoothed away.
func LiveWPM(words int, seconds int64) int {
	if seconds <= 0 {
		seconds = 1
	}
	return wpm(words, seconds)
}

func wpm(words int, seconds int64) int {
	return int(math.Round(float64(words) / (float64(seconds) / 60)))
}
