// Package metrics computes typing performance figures for a race.
package metrics

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Stats holds the performance figures of one player.
type Stats struct {
	WPM            int     `json:"wpm"`
	Accuracy       int     `json:"accuracy"`
	CPM            int     `json:"cpm"`
	Errors         int     `json:"errors"`
	ElapsedSeconds float64 `json:"timeElapsed"`
}

// Outcome is the result of comparing two players' stats.
type Outcome int

const (
	Draw Outcome = iota
	Win
	Loss
)

// String returns the wire name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	default:
		return "draw"
	}
}

// WordCount returns the number of space-delimited tokens in typed.
func WordCount(typed string) int {
	return len(strings.Fields(typed))
}

// CharCount returns the number of characters (runes) in typed.
func CharCount(typed string) int {
	return utf8.RuneCountInString(typed)
}

// WPM returns words per minute. Zero or negative elapsed time yields 0.
func WPM(typed string, elapsed time.Duration) int {
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return 0
	}
	return int(math.Round(float64(WordCount(typed)) / minutes))
}

// CPM returns characters per minute. Zero or negative elapsed time yields 0.
func CPM(typed string, elapsed time.Duration) int {
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return 0
	}
	return int(math.Round(float64(CharCount(typed)) / minutes))
}

// Accuracy returns the share of typed characters that were not errors, as an
// integer percentage in [0, 100]. Nothing typed is 100% accurate.
func Accuracy(typed string, errors int) int {
	chars := CharCount(typed)
	if chars == 0 {
		return 100
	}
	acc := int(math.Round(100 * float64(chars-errors) / float64(chars)))
	switch {
	case acc < 0:
		return 0
	case acc > 100:
		return 100
	}
	return acc
}

// Compute returns the full set of figures for typed text.
func Compute(typed string, errors int, elapsed time.Duration) Stats {
	secs := elapsed.Seconds()
	if secs < 0 {
		secs = 0
	}
	return Stats{
		WPM:            WPM(typed, elapsed),
		Accuracy:       Accuracy(typed, errors),
		CPM:            CPM(typed, elapsed),
		Errors:         errors,
		ElapsedSeconds: secs,
	}
}

// Compare reports how a fared against b: higher WPM wins, then higher
// accuracy, otherwise a draw.
func Compare(a, b Stats) Outcome {
	switch {
	case a.WPM > b.WPM:
		return Win
	case a.WPM < b.WPM:
		return Loss
	case a.Accuracy > b.Accuracy:
		return Win
	case a.Accuracy < b.Accuracy:
		return Loss
	}
	return Draw
}
