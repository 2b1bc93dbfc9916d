package tasks

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedShowIntent is the structured form of one raw input line.
type ParsedShowIntent struct {
	RawInput     string // Line as entered, untrimmed
	Title        string // Show title with annotations stripped
	EpisodeCount *int   // Trailing "(n)" annotation, nil when absent
	Score        *int   // Trailing "[n]" annotation in 1..10, nil when absent
	ScoreError   string // Set when a score annotation was present but out of range
}

var (
	scoreSuffix   = regexp.MustCompile(`\[(\d{1,2})\]\s*$`)
	episodeSuffix = regexp.MustCompile(`^(.+?)\s*\((\d+)\)\s*$`)
)

// ParseShowInput turns one raw line into a ParsedShowIntent.
//
// A trailing bracketed integer is a score annotation: in range 1..10 it is
// recorded, out of range it attaches a ScoreError. Either way it is stripped
// so title parsing proceeds on the remainder. A trailing parenthesized
// integer on what is left is the episode-count annotation; without one the
// whole remainder is the title.
func ParseShowInput(line string) ParsedShowIntent {
	intent := ParsedShowIntent{RawInput: line}
	working := strings.TrimSpace(line)

	if m := scoreSuffix.FindStringSubmatch(working); m != nil {
		score, _ := strconv.Atoi(m[1])
		if score >= 1 && score <= 10 {
			intent.Score = &score
		} else {
			intent.ScoreError = "Score must be between 1 and 10"
		}
		working = strings.TrimSpace(working[:len(working)-len(m[0])])
	}

	if m := episodeSuffix.FindStringSubmatch(working); m != nil {
		count, _ := strconv.Atoi(m[2])
		intent.EpisodeCount = &count
		intent.Title = strings.TrimSpace(m[1])
	} else {
		intent.Title = working
	}

	return intent
}
