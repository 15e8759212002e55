// Package temporal places clinical facts on a patient timeline. It parses relative
// temporal markers, infers the anchor instant, resolves events to absolute instants and
// detects impossible orderings and durations.
package temporal

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	podPattern       = regexp.MustCompile(`(?i)\b(?:POD|post-?op(?:erative)?\s+day)\s*#?\s*(\d+)\b`)
	hospitalDayRegex = regexp.MustCompile(`(?i)\b(?:HD|hospital\s+day)\s*#?\s*(\d+)\b`)
	relativeWords    = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|tonight|this morning|this afternoon|this evening)\b`)
	daysAgoPattern   = regexp.MustCompile(`(?i)\b(\d+)\s+days?\s+ago\b`)
	daysLaterPattern = regexp.MustCompile(`(?i)\b(\d+)\s+days?\s+later\b`)
	durationPattern  = regexp.MustCompile(`(?i)\b(?:for|during|over)\s+(\d+)\s+(hours?|days?|weeks?|months?)\b`)
)

// Markers are the temporal references found in a piece of text.
type Markers struct {
	DayOffset      *int           `json:"day_offset,omitempty"`
	HospitalDay    *int           `json:"hospital_day,omitempty"`
	RelativePhrase string         `json:"relative_phrase,omitempty"`
	RelativeDays   *int           `json:"relative_days,omitempty"` // negative for the past
	Duration       *time.Duration `json:"duration,omitempty"`
}

// IsZero reports whether no marker was found.
func (m Markers) IsZero() bool {
	return m.DayOffset == nil && m.HospitalDay == nil && m.RelativePhrase == "" &&
		m.RelativeDays == nil && m.Duration == nil
}

var relativeWordDays = map[string]int{
	"today":          0,
	"tonight":        0,
	"this morning":   0,
	"this afternoon": 0,
	"this evening":   0,
	"yesterday":      -1,
	"tomorrow":       1,
}

// ParseMarkers extracts post-procedure day, hospital day, relative phrases and
// durations from text. The first match of each kind wins.
func ParseMarkers(text string) Markers {
	var m Markers
	if n, ok := firstInt(podPattern, text); ok {
		m.DayOffset = &n
	}
	if n, ok := firstInt(hospitalDayRegex, text); ok {
		m.HospitalDay = &n
	}

	if n, ok := firstInt(daysAgoPattern, text); ok {
		n = -n
		m.RelativeDays = &n
		m.RelativePhrase = daysAgoPattern.FindString(text)
	} else if n, ok := firstInt(daysLaterPattern, text); ok {
		m.RelativeDays = &n
		m.RelativePhrase = daysLaterPattern.FindString(text)
	} else if word := relativeWords.FindString(text); word != "" {
		word = strings.ToLower(word)
		days := relativeWordDays[word]
		m.RelativeDays = &days
		m.RelativePhrase = word
	}

	if sub := durationPattern.FindStringSubmatch(text); sub != nil {
		n, err := strconv.Atoi(sub[1])
		unit := unitDuration(sub[2])
		if err == nil && int64(n) <= math.MaxInt64/int64(unit) {
			d := time.Duration(n) * unit
			m.Duration = &d
		}
	}
	return m
}

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	sub := re.FindStringSubmatch(text)
	if sub == nil {
		return 0, false
	}
	n, err := strconv.Atoi(sub[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func unitDuration(unit string) time.Duration {
	switch strings.TrimSuffix(strings.ToLower(unit), "s") {
	case "hour":
		return time.Hour
	case "day":
		return 24 * time.Hour
	case "week":
		return 7 * 24 * time.Hour
	default: // month
		return 30 * 24 * time.Hour
	}
}
