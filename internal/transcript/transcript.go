package transcript

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// PreviewLimit is the number of characters kept by Preview before the
// ellipsis marker is appended.
const PreviewLimit = 1000

const ellipsis = "..."

var timestampPattern = regexp.MustCompile(`^(\d{2,}):(\d{2}):(\d{2}),(\d{3})$`)

// ErrInvalidTimestamp is returned by ParseTimestamp for malformed input.
var ErrInvalidTimestamp = errors.New("invalid subtitle timestamp")

// Segment is a recognized span of speech. Start and End are offsets in
// seconds from the beginning of the input.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is what a recognition engine returns for one input.
type Result struct {
	Segments []Segment
	// Duration is the total input length in seconds. Zero means unknown.
	Duration float64
}

func (r Result) DurationKnown() bool {
	return r.Duration > 0
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Sub-millisecond precision
// is truncated. Hours grow past two digits when needed.
func FormatTimestamp(seconds float64) string {
	// Whole-millisecond offsets such as 2.01 are not exact in float64, so
	// snap to microseconds before truncating.
	total := int64(math.Round(seconds*1e6)) / 1000

	ms := total % 1000
	s := (total / 1000) % 60
	m := (total / 60000) % 60
	h := total / 3600000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp converts an HH:MM:SS,mmm timestamp back to milliseconds.
func ParseTimestamp(value string) (int64, error) {
	match := timestampPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}

	parts := make([]int64, 4)
	for i := range parts {
		n, err := strconv.ParseInt(match[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidTimestamp, value, err)
		}
		parts[i] = n
	}

	if parts[1] > 59 || parts[2] > 59 {
		return 0, fmt.Errorf("%w: %q: minutes and seconds must be below 60", ErrInvalidTimestamp, value)
	}

	return parts[0]*3600000 + parts[1]*60000 + parts[2]*1000 + parts[3], nil
}

// GenerateSRT renders segments as numbered subtitle blocks. The block index
// is positional and starts at 1.
func GenerateSRT(segments []Segment) string {
	var b strings.Builder
	for i, segment := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestamp(segment.Start), FormatTimestamp(segment.End))
		b.WriteString(strings.TrimSpace(segment.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// GenerateTXT joins the trimmed segment texts with newlines.
func GenerateTXT(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, segment := range segments {
		lines = append(lines, strings.TrimSpace(segment.Text))
	}
	return strings.Join(lines, "\n")
}

// Preview returns text unchanged when it fits in PreviewLimit characters,
// otherwise its first PreviewLimit characters followed by "...".
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLimit {
		return text
	}

	runes := []rune(text)
	return string(runes[:PreviewLimit]) + ellipsis
}
