package transcript

import (
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var sampleSegments = []Segment{
	{Start: 0.0, End: 1.5, Text: "Hello "},
	{Start: 1.5, End: 3.2, Text: "world"},
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{name: "zero", seconds: 0, want: "00:00:00,000"},
		{name: "fraction", seconds: 1.5, want: "00:00:01,500"},
		{name: "truncates sub-millisecond", seconds: 2.0459, want: "00:00:02,045"},
		{name: "inexact float millisecond", seconds: 2.01, want: "00:00:02,010"},
		{name: "inexact float millisecond later", seconds: 4.02, want: "00:00:04,020"},
		{name: "from integer milliseconds", seconds: float64(2030) / 1000, want: "00:00:02,030"},
		{name: "minute boundary", seconds: 60, want: "00:01:00,000"},
		{name: "hour boundary", seconds: 3600, want: "01:00:00,000"},
		{name: "mixed", seconds: 3723.25, want: "01:02:03,250"},
		{name: "hours beyond two digits", seconds: 100 * 3600, want: "100:00:00,000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, FormatTimestamp(tt.seconds))
		})
	}
}

func TestFormatTimestampShapeAndRoundTrip(t *testing.T) {
	t.Parallel()

	shape := regexp.MustCompile(`^\d{2,}:\d{2}:\d{2},\d{3}$`)
	for _, seconds := range []float64{0, 0.001, 0.25, 1.5, 59.75, 61.125, 3599.5, 7322.5, 86400, 360000.5} {
		formatted := FormatTimestamp(seconds)
		require.Regexp(t, shape, formatted)

		ms, err := ParseTimestamp(formatted)
		require.NoError(t, err)
		require.Equal(t, int64(math.Floor(seconds*1000)), ms, "round trip of %v", seconds)
	}
}

func TestFormatTimestampKeepsWholeMilliseconds(t *testing.T) {
	t.Parallel()

	for want := int64(0); want <= 3600000; want += 10 {
		ms, err := ParseTimestamp(FormatTimestamp(float64(want) / 1000))
		require.NoError(t, err)
		require.Equal(t, want, ms, "offset %d ms", want)
	}
}

func TestParseTimestampRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"", "0:00:00,000", "00:00:00.000", "00:60:00,000", "00:00:61,000", "aa:bb:cc,ddd"} {
		_, err := ParseTimestamp(value)
		require.ErrorIs(t, err, ErrInvalidTimestamp, value)
	}
}

func TestGenerateSRT(t *testing.T) {
	t.Parallel()

	want := "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n2\n00:00:01,500 --> 00:00:03,200\nworld\n\n"
	require.Equal(t, want, GenerateSRT(sampleSegments))
}

func TestGenerateTXT(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Hello\nworld", GenerateTXT(sampleSegments))
}

func TestGeneratorsOnEmptyInput(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", GenerateSRT(nil))
	require.Equal(t, "", GenerateTXT(nil))
	require.Equal(t, "", GenerateSRT([]Segment{}))
	require.Equal(t, "", GenerateTXT([]Segment{}))
}

func TestGenerateSRTIndexIsPositional(t *testing.T) {
	t.Parallel()

	segments := []Segment{
		{Start: 5, End: 6, Text: "  later  "},
		{Start: 1, End: 2, Text: "\tearlier\n"},
	}

	srt := GenerateSRT(segments)
	require.True(t, strings.HasPrefix(srt, "1\n00:00:05,000 --> 00:00:06,000\nlater\n\n2\n"))
	require.Contains(t, srt, "\nearlier\n\n")
}

func TestPreview(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("a", PreviewLimit)
	require.Equal(t, short, Preview(short))

	long := strings.Repeat("b", PreviewLimit+1)
	got := Preview(long)
	require.Len(t, got, PreviewLimit+3)
	require.True(t, strings.HasSuffix(got, "..."))
	require.Equal(t, strings.Repeat("b", PreviewLimit), strings.TrimSuffix(got, "..."))

	multibyte := strings.Repeat("ü", PreviewLimit+5)
	require.Equal(t, strings.Repeat("ü", PreviewLimit)+"...", Preview(multibyte))
}

func TestBuildArtifactsAndWriteAll(t *testing.T) {
	t.Parallel()

	srt, txt := BuildArtifacts("meeting", sampleSegments)
	require.Equal(t, "meeting_transcription.srt", srt.FileName)
	require.Equal(t, "meeting_transcription.txt", txt.FileName)

	dir := t.TempDir()
	paths, err := WriteAll(dir, srt, txt)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, srt.FileName), filepath.Join(dir, txt.FileName)}, paths)

	content, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	require.Equal(t, "Hello\nworld", string(content))
}

func TestWriteAllLeavesNothingOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srt, txt := BuildArtifacts("clip", sampleSegments)
	txt.FileName = filepath.Join("missing", "nested", txt.FileName)

	_, err := WriteAll(dir, srt, txt)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, srt.FileName))
	require.True(t, os.IsNotExist(statErr))
}

func TestIsArtifactName(t *testing.T) {
	t.Parallel()

	require.True(t, IsArtifactName("talk_transcription.srt"))
	require.True(t, IsArtifactName("recorded_audio_20260101_101010_transcription.txt"))
	require.False(t, IsArtifactName("_transcription.srt"))
	require.False(t, IsArtifactName("../etc/passwd_transcription.txt"))
	require.False(t, IsArtifactName("notes.txt"))
	require.False(t, IsArtifactName(""))
}

func TestResultDurationKnown(t *testing.T) {
	t.Parallel()

	require.False(t, Result{}.DurationKnown())
	require.True(t, Result{Duration: 3.2}.DurationKnown())
}
