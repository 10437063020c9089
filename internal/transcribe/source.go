package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Source is the kind of input a request was served from.
type Source string

const (
	SourceFile      Source = "uploaded file"
	SourceRecording Source = "recorded audio"
)

const recordingPrefix = "recorded_audio_"

// input is a resolved request input.
type input struct {
	path   string
	source Source
	base   string
}

// resolveInput picks the file when present, otherwise the recording. The
// second return is false when neither is set.
func resolveInput(file, recording string, now time.Time) (input, bool) {
	file = strings.TrimSpace(file)
	recording = strings.TrimSpace(recording)

	switch {
	case file != "":
		return input{path: file, source: SourceFile, base: stem(file)}, true
	case recording != "":
		return input{path: recording, source: SourceRecording, base: RecordingBase(now)}, true
	default:
		return input{}, false
	}
}

// RecordingBase is the output base name used for recordings.
func RecordingBase(now time.Time) string {
	return recordingPrefix + now.Format("20060102_150405")
}

// stem drops the last extension of the file name. A name whose only dot is
// the leading one, such as ".wav", is kept whole.
func stem(path string) string {
	name := filepath.Base(path)
	if base := strings.TrimSuffix(name, filepath.Ext(name)); base != "" {
		return base
	}
	return name
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return fmt.Errorf("input %s is a directory", filepath.Base(path))
	}
	return nil
}
