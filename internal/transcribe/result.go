package transcribe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInputMissing is returned when a request carries neither a file nor a
// recording.
var ErrInputMissing = errors.New("no input provided")

// Stage names the step a request was in when it failed.
type Stage string

const (
	StageInput     Stage = "resolve input"
	StageQueue     Stage = "wait for engine"
	StageLoad      Stage = "load model"
	StageRecognize Stage = "recognize"
	StageFormat    Stage = "format outputs"
)

// ProcessingError wraps any failure after the input was resolved.
type ProcessingError struct {
	Stage Stage
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Report is the success payload of Run.
type Report struct {
	Status   string
	SRTPath  string
	TXTPath  string
	Preview  string
	Text     string
	Model    string
	Source   Source
	Base     string
	Duration float64
}

// Outputs are the four values shown to a user after a request.
type Outputs struct {
	Status  string
	SRTPath string
	TXTPath string
	Preview string
}

const (
	guidanceText  = "Please upload an audio/video file or record audio first."
	failurePrefix = "Error during transcription: "
)

// Render turns the result of Run into user-facing outputs. When showErrors is
// false the failure detail is replaced by a generic message.
func Render(report *Report, err error, showErrors bool) Outputs {
	switch {
	case errors.Is(err, ErrInputMissing):
		return Outputs{Status: guidanceText}
	case err != nil:
		detail := "see server log for details"
		if showErrors {
			detail = failureDetail(err)
		}
		return Outputs{Status: failurePrefix + detail}
	case report == nil:
		return Outputs{Status: failurePrefix + "no result"}
	}

	return Outputs{
		Status:  report.Status,
		SRTPath: report.SRTPath,
		TXTPath: report.TXTPath,
		Preview: report.Preview,
	}
}

func failureDetail(err error) string {
	var perr *ProcessingError
	if errors.As(err, &perr) && perr.Err != nil {
		return perr.Err.Error()
	}
	return err.Error()
}

func statusText(srtName, txtName, model string, source Source, duration float64) string {
	var b strings.Builder
	b.WriteString("Transcription completed successfully!\n")
	b.WriteString("Files generated:\n")
	fmt.Fprintf(&b, "• %s\n", srtName)
	fmt.Fprintf(&b, "• %s\n", txtName)
	fmt.Fprintf(&b, "Model used: %s\n", model)
	fmt.Fprintf(&b, "Source: %s\n", source)
	b.WriteString("Duration: ")
	b.WriteString(formatDuration(duration))
	return b.String()
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "Unknown"
	}
	return strconv.FormatFloat(seconds, 'f', -1, 64) + " seconds"
}
