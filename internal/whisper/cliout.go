package whisper

import (
	"encoding/json"
	"fmt"

	"github.com/fmueller/voxscribe/internal/transcript"
)

// cliOutput mirrors the JSON document whisper-cli writes with -oj.
type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseCLIOutput(raw []byte) (transcript.Result, error) {
	var out cliOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return transcript.Result{}, fmt.Errorf("parse whisper output: %w", err)
	}

	segments := make([]transcript.Segment, 0, len(out.Transcription))
	for _, item := range out.Transcription {
		segments = append(segments, transcript.Segment{
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  item.Text,
		})
	}

	return transcript.Result{Segments: segments}, nil
}
