package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordingProgressStops(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		enabled  bool
		duration time.Duration
	}{
		{name: "interactive spinner", enabled: true},
		{name: "timed", enabled: true, duration: 5 * time.Second},
		{name: "sub-second", enabled: true, duration: 500 * time.Millisecond},
		{name: "disabled", duration: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := new(syncBuffer)
			stop := startRecordingProgress(tt.enabled, out, tt.duration)
			require.NotNil(t, stop)
			stop()
			stop()
			if !tt.enabled {
				require.Empty(t, out.String())
			}
		})
	}
}

func TestTickAdvancesUntilStopped(t *testing.T) {
	t.Parallel()

	out := new(syncBuffer)
	stop := startRecordingProgress(true, out, 0)
	time.Sleep(300 * time.Millisecond)
	stop()
	require.NotEmpty(t, out.String())
}

func TestStageProgressDisabledDiscardsUpdates(t *testing.T) {
	t.Parallel()

	out := new(syncBuffer)
	progress, stop := startStageProgress(false, out)
	progress(0.5, "Processing uploaded file...")
	stop()
	require.Empty(t, out.String())
}

func TestStageProgressRendersDescriptions(t *testing.T) {
	t.Parallel()

	out := new(syncBuffer)
	progress, stop := startStageProgress(true, out)
	progress(0.1, "Loading model...")
	progress(1.5, "Complete!")
	stop()
	stop()
	require.NotEmpty(t, out.String())
}
