package cli

import (
	"io"
	"sync"
	"time"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/schollz/progressbar/v3"
)

type stopFunc func()

// startStageProgress returns a transcribe.Progress that drives a percentage
// bar on w. Disabled progress yields a sink that discards updates.
func startStageProgress(enabled bool, w io.Writer) (transcribe.Progress, stopFunc) {
	if !enabled {
		return func(float64, string) {}, func() {}
	}

	bar := progressbar.NewOptions(
		100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Starting..."),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	var mu sync.Mutex
	progress := func(fraction float64, description string) {
		mu.Lock()
		defer mu.Unlock()
		bar.Describe(description)
		_ = bar.Set(int(min(max(fraction, 0), 1) * 100))
	}

	var once sync.Once
	return progress, func() {
		once.Do(func() {
			mu.Lock()
			defer mu.Unlock()
			_ = bar.Finish()
		})
	}
}

// startRecordingProgress shows a spinner for open-ended recordings and a
// seconds counter when the duration is known.
func startRecordingProgress(enabled bool, w io.Writer, duration time.Duration) stopFunc {
	if !enabled {
		return func() {}
	}

	if duration <= 0 {
		bar := progressbar.NewOptions(
			-1,
			progressbar.OptionSetDescription("Recording (Ctrl+C to stop)"),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(80*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		return tick(bar, 120*time.Millisecond)
	}

	bar := progressbar.NewOptions64(
		max(int64(duration/time.Second), 1),
		progressbar.OptionSetDescription("Recording"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return tick(bar, time.Second)
}

// tick advances bar every interval until the returned stop is called.
func tick(bar *progressbar.ProgressBar, interval time.Duration) stopFunc {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}
