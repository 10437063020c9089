package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/fmueller/voxscribe/internal/record"
	"github.com/spf13/cobra"
)

func newDevicesCmd(_ *appState) *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List recording devices and backend diagnostics",
		Long:  "List the microphone recorders voxscribe can drive and the input devices each one reports.\nThe backend marked (default) is the one `voxscribe record` picks with --backend auto.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backends := record.DefaultBackends(runtime.GOOS)
			if len(backends) == 0 {
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			return listDevices(cmd.Context(), cmd.OutOrStdout(), backends, only)
		},
	}

	cmd.Flags().StringVar(&only, "backend", "", "Only list devices of this backend")
	return cmd
}

func listDevices(ctx context.Context, out io.Writer, backends []record.Backend, only string) error {
	var preferred string
	if selected, err := record.SelectBackend(backends, "auto"); err == nil {
		preferred = selected.Name()
	}

	listed := 0
	for _, backend := range backends {
		if only != "" && backend.Name() != only {
			continue
		}
		listed++

		header := "== " + backend.Name() + " =="
		if backend.Name() == preferred {
			header += " (default)"
		}
		fmt.Fprintln(out, header)

		fmt.Fprintln(out, deviceListing(ctx, backend))
		fmt.Fprintln(out)
	}

	if listed == 0 {
		names := make([]string, 0, len(backends))
		for _, b := range backends {
			names = append(names, b.Name())
		}
		return fmt.Errorf("unknown backend %q (available: %s)", only, strings.Join(names, ", "))
	}
	return nil
}

func deviceListing(ctx context.Context, backend record.Backend) string {
	if !backend.Available() {
		return "not available on PATH"
	}

	listing, err := backend.ListDevices(ctx)
	switch {
	case err != nil:
		return fmt.Sprintf("failed to list devices: %v", err)
	case strings.TrimSpace(listing) == "":
		return "no output"
	default:
		return strings.TrimRight(listing, "\n")
	}
}
