package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fmueller/voxscribe/internal/record"
	"github.com/stretchr/testify/require"
)

type listingBackend struct {
	name      string
	available bool
	listing   string
	err       error
}

func (b listingBackend) Name() string                                { return b.name }
func (b listingBackend) Available() bool                             { return b.available }
func (b listingBackend) Record(context.Context, record.Config) error { return nil }
func (b listingBackend) ListDevices(context.Context) (string, error) {
	return b.listing, b.err
}

func TestListDevicesMarksDefaultBackend(t *testing.T) {
	t.Parallel()

	backends := []record.Backend{
		listingBackend{name: "pw-record"},
		listingBackend{name: "arecord", available: true, listing: "default\nhw:0,0\n"},
		listingBackend{name: "ffmpeg", available: true, err: errors.New("exit status 1")},
	}

	out := new(bytes.Buffer)
	require.NoError(t, listDevices(context.Background(), out, backends, ""))

	want := "== pw-record ==\nnot available on PATH\n\n" +
		"== arecord == (default)\ndefault\nhw:0,0\n\n" +
		"== ffmpeg ==\nfailed to list devices: exit status 1\n\n"
	require.Equal(t, want, out.String())
}

func TestListDevicesFiltersByBackend(t *testing.T) {
	t.Parallel()

	backends := []record.Backend{
		listingBackend{name: "pw-record", available: true, listing: "  "},
		listingBackend{name: "arecord", available: true, listing: "hw:1,0"},
	}

	out := new(bytes.Buffer)
	require.NoError(t, listDevices(context.Background(), out, backends, "pw-record"))
	require.Equal(t, "== pw-record == (default)\nno output\n\n", out.String())

	err := listDevices(context.Background(), new(bytes.Buffer), backends, "sox")
	require.EqualError(t, err, `unknown backend "sox" (available: pw-record, arecord)`)
}
