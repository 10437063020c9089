package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseChecksumByFilename(t *testing.T) {
	t.Parallel()

	content := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa  foo.tar.gz\n" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb  checksums.txt\n")

	parsed, err := ParseChecksum(content, "foo.tar.gz")
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", parsed)
}

func TestVerifyFileChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "payload.bin")
	payload := []byte("voxscribe")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	sum := sha256.Sum256(payload)
	require.NoError(t, VerifyFileChecksum(path, hex.EncodeToString(sum[:])))
	require.Error(t, VerifyFileChecksum(path, "deadbeef"))
}

func TestDownloadFileWithChecksumURL(t *testing.T) {
	t.Parallel()

	payload := []byte("hello-world")
	sum := sha256.Sum256(payload)
	sumHex := hex.EncodeToString(sum[:])

	destination := filepath.Join(t.TempDir(), "artifact.tar.gz")
	checksumBody := fmt.Sprintf("%s  %s\n", sumHex, filepath.Base(destination))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/artifact":
			_, _ = w.Write(payload)
		case "/checksums.txt":
			_, _ = w.Write([]byte(checksumBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	err := DownloadFile(context.Background(), Options{
		URL:         server.URL + "/artifact",
		Destination: destination,
		ChecksumURL: server.URL + "/checksums.txt",
		NoProgress:  true,
		Retries:     1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}

func TestResolveExpectedChecksum(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa  model.bin\n"))
	}))
	defer server.Close()

	checksum, err := ResolveExpectedChecksum(context.Background(), server.URL, "model.bin", nil)
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", checksum)
}

func TestDownloadFileReportsProgress(t *testing.T) {
	t.Parallel()

	payload := []byte(strings.Repeat("x", 4096))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var lastWritten, lastTotal int64
	err := DownloadFile(context.Background(), Options{
		URL:         server.URL,
		Destination: filepath.Join(t.TempDir(), "ggml-tiny.bin"),
		NoProgress:  true,
		Retries:     1,
		OnProgress: func(written, total int64) {
			lastWritten = written
			lastTotal = total
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, len(payload), lastWritten)
	require.EqualValues(t, len(payload), lastTotal)
}

func TestDownloadFileRejectsChecksumMismatchAndCleansUp(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-small.bin")
	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    destination,
		ExpectedSHA256: strings.Repeat("a", 64),
		NoProgress:     true,
		Retries:        1,
	})
	require.ErrorIs(t, err, ErrChecksumMismatch)

	_, statErr := os.Stat(destination)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(destination + ".part")
	require.True(t, os.IsNotExist(statErr))
}

func TestDownloadFileRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	err := DownloadFile(context.Background(), Options{
		URL:         server.URL,
		Destination: filepath.Join(t.TempDir(), "model.bin"),
		NoProgress:  true,
		Retries:     2,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestDownloadFileRequiresURLAndDestination(t *testing.T) {
	t.Parallel()

	require.Error(t, DownloadFile(context.Background(), Options{Destination: "x"}))
	require.Error(t, DownloadFile(context.Background(), Options{URL: "http://example.invalid"}))
}

func TestDownloadFileDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := DownloadFile(context.Background(), Options{
		URL:         server.URL,
		Destination: filepath.Join(t.TempDir(), "ggml-medium.bin"),
		NoProgress:  true,
		Retries:     3,
	})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.Code)
	require.False(t, statusErr.Temporary())
	require.EqualValues(t, 1, calls.Load())
}

func TestDownloadFileResumesPartialFile(t *testing.T) {
	t.Parallel()

	payload := []byte(strings.Repeat("0123456789", 100))
	sum := sha256.Sum256(payload)

	ranges := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges <- r.Header.Get("Range")
		http.ServeContent(w, r, "model.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-large-v3.bin")
	require.NoError(t, os.WriteFile(destination+".part", payload[:400], 0o644))

	var lastWritten, lastTotal int64
	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    destination,
		ExpectedSHA256: hex.EncodeToString(sum[:]),
		NoProgress:     true,
		Retries:        1,
		OnProgress: func(written, total int64) {
			lastWritten, lastTotal = written, total
		},
	})
	require.NoError(t, err)
	require.Equal(t, "bytes=400-", <-ranges)
	require.EqualValues(t, len(payload), lastWritten)
	require.EqualValues(t, len(payload), lastTotal)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}

func TestDownloadFileRestartsWhenRangeIgnored(t *testing.T) {
	t.Parallel()

	payload := []byte("complete model bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	require.NoError(t, os.WriteFile(destination+".part", []byte("stale"), 0o644))

	sum := sha256.Sum256(payload)
	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    destination,
		ExpectedSHA256: hex.EncodeToString(sum[:]),
		NoProgress:     true,
		Retries:        1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	t.Parallel()

	require.Equal(t, retryStep, backoff(2))
	require.Equal(t, 2*retryStep, backoff(3))
	require.Equal(t, maxBackoff, backoff(30))
}

func TestParseChecksumFallsBackToFirstDigest(t *testing.T) {
	t.Parallel()

	content := []byte("# sums\n" + strings.Repeat("c", 64) + "  other.bin\n")
	parsed, err := ParseChecksum(content, "model.bin")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("c", 64), parsed)

	_, err = ParseChecksum([]byte("nothing here"), "model.bin")
	require.Error(t, err)
}
