// Package download fetches model files over HTTP. Transfers resume from a
// ".part" file when the server honours range requests, and the result is
// verified against a SHA-256 digest before it replaces the destination.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// ErrChecksumMismatch is returned when the downloaded bytes do not hash to
// the expected digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

var checksumPattern = regexp.MustCompile(`(?i)\b([a-f0-9]{64})\b`)

// retryStep is the first backoff; each further attempt doubles it up to
// maxBackoff.
var retryStep = 300 * time.Millisecond

const (
	maxBackoff     = 10 * time.Second
	defaultRetries = 3
	userAgent      = "voxscribe-model-fetch/1"
)

// StatusError is an unexpected HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Options struct {
	URL            string
	Destination    string
	ExpectedSHA256 string
	ChecksumURL    string
	// Retries is the total number of attempts. Zero means three.
	Retries    int
	NoProgress bool
	HTTPClient *http.Client
	Logger     *zap.Logger
	// OnProgress is called as bytes arrive, counting bytes resumed from an
	// earlier attempt. total is -1 when unknown.
	OnProgress func(written, total int64)
}

// DownloadFile fetches opts.URL into opts.Destination. Client errors (4xx)
// are returned at once; transport failures and 5xx responses are retried
// with exponential backoff, resuming the partial file when possible.
func DownloadFile(ctx context.Context, opts Options) error {
	if opts.URL == "" {
		return errors.New("download URL is required")
	}
	if opts.Destination == "" {
		return errors.New("destination path is required")
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	expected := strings.ToLower(strings.TrimSpace(opts.ExpectedSHA256))
	if expected == "" && opts.ChecksumURL != "" {
		resolved, err := ResolveExpectedChecksum(ctx, opts.ChecksumURL, filepath.Base(opts.Destination), opts.HTTPClient)
		if err != nil {
			return fmt.Errorf("fetch checksum: %w", err)
		}
		expected = resolved
	}

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			wait := backoff(attempt)
			opts.Logger.Warn("retrying download",
				zap.Int("attempt", attempt),
				zap.Int("max", opts.Retries),
				zap.Duration("wait", wait),
				zap.String("url", opts.URL),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = fetch(ctx, opts, expected)
		if lastErr == nil {
			return nil
		}
		if !retryable(ctx, lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func backoff(attempt int) time.Duration {
	wait := retryStep << (attempt - 2)
	if wait <= 0 || wait > maxBackoff {
		return maxBackoff
	}
	return wait
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// fetch performs one attempt. A partial file left by an earlier attempt is
// resumed with a range request; servers that ignore the range restart it.
func fetch(ctx context.Context, opts Options, expectedChecksum string) error {
	partPath := opts.Destination + ".part"

	digest := sha256.New()
	offset, err := rehashPart(partPath, digest)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		opts.Logger.Info("resuming download", zap.String("url", opts.URL), zap.Int64("offset", offset))
	case resp.StatusCode == http.StatusOK:
		offset = 0
		digest.Reset()
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		_ = os.Remove(partPath)
		return errors.New("server rejected resume offset; restarting download")
	default:
		return &StatusError{URL: opts.URL, Code: resp.StatusCode}
	}

	part, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer part.Close()

	total := int64(-1)
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	writers := []io.Writer{part, digest}
	if opts.OnProgress != nil {
		writers = append(writers, &progressWriter{written: offset, total: total, report: opts.OnProgress})
	}

	var bar *progressbar.ProgressBar
	if shouldRenderProgress(opts.NoProgress, total) {
		bar = progressbar.NewOptions64(
			total,
			progressbar.OptionSetDescription("downloading "+filepath.Base(opts.Destination)),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		_ = bar.Set64(offset)
		writers = append(writers, bar)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := part.Sync(); err != nil {
		return fmt.Errorf("sync partial file: %w", err)
	}
	if err := part.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}

	actual := hex.EncodeToString(digest.Sum(nil))
	if expectedChecksum != "" && actual != expectedChecksum {
		_ = os.Remove(partPath)
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expectedChecksum, actual)
	}

	if err := os.Rename(partPath, opts.Destination); err != nil {
		return fmt.Errorf("move partial file into destination: %w", err)
	}
	return nil
}

// rehashPart feeds an existing partial file into digest and returns its size.
func rehashPart(path string, digest hash.Hash) (int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open partial file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(digest, f)
	if err != nil {
		return 0, fmt.Errorf("read partial file: %w", err)
	}
	return n, nil
}

func ResolveExpectedChecksum(ctx context.Context, checksumURL, fileName string, client *http.Client) (string, error) {
	if strings.TrimSpace(checksumURL) == "" {
		return "", errors.New("checksum URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: checksumURL, Code: resp.StatusCode}
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return ParseChecksum(content, fileName)
}

// ParseChecksum finds a hex SHA-256 digest in a checksum listing, preferring
// the line that names fileName.
func ParseChecksum(content []byte, fileName string) (string, error) {
	var fallback string
	for line := range strings.Lines(string(content)) {
		match := checksumPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		sum := strings.ToLower(match[1])
		if fileName != "" && strings.Contains(line, fileName) {
			return sum, nil
		}
		if fallback == "" {
			fallback = sum
		}
	}
	if fallback == "" {
		return "", errors.New("sha256 checksum not found")
	}
	return fallback, nil
}

// VerifyFileChecksum hashes path and compares it with expectedSHA256. An
// empty expectation always passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := strings.ToLower(strings.TrimSpace(expectedSHA256))
	if expected == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat file for checksum: %w", err)
	}
	digest := sha256.New()
	if _, err := rehashPart(path, digest); err != nil {
		return err
	}

	if actual := hex.EncodeToString(digest.Sum(nil)); actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}
	return nil
}

type progressWriter struct {
	written int64
	total   int64
	report  func(written, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	p.report(p.written, p.total)
	return len(b), nil
}

func shouldRenderProgress(noProgress bool, total int64) bool {
	if noProgress || total <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
