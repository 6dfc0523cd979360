// Package download implements a resilient HTTP/HTTPS file downloader that
// maximizes throughput on large resources via parallel ranged requests and
// survives interruptions through an on-disk resume log.
//
// ───────────────────────────── How it works ─────────────────────────────
//   - A probe GET with "Range: bytes=0-1" discovers the resource's total
//     size, range support, ETag, and Content-Type. Transient HTTP errors
//     during the probe are retried with exponential backoff; transport
//     errors abort immediately.
//   - When the size is known, the resource is split into byte ranges and
//     fetched with bounded concurrency into a pre-allocated output file.
//     Each completed range is recorded in a JSON sidecar next to the output,
//     so a crashed or failed download resumes instead of starting over.
//   - The sidecar is removed only once every range is on disk. If the
//     remote resource changed identity (URL, size, or ETag) since the
//     sidecar was written, the partial download is discarded and re-planned.
//   - When the size is unknown, the body is streamed sequentially with no
//     resume support.
//
// ───────────────────────────── Notes & caveats ───────────────────────────
//   - Every chunk response's Content-Type must equal the probe's exactly.
//     Some misbehaving servers answer 206 with an HTML error body; pinning
//     the Content-Type across probe and fetch catches silent origin swaps.
//   - Chunk fetches are not retried internally. Any chunk failure fails the
//     whole run, and the retained sidecar makes the retry cheap.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/eapache/go-resiliency/retrier"
	"github.com/sirupsen/logrus"

	"github.com/rfetch/rfetch/pkg/logging"
)

const (
	// minSizeForMultipart is the smallest resource worth fetching with
	// parallel ranged requests.
	minSizeForMultipart = 1 * 1024 * 1024
	// probeMaxRetries is how many probe attempts are made before giving up.
	probeMaxRetries = 3
	// probeInitialBackoff is the sleep before the second probe attempt; it
	// doubles for each attempt after that.
	probeInitialBackoff = 1 * time.Second
	// parallelFetchConcurrency caps in-flight ranged fetches in parallel
	// mode. Sequential mode uses 1.
	parallelFetchConcurrency = 8
)

// Option configures a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger. Messages are discarded if not specified.
func WithLogger(log logging.Logger) Option {
	return func(d *Downloader) {
		if log != nil {
			d.log = log
		}
	}
}

// WithProgress sets the progress sink fed during downloads.
func WithProgress(p Progress) Option {
	return func(d *Downloader) {
		if p != nil {
			d.progress = p
		}
	}
}

// Downloader drives single-file downloads over a shared HTTP client. The
// client must be safe for concurrent use; http.Client qualifies.
type Downloader struct {
	client   *http.Client
	log      logging.Logger
	progress Progress
}

// New returns a Downloader using client for every request it makes. If
// client is nil, http.DefaultClient is used.
func New(client *http.Client, opts ...Option) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	d := &Downloader{
		client:   client,
		log:      logging.Discard(),
		progress: nopProgress{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// probeOutcome captures what the probe learned about the resource.
type probeOutcome struct {
	// totalSize is the authoritative resource size, or -1 when unknown.
	totalSize int64
	// acceptRanges reports whether ranged fetching is usable.
	acceptRanges bool
	// etag is the raw ETag header, "" when absent.
	etag string
	// contentType is the raw Content-Type header, "" when absent.
	contentType string
}

// Dispatch probes url and downloads it to outputPath, choosing between
// parallel ranged fetching, sequential ranged fetching, and a plain stream
// based on what the server supports. It returns nil only when every byte is
// on disk.
func (d *Downloader) Dispatch(ctx context.Context, url, outputPath string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%w: %s", ErrUnsupportedProtocol, url)
	}

	outcome, err := d.probe(ctx, url)
	if err != nil {
		return err
	}

	log := d.log.WithField("url", url)
	switch {
	case outcome.totalSize < 0:
		log.Info("total size unknown, using streaming download without resume")
		return d.stream(ctx, url, outputPath)
	case outcome.acceptRanges && outcome.totalSize > minSizeForMultipart:
		log.WithField("size", units.HumanSize(float64(outcome.totalSize))).
			Info("starting parallel download")
		return d.run(ctx, url, outputPath, outcome, true)
	default:
		log.WithField("size", units.HumanSize(float64(outcome.totalSize))).
			Info("starting sequential download")
		return d.run(ctx, url, outputPath, outcome, false)
	}
}

// probeClassifier makes the probe retrier retry HTTP status errors only.
// Transport failures (DNS, TLS, connection resets) abort the loop at once.
type probeClassifier struct{}

func (probeClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retrier.Retry
	}
	return retrier.Fail
}

// probe issues a tiny ranged GET to discover size, range support, and
// identity metadata, retrying transient HTTP errors with exponential
// backoff.
func (d *Downloader) probe(ctx context.Context, url string) (*probeOutcome, error) {
	var outcome *probeOutcome
	attempt := 0
	r := retrier.New(
		retrier.ExponentialBackoff(probeMaxRetries-1, probeInitialBackoff),
		probeClassifier{},
	)
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		d.log.WithFields(logrus.Fields{"url": url, "attempt": attempt}).Debug("probing resource")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Range", "bytes=0-1")
		res, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusPartialContent &&
			(res.StatusCode < 200 || res.StatusCode >= 300) {
			d.log.WithFields(logrus.Fields{"url": url, "status": res.Status}).
				Warn("probe rejected")
			return &StatusError{StatusCode: res.StatusCode, Status: res.Status}
		}
		outcome = outcomeFromResponse(res)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", url, err)
	}
	return outcome, nil
}

// outcomeFromResponse extracts size and identity metadata from a successful
// probe response. Content-Range is authoritative when present; otherwise
// Content-Length supplies the size and Accept-Ranges decides whether ranged
// fetching is usable.
func outcomeFromResponse(res *http.Response) *probeOutcome {
	o := &probeOutcome{
		totalSize:   -1,
		etag:        res.Header.Get("ETag"),
		contentType: res.Header.Get("Content-Type"),
	}
	if total, ok := totalFromContentRange(res.Header.Get("Content-Range")); ok {
		o.totalSize = total
		o.acceptRanges = true
		return o
	}
	if cl := res.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			o.totalSize = n
			o.acceptRanges = acceptsByteRanges(res.Header)
		}
	}
	return o
}

// totalFromContentRange extracts the complete length from a
// "Content-Range: bytes first-last/total" header. The range portion is
// irrelevant to the probe; only the total after the slash matters, and a
// "*" total means the server does not know it.
func totalFromContentRange(h string) (int64, bool) {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(strings.ToLower(h), "bytes") {
		return 0, false
	}
	slash := strings.LastIndexByte(h, '/')
	if slash < 0 {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(h[slash+1:]), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

// acceptsByteRanges reports whether the response names "bytes" among its
// accepted range units.
func acceptsByteRanges(h http.Header) bool {
	for _, unit := range strings.Split(h.Get("Accept-Ranges"), ",") {
		if strings.EqualFold(strings.TrimSpace(unit), "bytes") {
			return true
		}
	}
	return false
}
