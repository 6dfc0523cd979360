package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"

	"github.com/rfetch/rfetch/pkg/download/plan"
	"github.com/rfetch/rfetch/pkg/download/resume"
)

// run fetches a resource of known size into outputPath, chunk by chunk,
// persisting per-chunk completion to the sidecar so an interrupted download
// resumes on the next invocation.
func (d *Downloader) run(ctx context.Context, url, outputPath string, outcome *probeOutcome, parallel bool) error {
	totalSize := outcome.totalSize
	sidecar := resume.SidecarPath(outputPath)

	if totalSize == 0 {
		// Nothing to fetch. Truncate the output and drop any stale sidecar.
		if err := preallocate(outputPath, 0); err != nil {
			return err
		}
		return resume.Discard(sidecar)
	}

	rec, err := d.reconcile(url, outputPath, sidecar, outcome, parallel)
	if err != nil {
		return err
	}

	d.progress.Start(totalSize)
	if done := rec.CompletedBytes(); done > 0 {
		d.log.WithField("url", url).
			Infof("resuming, %s already on disk", units.HumanSize(float64(done)))
		d.progress.Add(done)
	}

	// mu guards the record and its sidecar file; exactly one task at a time
	// observes and persists completion state. Chunk writes to the output
	// file need no lock because the ranges are disjoint.
	var mu sync.Mutex
	g := new(errgroup.Group)
	if parallel {
		g.SetLimit(parallelFetchConcurrency)
	} else {
		g.SetLimit(1)
	}

	for i := range rec.Chunks {
		if rec.Chunks[i].Completed {
			continue
		}
		i, chunk := i, rec.Chunks[i]
		g.Go(func() error {
			if err := d.fetchChunk(ctx, url, outputPath, chunk, outcome.contentType); err != nil {
				d.log.WithField("range", fmt.Sprintf("%d-%d", chunk.Start, chunk.End)).
					Warnf("chunk failed: %v", err)
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			rec.Chunks[i].Completed = true
			if err := resume.Save(sidecar, rec); err != nil {
				return err
			}
			d.progress.Add(chunk.Length())
			return nil
		})
	}

	// Every task runs to completion before the outcome is decided; a failed
	// chunk never aborts its siblings, so the sidecar records all the work
	// that did succeed.
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w, partial state kept at %s", ErrChunkDownloadFailed, sidecar)
	}

	if err := resume.Discard(sidecar); err != nil {
		return err
	}
	d.progress.Finish()
	d.log.WithField("url", url).Info("download complete")
	return nil
}

// reconcile loads the sidecar (if any) and decides between warm resume and
// cold restart. A cold restart discards the sidecar and partial output,
// re-plans, and pre-allocates a fresh output file.
func (d *Downloader) reconcile(url, outputPath, sidecar string, outcome *probeOutcome, parallel bool) (*resume.Record, error) {
	rec, err := resume.Load(sidecar)
	if err != nil {
		if !errors.Is(err, resume.ErrCorrupt) {
			return nil, err
		}
		d.log.WithField("path", sidecar).Warn("resume state unreadable, restarting from scratch")
		rec = nil
	}

	if rec != nil &&
		(rec.TotalSize != outcome.totalSize || rec.URL != url || rec.IdentityTag() != outcome.etag) {
		d.log.WithField("url", url).Info("remote resource changed, discarding partial download")
		if err := resume.Discard(sidecar); err != nil {
			return nil, err
		}
		if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale output %s: %w", outputPath, err)
		}
		rec = nil
	}

	if rec == nil {
		rec = resume.NewRecord(url, outcome.totalSize, outcome.etag, plan.Chunks(outcome.totalSize, parallel))
		if err := preallocate(outputPath, outcome.totalSize); err != nil {
			return nil, err
		}
		if err := resume.Save(sidecar, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// preallocate creates (or truncates) the output file at its final length so
// concurrent chunk writers never race on file size.
func preallocate(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("allocating %d bytes for %s: %w", size, path, err)
	}
	return nil
}

// fetchChunk downloads one byte range and writes it at its offset in the
// output file. The response is rejected unless its status is 206 or 200 and
// its Content-Type matches the probe's exactly.
func (d *Downloader) fetchChunk(ctx context.Context, url, outputPath string, chunk plan.Chunk, expectedContentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", chunk.Start, chunk.End))

	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusPartialContent && res.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: res.StatusCode, Status: res.Status}
	}

	// Some servers answer 206 with an HTML error body. The body is only
	// trusted when its Content-Type matches what the probe saw.
	if ct := res.Header.Get("Content-Type"); ct != expectedContentType {
		return fmt.Errorf("%w: probe saw %q, got %q", ErrContentTypeMismatch, expectedContentType, ct)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading range %d-%d: %w", chunk.Start, chunk.End, err)
	}

	f, err := os.OpenFile(outputPath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening output %s: %w", outputPath, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, chunk.Start); err != nil {
		return fmt.Errorf("writing range %d-%d: %w", chunk.Start, chunk.End, err)
	}
	return nil
}
