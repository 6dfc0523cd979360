package download

import "io"

// Progress receives byte-level completion updates from the engine. Rendering
// lives with the caller; the engine only reports totals and increments.
type Progress interface {
	// Start announces the total size in bytes, or -1 when unknown.
	Start(total int64)
	// Add reports n more bytes on disk. On a warm resume the bytes already
	// present are reported in a single Add before any fetching starts.
	Add(n int64)
	// Finish marks the download complete.
	Finish()
}

// nopProgress is the default sink when the caller supplies none.
type nopProgress struct{}

func (nopProgress) Start(int64) {}
func (nopProgress) Add(int64)   {}
func (nopProgress) Finish()     {}

// progressReader counts bytes as they stream through, for downloads that
// write sequentially rather than per chunk.
type progressReader struct {
	r io.Reader
	p Progress
}

func (pr progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.p.Add(int64(n))
	}
	return n, err
}
