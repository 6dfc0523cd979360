// Package testutil provides a fake http.RoundTripper for exercising the
// download engine without a network.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Resource describes one fake remote file served by FakeTransport.
type Resource struct {
	// Data is the full resource content.
	Data []byte
	// SupportsRange makes the transport honor Range requests with 206
	// responses and advertise "Accept-Ranges: bytes".
	SupportsRange bool
	// OmitLength suppresses the Content-Length header, simulating a
	// chunked response of unknown size.
	OmitLength bool
	// ETag is the ETag header value (optional).
	ETag string
	// ContentType is the Content-Type header value (optional).
	ContentType string
	// FailStatus, when non-zero, is served for the first FailCount
	// requests to this resource instead of the real content.
	FailStatus int
	// FailCount is how many requests receive FailStatus before the
	// resource starts answering normally.
	FailCount int
	// Err, when set, is returned from RoundTrip as a transport-level
	// failure for every request to this resource.
	Err error

	// failuresServed counts error responses already handed out.
	failuresServed int
}

// FakeTransport is a test http.RoundTripper serving in-memory resources.
type FakeTransport struct {
	mu        sync.Mutex
	resources map[string]*Resource
	requests  []http.Request

	// ResponseHook, if set, is called with every response before it is
	// returned, and may mutate it.
	ResponseHook func(*http.Response)
}

// NewFakeTransport creates an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{resources: make(map[string]*Resource)}
}

// Add registers a resource under the given URL.
func (ft *FakeTransport) Add(url string, r *Resource) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.resources[url] = r
}

// Requests returns a copy of all requests seen so far.
func (ft *FakeTransport) Requests() []http.Request {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	reqs := make([]http.Request, len(ft.requests))
	copy(reqs, ft.requests)
	return reqs
}

// RangeRequests returns the Range header of every ranged GET seen so far,
// in arrival order.
func (ft *FakeTransport) RangeRequests() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var ranges []string
	for _, req := range ft.requests {
		if r := req.Header.Get("Range"); r != "" {
			ranges = append(ranges, r)
		}
	}
	return ranges
}

// RoundTrip implements http.RoundTripper.
func (ft *FakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ft.mu.Lock()
	reqCopy := *req
	if req.Header != nil {
		reqCopy.Header = req.Header.Clone()
	}
	ft.requests = append(ft.requests, reqCopy)

	resource, exists := ft.resources[req.URL.String()]
	if exists && resource.Err != nil {
		ft.mu.Unlock()
		return nil, resource.Err
	}
	var failing bool
	if exists && resource.failuresServed < resource.FailCount {
		resource.failuresServed++
		failing = true
	}
	ft.mu.Unlock()

	if !exists {
		return ft.finish(ft.statusResponse(req, http.StatusNotFound)), nil
	}
	if failing {
		return ft.finish(ft.statusResponse(req, resource.FailStatus)), nil
	}

	if rangeHeader := req.Header.Get("Range"); rangeHeader != "" && resource.SupportsRange {
		return ft.rangeResponse(req, resource, rangeHeader)
	}

	// Full response, with or without a Range header the resource ignores.
	resp := ft.resourceResponse(req, resource, http.StatusOK)
	resp.Body = io.NopCloser(bytes.NewReader(resource.Data))
	if !resource.OmitLength {
		resp.ContentLength = int64(len(resource.Data))
		resp.Header.Set("Content-Length", strconv.Itoa(len(resource.Data)))
	} else {
		resp.ContentLength = -1
	}
	return ft.finish(resp), nil
}

// rangeResponse serves a single byte range with 206 Partial Content.
func (ft *FakeTransport) rangeResponse(req *http.Request, resource *Resource, rangeHeader string) (*http.Response, error) {
	length := int64(len(resource.Data))
	start, end, ok := parseRange(rangeHeader, length)
	if !ok {
		return ft.finish(ft.statusResponse(req, http.StatusBadRequest)), nil
	}
	if start > end || start >= length {
		resp := ft.statusResponse(req, http.StatusRequestedRangeNotSatisfiable)
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", length))
		return ft.finish(resp), nil
	}

	resp := ft.resourceResponse(req, resource, http.StatusPartialContent)
	resp.Body = io.NopCloser(bytes.NewReader(resource.Data[start : end+1]))
	resp.ContentLength = end - start + 1
	resp.Header.Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, length))
	return ft.finish(resp), nil
}

// resourceResponse builds a response skeleton carrying the resource's
// metadata headers.
func (ft *FakeTransport) resourceResponse(req *http.Request, resource *Resource, statusCode int) *http.Response {
	resp := ft.statusResponse(req, statusCode)
	if resource.SupportsRange {
		resp.Header.Set("Accept-Ranges", "bytes")
	}
	if resource.ETag != "" {
		resp.Header.Set("ETag", resource.ETag)
	}
	if resource.ContentType != "" {
		resp.Header.Set("Content-Type", resource.ContentType)
	}
	return resp
}

// statusResponse builds a minimal response with an empty body.
func (ft *FakeTransport) statusResponse(req *http.Request, statusCode int) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}
}

func (ft *FakeTransport) finish(resp *http.Response) *http.Response {
	if ft.ResponseHook != nil {
		ft.ResponseHook(resp)
	}
	return resp
}

// parseRange parses the "bytes=first-last" form the engine sends. An omitted
// last byte reads to the end of a resource of the given length; suffix and
// multi-range forms are not served.
func parseRange(h string, length int64) (int64, int64, bool) {
	spec, found := strings.CutPrefix(h, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}
	from, to, found := strings.Cut(spec, "-")
	if !found || from == "" {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end := length - 1
	if to != "" {
		if end, err = strconv.ParseInt(to, 10, 64); err != nil || end < start {
			return 0, 0, false
		}
		if end > length-1 {
			end = length - 1
		}
	}
	return start, end, true
}

// GenerateTestData generates deterministic test data of the specified size.
func GenerateTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}
