package rangepull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cognusion/go-recyclable"
	"github.com/cognusion/go-timings"
)

// Backoff policy for a single chunk's retry loop, per-worker and
// per-retry: reset to minBackoff after any successful fetch (naturally
// true here since each Fetch call starts its own loop), multiply by
// backoffFactor on each Transient failure, capped at maxBackoff. Retries
// are unbounded in count.
const (
	minBackoff    = 1 * time.Second
	maxBackoff    = 30 * time.Second
	backoffFactor = 1.5
)

var bufferPool = recyclable.NewBufferPool()

// Fetcher performs range GETs against the URL given to each Fetch, retrying Transient
// failures with exponential backoff and reporting RangeLengthMismatch as
// fatal.
type Fetcher struct {
	client     Client
	debugOut   *log.Logger
	timingsOut *log.Logger
}

// NewFetcher returns a Fetcher using client for requests. A nil debugOut
// or timingsOut discards those messages.
func NewFetcher(client Client, debugOut, timingsOut *log.Logger) *Fetcher {
	if client == nil {
		client = DefaultClient
	}
	if debugOut == nil {
		debugOut = log.New(io.Discard, "", 0)
	}
	if timingsOut == nil {
		timingsOut = log.New(io.Discard, "", 0)
	}
	return &Fetcher{client: client, debugOut: debugOut, timingsOut: timingsOut}
}

// Fetch retrieves exactly r.Size() bytes of url via a Range request,
// retrying Transient errors indefinitely with backoff until success or
// until ctx is cancelled (reported as Interrupted), or until a fatal
// RangeLengthMismatch is encountered.
func (f *Fetcher) Fetch(ctx context.Context, url string, r Range) ([]byte, error) {
	defer timings.Track(fmt.Sprintf("fetchChunk %d-%d", r.Lo, r.Hi), time.Now(), f.timingsOut)

	backoff := minBackoff
	for {
		body, err := f.attempt(ctx, url, r)
		if err == nil {
			return body, nil
		}

		var rpErr *Error
		if errors.As(err, &rpErr) && rpErr.Kind == RangeLengthMismatch {
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, newError(Interrupted, "fetch cancelled", ctx.Err())
		}

		f.debugOut.Printf("chunk %d-%d: %v, sleeping %s\n", r.Lo, r.Hi, err, backoff)
		select {
		case <-ctx.Done():
			return nil, newError(Interrupted, "fetch cancelled", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// attempt performs exactly one GET with a Range header and reads the
// entire body, classifying failures as Transient or RangeLengthMismatch.
func (f *Fetcher) attempt(ctx context.Context, url string, r Range) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newError(Transient, "building request", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.Lo, r.Hi))

	res, err := f.client.Do(req)
	if err != nil {
		return nil, newError(Transient, "doing request", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return nil, newError(Transient, fmt.Sprintf("unexpected status %s", res.Status), nil)
	}

	// A pooled recyclable.Buffer bounds us to one chunk's worth of memory
	// per in-flight fetch, win or lose; Close returns it to the pool.
	buf := bufferPool.Get()
	defer buf.Close()

	if _, err := io.Copy(buf, res.Body); err != nil {
		return nil, newError(Transient, "reading body", err)
	}

	if int64(buf.Len()) != r.Size() {
		return nil, newError(RangeLengthMismatch,
			fmt.Sprintf("got %d bytes, wanted %d", buf.Len(), r.Size()), nil)
	}

	out, err := io.ReadAll(buf)
	if err != nil {
		return nil, newError(Transient, "draining body buffer", err)
	}
	return out, nil
}
