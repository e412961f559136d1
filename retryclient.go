package rangepull

import (
	"github.com/eapache/go-resiliency/retrier"

	"net/http"
	"time"
)

// RetryClient wraps an *http.Client with a bounded, constant-interval
// retry for transport-level failures (dial errors, connection resets,
// timeouts) — the kind of failure that is usually gone within a second or
// two and not worth escalating to the fetcher's slower, unbounded
// backoff. HTTP status codes are left untouched; the fetcher decides
// which statuses are retryable.
type RetryClient struct {
	client  *http.Client
	retrier *retrier.Retrier
}

// NewRetryClient returns a RetryClient that retries a failed Do up to
// retries times, every `every`, using `timeout` as the per-attempt
// http.Client timeout.
func NewRetryClient(retries int, every, timeout time.Duration) *RetryClient {
	// An empty blacklist: every transport-level error is retried, unlike
	// retryclient.go's ErrStatusNope blacklist, which doesn't apply here
	// since Do never manufactures its own errors from status codes.
	blacklist := make(retrier.BlacklistClassifier, 0)

	return &RetryClient{
		client:  &http.Client{Timeout: timeout},
		retrier: retrier.New(retrier.ConstantBackoff(retries, every), blacklist),
	}
}

// Do issues req, retrying transport-level errors per the RetryClient's
// policy. A response with a non-2xx status is returned as-is, not
// treated as an error here.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var ret *http.Response

	try := func() error {
		resp, err := rc.client.Do(req)
		if err != nil {
			return err
		}
		ret = resp
		return nil
	}

	if err := rc.retrier.Run(try); err != nil {
		return nil, err
	}
	return ret, nil
}
