package rangepull

import (
	"net/http"
	"time"
)

// DefaultClient is the Client used to make the individual range GET
// requests unless a Coordinator's Client field is set. It wraps a
// plain http.Client with a short bounded retry for low-level connection
// churn (dial failures, resets); sustained failures still surface to the
// fetcher's own unbounded backoff loop.
var DefaultClient Client = NewRetryClient(3, 2*time.Second, 60*time.Second)

// Client is satisfied by an *http.Client or a *RetryClient.
type Client interface {
	Do(*http.Request) (*http.Response, error)
}
