package transport

import (
	"net/http"
	"time"
)

type options struct {
	httpClient *http.Client
}

// Option configures a client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func buildOptions(opts []Option) options {
	o := options{httpClient: &http.Client{Timeout: 5 * time.Minute}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
