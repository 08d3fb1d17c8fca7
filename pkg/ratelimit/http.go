package ratelimit

import "net/http"

// Doer abstracts an HTTP client so provider adapters built on raw
// net/http (the anthropic Messages adapter) can interpose a limiter
// without changing their call sites. *http.Client and *LimitedClient
// both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LimitedClient gates every request through a Bucket before handing it
// to the wrapped client. A nil bucket passes requests straight
// through.
type LimitedClient struct {
	inner  Doer
	bucket *Bucket
}

// NewLimitedClient wraps inner with bucket.
func NewLimitedClient(inner Doer, bucket *Bucket) *LimitedClient {
	return &LimitedClient{inner: inner, bucket: bucket}
}

// Do blocks for a token (respecting the request's context), then
// delegates to the wrapped client.
func (c *LimitedClient) Do(req *http.Request) (*http.Response, error) {
	if c.bucket != nil {
		if err := c.bucket.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return c.inner.Do(req)
}
