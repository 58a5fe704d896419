package resilience

import (
	"net/http"
	"time"
)

// NewHTTPClient returns a client with a pooled transport for one upstream host
func NewHTTPClient(maxIdle int, timeout time.Duration) *http.Client {
	if maxIdle <= 0 {
		maxIdle = 10
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
