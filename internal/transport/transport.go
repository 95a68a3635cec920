// Package transport builds the HTTP client shared by the exporter and the
// token-exchange path.
package transport

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tracekit/tracekit-go/internal/config"
	"github.com/tracekit/tracekit-go/internal/version"
)

// NewClient creates a resty client with bounded connect/read/write timeouts
// and the SDK user-agent headers. No retries are configured: export and token
// exchange are both single-attempt by policy.
func NewClient(cfg config.HTTPConfig) *resty.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          5,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       5 * time.Minute,
	}

	client := resty.New()
	client.
		SetTransport(transport).
		SetTimeout(cfg.ConnectTimeout + cfg.ReadTimeout + cfg.WriteTimeout).
		SetRetryCount(0).
		SetHeader("User-Agent", version.UserAgent()).
		SetHeader("X-Client-User-Agent", version.ClientUserAgent())

	return client
}
