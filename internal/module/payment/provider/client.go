package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-pay/gopay"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const defaultClientTimeout = 10 * time.Second

// Client is the shared outbound HTTP client for channel gateways. Every
// call runs through a per-host circuit breaker so a dead upstream fails
// fast instead of tying up request workers. WeChat refunds need mutual TLS
// with merchant certificates; those clients are cached per identity.
type Client struct {
	timeout time.Duration
	logger  *zap.Logger
	base    *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
	tls      map[string]*http.Client
}

// NewClient creates a Client with the given per-call timeout cap.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		timeout:  timeout,
		logger:   logger,
		base:     &http.Client{Timeout: timeout},
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
		tls:      make(map[string]*http.Client),
	}
}

// PostForm POSTs with the form values carried in the URL query string, the
// way the Alipay OpenAPI gateway accepts refund calls.
func (c *Client) PostForm(ctx context.Context, rawURL string, form gopay.BodyMap) ([]byte, error) {
	full := rawURL + "?" + form.EncodeURLParams()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, full, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnexpected, err)
	}
	return c.do(req, c.base)
}

// PostXML POSTs a flat XML rendering of body, the WeChat V2 envelope.
func (c *Client) PostXML(ctx context.Context, rawURL string, body gopay.BodyMap) ([]byte, error) {
	payload, err := encodeXML(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnexpected, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	return c.do(req, c.base)
}

// PostXMLWithTLS is PostXML over mutual TLS with a merchant client
// certificate. identity keys the cached TLS client, one per ChannelParams
// identity (the WeChat mch_id).
func (c *Client) PostXMLWithTLS(ctx context.Context, rawURL string, body gopay.BodyMap, identity string, certPEM, keyPEM []byte) ([]byte, error) {
	httpClient, err := c.tlsClient(identity, certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	payload, err := encodeXML(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnexpected, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	return c.do(req, httpClient)
}

func (c *Client) do(req *http.Request, httpClient *http.Client) ([]byte, error) {
	host := req.URL.Host
	breaker := c.breakerFor(host)
	body, err := breaker.Execute(func() ([]byte, error) {
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: request %s: %v", ErrChannelAPI, host, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s response: %v", ErrChannelAPI, host, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s returned status %d", ErrChannelAPI, host, resp.StatusCode)
		}
		return data, nil
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("channel request failed",
				zap.String("host", host),
				zap.Error(err))
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s circuit open: %v", ErrChannelAPI, host, err)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if breaker, ok := c.breakers[host]; ok {
		return breaker
	}
	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](settings)
	c.breakers[host] = breaker
	return breaker
}

func (c *Client) tlsClient(identity string, certPEM, keyPEM []byte) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.tls[identity]; ok {
		return client, nil
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: load client certificate: %v", ErrInvalidConfig, err)
	}
	client := &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		},
	}
	c.tls[identity] = client
	return client, nil
}
