package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Simonization/webservTester/internal/model"
)

const maxBodyRead = 1 << 20 // 1MB

// HTTPClient is the capability that performs the actual network call of a
// probe. The executor owns the interpretation of the response; adapters own
// the transport.
type HTTPClient interface {
	Do(ctx context.Context, p model.Probe) (*model.ProbeResult, error)
}

// RawClient sends an arbitrary byte payload over a plain TCP connection and
// returns whatever the peer writes back. Used for garbage-request-line
// probes that no HTTP client would emit.
type RawClient interface {
	Send(ctx context.Context, target, payload string, timeout time.Duration) (string, error)
}

// Client is the production HTTPClient adapter built on net/http. Every call
// uses a fresh transport with keep-alives disabled so one probe's connection
// state never leaks into the next.
type Client struct{}

func (c *Client) Do(ctx context.Context, p model.Probe) (*model.ProbeResult, error) {
	var bodyReader io.Reader
	if p.Body != "" {
		bodyReader = strings.NewReader(p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: p.Timeout,
		}).DialContext,
		DisableKeepAlives: true,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   p.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	headers := make(map[string]string)
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &model.ProbeResult{
		Name:       p.Name,
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       string(bodyBytes),
		DurationMS: elapsed,
	}, nil
}

// Dialer is the production RawClient adapter.
type Dialer struct{}

func (d *Dialer) Send(ctx context.Context, target, payload string, timeout time.Duration) (string, error) {
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write([]byte(payload)); err != nil {
		return "", err
	}

	buf, err := io.ReadAll(io.LimitReader(conn, maxBodyRead))
	if err != nil && len(buf) == 0 {
		return "", err
	}

	return string(buf), nil
}
