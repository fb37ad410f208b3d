// Package httpx is the HTTP capability used by scenarios. It owns the tuned
// transport, the optional global request-rate cap and the built-in http_*
// metrics.
package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"vuload/internal/stats"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Timeout            time.Duration
	MaxRPS             float64 // 0 disables the cap
	InsecureSkipVerify bool
	MaxConns           int
}

// Request describes one call. Path is resolved against the client's base URL
// unless it is already absolute.
type Request struct {
	Method  string
	Path    string
	Body    []byte
	Headers http.Header
}

type Response struct {
	Status   int
	Headers  http.Header
	Body     []byte
	Duration time.Duration
	Err      error
}

// Client sends requests and records http_reqs, http_req_duration and
// http_req_failed for every response.
type Client struct {
	BaseURL string

	http    *http.Client
	limiter *rate.Limiter
	metrics *stats.Registry
}

func NewClient(baseURL string, cfg Config, metrics *stats.Registry) *Client {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = cfg.MaxConns
	t.MaxConnsPerHost = cfg.MaxConns
	t.MaxIdleConnsPerHost = cfg.MaxConns
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	c := &Client{
		BaseURL: baseURL,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: t,
		},
		metrics: metrics,
	}
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return c
}

// Send performs one request. Transport failures come back as a Response with
// Status 0 and Err set; Send never returns a nil Response.
func (c *Client) Send(ctx context.Context, r Request) *Response {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Response{Err: err}
		}
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, c.url(r.Path), body)
	if err != nil {
		res := &Response{Err: err}
		c.record(res)
		return res
	}
	for k, vs := range r.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	res := &Response{Err: err}
	if err == nil {
		res.Status = resp.StatusCode
		res.Headers = resp.Header
		res.Body, res.Err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	res.Duration = time.Since(start)

	c.record(res)
	return res
}

// SendAll issues the requests concurrently and returns responses in request order.
func (c *Client) SendAll(ctx context.Context, reqs []Request) []*Response {
	out := make([]*Response, len(reqs))
	var g errgroup.Group
	for i, r := range reqs {
		g.Go(func() error {
			out[i] = c.Send(ctx, r)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) record(res *Response) {
	if c.metrics == nil {
		return
	}
	c.metrics.AddCount(stats.MetricHTTPReqs, 1)
	c.metrics.AddRate(stats.MetricHTTPReqFailed, res.Failed())
	if res.Err == nil {
		c.metrics.AddDuration(stats.MetricHTTPReqDuration, res.Duration)
	}
}

func (c *Client) url(path string) string {
	if len(path) > 0 && path[0] != '/' {
		return path
	}
	return c.BaseURL + path
}

// JSON marshals v for a request body.
func JSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
