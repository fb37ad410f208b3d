package scenario

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"vuload/internal/httpx"
	"vuload/internal/stats"
)

// Func is one scenario body.
type Func func(ctx context.Context, it *Iteration)

// Iteration is everything a scenario can touch during one VU iteration.
type Iteration struct {
	Run      *RunContext
	Headers  http.Header
	HTTP     *httpx.Client
	Metrics  *stats.Registry
	Rand     *rand.Rand
	Payloads *Payloads
}

func NewIteration(rc *RunContext, client *httpx.Client, metrics *stats.Registry, r *rand.Rand, payloads *Payloads) *Iteration {
	if rc == nil {
		rc = &RunContext{}
	}
	return &Iteration{
		Run:      rc,
		Headers:  rc.Headers(),
		HTTP:     client,
		Metrics:  metrics,
		Rand:     r,
		Payloads: payloads,
	}
}

func (it *Iteration) Get(ctx context.Context, path string) *httpx.Response {
	return it.HTTP.Send(ctx, it.request(http.MethodGet, path, nil))
}

func (it *Iteration) Post(ctx context.Context, path string, body []byte) *httpx.Response {
	return it.HTTP.Send(ctx, it.request(http.MethodPost, path, body))
}

func (it *Iteration) Delete(ctx context.Context, path string) *httpx.Response {
	return it.HTTP.Send(ctx, it.request(http.MethodDelete, path, nil))
}

// GetAll fans the paths out concurrently and returns responses in order.
func (it *Iteration) GetAll(ctx context.Context, paths ...string) []*httpx.Response {
	reqs := make([]httpx.Request, len(paths))
	for i, p := range paths {
		reqs[i] = it.request(http.MethodGet, p, nil)
	}
	return it.HTTP.SendAll(ctx, reqs)
}

func (it *Iteration) request(method, path string, body []byte) httpx.Request {
	return httpx.Request{Method: method, Path: path, Body: body, Headers: it.Headers}
}

// Check evaluates every check against res, records each outcome in the
// per-check tally and reports whether all of them passed.
func (it *Iteration) Check(res *httpx.Response, checks ...Check) bool {
	all := true
	for _, c := range checks {
		ok := c.Pass(res)
		it.Metrics.RecordCheck(c.Name, ok)
		all = all && ok
	}
	return all
}

// Verify is Check plus one sample of the errors rate. Overloaded responses
// are tallied but never sampled into errors.
func (it *Iteration) Verify(res *httpx.Response, checks ...Check) bool {
	ok := it.Check(res, checks...)
	if !res.Overloaded() {
		it.Metrics.AddRate(stats.MetricErrors, !ok)
	}
	return ok
}

// Check is a named predicate over one response.
type Check struct {
	Name string
	Pass func(*httpx.Response) bool
}

// StatusIn passes when the status is one of codes.
func StatusIn(name string, codes ...int) Check {
	return Check{Name: name, Pass: func(r *httpx.Response) bool {
		for _, c := range codes {
			if r.Status == c {
				return true
			}
		}
		return false
	}}
}

// StatusOrOverload accepts codes plus 429 and any 5xx.
func StatusOrOverload(name string, codes ...int) Check {
	in := StatusIn(name, codes...)
	return Check{Name: name, Pass: func(r *httpx.Response) bool {
		return in.Pass(r) || r.Overloaded()
	}}
}

// StatusBetween passes for lo <= status < hi.
func StatusBetween(name string, lo, hi int) Check {
	return Check{Name: name, Pass: func(r *httpx.Response) bool {
		return r.Status >= lo && r.Status < hi
	}}
}

// FasterThan passes when the request completed within d.
func FasterThan(name string, d time.Duration) Check {
	return Check{Name: name, Pass: func(r *httpx.Response) bool {
		return r.Err == nil && r.Duration < d
	}}
}
