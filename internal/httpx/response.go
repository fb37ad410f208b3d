package httpx

import (
	"encoding/json"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// Failed reports whether the response counts toward http_req_failed:
// a transport error or a status of 400 or above.
func (r *Response) Failed() bool {
	return r.Err != nil || r.Status >= 400 || r.Status == 0
}

// Overloaded reports rate limiting or a server-side failure. Scenarios treat
// these as transient and keep them out of the primary error rate.
func (r *Response) Overloaded() bool {
	return r.Status == http.StatusTooManyRequests || r.Status >= 500
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// LocationID returns the last path segment of the Location header.
func (r *Response) LocationID() (string, bool) {
	if r.Headers == nil {
		return "", false
	}
	loc := strings.TrimRight(r.Headers.Get("Location"), "/")
	if loc == "" {
		return "", false
	}
	id := path.Base(loc)
	if id == "." || id == "/" || id == "" {
		return "", false
	}
	return id, true
}

// LocationInt64 is LocationID for numeric identifiers.
func (r *Response) LocationInt64() (int64, bool) {
	id, ok := r.LocationID()
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
