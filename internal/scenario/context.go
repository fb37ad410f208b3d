// Package scenario holds the warehouse behaviours a VU can run, the weighted
// table that picks one per iteration and the built-in plans that combine them
// with a load profile and thresholds.
package scenario

import (
	"net/http"
)

// RunContext is produced once by setup and shared read-only by every VU and
// by teardown. No iteration may modify it.
type RunContext struct {
	Token string `json:"-"`

	// ProductTypeIDs are usable for product creation: owned ones first,
	// then ones reused from the server.
	ProductTypeIDs []int64 `json:"product_type_ids"`
	// Owned were created during setup and are deleted at teardown.
	Owned []int64 `json:"owned"`
}

func (c *RunContext) Authenticated() bool {
	return c != nil && c.Token != ""
}

// CanWrite reports whether product scenarios have what they need.
func (c *RunContext) CanWrite() bool {
	return c.Authenticated() && len(c.ProductTypeIDs) > 0
}

// Headers builds a fresh header set for one iteration.
func (c *RunContext) Headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if c.Authenticated() {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	return h
}

// Requirement is what an entry needs from the run context to be selectable.
type Requirement int

const (
	NeedsNothing Requirement = iota
	NeedsToken
	NeedsProductType
)

func (r Requirement) String() string {
	switch r {
	case NeedsNothing:
		return "none"
	case NeedsToken:
		return "token"
	case NeedsProductType:
		return "product-type"
	default:
		return "unknown"
	}
}

func (r Requirement) satisfiedBy(c *RunContext) bool {
	switch r {
	case NeedsToken:
		return c.Authenticated()
	case NeedsProductType:
		return c.CanWrite()
	default:
		return true
	}
}
