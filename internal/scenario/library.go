package scenario

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vuload/internal/httpx"
)

// Warehouse API paths.
const (
	PathHealth       = "/api/health"
	PathLogin        = "/api/v1/auth/login"
	PathProducts     = "/api/v1/products"
	PathProductTypes = "/api/v1/product-types"
	PathAuditLogs    = "/api/v1/audit-logs"
)

func page(path string, page, size int) string {
	return path + "?page=" + strconv.Itoa(page) + "&size=" + strconv.Itoa(size)
}

func item(path string, id string) string {
	return path + "/" + id
}

// productTypeFor picks one of the run's product types for a new product.
func (it *Iteration) productTypeFor() int64 {
	ids := it.Run.ProductTypeIDs
	return ids[it.Rand.IntN(len(ids))]
}

// createdID extracts the id of a created resource from Location, falling
// back to an "id" field in the body.
func createdID(res *httpx.Response) (string, bool) {
	if id, ok := res.LocationID(); ok {
		return id, true
	}
	var body struct {
		ID int64 `json:"id"`
	}
	if err := res.Decode(&body); err == nil && body.ID != 0 {
		return strconv.FormatInt(body.ID, 10), true
	}
	return "", false
}

// BasicReads hits health and the first products page.
func BasicReads(label string) Func {
	return func(ctx context.Context, it *Iteration) {
		res := it.Get(ctx, PathHealth)
		it.Verify(res, StatusIn(label+" health check ok", http.StatusOK))

		res = it.Get(ctx, page(PathProducts, 0, 10))
		it.Verify(res,
			StatusIn(label+" products list ok", http.StatusOK),
			FasterThan(label+" products response time ok", 2*time.Second),
		)
	}
}

// BasicProductOps creates one product and deletes it again when the create
// returned 201. A conflict is accepted and leaves nothing to clean up.
func BasicProductOps(label, payload string) Func {
	return func(ctx context.Context, it *Iteration) {
		body, err := it.Payloads.Render(payload, it.Rand, 0, it.productTypeFor())
		if err != nil {
			return
		}
		res := it.Post(ctx, PathProducts, body)
		it.Verify(res, StatusIn(label+" product creation ok", http.StatusCreated, http.StatusConflict))
		if res.Status != http.StatusCreated {
			return
		}
		id, ok := createdID(res)
		if !ok {
			return
		}
		res = it.Delete(ctx, item(PathProducts, id))
		it.Verify(res, StatusIn(label+" product deletion ok", http.StatusNoContent))
	}
}

func BasicProductTypes(label string) Func {
	return func(ctx context.Context, it *Iteration) {
		res := it.Get(ctx, page(PathProductTypes, 0, 20))
		it.Verify(res, StatusIn(label+" product types list ok", http.StatusOK))
	}
}

// IntensiveReads fans six list reads out at once.
func IntensiveReads(ctx context.Context, it *Iteration) {
	responses := it.GetAll(ctx,
		PathHealth,
		page(PathProducts, 0, 50),
		page(PathProducts, 1, 50),
		page(PathProducts, 2, 50),
		page(PathProductTypes, 0, 30),
		page(PathProductTypes, 1, 30),
	)
	for i, res := range responses {
		it.Verify(res,
			StatusBetween(fmt.Sprintf("spike read %d status ok", i), 200, 500),
			FasterThan(fmt.Sprintf("spike read %d response time reasonable", i), 15*time.Second),
		)
	}
}

// RapidProductOps creates five products back to back, then deletes the ones
// that were created.
func RapidProductOps(ctx context.Context, it *Iteration) {
	var created []string
	for i := 0; i < 5; i++ {
		body, err := it.Payloads.Render(PayloadSpikeProduct, it.Rand, i, it.productTypeFor())
		if err != nil {
			continue
		}
		res := it.Post(ctx, PathProducts, body)
		it.Verify(res, StatusOrOverload(fmt.Sprintf("spike product %d creation", i), http.StatusCreated, http.StatusConflict))
		if res.Status == http.StatusCreated {
			if id, ok := createdID(res); ok {
				created = append(created, id)
			}
		}
	}
	for i, id := range created {
		res := it.Delete(ctx, item(PathProducts, id))
		it.Verify(res, StatusOrOverload(fmt.Sprintf("spike product %d deletion", i), http.StatusNoContent, http.StatusNotFound))
	}
}

// ConcurrentOps reads products, product types and health together.
func ConcurrentOps(ctx context.Context, it *Iteration) {
	responses := it.GetAll(ctx, page(PathProducts, 0, 20), page(PathProductTypes, 0, 20), PathHealth)
	for i, res := range responses {
		it.Verify(res, Check{
			Name: fmt.Sprintf("concurrent op %d reasonable response", i),
			Pass: func(r *httpx.Response) bool {
				return (r.Err == nil && r.Status < 500) || r.Duration < 20*time.Second
			},
		})
	}
}

// ErrorProneOps probes error paths. Its checks are tallied only; expected
// failures must not count as errors.
func ErrorProneOps(ctx context.Context, it *Iteration) {
	res := it.Get(ctx, item(PathProducts, "999999"))
	it.Check(res, StatusIn("non-existent product returns 404", http.StatusNotFound))

	res = it.Get(ctx, item(PathProductTypes, "999999"))
	it.Check(res, StatusIn("non-existent product type returns 404", http.StatusNotFound))

	res = it.Get(ctx, PathProducts+"?page=-1&size=1000")
	it.Check(res, StatusIn("invalid pagination handled", http.StatusBadRequest, http.StatusOK))

	if !it.Run.Authenticated() {
		return
	}
	body, err := it.Payloads.Render(PayloadMalformed, it.Rand, 0, 0)
	if err != nil {
		return
	}
	res = it.Post(ctx, PathProducts, body)
	it.Check(res, Check{Name: "malformed request handled", Pass: func(r *httpx.Response) bool {
		return r.Status == http.StatusBadRequest || r.Status >= 500
	}})
}

func StressReads(ctx context.Context, it *Iteration) {
	res := it.Get(ctx, page(PathProducts, 0, 10))
	it.Verify(res,
		StatusIn("stress products list ok", http.StatusOK),
		FasterThan("stress products response time ok", 5*time.Second),
	)
	res = it.Get(ctx, page(PathProductTypes, 0, 10))
	it.Verify(res, StatusIn("stress product types list ok", http.StatusOK))
}

// StressProductOps is BasicProductOps with a 404 tolerated on delete.
func StressProductOps(ctx context.Context, it *Iteration) {
	body, err := it.Payloads.Render(PayloadStressProduct, it.Rand, 0, it.productTypeFor())
	if err != nil {
		return
	}
	res := it.Post(ctx, PathProducts, body)
	if !it.Verify(res, StatusIn("stress product creation ok", http.StatusCreated, http.StatusConflict)) {
		return
	}
	if res.Status != http.StatusCreated {
		return
	}
	id, ok := createdID(res)
	if !ok {
		return
	}
	res = it.Delete(ctx, item(PathProducts, id))
	it.Verify(res, StatusIn("stress product deletion ok", http.StatusNoContent, http.StatusNotFound))
}

func StressHealth(ctx context.Context, it *Iteration) {
	res := it.Get(ctx, PathHealth)
	it.Verify(res, StatusIn("stress health check ok", http.StatusOK))
}

// SmokeSweep touches every endpoint once. Health and audit logs are only
// probed with a token.
func SmokeSweep(ctx context.Context, it *Iteration) {
	res := it.Get(ctx, page(PathProducts, 0, 5))
	it.Check(res,
		StatusIn("products status is 200", http.StatusOK),
		FasterThan("products response time < 1s", time.Second),
	)

	res = it.Get(ctx, page(PathProductTypes, 0, 5))
	it.Check(res, StatusIn("product types status is 200", http.StatusOK))

	if !it.Run.Authenticated() {
		return
	}

	res = it.Get(ctx, PathHealth)
	it.Check(res,
		StatusIn("health check status is 200", http.StatusOK),
		FasterThan("health check response time < 500ms", 500*time.Millisecond),
	)

	res = it.Get(ctx, page(PathAuditLogs, 0, 5))
	it.Check(res, StatusIn("audit logs accessible or properly secured", http.StatusOK, http.StatusForbidden))
}
