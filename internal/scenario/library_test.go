package scenario

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuload/internal/dummy"
	"vuload/internal/httpx"
	"vuload/internal/stats"
)

type warehouse struct {
	srv     *dummy.Server
	client  *httpx.Client
	metrics *stats.Registry
}

func newWarehouse(t *testing.T, cfg dummy.Config) *warehouse {
	t.Helper()
	cfg.Latency, cfg.Jitter = 0, 0
	srv := dummy.New(cfg, nil)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	reg := stats.NewRegistry()
	return &warehouse{
		srv:     srv,
		client:  httpx.NewClient(ts.URL, httpx.Config{Timeout: 5 * time.Second}, reg),
		metrics: reg,
	}
}

func (w *warehouse) fixtures(types int) *Fixtures {
	return &Fixtures{Client: w.client, Username: "admin", Password: "admin123", ProductTypes: types}
}

func (w *warehouse) iteration(rc *RunContext) *Iteration {
	return NewIteration(rc, w.client, w.metrics, rand.New(rand.NewPCG(1, 1)), DefaultPayloads())
}

func TestBasicProductOps_CreatedProductIsDeleted(t *testing.T) {
	w := newWarehouse(t, dummy.DefaultConfig())
	rc, err := w.fixtures(1).Setup(context.Background())
	require.NoError(t, err)

	BasicProductOps("load", PayloadLoadProduct)(context.Background(), w.iteration(rc))

	snap := w.metrics.Snapshot()
	assert.Equal(t, stats.CheckTally{Passes: 1}, snap.Checks["load product creation ok"])
	assert.Equal(t, stats.CheckTally{Passes: 1}, snap.Checks["load product deletion ok"])
	errRate, ok := snap.Metrics[stats.MetricErrors].Rate()
	require.True(t, ok)
	assert.Zero(t, errRate)

	products, _ := w.srv.Counts()
	assert.Zero(t, products)
}

func TestBasicProductOps_ConflictSkipsDelete(t *testing.T) {
	var deletes atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			rw.WriteHeader(http.StatusConflict)
		case http.MethodDelete:
			deletes.Add(1)
			rw.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ts.Close()

	reg := stats.NewRegistry()
	it := NewIteration(&RunContext{Token: "t", ProductTypeIDs: []int64{1}},
		httpx.NewClient(ts.URL, httpx.Config{}, reg), reg, rand.New(rand.NewPCG(1, 1)), DefaultPayloads())

	BasicProductOps("load", PayloadLoadProduct)(context.Background(), it)
	StressProductOps(context.Background(), it)

	assert.Zero(t, deletes.Load())
	snap := reg.Snapshot()
	assert.Equal(t, int64(1), snap.Checks["load product creation ok"].Passes)
	assert.Equal(t, int64(1), snap.Checks["stress product creation ok"].Passes)
	_, hasDeleteCheck := snap.Checks["load product deletion ok"]
	assert.False(t, hasDeleteCheck)
}

func TestVerify_OverloadIsNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	reg := stats.NewRegistry()
	it := NewIteration(&RunContext{}, httpx.NewClient(ts.URL, httpx.Config{}, reg), reg, rand.New(rand.NewPCG(1, 1)), DefaultPayloads())

	StressHealth(context.Background(), it)

	snap := reg.Snapshot()
	assert.Equal(t, int64(1), snap.Checks["stress health check ok"].Fails)
	_, hasErrors := snap.Get(stats.MetricErrors)
	assert.False(t, hasErrors)
	failed, _ := snap.Metrics[stats.MetricHTTPReqFailed].Rate()
	assert.Equal(t, 1.0, failed)
}

func TestRapidProductOps_WidenedChecksAcceptThrottling(t *testing.T) {
	cfg := dummy.DefaultConfig()
	cfg.ThrottleRate = 1
	w := newWarehouse(t, cfg)

	it := w.iteration(&RunContext{Token: "t", ProductTypeIDs: []int64{1}})
	RapidProductOps(context.Background(), it)

	snap := w.metrics.Snapshot()
	for i := 0; i < 5; i++ {
		name := "spike product " + string(rune('0'+i)) + " creation"
		assert.Equal(t, stats.CheckTally{Passes: 1}, snap.Checks[name], name)
	}
	_, hasErrors := snap.Get(stats.MetricErrors)
	assert.False(t, hasErrors)
}

func TestIntensiveReads_FansOut(t *testing.T) {
	w := newWarehouse(t, dummy.DefaultConfig())
	IntensiveReads(context.Background(), w.iteration(&RunContext{}))

	snap := w.metrics.Snapshot()
	assert.Equal(t, 6.0, snap.Metrics[stats.MetricHTTPReqs].Sum)
	errRate, ok := snap.Metrics[stats.MetricErrors].Rate()
	require.True(t, ok)
	assert.Zero(t, errRate)
	assert.Equal(t, int64(6), snap.Metrics[stats.MetricErrors].Count)
}

func TestErrorProneOps_DoesNotFeedErrors(t *testing.T) {
	w := newWarehouse(t, dummy.DefaultConfig())
	rc, err := w.fixtures(0).Setup(context.Background())
	require.NoError(t, err)

	ErrorProneOps(context.Background(), w.iteration(rc))

	snap := w.metrics.Snapshot()
	for _, name := range []string{
		"non-existent product returns 404",
		"non-existent product type returns 404",
		"invalid pagination handled",
		"malformed request handled",
	} {
		assert.Equal(t, stats.CheckTally{Passes: 1}, snap.Checks[name], name)
	}
	_, hasErrors := snap.Get(stats.MetricErrors)
	assert.False(t, hasErrors)
}

func TestSmokeSweep_SkipsAuthenticatedProbesWithoutToken(t *testing.T) {
	w := newWarehouse(t, dummy.DefaultConfig())
	SmokeSweep(context.Background(), w.iteration(&RunContext{}))

	snap := w.metrics.Snapshot()
	assert.Contains(t, snap.Checks, "products status is 200")
	assert.NotContains(t, snap.Checks, "audit logs accessible or properly secured")
	assert.Equal(t, 2.0, snap.Metrics[stats.MetricHTTPReqs].Sum)
}

func TestPayloads_RenderValidJSON(t *testing.T) {
	p := DefaultPayloads()
	r := rand.New(rand.NewPCG(9, 9))

	for _, name := range []string{PayloadLoadProduct, PayloadNormalProduct, PayloadSpikeProduct, PayloadStressProduct} {
		body, err := p.Render(name, r, 3, 17)
		require.NoError(t, err, name)

		var product struct {
			Name          string  `json:"name"`
			Quantity      int     `json:"quantity"`
			Weight        float64 `json:"weight"`
			ProductTypeID int64   `json:"productTypeId"`
		}
		require.NoError(t, json.Unmarshal(body, &product), string(body))
		assert.Equal(t, int64(17), product.ProductTypeID)
		assert.LessOrEqual(t, len(product.Name), 100)
		assert.Positive(t, product.Quantity)
	}

	_, err := p.Render("missing", r, 0, 0)
	assert.Error(t, err)
	assert.Error(t, p.Register("broken", "{{.Nope"))
}
