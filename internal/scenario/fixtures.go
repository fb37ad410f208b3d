package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"vuload/internal/httpx"
)

var (
	ErrLoginFailed    = errors.New("login failed")
	ErrNoProductTypes = errors.New("no product type available")
)

// Fixtures implements setup and teardown against the warehouse API.
type Fixtures struct {
	Client       *httpx.Client
	Payloads     *Payloads
	Username     string
	Password     string
	ProductTypes int
	Log          *zap.Logger
}

type loginResponse struct {
	Token string `json:"token"`
}

type productType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Setup logs in and seeds product types. It always returns a usable context;
// on error that context is degraded (no token, or no product types) and the
// run is expected to go on with it.
func (f *Fixtures) Setup(ctx context.Context) (*RunContext, error) {
	log := f.logger()
	rc := &RunContext{}

	token, err := f.login(ctx)
	if err != nil {
		log.Warn("Login failed, continuing unauthenticated", zap.Error(err))
		return rc, err
	}
	rc.Token = token
	log.Info("Login successful", zap.String("username", f.Username))

	if f.ProductTypes <= 0 {
		return rc, nil
	}

	headers := rc.Headers()
	r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	short := false
	for i := 0; i < f.ProductTypes; i++ {
		body, err := f.payloads().Render(PayloadProductType, r, i, 0)
		if err != nil {
			return rc, err
		}
		res := f.Client.Send(ctx, httpx.Request{Method: http.MethodPost, Path: PathProductTypes, Body: body, Headers: headers})
		if res.Status == http.StatusCreated {
			if id, ok := res.LocationInt64(); ok {
				rc.Owned = append(rc.Owned, id)
				continue
			}
		}
		log.Debug("Product type not created", zap.Int("status", res.Status), zap.Error(res.Err))
		short = true
	}
	rc.ProductTypeIDs = append(rc.ProductTypeIDs, rc.Owned...)

	// Conflicts and failed creates fall back to types that already exist.
	if short || len(rc.Owned) == 0 {
		existing, err := f.listProductTypes(ctx, headers, f.ProductTypes)
		if err != nil {
			log.Warn("Listing product types failed", zap.Error(err))
		}
		for _, id := range existing {
			if !slices.Contains(rc.ProductTypeIDs, id) {
				rc.ProductTypeIDs = append(rc.ProductTypeIDs, id)
			}
		}
	}

	log.Info("Fixtures ready",
		zap.Int("owned", len(rc.Owned)),
		zap.Int("reused", len(rc.ProductTypeIDs)-len(rc.Owned)),
	)
	if len(rc.ProductTypeIDs) == 0 {
		return rc, ErrNoProductTypes
	}
	return rc, nil
}

// Teardown deletes the product types setup created. Reused ones are left alone.
func (f *Fixtures) Teardown(ctx context.Context, rc *RunContext) error {
	if !rc.Authenticated() || len(rc.Owned) == 0 {
		return nil
	}
	headers := rc.Headers()
	var errs []error
	for _, id := range rc.Owned {
		path := PathProductTypes + "/" + strconv.FormatInt(id, 10)
		res := f.Client.Send(ctx, httpx.Request{Method: http.MethodDelete, Path: path, Headers: headers})
		switch {
		case res.Err != nil:
			errs = append(errs, fmt.Errorf("delete product type %d: %w", id, res.Err))
		case res.Status != http.StatusNoContent && res.Status != http.StatusNotFound:
			errs = append(errs, fmt.Errorf("delete product type %d: status %d", id, res.Status))
		}
	}
	return errors.Join(errs...)
}

func (f *Fixtures) login(ctx context.Context) (string, error) {
	body := httpx.JSON(map[string]string{"username": f.Username, "password": f.Password})
	res := f.Client.Send(ctx, httpx.Request{
		Method:  http.MethodPost,
		Path:    PathLogin,
		Body:    body,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
	})
	if res.Err != nil {
		return "", fmt.Errorf("%w: %w", ErrLoginFailed, res.Err)
	}
	if res.Status != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrLoginFailed, res.Status)
	}
	var lr loginResponse
	if err := res.Decode(&lr); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrLoginFailed, err)
	}
	if lr.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrLoginFailed)
	}
	return lr.Token, nil
}

// listProductTypes accepts both a bare array and a page with a content field.
func (f *Fixtures) listProductTypes(ctx context.Context, headers http.Header, size int) ([]int64, error) {
	res := f.Client.Send(ctx, httpx.Request{Method: http.MethodGet, Path: page(PathProductTypes, 0, size), Headers: headers})
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Status != http.StatusOK {
		return nil, fmt.Errorf("status %d", res.Status)
	}

	var list []productType
	if err := res.Decode(&list); err != nil {
		var paged struct {
			Content []productType `json:"content"`
		}
		if err := res.Decode(&paged); err != nil {
			return nil, fmt.Errorf("decode product types: %w", err)
		}
		list = paged.Content
	}

	ids := make([]int64, 0, len(list))
	for _, pt := range list {
		if pt.ID != 0 {
			ids = append(ids, pt.ID)
		}
	}
	if size > 0 && len(ids) > size {
		ids = ids[:size]
	}
	return ids, nil
}

func (f *Fixtures) logger() *zap.Logger {
	if f.Log == nil {
		return zap.NewNop()
	}
	return f.Log.With(zap.String("component", "fixtures"))
}

func (f *Fixtures) payloads() *Payloads {
	if f.Payloads == nil {
		f.Payloads = DefaultPayloads()
	}
	return f.Payloads
}
