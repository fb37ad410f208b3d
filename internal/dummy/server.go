// Package dummy is an in-memory stand-in for the warehouse API, used for
// local runs and tests. It can inject latency, throttling and server errors.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	Port     int
	Username string
	Password string

	// Latency is added to every request, plus up to Jitter more.
	Latency time.Duration
	Jitter  time.Duration

	// Fractions of /api/v1 requests (login excluded) answered with 429 or 500.
	ThrottleRate float64
	FailRate     float64

	// AuditForbidden makes the audit log endpoint answer 403.
	AuditForbidden bool
}

func DefaultConfig() Config {
	return Config{
		Port:     6565,
		Username: "admin",
		Password: "admin123",
		Latency:  5 * time.Millisecond,
		Jitter:   20 * time.Millisecond,
	}
}

type Product struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	Quantity          int     `json:"quantity"`
	LowStockThreshold int     `json:"lowStockThreshold"`
	Weight            float64 `json:"weight"`
	Height            float64 `json:"height"`
	Length            float64 `json:"length"`
	ProductTypeID     int64   `json:"productTypeId"`
	SKU               string  `json:"sku"`
}

type ProductType struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Server struct {
	cfg    Config
	logger *zap.Logger
	token  string

	mu       sync.RWMutex
	products map[int64]*Product
	types    map[int64]*ProductType
	nextID   atomic.Int64

	requests atomic.Int64
}

func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "dummy")),
		token:    uuid.NewString(),
		products: make(map[int64]*Product),
		types:    make(map[int64]*ProductType),
	}
}

// Requests returns how many requests the server has handled.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)
	r.Use(s.latency)

	r.Get("/api/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.inject)

			r.Get("/products", s.listProducts)
			r.Get("/products/{id}", s.getProduct)
			r.Get("/product-types", s.listProductTypes)
			r.Get("/product-types/{id}", s.getProductType)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticated)
				r.Post("/products", s.createProduct)
				r.Delete("/products/{id}", s.deleteProduct)
				r.Post("/product-types", s.createProductType)
				r.Delete("/product-types/{id}", s.deleteProductType)
				r.Get("/audit-logs", s.auditLogs)
			})
		})
	})
	return r
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	s.logger.Info("Dummy warehouse listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) latency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.cfg.Latency
		if s.cfg.Jitter > 0 {
			d += rand.N(s.cfg.Jitter)
		}
		if d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		x := rand.Float64()
		switch {
		case x < s.cfg.ThrottleRate:
			s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			return
		case x < s.cfg.ThrottleRate+s.cfg.FailRate:
			s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	if req.Username != s.cfg.Username || req.Password != s.cfg.Password {
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad credentials"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"token":    s.token,
		"username": req.Username,
		"roles":    []string{"ADMIN"},
	})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pagination(r)
	if !ok {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pagination"})
		return
	}

	s.mu.RLock()
	all := make([]*Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	content := []*Product{}
	if from := page * size; from < len(all) {
		content = all[from:min(from+size, len(all))]
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"content":       content,
		"page":          page,
		"size":          size,
		"totalElements": len(all),
	})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	s.mu.RLock()
	p, found := s.products[id]
	s.mu.RUnlock()
	if !ok || !found {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	if n := len(p.Name); n < 2 || n > 100 || p.Description == "" || p.Quantity < 0 || p.ProductTypeID == 0 {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "validation failed"})
		return
	}

	s.mu.Lock()
	if _, ok := s.types[p.ProductTypeID]; !ok {
		s.mu.Unlock()
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown product type"})
		return
	}
	for _, existing := range s.products {
		if existing.Name == p.Name {
			s.mu.Unlock()
			s.respondJSON(w, http.StatusConflict, map[string]string{"error": "product already exists"})
			return
		}
	}
	p.ID = s.nextID.Add(1)
	p.SKU = fmt.Sprintf("SKU-%d-%s", p.ProductTypeID, strings.ToUpper(uuid.NewString()[:8]))
	s.products[p.ID] = &p
	s.mu.Unlock()

	w.Header().Set("Location", "/api/v1/products/"+strconv.FormatInt(p.ID, 10))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	s.mu.Lock()
	_, found := s.products[id]
	delete(s.products, id)
	s.mu.Unlock()
	if !ok || !found {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listProductTypes(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pagination(r)
	if !ok {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pagination"})
		return
	}

	s.mu.RLock()
	all := make([]*ProductType, 0, len(s.types))
	for _, t := range s.types {
		all = append(all, t)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	out := []*ProductType{}
	if from := page * size; from < len(all) {
		out = all[from:min(from+size, len(all))]
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) getProductType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	s.mu.RLock()
	t, found := s.types[id]
	s.mu.RUnlock()
	if !ok || !found {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "product type not found"})
		return
	}
	s.respondJSON(w, http.StatusOK, t)
}

func (s *Server) createProductType(w http.ResponseWriter, r *http.Request) {
	var t ProductType
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil || len(t.Name) < 2 || len(t.Name) > 100 {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "validation failed"})
		return
	}

	s.mu.Lock()
	for _, existing := range s.types {
		if existing.Name == t.Name {
			s.mu.Unlock()
			s.respondJSON(w, http.StatusConflict, map[string]string{"error": "product type already exists"})
			return
		}
	}
	t.ID = s.nextID.Add(1)
	t.CreatedAt = time.Now().UTC()
	s.types[t.ID] = &t
	s.mu.Unlock()

	w.Header().Set("Location", "/api/v1/product-types/"+strconv.FormatInt(t.ID, 10))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) deleteProductType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	s.mu.Lock()
	_, found := s.types[id]
	delete(s.types, id)
	s.mu.Unlock()
	if !ok || !found {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "product type not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) auditLogs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuditForbidden {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"content": []any{}, "totalElements": 0})
}

// SeedProductType adds a product type directly, bypassing the API.
func (s *Server) SeedProductType(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID.Add(1)
	s.types[id] = &ProductType{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	return id
}

// Counts returns the number of stored products and product types.
func (s *Server) Counts() (products, productTypes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), len(s.types)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func pagination(r *http.Request) (page, size int, ok bool) {
	page, size = 0, 20
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		size = n
	}
	if page < 0 || size < 1 || size > 100 {
		return 0, 0, false
	}
	return page, size, true
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}
