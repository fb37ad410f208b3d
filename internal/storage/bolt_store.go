// Package storage keeps a history of finished runs in a bbolt file.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	BucketRuns = "runs"

	// DefaultLimit is how many runs are kept before the oldest are pruned.
	DefaultLimit = 100
)

var ErrNotFound = errors.New("run not found")

// Record is one finished run as shown by the history view.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Plan      string    `json:"plan"`
	BaseURL   string    `json:"base_url"`
	Passed    bool      `json:"passed"`
	SetupErr  string    `json:"setup_error,omitempty"`
	Summary   Summary   `json:"summary"`
	// Failed lists the threshold predicates that did not hold.
	Failed []string `json:"failed,omitempty"`
}

type Summary struct {
	Duration     time.Duration `json:"duration"`
	Requests     int64         `json:"requests"`
	Iterations   int64         `json:"iterations"`
	MaxVUs       int           `json:"max_vus"`
	FailedRate   float64       `json:"http_req_failed"`
	ErrorRate    float64       `json:"errors"`
	AvgLatencyMs float64       `json:"avg_latency_ms"`
	P95LatencyMs float64       `json:"p95_latency_ms"`
	P99LatencyMs float64       `json:"p99_latency_ms"`
	ChecksPassed int64         `json:"checks_passed"`
	ChecksFailed int64         `json:"checks_failed"`
}

// NewID returns a key that sorts by creation time.
func NewID(at time.Time) string {
	return at.UTC().Format("20060102T150405.000000") + "-" + uuid.NewString()[:8]
}

type Store struct {
	db    *bbolt.DB
	limit int
}

// DefaultPath is ~/.vuload/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vuload", "history.db"), nil
}

// Open opens or creates the history file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, limit: DefaultLimit}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetLimit changes how many runs are retained. Zero or less keeps everything.
func (s *Store) SetLimit(n int) {
	s.limit = n
}

// Save stores rec and prunes the oldest runs beyond the limit.
func (s *Store) Save(rec Record) error {
	if rec.ID == "" {
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
		rec.ID = NewID(rec.Timestamp)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		if err := b.Put([]byte(rec.ID), data); err != nil {
			return err
		}
		if s.limit <= 0 {
			return nil
		}
		n := 0
		if err := b.ForEach(func(_, _ []byte) error { n++; return nil }); err != nil {
			return err
		}
		excess := n - s.limit
		c := b.Cursor()
		for k, _ := c.First(); k != nil && excess > 0; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
}

// List returns stored runs, newest first.
func (s *Store) List() ([]Record, error) {
	var items []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			items = append(items, rec)
		}
		return nil
	})
	return items, err
}

func (s *Store) Get(id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketRuns)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
