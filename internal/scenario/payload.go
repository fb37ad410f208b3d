package scenario

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"
)

// Payloads renders request bodies from text templates. Templates are parsed
// once and shared; randomness comes from the calling VU.
type Payloads struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// PayloadData is the template context. Its methods are callable from a
// template, e.g. {{.Int 50 150}}.
type PayloadData struct {
	Index         int
	ProductTypeID int64

	rand *rand.Rand
}

func (d PayloadData) Int(min, max int) int {
	if max <= min {
		return min
	}
	return min + d.rand.IntN(max-min)
}

func (d PayloadData) Float(min, max float64) string {
	return strconv.FormatFloat(min+d.rand.Float64()*(max-min), 'f', 2, 64)
}

func (d PayloadData) UUID() string {
	return uuid.NewString()
}

// Token is a short base-36 string for human-readable unique names.
func (d PayloadData) Token() string {
	return strconv.FormatUint(d.rand.Uint64(), 36)
}

func NewPayloads() *Payloads {
	return &Payloads{templates: make(map[string]*template.Template)}
}

// Preprocess converts the short placeholders {{uuid}}, {{token}},
// {{index}} and {{productTypeID}} to template field syntax.
func (p *Payloads) Preprocess(input string) string {
	return strings.NewReplacer(
		"{{uuid}}", "{{.UUID}}",
		"{{token}}", "{{.Token}}",
		"{{index}}", "{{.Index}}",
		"{{productTypeID}}", "{{.ProductTypeID}}",
	).Replace(input)
}

// Register parses text under name. Registering a name twice replaces it.
func (p *Payloads) Register(name, text string) error {
	t, err := template.New(name).Option("missingkey=error").Parse(p.Preprocess(text))
	if err != nil {
		return fmt.Errorf("parse payload %q: %w", name, err)
	}
	p.mu.Lock()
	p.templates[name] = t
	p.mu.Unlock()
	return nil
}

// Render executes the named template.
func (p *Payloads) Render(name string, r *rand.Rand, index int, productTypeID int64) ([]byte, error) {
	p.mu.RLock()
	t, ok := p.templates[name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown payload %q", name)
	}

	var buf bytes.Buffer
	data := PayloadData{Index: index, ProductTypeID: productTypeID, rand: r}
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render payload %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Product bodies used by the built-in plans.
const (
	PayloadLoadProduct   = "load-product"
	PayloadNormalProduct = "normal-product"
	PayloadSpikeProduct  = "spike-product"
	PayloadStressProduct = "stress-product"
	PayloadProductType   = "product-type"
	PayloadMalformed     = "malformed"
)

var builtinPayloads = map[string]string{
	PayloadLoadProduct: `{"name":"Load-{{token}}-{{uuid}}","description":"Load test product",` +
		`"quantity":{{.Int 50 150}},"lowStockThreshold":10,"weight":{{.Float 1 6}},` +
		`"height":{{.Float 5 25}},"length":{{.Float 10 40}},"productTypeId":{{productTypeID}}}`,
	PayloadNormalProduct: `{"name":"Normal-{{token}}-{{uuid}}","description":"Normal load product",` +
		`"quantity":{{.Int 50 150}},"lowStockThreshold":10,"weight":{{.Float 1 6}},` +
		`"height":{{.Float 5 25}},"length":{{.Float 10 40}},"productTypeId":{{productTypeID}}}`,
	PayloadSpikeProduct: `{"name":"Spike-{{index}}-{{uuid}}","description":"Spike test product {{index}}",` +
		`"quantity":{{.Int 100 300}},"lowStockThreshold":20,"weight":{{.Float 1 11}},` +
		`"height":{{.Float 10 40}},"length":{{.Float 20 70}},"productTypeId":{{productTypeID}}}`,
	PayloadStressProduct: `{"name":"StressProduct-{{token}}-{{uuid}}","description":"Product for stress testing",` +
		`"quantity":{{.Int 1 101}},"lowStockThreshold":10,"weight":1.00,"height":1.00,"length":1.00,` +
		`"productTypeId":{{productTypeID}}}`,
	PayloadProductType: `{"name":"vuload-{{index}}-{{uuid}}"}`,
	PayloadMalformed:   `{"invalid":"data"}`,
}

// DefaultPayloads returns a Payloads with every built-in body registered.
func DefaultPayloads() *Payloads {
	p := NewPayloads()
	for name, text := range builtinPayloads {
		if err := p.Register(name, text); err != nil {
			panic(err)
		}
	}
	return p
}
