package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/corvus-ai/corvid/internal/catalog"
	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/vectorindex"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, s.err
}

type stubSearcher struct {
	lastNS  vectorindex.Namespace
	matches []vectorindex.Match
	err     error
}

func (s *stubSearcher) Query(_ context.Context, ns vectorindex.Namespace, _ []float32, _ ...vectorindex.QueryOption) ([]vectorindex.Match, error) {
	s.lastNS = ns
	return s.matches, s.err
}

type stubProducts struct {
	products map[string]*catalog.Product
}

func (s *stubProducts) Product(_ context.Context, _, id string) (*catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return p, nil
}

func (s *stubProducts) Search(context.Context, string, string, catalog.SearchFilter) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubProducts) ByCategory(_ context.Context, _, category string, _ int) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range s.products {
		if p.Category == category {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubProducts) Availability(ctx context.Context, tenant, id string) (*catalog.Availability, error) {
	p, err := s.Product(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return &catalog.Availability{
		ProductID:     p.ID,
		Name:          p.Name,
		InStock:       p.StockQuantity > 0,
		StockQuantity: p.StockQuantity,
	}, nil
}

func lookupRegistry(t *testing.T, searcher *stubSearcher, products *stubProducts) *Registry {
	t.Helper()
	lookup := NewLookup(&stubEmbedder{vec: []float32{0.1, 0.2}}, searcher, products, "knowledge", log.NewNop())
	defs, err := lookup.Definitions()
	if err != nil {
		t.Fatal(err)
	}
	return newTestRegistry(t, defs...)
}

func TestSearchKnowledge(t *testing.T) {
	searcher := &stubSearcher{matches: []vectorindex.Match{
		{ID: "c1", Similarity: 0.91, Payload: map[string]any{"content": "Returns accepted within 30 days.", "title": "Returns - Policy"}},
		{ID: "c2", Similarity: 0.82, Payload: map[string]any{"content": "Refunds take 5 business days."}},
	}}
	r := lookupRegistry(t, searcher, &stubProducts{})

	res := r.Execute(context.Background(), "acme", "search_knowledge", json.RawMessage(`{"query":"return policy"}`))
	if !res.OK {
		t.Fatalf("result: %+v", res)
	}
	if searcher.lastNS != (vectorindex.Namespace{Tenant: "acme", Collection: "knowledge"}) {
		t.Errorf("namespace = %+v", searcher.lastNS)
	}

	raw, err := json.Marshal(res.Payload)
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Passages []knowledgePassage `json:"passages"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Passages) != 2 {
		t.Fatalf("passages = %d", len(payload.Passages))
	}
	if payload.Passages[0].Title != "Returns - Policy" || payload.Passages[0].Similarity != 0.91 {
		t.Errorf("first passage = %+v", payload.Passages[0])
	}
}

func TestProductDetails(t *testing.T) {
	products := &stubProducts{products: map[string]*catalog.Product{
		"p1": {ID: "p1", Name: "Widget", Price: 19.99, Currency: "USD", StockQuantity: 3},
	}}
	r := lookupRegistry(t, &stubSearcher{}, products)

	res := r.Execute(context.Background(), "acme", "get_product_details", json.RawMessage(`{"productId":"p1"}`))
	if !res.OK {
		t.Fatalf("result: %+v", res)
	}
	p, ok := res.Payload.(*catalog.Product)
	if !ok {
		t.Fatalf("payload type %T", res.Payload)
	}
	if p.Name != "Widget" {
		t.Errorf("product = %+v", p)
	}
}

func TestAvailabilityNotFound(t *testing.T) {
	r := lookupRegistry(t, &stubSearcher{}, &stubProducts{})

	res := r.Execute(context.Background(), "acme", "check_product_availability", json.RawMessage(`{"productId":"ghost"}`))
	if res.OK {
		t.Fatal("missing product reported ok")
	}
	if !strings.Contains(res.Error, "not found") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestAvailabilityInStock(t *testing.T) {
	products := &stubProducts{products: map[string]*catalog.Product{
		"p1": {ID: "p1", Name: "Widget", StockQuantity: 7},
	}}
	r := lookupRegistry(t, &stubSearcher{}, products)

	res := r.Execute(context.Background(), "acme", "check_product_availability", json.RawMessage(`{"productId":"p1"}`))
	if !res.OK {
		t.Fatalf("result: %+v", res)
	}
	a, ok := res.Payload.(*catalog.Availability)
	if !ok {
		t.Fatalf("payload type %T", res.Payload)
	}
	if !a.InStock || a.StockQuantity != 7 {
		t.Errorf("availability = %+v", a)
	}
}
