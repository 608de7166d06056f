package tool

import (
	"context"
	"fmt"

	"github.com/corvus-ai/corvid/internal/catalog"
	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/provider"
	"github.com/corvus-ai/corvid/internal/vectorindex"
)

// VectorSearcher is the slice of the vector index the lookup tools need.
type VectorSearcher interface {
	Query(ctx context.Context, ns vectorindex.Namespace, vector []float32, opts ...vectorindex.QueryOption) ([]vectorindex.Match, error)
}

// ProductReader is the slice of the catalog the lookup tools need.
type ProductReader interface {
	Product(ctx context.Context, tenant, id string) (*catalog.Product, error)
	Search(ctx context.Context, tenant, query string, f catalog.SearchFilter) ([]catalog.Product, error)
	ByCategory(ctx context.Context, tenant, category string, limit int) ([]catalog.Product, error)
	Availability(ctx context.Context, tenant, id string) (*catalog.Availability, error)
}

const (
	maxKnowledgeTopK     = 10
	defaultKnowledgeTopK = 5
)

// Lookup bundles the retrieval tools the assistant exposes to the model.
type Lookup struct {
	embedder   provider.Embedder
	vectors    VectorSearcher
	products   ProductReader
	collection string
	logger     log.Logger
}

// NewLookup creates the lookup toolset. collection names the vector
// collection that holds ingested knowledge chunks.
func NewLookup(embedder provider.Embedder, vectors VectorSearcher, products ProductReader, collection string, logger log.Logger) *Lookup {
	return &Lookup{
		embedder:   embedder,
		vectors:    vectors,
		products:   products,
		collection: collection,
		logger:     logger,
	}
}

// Definitions returns every lookup tool, ready for registration.
func (l *Lookup) Definitions() ([]*Definition, error) {
	searchKnowledge, err := New("search_knowledge",
		"Search the knowledge base for documentation, policies and guides relevant to a customer question.",
		l.searchKnowledge)
	if err != nil {
		return nil, err
	}
	searchProducts, err := New("search_products",
		"Search the product catalog by free text, optionally filtered by category and maximum price.",
		l.searchProducts)
	if err != nil {
		return nil, err
	}
	productDetails, err := New("get_product_details",
		"Fetch the full details of a single product by its identifier.",
		l.productDetails)
	if err != nil {
		return nil, err
	}
	byCategory, err := New("search_products_by_category",
		"List products belonging to a category.",
		l.productsByCategory)
	if err != nil {
		return nil, err
	}
	availability, err := New("check_product_availability",
		"Check whether a product is in stock and how many units are available.",
		l.availability)
	if err != nil {
		return nil, err
	}
	return []*Definition{searchKnowledge, searchProducts, productDetails, byCategory, availability}, nil
}

type knowledgePassage struct {
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

func (l *Lookup) searchKnowledge(ctx context.Context, tenant string, in SearchKnowledgeInput) (any, error) {
	topK := in.TopK
	if topK <= 0 {
		topK = defaultKnowledgeTopK
	}
	topK = min(topK, maxKnowledgeTopK)

	vec, err := l.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ns := vectorindex.Namespace{Tenant: tenant, Collection: l.collection}
	matches, err := l.vectors.Query(ctx, ns, vec, vectorindex.WithLimit(topK))
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}

	passages := make([]knowledgePassage, 0, len(matches))
	for _, m := range matches {
		p := knowledgePassage{Similarity: m.Similarity}
		if s, ok := m.Payload["content"].(string); ok {
			p.Content = s
		}
		if s, ok := m.Payload["title"].(string); ok {
			p.Title = s
		}
		passages = append(passages, p)
	}
	l.logger.Debug("knowledge search", "tenant", tenant, "hits", len(passages))
	return map[string]any{"passages": passages}, nil
}

func (l *Lookup) searchProducts(ctx context.Context, tenant string, in SearchProductsInput) (any, error) {
	products, err := l.products.Search(ctx, tenant, in.Query, catalog.SearchFilter{
		Category: in.Category,
		MaxPrice: in.MaxPrice,
		Limit:    in.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return map[string]any{"products": products}, nil
}

func (l *Lookup) productDetails(ctx context.Context, tenant string, in ProductDetailsInput) (any, error) {
	p, err := l.products.Product(ctx, tenant, in.ProductID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (l *Lookup) productsByCategory(ctx context.Context, tenant string, in ProductsByCategoryInput) (any, error) {
	products, err := l.products.ByCategory(ctx, tenant, in.Category, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("list category: %w", err)
	}
	return map[string]any{"products": products}, nil
}

func (l *Lookup) availability(ctx context.Context, tenant string, in AvailabilityInput) (any, error) {
	return l.products.Availability(ctx, tenant, in.ProductID)
}
