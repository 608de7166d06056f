package tool

// SearchKnowledgeInput defines input for the search_knowledge tool.
type SearchKnowledgeInput struct {
	Query string `json:"query" jsonschema:"The customer question to search the knowledge base for"`
	TopK  int    `json:"topK,omitempty" jsonschema:"Maximum passages to return (1-10, default 5)"`
}

// SearchProductsInput defines input for the search_products tool.
type SearchProductsInput struct {
	Query    string  `json:"query" jsonschema:"Free-text search over product names and descriptions"`
	Category string  `json:"category,omitempty" jsonschema:"Restrict results to one category"`
	MaxPrice float64 `json:"maxPrice,omitempty" jsonschema:"Only return products at or below this price"`
	Limit    int     `json:"limit,omitempty" jsonschema:"Maximum products to return (default 10)"`
}

// ProductDetailsInput defines input for the get_product_details tool.
type ProductDetailsInput struct {
	ProductID string `json:"productId" jsonschema:"The product identifier"`
}

// ProductsByCategoryInput defines input for the search_products_by_category tool.
type ProductsByCategoryInput struct {
	Category string `json:"category" jsonschema:"The category to list products from"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum products to return (default 10)"`
}

// AvailabilityInput defines input for the check_product_availability tool.
type AvailabilityInput struct {
	ProductID string `json:"productId" jsonschema:"The product identifier"`
}
