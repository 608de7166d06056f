package vectorindex

import "time"

const (
	// DefaultLimit is the number of matches a query returns when no limit
	// option is given.
	DefaultLimit = 5

	// DefaultMinSimilarity drops matches that are barely related to the
	// query vector.
	DefaultMinSimilarity = 0.7

	// defaultQueryTimeout bounds a single similarity search.
	defaultQueryTimeout = 10 * time.Second
)

type queryConfig struct {
	limit         int
	minSimilarity float64
	filter        map[string]any
	timeout       time.Duration
}

// QueryOption customizes a similarity search.
type QueryOption func(*queryConfig)

// WithLimit caps the number of matches returned. Non-positive values keep
// the default.
func WithLimit(n int) QueryOption {
	return func(c *queryConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithMinSimilarity sets the similarity floor. Zero disables filtering.
func WithMinSimilarity(s float64) QueryOption {
	return func(c *queryConfig) {
		c.minSimilarity = s
	}
}

// WithFilter restricts matches to records whose payload contains every
// given field.
func WithFilter(filter map[string]any) QueryOption {
	return func(c *queryConfig) {
		c.filter = filter
	}
}

// WithTimeout overrides the per-query timeout.
func WithTimeout(d time.Duration) QueryOption {
	return func(c *queryConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildQueryConfig(opts []QueryOption) queryConfig {
	cfg := queryConfig{
		limit:         DefaultLimit,
		minSimilarity: DefaultMinSimilarity,
		timeout:       defaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
