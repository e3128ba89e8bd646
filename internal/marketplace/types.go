package marketplace

// Item is one element of a scanned collection, carrying the fields needed
// to decide eligibility and derive a target price. Upstream populates the
// price fields inconsistently, hence the pointers.
type Item struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	OriginalPrice  float64  `json:"originalPrice"`
	CurrentPrice   *float64 `json:"currentPrice,omitempty"`
	SuggestedPrice *float64 `json:"suggestedPrice,omitempty"`
	MinPrice       *float64 `json:"minPrice,omitempty"`
	MaxPrice       *float64 `json:"maxPrice,omitempty"`
	PercentHint    *float64 `json:"percentageHint,omitempty"`
}

// Page is one slice of a paginated collection. An empty NextCursor means
// the scan is exhausted. Total is only present when the upstream reports it.
type Page struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	Total      *int64 `json:"total,omitempty"`
}
