package models

// RawRecord is one listing as received from the source API. The schema is
// only loosely guaranteed: "id" and "title" are expected, everything else
// is optional and may arrive in varying shapes.
type RawRecord map[string]any

// Property is the canonical, sanitized form of a source listing.
type Property struct {
	ExternalID  string            `json:"external_id" db:"external_id"`
	Title       string            `json:"title" db:"title"`
	Description string            `json:"description" db:"description"`
	Price       string            `json:"price" db:"price"`
	Location    string            `json:"location" db:"location"`
	City        string            `json:"city" db:"city"`
	Area        string            `json:"area" db:"area"`
	Type        string            `json:"type" db:"type"`
	Status      string            `json:"status" db:"status"`
	Attributes  map[string]string `json:"attributes" db:"attributes"`
	Features    []string          `json:"features" db:"features"`
	Images      []string          `json:"images" db:"images"`
}

// StoreRecord is the persisted counterpart of a Property: the local
// identifier plus the external id it mirrors. The store's external-id
// index returns these pairs for diffing.
type StoreRecord struct {
	LocalID    int64  `json:"local_id" db:"local_id"`
	ExternalID string `json:"external_id" db:"external_id"`
}
