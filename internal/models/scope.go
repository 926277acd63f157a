package models

import (
	"encoding/json"
	"fmt"
)

// Scope kinds
const (
	ScopeKindAll      = "ALL"
	ScopeKindCategory = "BY_CATEGORY"
	ScopeKindLocation = "BY_LOCATION"
	ScopeKindProducts = "BY_PRODUCT_LIST"
)

// ScopeFilter restricts which products are in-session. Tagged union: exactly
// one of the variant fields is meaningful for a given Kind.
type ScopeFilter struct {
	Kind        string  `json:"kind"`
	CategoryIDs []int64 `json:"category_ids,omitempty"`
	Location    string  `json:"location,omitempty"`
	ProductIDs  []int64 `json:"product_ids,omitempty"`
}

// AllProducts returns the unrestricted scope.
func AllProducts() ScopeFilter {
	return ScopeFilter{Kind: ScopeKindAll}
}

// Validate checks that the filter's variant payload matches its kind.
func (f ScopeFilter) Validate() error {
	switch f.Kind {
	case "", ScopeKindAll:
		return nil
	case ScopeKindCategory:
		if len(f.CategoryIDs) == 0 {
			return NewValidationError("scope.category_ids", "must not be empty")
		}
	case ScopeKindLocation:
		if f.Location == "" {
			return NewValidationError("scope.location", "must not be empty")
		}
	case ScopeKindProducts:
		if len(f.ProductIDs) == 0 {
			return NewValidationError("scope.product_ids", "must not be empty")
		}
	default:
		return NewValidationError("scope.kind", fmt.Sprintf("unknown kind %q", f.Kind))
	}
	return nil
}

// Marshal serializes the filter for the session record.
func (f ScopeFilter) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// ParseScopeFilter deserializes a stored scope filter. Empty input means
// unrestricted.
func ParseScopeFilter(raw []byte) (ScopeFilter, error) {
	if len(raw) == 0 {
		return AllProducts(), nil
	}
	var f ScopeFilter
	if err := json.Unmarshal(raw, &f); err != nil {
		return ScopeFilter{}, fmt.Errorf("failed to parse scope filter: %w", err)
	}
	if f.Kind == "" {
		f.Kind = ScopeKindAll
	}
	return f, f.Validate()
}
