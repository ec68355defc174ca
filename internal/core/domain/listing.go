package domain

import (
	"cmp"
	"slices"
	"strings"
)

type SortKey string

const (
	SortByName     SortKey = "name"
	SortByQuantity SortKey = "quantity"
	SortByPrice    SortKey = "price"
)

type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// ParseSortKey falls back to SortByName for unknown keys.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortByQuantity:
		return SortByQuantity
	case SortByPrice:
		return SortByPrice
	default:
		return SortByName
	}
}

// ParseSortOrder falls back to Ascending for unknown orders.
func ParseSortOrder(s string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return Descending
	default:
		return Ascending
	}
}

type ListQuery struct {
	Search string
	SortBy SortKey
	Order  SortOrder
}

// ApplyListQuery filters records by case-insensitive name match and returns
// them stably sorted. The input slice is not modified.
func ApplyListQuery(records []InventoryRecord, q ListQuery) []InventoryRecord {
	needle := strings.ToLower(q.Search)
	out := make([]InventoryRecord, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Name), needle) {
			out = append(out, r)
		}
	}

	compare := compareBy(ParseSortKey(string(q.SortBy)))
	if q.Order == Descending {
		asc := compare
		compare = func(a, b InventoryRecord) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, compare)
	return out
}

func compareBy(key SortKey) func(a, b InventoryRecord) int {
	switch key {
	case SortByQuantity:
		return func(a, b InventoryRecord) int { return cmp.Compare(a.Quantity, b.Quantity) }
	case SortByPrice:
		return func(a, b InventoryRecord) int { return a.Price.Cmp(b.Price) }
	default:
		return func(a, b InventoryRecord) int { return strings.Compare(a.Name, b.Name) }
	}
}
