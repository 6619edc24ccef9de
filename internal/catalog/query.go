package catalog

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

type SortField string

const (
	SortByName  SortField = "name"
	SortByPrice SortField = "price"
	SortBySKU   SortField = "sku"
)

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Every function here returns a fresh slice; callers may modify results freely.

// ByCategory keeps products whose category code equals code.
func ByCategory(ps []Product, code string) []Product {
	return filter(ps, func(p Product) bool { return p.Category == code })
}

// BySKU returns the first product with the given sku.
func BySKU(ps []Product, sku string) (Product, bool) {
	for _, p := range ps {
		if p.SKU == sku {
			return p, true
		}
	}
	return Product{}, false
}

// Search matches q case-insensitively against product names. An empty query
// matches everything.
func Search(ps []Product, q string) []Product {
	if q == "" {
		return filter(ps, func(Product) bool { return true })
	}
	q = strings.ToLower(q)
	return filter(ps, func(p Product) bool {
		return p.Name != "" && strings.Contains(strings.ToLower(p.Name), q)
	})
}

// ByPriceRange keeps products priced within [lo, hi]. Undetermined prices
// count as 0.
func ByPriceRange(ps []Product, lo, hi int64) []Product {
	return filter(ps, func(p Product) bool { return p.Price >= lo && p.Price <= hi })
}

// Page returns the n-th (1-indexed) page of size items.
func Page(ps []Product, n, size int) []Product {
	if n < 1 || size < 1 || n-1 >= pageCount(len(ps), size) {
		return []Product{}
	}
	start := (n - 1) * size
	end := start + min(size, len(ps)-start)
	return slices.Clone(ps[start:end])
}

// Categories returns the distinct categories of ps, sorted.
func Categories(ps []Product) []string {
	seen := make(map[string]struct{}, len(ps))
	out := make([]string, 0)
	for _, p := range ps {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	slices.Sort(out)
	return out
}

// Sort returns a stably sorted copy of ps. Unknown fields sort by name.
func Sort(ps []Product, field SortField, order SortOrder) []Product {
	out := slices.Clone(ps)
	if out == nil {
		out = []Product{}
	}

	cmpFn := func(a, b Product) int { return cmp.Compare(a.Name, b.Name) }
	switch field {
	case SortByPrice:
		cmpFn = func(a, b Product) int { return cmp.Compare(a.Price, b.Price) }
	case SortBySKU:
		cmpFn = func(a, b Product) int { return cmp.Compare(a.SKU, b.SKU) }
	}

	if order == Desc {
		asc := cmpFn
		cmpFn = func(a, b Product) int { return asc(b, a) }
	}

	slices.SortStableFunc(out, cmpFn)
	return out
}

// Query combines the individual filters. Zero values disable a filter.
type Query struct {
	Category string
	Search   string
	MinPrice *int64
	MaxPrice *int64
	Sort     SortField
	Order    SortOrder
	Page     int
	Size     int
}

// Result is one page of an Apply call plus totals for the whole match set.
type Result struct {
	Items      []Product
	Total      int
	Page       int
	Size       int
	TotalPages int
}

// Apply filters by category, search and price, then sorts and pages.
func Apply(ps []Product, q Query) Result {
	out := ps
	if q.Category != "" {
		out = ByCategory(out, q.Category)
	}
	out = Search(out, q.Search)
	if q.MinPrice != nil || q.MaxPrice != nil {
		lo, hi := int64(0), int64(math.MaxInt64)
		if q.MinPrice != nil {
			lo = *q.MinPrice
		}
		if q.MaxPrice != nil {
			hi = *q.MaxPrice
		}
		out = ByPriceRange(out, lo, hi)
	}
	if q.Sort != "" {
		out = Sort(out, q.Sort, q.Order)
	}

	res := Result{Total: len(out), Page: q.Page, Size: q.Size}
	if q.Size > 0 {
		res.TotalPages = pageCount(len(out), q.Size)
	}
	if q.Page > 0 && q.Size > 0 {
		res.Items = Page(out, q.Page, q.Size)
	} else {
		res.Items = out
	}
	return res
}

// pageCount is ceil(n/size) without overflowing for large sizes.
func pageCount(n, size int) int {
	pages := n / size
	if n%size != 0 {
		pages++
	}
	return pages
}

func filter(ps []Product, keep func(Product) bool) []Product {
	out := make([]Product, 0, len(ps))
	for _, p := range ps {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
