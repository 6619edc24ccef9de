package catalog

import (
	"strconv"
	"strings"

	"Pierrot/internal/feed"
)

var knownColumns = map[string]bool{
	feed.ColumnSKU:         true,
	feed.ColumnCategory:    true,
	feed.ColumnName:        true,
	feed.ColumnPrice:       true,
	feed.ColumnImageFileID: true,
	feed.ColumnLastUpdated: true,
}

// Normalizer turns raw feed rows into products.
type Normalizer struct {
	ImageBaseURL string
}

// Normalize zips headers with fields by position. It rejects rows without a
// sku or category. Missing positions read as "".
func (n Normalizer) Normalize(headers, fields []string) (Product, bool) {
	var p Product

	for i, h := range headers {
		v := ""
		if i < len(fields) {
			v = strings.TrimSpace(fields[i])
		}

		switch h {
		case feed.ColumnSKU:
			p.SKU = v
		case feed.ColumnCategory:
			p.Category = v
		case feed.ColumnName:
			p.Name = v
		case feed.ColumnPrice:
			p.Price = parsePrice(v)
		case feed.ColumnImageFileID:
			p.ImageFileID = v
		case feed.ColumnLastUpdated:
			p.LastUpdated = v
		default:
			if h == "" || knownColumns[h] {
				continue
			}
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[h] = v
		}
	}

	if p.SKU == "" || p.Category == "" {
		return Product{}, false
	}

	if p.ImageFileID != "" {
		p.ImageURL = n.ImageBaseURL + p.ImageFileID
	}
	return p, true
}

// parsePrice reads the leading integer of s ("5000円" -> 5000, "19.99" -> 19).
// Anything without leading digits, or negative, is 0.
func parsePrice(s string) int64 {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
