package catalog

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const PriceUndetermined = "Price undetermined"

var (
	pricePrinter = message.NewPrinter(language.Japanese)

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"2006/1/2",
	}
)

// ProductView is a product as shown to shoppers.
type ProductView struct {
	SKU             string            `json:"sku"`
	Category        string            `json:"category"`
	CategoryLabel   string            `json:"category_label"`
	Name            string            `json:"name"`
	DisplayName     string            `json:"display_name"`
	Price           int64             `json:"price"`
	DisplayPrice    string            `json:"display_price"`
	ImageURL        string            `json:"image_url,omitempty"`
	DisplayImageURL string            `json:"display_image_url"`
	LastUpdated     string            `json:"last_updated,omitempty"`
	DisplayUpdated  string            `json:"display_updated,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// View renders p for display. Products without an image get fallbackImageURL.
func View(p Product, fallbackImageURL string) ProductView {
	v := ProductView{
		SKU:             p.SKU,
		Category:        p.Category,
		CategoryLabel:   CategoryLabel(p.Category),
		Name:            p.Name,
		DisplayName:     p.Name,
		Price:           p.Price,
		DisplayPrice:    FormatPrice(p.Price),
		ImageURL:        p.ImageURL,
		DisplayImageURL: p.ImageURL,
		LastUpdated:     p.LastUpdated,
		DisplayUpdated:  FormatDate(p.LastUpdated),
		Extra:           p.Extra,
	}
	if v.DisplayName == "" {
		v.DisplayName = p.SKU
	}
	if v.DisplayImageURL == "" {
		v.DisplayImageURL = fallbackImageURL
	}
	return v
}

func Views(ps []Product, fallbackImageURL string) []ProductView {
	out := make([]ProductView, len(ps))
	for i, p := range ps {
		out[i] = View(p, fallbackImageURL)
	}
	return out
}

// FormatPrice renders yen with digit grouping; 0 means the price is not set.
func FormatPrice(price int64) string {
	if price <= 0 {
		return PriceUndetermined
	}
	return pricePrinter.Sprintf("¥%d", price)
}

// FormatDate renders a last_updated value as a calendar date, or "" when it
// is not in a recognised layout.
func FormatDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}
	return ""
}
