package catalog

// Product is one normalized catalog row. Price 0 means undetermined.
type Product struct {
	SKU         string            `json:"sku"`
	Category    string            `json:"category"`
	Name        string            `json:"name"`
	Price       int64             `json:"price"`
	ImageFileID string            `json:"image_file_id,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	LastUpdated string            `json:"last_updated,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

var categoryLabels = map[string]string{
	"A": "Category A",
	"B": "Category B",
	"C": "Category C",
	"D": "Category D",
	"E": "Category E",
	"F": "Category F",
	"G": "Category G",
	"H": "Category H",
	"I": "Category I",
	"J": "Category J",
}

// CategoryLabel maps a category code to its display label.
func CategoryLabel(code string) string {
	if l, ok := categoryLabels[code]; ok {
		return l
	}
	return "Category " + code
}
