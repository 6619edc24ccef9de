//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8082")

type productView struct {
	SKU             string `json:"sku"`
	Category        string `json:"category"`
	DisplayPrice    string `json:"display_price"`
	DisplayImageURL string `json:"display_image_url"`
}

type productList struct {
	Items      []productView `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalPages int           `json:"total_pages"`
}

func TestSystem_E2E_Catalog(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	// The service warms its cache on start; readyz passes once a snapshot exists.
	waitReady(t, ctx, baseURL+"/readyz")

	var list productList
	getJSON(t, baseURL+"/products", &list, 200)
	if list.Total == 0 || len(list.Items) == 0 {
		t.Fatalf("expected non-empty products")
	}
	if list.Size <= 0 || len(list.Items) > list.Size {
		t.Fatalf("page size=%d items=%d", list.Size, len(list.Items))
	}

	first := list.Items[0]
	if first.SKU == "" || first.Category == "" {
		t.Fatalf("product missing sku or category: %#v", first)
	}
	if first.DisplayImageURL == "" || first.DisplayPrice == "" {
		t.Fatalf("display fields missing: %#v", first)
	}

	var one productView
	getJSON(t, baseURL+"/products/"+url.PathEscape(first.SKU), &one, 200)
	if one.SKU != first.SKU {
		t.Fatalf("sku=%s want=%s", one.SKU, first.SKU)
	}

	var byCat productList
	getJSON(t, baseURL+"/products?size=1000&category="+url.QueryEscape(first.Category), &byCat, 200)
	for _, p := range byCat.Items {
		if p.Category != first.Category {
			t.Fatalf("category filter leaked %#v", p)
		}
	}

	var cats []struct {
		Code  string `json:"code"`
		Count int    `json:"count"`
	}
	getJSON(t, baseURL+"/categories", &cats, 200)
	total := 0
	for _, c := range cats {
		total += c.Count
	}
	if total != list.Total {
		t.Fatalf("category counts=%d total=%d", total, list.Total)
	}

	getJSON(t, baseURL+"/products?sort=color", nil, 400)
	getJSON(t, baseURL+"/products/"+url.PathEscape(fmt.Sprintf("missing-%d", time.Now().UnixNano())), nil, 404)

	if os.Getenv("E2E_RESTART_CATALOG") == "1" {
		restartCatalogContainer(t, ctx)
		waitReady(t, ctx, baseURL+"/readyz")
		getJSON(t, baseURL+"/products/"+url.PathEscape(first.SKU), &one, 200)
	}
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func getJSON(t *testing.T, url string, out any, want int) {
	t.Helper()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s status=%d want=%d", url, resp.StatusCode, want)
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
