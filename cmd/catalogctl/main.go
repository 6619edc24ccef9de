// Command catalogctl queries the product feed from a terminal using the same
// configuration as the catalog service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Pierrot/internal/catalog"
	"Pierrot/internal/config"
	"Pierrot/internal/feed"
	"Pierrot/internal/report"
	"Pierrot/pkg/kit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	debug bool
	cfg   *config.Config
	store *catalog.Store
	close func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "catalogctl",
		Short:        "Inspect the product catalog feed",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.open()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.close == nil {
				return nil
			}
			return a.close()
		},
	}
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "log feed loading to stderr")

	root.AddCommand(
		newProductsCmd(a),
		newProductCmd(a),
		newCategoriesCmd(a),
		newStatusCmd(a),
	)
	return root
}

func (a *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	log := zap.NewNop()
	if a.debug || cfg.Debug {
		log = kit.NewLogger("catalogctl", true)
	}

	src, closeSrc, err := feed.Open(feed.Options{
		URL:     cfg.Feed.URL,
		DSN:     cfg.Feed.DSN,
		Table:   cfg.Feed.Table,
		Timeout: cfg.Feed.Timeout,
	})
	if err != nil {
		return err
	}
	a.close = closeSrc

	a.store = catalog.NewStore(catalog.StoreDeps{
		Source:        src,
		Normalizer:    catalog.Normalizer{ImageBaseURL: cfg.Images.BaseURL},
		Reporter:      report.NewHandler(log, a.debug || cfg.Debug),
		CacheDuration: cfg.Catalog.CacheDuration,
		MaxRetries:    cfg.Feed.MaxRetries,
		BaseDelay:     cfg.Feed.RetryBaseDelay,
		PageSize:      cfg.Catalog.PageSize,
	})
	return nil
}

// load fetches once and fails when nothing could be loaded, unlike the
// service which keeps serving an empty catalog.
func (a *app) load(ctx context.Context) error {
	if len(a.store.Load(ctx)) == 0 && a.store.TotalProducts() == 0 {
		return fmt.Errorf("no products: %s", report.UserMessage(report.ScopeProductLoad))
	}
	return nil
}

func newProductsCmd(a *app) *cobra.Command {
	var (
		q                  catalog.Query
		sort, order        string
		minPrice, maxPrice int64
	)

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products with optional filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			q.Sort = catalog.SortField(sort)
			q.Order = catalog.SortOrder(order)
			if cmd.Flags().Changed("min-price") {
				q.MinPrice = &minPrice
			}
			if cmd.Flags().Changed("max-price") {
				q.MaxPrice = &maxPrice
			}

			res := a.store.Query(q)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"items":       catalog.Views(res.Items, a.cfg.Images.FallbackURL),
				"total":       res.Total,
				"page":        res.Page,
				"size":        res.Size,
				"total_pages": res.TotalPages,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&q.Category, "category", "", "category code")
	f.StringVarP(&q.Search, "query", "q", "", "case-insensitive name search")
	f.Int64Var(&minPrice, "min-price", 0, "lowest price, inclusive")
	f.Int64Var(&maxPrice, "max-price", 0, "highest price, inclusive")
	f.StringVar(&sort, "sort", "", "name, price or sku")
	f.StringVar(&order, "order", string(catalog.Asc), "asc or desc")
	f.IntVar(&q.Page, "page", 0, "1-indexed page; 0 lists everything")
	f.IntVar(&q.Size, "size", 0, "page size; 0 uses PAGE_SIZE")
	return cmd
}

func newProductCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "product <sku>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			p, ok := a.store.ProductBySKU(args[0])
			if !ok {
				return fmt.Errorf("product %q not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), catalog.View(p, a.cfg.Images.FallbackURL))
		},
	}
}

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List category codes and labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			out := make(map[string]string)
			for _, c := range a.store.AllCategories() {
				out[c] = catalog.CategoryLabel(c)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Load the feed once and print the store status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.store.Load(cmd.Context())
			return writeJSON(cmd.OutOrStdout(), a.store.Status())
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
