package feed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Known feed columns. Only sku and category are required.
const (
	ColumnSKU         = "sku"
	ColumnCategory    = "category"
	ColumnName        = "name"
	ColumnPrice       = "price"
	ColumnImageFileID = "image_file_ids"
	ColumnLastUpdated = "last_updated"
)

var (
	// ErrTransport marks failures to reach the feed. These are retryable.
	ErrTransport = errors.New("feed unavailable")
	// ErrMalformed marks a feed that was fetched but cannot be used as-is.
	ErrMalformed = errors.New("feed malformed")

	ErrNoHeader      = fmt.Errorf("%w: missing header row", ErrMalformed)
	ErrMissingColumn = fmt.Errorf("%w: missing required column", ErrMalformed)
)

// Source produces the current feed document.
type Source interface {
	Fetch(ctx context.Context) (Document, error)
}

// IsRetryable reports whether err came from the transport rather than the payload.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) && !errors.Is(err, ErrMalformed)
}

type Options struct {
	URL     string
	DSN     string
	Table   string
	Timeout time.Duration
}

// Open picks the Postgres source when a DSN is configured and the HTTP source
// otherwise. The returned close func is never nil.
func Open(o Options) (Source, func() error, error) {
	if o.DSN != "" {
		pg, err := OpenPostgres(o.DSN, o.Table)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	if o.URL == "" {
		return nil, nil, errors.New("feed: neither URL nor DSN configured")
	}
	return NewHTTPSource(o.URL, o.Timeout), func() error { return nil }, nil
}
